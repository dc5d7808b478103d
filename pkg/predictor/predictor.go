// Package predictor extrapolates a server clock snapshot on the client between
// server updates.
package predictor

import (
	"context"
	"sync"
	"time"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/messages"
)

// Defaults for Run
const (
	DefaultTick   = time.Second
	DefaultResync = 5 * time.Second
)

// Predictor holds the last adopted snapshot. It is safe for concurrent use.
type Predictor struct {
	mu sync.Mutex

	now     func() time.Time
	state   *chess.ClockState
	offset  time.Duration
	version int64
	adopted bool
}

// New creates a predictor reading local time from now
func New(now func() time.Time) *Predictor {
	if now == nil {
		now = time.Now
	}

	return &Predictor{now: now}
}

// Adopt replaces the local state with snap, received at receivedAt on the
// local clock. The difference between receivedAt and the server's send time
// becomes the offset applied to server timestamps. Snapshots older than the
// one already adopted are ignored; Adopt reports whether snap was taken.
func (p *Predictor) Adopt(snap messages.ClockStatePayload, receivedAt time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.adopted && snap.Version < p.version {
		return false
	}

	p.offset = receivedAt.Sub(time.UnixMilli(snap.ServerTime))
	p.state = snap.State(p.offset)
	p.version = snap.Version
	p.adopted = true

	return true
}

// Offset is the local clock minus the server clock, as last measured
func (p *Predictor) Offset() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.offset
}

// Version of the adopted snapshot
func (p *Predictor) Version() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.version
}

// Remaining is the extrapolated time left for side
func (p *Predictor) Remaining(side chess.Color) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	return chess.Remaining(side, p.state, p.now())
}

// Tick evaluates both sides now
func (p *Predictor) Tick() chess.ClockTick {
	p.mu.Lock()
	defer p.mu.Unlock()

	return chess.Tick(p.state, p.now())
}

// Display formats both clocks for humans
func (p *Predictor) Display() (white, black string) {
	t := p.Tick()
	return chess.FormatClockTime(t.White), chess.FormatClockTime(t.Black)
}

// Run calls onTick every tick and resync every resyncEvery until ctx is done.
// resync should ask the server for a fresh snapshot and feed it to Adopt.
func (p *Predictor) Run(ctx context.Context, tick, resyncEvery time.Duration, onTick func(chess.ClockTick), resync func()) {
	if tick <= 0 {
		tick = DefaultTick
	}
	if resyncEvery <= 0 {
		resyncEvery = DefaultResync
	}

	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	resyncs := time.NewTicker(resyncEvery)
	defer resyncs.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if onTick != nil {
				onTick(p.Tick())
			}
		case <-resyncs.C:
			if resync != nil {
				resync()
			}
		}
	}
}
