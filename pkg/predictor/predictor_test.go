package predictor

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tecu23/chess-sessions/pkg/chess"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/messages"
)

var server0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

type localClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *localClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *localClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.now = c.now.Add(d)
}

// black to move since server0, sent 2s later
func snapshot(version int64, black int64) messages.ClockStatePayload {
	return messages.ClockStatePayload{
		Mode:              game.ModeTimed,
		Base:              300_000,
		Increment:         3_000,
		WhiteRemaining:    300_000,
		BlackRemaining:    black,
		LastMoveTimestamp: server0.UnixMilli(),
		ActiveSide:        chess.Black,
		Running:           true,
		ServerTime:        server0.Add(2 * time.Second).UnixMilli(),
		Version:           version,
	}
}

func TestExtrapolatesFromSnapshot(t *testing.T) {
	// the local clock runs an hour behind the server
	clock := &localClock{now: server0.Add(-time.Hour + 2*time.Second)}
	p := New(clock.Now)

	require.True(t, p.Adopt(snapshot(3, 290_000), clock.Now()))
	assert.Equal(t, -time.Hour, p.Offset())

	assert.Equal(t, int64(288_000), p.Remaining(chess.Black))
	assert.Equal(t, int64(300_000), p.Remaining(chess.White))

	clock.Advance(5 * time.Second)
	assert.Equal(t, int64(283_000), p.Remaining(chess.Black))
	assert.Equal(t, int64(300_000), p.Remaining(chess.White))

	white, black := p.Display()
	assert.Equal(t, "5:00", white)
	assert.Equal(t, "4:43", black)

	clock.Advance(time.Hour)
	assert.Equal(t, int64(0), p.Remaining(chess.Black))
}

func TestAdoptReplacesExtrapolation(t *testing.T) {
	clock := &localClock{now: server0.Add(2 * time.Second)}
	p := New(clock.Now)

	require.True(t, p.Adopt(snapshot(3, 290_000), clock.Now()))
	clock.Advance(10 * time.Second)

	fresh := snapshot(4, 250_000)
	fresh.ServerTime = server0.Add(12 * time.Second).UnixMilli()
	require.True(t, p.Adopt(fresh, clock.Now()))
	assert.Equal(t, int64(238_000), p.Remaining(chess.Black))

	// a late answer to an older resync is dropped
	assert.False(t, p.Adopt(snapshot(3, 290_000), clock.Now()))
	assert.Equal(t, int64(4), p.Version())
}

func TestUnlimitedAndStopped(t *testing.T) {
	p := New(nil)
	assert.Equal(t, chess.Unlimited, p.Remaining(chess.White))

	p.Adopt(messages.ClockStatePayload{Mode: game.ModeTraining, ServerTime: server0.UnixMilli()}, time.Now())
	white, _ := p.Display()
	assert.Equal(t, "--:--", white)

	stopped := snapshot(9, 12_000)
	stopped.Running = false
	p.Adopt(stopped, time.Now())
	assert.Equal(t, int64(12_000), p.Remaining(chess.Black))
}

func TestRunTicksAndResyncs(t *testing.T) {
	p := New(nil)
	ctx, cancel := context.WithCancel(context.Background())

	var ticks, resyncs atomic.Int32
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, 5*time.Millisecond, 20*time.Millisecond,
			func(chess.ClockTick) { ticks.Add(1) },
			func() { resyncs.Add(1) },
		)
	}()

	assert.Eventually(t, func() bool {
		return ticks.Load() >= 3 && resyncs.Load() >= 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	<-done
}
