// Package manager is the session registry. It owns every game, training and
// invitation through a repository.Store and runs each operation as a
// per-key serialised load, mutate, save, publish transaction.
package manager

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/tecu23/chess-sessions/pkg/events"
	"github.com/tecu23/chess-sessions/pkg/game"
	"github.com/tecu23/chess-sessions/pkg/invitation"
	"github.com/tecu23/chess-sessions/pkg/metrics"
	"github.com/tecu23/chess-sessions/pkg/repository"
	"github.com/tecu23/chess-sessions/pkg/rules"
)

// Default thresholds
const (
	DefaultStaleAfter = 6 * time.Hour
	DefaultRetention  = 48 * time.Hour
)

// Archive receives finished games before the retention sweep deletes them
type Archive interface {
	SaveGame(ctx context.Context, s *game.Session) error
}

// Options tune a Manager. Zero values select the defaults.
type Options struct {
	Now           func() time.Time
	Rand          game.RandomSource
	NewID         func() string
	InvitationTTL time.Duration
	StaleAfter    time.Duration
	Retention     time.Duration
	Archive       Archive
}

// Manager is the session registry
type Manager struct {
	store     repository.Store
	oracle    rules.Oracle
	publisher *events.Publisher
	logger    *zap.Logger

	locks *keyLocks
	rand  *lockedRand
	opts  Options
}

// NewManager creates a registry over store
func NewManager(
	logger *zap.Logger,
	publisher *events.Publisher,
	store repository.Store,
	oracle rules.Oracle,
	opts Options,
) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), rand.Uint64()))
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	if opts.InvitationTTL <= 0 {
		opts.InvitationTTL = invitation.DefaultTTL
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = DefaultStaleAfter
	}
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}

	manager := &Manager{
		store:     store,
		oracle:    oracle,
		publisher: publisher,
		logger:    logger,
		locks:     newKeyLocks(),
		rand:      &lockedRand{src: opts.Rand},
		opts:      opts,
	}

	// Set up event handlers
	manager.setupEventHandlers()

	return manager
}

// setupEventHandlers sets up event handlers for the registry
func (m *Manager) setupEventHandlers() {
	m.publisher.Subscribe(events.EventSubscriberEvicted, func(event events.Event) {
		metrics.BroadcastEvictions.Inc()
		m.logger.Warn("evicted slow subscriber",
			zap.String("topic", event.Topic),
			zap.Any("subscription_id", event.Payload),
		)
	})

	m.publisher.Subscribe(events.EventConnectionClosed, func(event events.Event) {
		m.logger.Debug("connection closed", zap.Any("connection", event.Payload))
	})

	m.publisher.Subscribe(events.EventGameEnded, func(event events.Event) {
		m.logger.Info("game ended", zap.String("session_id", event.GameID), zap.Int64("version", event.Version))
	})
}

// Now is the registry's clock
func (m *Manager) Now() time.Time {
	return m.opts.Now()
}

// Store exposes the backing store for health checks
func (m *Manager) Store() repository.Store {
	return m.store
}

func (m *Manager) publish(evs ...events.Event) {
	for _, ev := range evs {
		m.publisher.Publish(ev)
	}
}

// lockedRand makes a RandomSource safe for concurrent use
type lockedRand struct {
	mu  sync.Mutex
	src game.RandomSource
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.src.IntN(n)
}
