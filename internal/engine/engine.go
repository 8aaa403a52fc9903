// Package engine runs staged trading sessions: it polls prices, evaluates triggers, applies
// stage transitions and persists every change before it becomes visible.
//
// Work on one session is serialized by that session's mutex. Changes are applied to a clone
// and swapped in only after the store accepted them, so readers always see a committed
// snapshot and a failed write leaves the session as it was.
package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rxtech-lab/nsplit-trading/internal/aggregate"
	"github.com/rxtech-lab/nsplit-trading/internal/execution"
	"github.com/rxtech-lab/nsplit-trading/internal/lifecycle"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/metrics"
	"github.com/rxtech-lab/nsplit-trading/internal/session"
	"github.com/rxtech-lab/nsplit-trading/internal/store"
	"github.com/rxtech-lab/nsplit-trading/internal/twap"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/rxtech-lab/nsplit-trading/pkg/pricefeed"
	"go.uber.org/zap"
)

// Config tunes the engine.
type Config struct {
	// TickInterval is the polling interval. Defaults to 5s.
	TickInterval time.Duration `yaml:"tick_interval" json:"tick_interval" validate:"gte=0"`
	// Concurrency bounds the symbols evaluated in parallel. Defaults to 8.
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"gte=0"`
	// QuoteTimeout bounds one price request. Defaults to the tick interval.
	QuoteTimeout time.Duration `yaml:"quote_timeout" json:"quote_timeout" validate:"gte=0"`
	// TwapWindow is the execution window of TWAP orders. Defaults to 1h.
	TwapWindow time.Duration `yaml:"twap_window" json:"twap_window" validate:"gte=0"`
	// TwapSlices is the default slice count of TWAP orders. Defaults to 2.
	TwapSlices int `yaml:"twap_slices" json:"twap_slices" validate:"gte=0"`
	// SubscriberBuffer is the event buffer of each stream subscriber. Defaults to 64.
	SubscriberBuffer int `yaml:"subscriber_buffer" json:"subscriber_buffer" validate:"gte=0"`
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 5 * time.Second
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 8
	}
	if c.QuoteTimeout <= 0 {
		c.QuoteTimeout = c.TickInterval
	}
	if c.TwapWindow <= 0 {
		c.TwapWindow = twap.DefaultWindow
	}
	if c.TwapSlices <= 0 {
		c.TwapSlices = twap.DefaultSlices
	}
	if c.SubscriberBuffer <= 0 {
		c.SubscriberBuffer = 64
	}

	return c
}

type entry struct {
	mu      sync.Mutex
	current atomic.Pointer[types.Session]
	deleted bool
}

// Engine owns every session in memory and keeps the store in sync.
type Engine struct {
	cfg       Config
	feed      pricefeed.Feed
	store     store.Store
	machine   *session.StateMachine
	lifecycle *lifecycle.Manager
	metrics   *metrics.Metrics
	logger    *logger.Logger
	now       func() time.Time

	mu       sync.RWMutex
	sessions map[string]*entry

	hub  *hub
	busy atomic.Bool
}

// New creates an engine. Call Load before Run to restore persisted sessions.
func New(cfg Config, feed pricefeed.Feed, st store.Store, executor execution.Executor, m *metrics.Metrics, log *logger.Logger) *Engine {
	cfg = cfg.withDefaults()
	machine := session.NewStateMachine(log.Named("session"))

	e := &Engine{
		cfg:       cfg,
		feed:      feed,
		store:     st,
		machine:   machine,
		lifecycle: lifecycle.NewManager(executor, twap.NewScheduler(cfg.TwapWindow, cfg.TwapSlices), machine, log.Named("lifecycle")),
		metrics:   m,
		logger:    log,
		now:       time.Now,
		mu:        sync.RWMutex{},
		sessions:  map[string]*entry{},
		hub:       newHub(cfg.SubscriberBuffer, m),
		busy:      atomic.Bool{},
	}
	e.refreshGauges()

	return e
}

// Load restores all persisted sessions.
func (e *Engine) Load(ctx context.Context) error {
	sessions, err := e.store.LoadSessions(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	for _, s := range sessions {
		ent := &entry{}
		ent.current.Store(s)
		e.sessions[s.ID] = ent
	}
	e.mu.Unlock()

	e.refreshGauges()
	e.logger.Info("Sessions loaded", zap.Int("count", len(sessions)))

	return nil
}

// CreateSession validates the configuration and stores a new ready session.
func (e *Engine) CreateSession(ctx context.Context, cfg types.SessionConfig) (*types.Session, error) {
	plans, err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	s := types.NewSession(uuid.New().String(), cfg, plans, e.now())
	events := e.machine.Create(s)

	if err := e.persist(ctx, s, events); err != nil {
		return nil, err
	}

	ent := &entry{}
	ent.current.Store(s)

	e.mu.Lock()
	e.sessions[s.ID] = ent
	e.mu.Unlock()

	e.publish(events)
	e.logger.Info("Session created",
		zap.String("session_id", s.ID),
		zap.String("symbol", cfg.SymbolCode),
		zap.Int("stages", s.TotalStages()),
	)

	return s.Clone(), nil
}

// UpdateConfig replaces the configuration of a ready session.
func (e *Engine) UpdateConfig(ctx context.Context, id string, cfg types.SessionConfig) (*types.Session, error) {
	return e.mutate(ctx, id, func(s *types.Session, _ time.Time) (*types.Session, []types.Event, error) {
		if err := e.machine.CanUpdate(s); err != nil {
			return nil, nil, err
		}

		plans, err := cfg.Validate()
		if err != nil {
			return nil, nil, err
		}

		next := types.NewSession(s.ID, cfg, plans, s.CreatedAt)
		next.EventSeq = s.EventSeq

		return next, nil, nil
	})
}

// Start moves a ready or paused session to running and evaluates it right away.
func (e *Engine) Start(ctx context.Context, id string) (*types.Session, error) {
	if _, err := e.transition(ctx, id, e.machine.Start); err != nil {
		return nil, err
	}

	return e.evaluateNow(ctx, id)
}

// Resume moves a paused session back to running and evaluates it right away.
func (e *Engine) Resume(ctx context.Context, id string) (*types.Session, error) {
	if _, err := e.transition(ctx, id, e.machine.Resume); err != nil {
		return nil, err
	}

	return e.evaluateNow(ctx, id)
}

// Pause stops evaluation of a running session.
func (e *Engine) Pause(ctx context.Context, id string) (*types.Session, error) {
	return e.transition(ctx, id, e.machine.Pause)
}

// Delete removes a ready session that holds no positions.
func (e *Engine) Delete(ctx context.Context, id string) error {
	ent, err := e.entry(id)
	if err != nil {
		return err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.deleted {
		return errors.Newf(errors.ErrCodeSessionNotFound, "session %s not found", id)
	}

	if err := e.machine.CanDelete(ent.current.Load()); err != nil {
		return err
	}

	if err := e.store.DeleteSession(ctx, id); err != nil {
		e.metrics.StoreErrors.Inc()

		return err
	}

	ent.deleted = true
	e.mu.Lock()
	delete(e.sessions, id)
	e.mu.Unlock()

	e.refreshGauges()
	e.logger.Info("Session deleted", zap.String("session_id", id))

	return nil
}

// GetSession returns a snapshot of one session.
func (e *Engine) GetSession(_ context.Context, id string) (*types.Session, error) {
	ent, err := e.entry(id)
	if err != nil {
		return nil, err
	}

	return ent.current.Load().Clone(), nil
}

// ListSessions returns summaries of the matching sessions, newest first.
func (e *Engine) ListSessions(_ context.Context, filter aggregate.Filter) []aggregate.SessionSummary {
	return aggregate.List(e.snapshots(), filter)
}

// Portfolio returns the rollup across all sessions.
func (e *Engine) Portfolio(_ context.Context) aggregate.Portfolio {
	return aggregate.BuildPortfolio(e.snapshots())
}

// Events returns the event log of a session, oldest first.
func (e *Engine) Events(ctx context.Context, id string) ([]types.Event, error) {
	if _, err := e.entry(id); err != nil {
		return nil, err
	}

	return e.store.Events(ctx, id)
}

// Subscribe streams every committed event. Call the returned function to unsubscribe.
// Slow subscribers lose events rather than blocking the engine.
func (e *Engine) Subscribe() (<-chan types.Event, func()) {
	return e.hub.subscribe()
}

func (e *Engine) entry(id string) (*entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	ent, ok := e.sessions[id]
	if !ok {
		return nil, errors.Newf(errors.ErrCodeSessionNotFound, "session %s not found", id)
	}

	return ent, nil
}

func (e *Engine) entries() []*entry {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*entry, 0, len(e.sessions))
	for _, ent := range e.sessions {
		out = append(out, ent)
	}

	return out
}

func (e *Engine) snapshots() []*types.Session {
	entries := e.entries()
	out := make([]*types.Session, len(entries))
	for i, ent := range entries {
		out[i] = ent.current.Load().Clone()
	}

	return out
}

type transitionFunc func(s *types.Session, at time.Time) ([]types.Event, error)

func (e *Engine) transition(ctx context.Context, id string, fn transitionFunc) (*types.Session, error) {
	return e.mutate(ctx, id, func(s *types.Session, now time.Time) (*types.Session, []types.Event, error) {
		events, err := fn(s, now)

		return s, events, err
	})
}

type mutateFunc func(s *types.Session, now time.Time) (*types.Session, []types.Event, error)

// mutate applies fn to a clone of the session under the session lock and commits the result.
func (e *Engine) mutate(ctx context.Context, id string, fn mutateFunc) (*types.Session, error) {
	ent, err := e.entry(id)
	if err != nil {
		return nil, err
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.deleted {
		return nil, errors.Newf(errors.ErrCodeSessionNotFound, "session %s not found", id)
	}

	next, events, err := fn(ent.current.Load().Clone(), e.now())
	if err != nil {
		return nil, err
	}

	if err := e.commit(ctx, ent, next, events); err != nil {
		return nil, err
	}

	return next.Clone(), nil
}

// commit persists next and swaps it in. Callers hold the entry lock.
func (e *Engine) commit(ctx context.Context, ent *entry, next *types.Session, events []types.Event) error {
	if err := e.persist(ctx, next, events); err != nil {
		return err
	}

	ent.current.Store(next)
	e.publish(events)
	e.refreshGauges()

	return nil
}

func (e *Engine) persist(ctx context.Context, s *types.Session, events []types.Event) error {
	if err := e.store.SaveSession(ctx, s, events); err != nil {
		e.metrics.StoreErrors.Inc()
		e.logger.Error("Failed to persist session", zap.String("session_id", s.ID), zap.Error(err))

		return err
	}

	return nil
}

func (e *Engine) publish(events []types.Event) {
	for _, event := range events {
		e.metrics.EventsTotal.WithLabelValues(string(event.Kind)).Inc()
		e.hub.publish(event)
	}
}

func (e *Engine) refreshGauges() {
	counts := map[types.SessionStatus]int{
		types.SessionStatusReady:     0,
		types.SessionStatusRunning:   0,
		types.SessionStatusPaused:    0,
		types.SessionStatusCompleted: 0,
	}

	realized := 0.0
	for _, ent := range e.entries() {
		s := ent.current.Load()
		counts[s.Status]++
		realized += s.RealizedProfit().InexactFloat64()
	}

	for status, n := range counts {
		e.metrics.Sessions.WithLabelValues(string(status)).Set(float64(n))
	}
	e.metrics.RealizedProfit.Set(realized)
}
