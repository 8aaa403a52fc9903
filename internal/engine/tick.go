package engine

import (
	"context"
	"sync"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/internal/lifecycle"
	"github.com/rxtech-lab/nsplit-trading/internal/trigger"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/rxtech-lab/nsplit-trading/pkg/pricefeed"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Run evaluates running sessions every tick interval until ctx is cancelled.
// A tick that fires while the previous pass is still running is dropped.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	e.logger.Info("Engine started",
		zap.Duration("tick_interval", e.cfg.TickInterval),
		zap.Int("concurrency", e.cfg.Concurrency),
	)

	fire := func() {
		if !e.busy.CompareAndSwap(false, true) {
			e.metrics.TicksDropped.Inc()
			e.logger.Warn("Previous tick still running, skipping")

			return
		}

		wg.Go(func() {
			defer e.busy.Store(false)
			e.Tick(ctx)
		})
	}

	fire()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Engine stopping")

			return nil
		case <-ticker.C:
			fire()
		}
	}
}

// Tick runs one evaluation pass over every running session. Each symbol is quoted once
// per pass; symbols are processed in parallel up to the configured concurrency.
func (e *Engine) Tick(ctx context.Context) {
	start := time.Now()
	e.metrics.TicksTotal.Inc()

	defer func() {
		e.metrics.TickDuration.Observe(time.Since(start).Seconds())
	}()

	bySymbol := map[string][]*entry{}
	for _, ent := range e.entries() {
		s := ent.current.Load()
		if s.Status != types.SessionStatusRunning {
			continue
		}

		bySymbol[s.Config.SymbolCode] = append(bySymbol[s.Config.SymbolCode], ent)
	}

	var group errgroup.Group
	group.SetLimit(e.cfg.Concurrency)

	for symbol, entries := range bySymbol {
		group.Go(func() error {
			quote, err := e.quote(ctx, symbol)
			for _, ent := range entries {
				e.evaluate(ctx, ent, quote, err)
			}

			return nil
		})
	}

	_ = group.Wait()
}

// evaluateNow evaluates one session with a fresh quote and returns its snapshot.
func (e *Engine) evaluateNow(ctx context.Context, id string) (*types.Session, error) {
	ent, err := e.entry(id)
	if err != nil {
		return nil, err
	}

	s := ent.current.Load()
	if s.Status == types.SessionStatusRunning {
		quote, quoteErr := e.quote(ctx, s.Config.SymbolCode)
		e.evaluate(ctx, ent, quote, quoteErr)
	}

	return ent.current.Load().Clone(), nil
}

func (e *Engine) quote(ctx context.Context, symbol string) (pricefeed.Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.QuoteTimeout)
	defer cancel()

	start := time.Now()
	quote, err := e.feed.LatestPrice(ctx, symbol)
	e.metrics.QuoteDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		e.metrics.QuotesTotal.WithLabelValues("error").Inc()
		e.logger.Warn("Price unavailable", zap.String("symbol", symbol), zap.Error(err))

		return pricefeed.Quote{}, err
	}

	if !quote.Price.IsPositive() {
		e.metrics.QuotesTotal.WithLabelValues("error").Inc()

		return pricefeed.Quote{}, errors.Newf(errors.ErrCodeFeedUnavailable, "non-positive price %s for %s", quote.Price, symbol)
	}

	e.metrics.QuotesTotal.WithLabelValues("ok").Inc()

	return quote, nil
}

// evaluate applies one quote, or a quote failure, to a running session and commits the result.
func (e *Engine) evaluate(ctx context.Context, ent *entry, quote pricefeed.Quote, quoteErr error) {
	ent.mu.Lock()
	defer ent.mu.Unlock()

	current := ent.current.Load()
	if ent.deleted || current.Status != types.SessionStatusRunning {
		return
	}

	s := current.Clone()
	now := e.now()

	var (
		events []types.Event
		err    error
	)

	if quoteErr != nil {
		events = e.feedDown(s, now, quoteErr)
	} else {
		events, err = e.advance(ctx, s, quote, now)
	}

	if err != nil {
		e.logger.Error("Failed to evaluate session",
			zap.String("session_id", s.ID),
			zap.Int("code", int(errors.GetCode(err))),
			zap.Error(err),
		)

		return
	}

	if quoteErr != nil && len(events) == 0 {
		return
	}

	// On a store failure the committed session is left untouched and the transition retries next tick.
	_ = e.commit(ctx, ent, s, events)
}

func (e *Engine) feedDown(s *types.Session, now time.Time, cause error) []types.Event {
	var events []types.Event

	if !s.FeedDown {
		s.FeedDown = true
		events = append(events, s.NewEvent(types.EventFeedUnavailable, 0, cause.Error(), now))
	}

	return append(events, e.lifecycle.ExpireOrder(s, now).Events...)
}

func (e *Engine) advance(ctx context.Context, s *types.Session, quote pricefeed.Quote, now time.Time) ([]types.Event, error) {
	var events []types.Event

	if s.FeedDown {
		s.FeedDown = false
		events = append(events, s.NewEvent(types.EventFeedRecovered, 0, "price feed recovered", now).WithPrice(quote.Price))
	}

	s.LastPrice = optional.Some(quote.Price)
	s.LastPriceAt = optional.Some(now)

	if s.ActiveOrder != nil {
		result, err := e.lifecycle.AdvanceOrder(ctx, s, quote.Price, now)
		if err != nil {
			return nil, err
		}

		return append(events, result.Events...), nil
	}

	action := trigger.Evaluate(s, quote.Price)
	if action.IsNone() {
		return events, nil
	}

	e.metrics.ActionsTotal.WithLabelValues(string(action.Kind)).Inc()
	e.logger.Debug("Action due",
		zap.String("session_id", s.ID),
		zap.String("action", action.String()),
		zap.String("price", quote.Price.String()),
	)

	var (
		result lifecycle.Result
		err    error
	)

	switch action.Kind {
	case trigger.ActionStartBuy:
		result, err = e.lifecycle.ApplyStartBuy(ctx, s, action.StageNumber, quote.Price, now)
	case trigger.ActionStartSell:
		result, err = e.lifecycle.ApplyStartSell(ctx, s, action.StageNumber, quote.Price, now)
	case trigger.ActionNone:
	}

	if err != nil {
		return nil, err
	}

	return append(events, result.Events...), nil
}
