// Package lifecycle applies trigger decisions to a session's stages and positions.
//
// Every Apply call mutates the session it is given; callers serialize access per session.
// Applying the same action twice is a no-op that reports Applied=false.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/internal/execution"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/session"
	"github.com/rxtech-lab/nsplit-trading/internal/twap"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Result reports what an Apply call changed.
type Result struct {
	// Applied is false when the action had already been applied or could not start.
	Applied bool
	// Failed is set when a trade was attempted and recorded as trigger_failed.
	Failed bool
	// Completed is set when the session completed as a result of the call.
	Completed bool
	Events    []types.Event
}

func (r *Result) merge(other Result) {
	r.Applied = r.Applied || other.Applied
	r.Failed = r.Failed || other.Failed
	r.Completed = r.Completed || other.Completed
	r.Events = append(r.Events, other.Events...)
}

// Manager owns stage and position transitions.
type Manager struct {
	executor  execution.Executor
	scheduler *twap.Scheduler
	machine   *session.StateMachine
	logger    *logger.Logger
}

// NewManager creates a lifecycle manager.
func NewManager(executor execution.Executor, scheduler *twap.Scheduler, machine *session.StateMachine, log *logger.Logger) *Manager {
	return &Manager{
		executor:  executor,
		scheduler: scheduler,
		machine:   machine,
		logger:    log,
	}
}

// ApplyStartBuy opens stage k at price. Without TWAP the position is created immediately;
// with TWAP an order is scheduled and the position is created once every slice fills.
func (m *Manager) ApplyStartBuy(ctx context.Context, s *types.Session, k int, price decimal.Decimal, at time.Time) (Result, error) {
	stage := s.Stage(k)
	if stage == nil {
		return Result{}, errors.Newf(errors.ErrCodeStageNotFound, "session %s has no stage %d", s.ID, k)
	}

	if stage.Status != types.StageStatusPending || s.Position(k) != nil || s.ActiveOrder != nil {
		return Result{}, nil
	}

	if k > 1 && s.Stages[k-2].Status == types.StageStatusPending {
		return Result{}, errors.Newf(errors.ErrCodeInvariantViolation,
			"stage %d cannot start before stage %d", k, k-1)
	}

	if s.AnchorPrice.IsNone() {
		anchor := price
		if s.Config.InitialPrice.IsSome() {
			anchor = s.Config.InitialPrice.Unwrap()
		}
		s.AnchorPrice = optional.Some(anchor)
		s.RefreshExpectedPrices()
	}

	if s.Config.UseTwap {
		return m.scheduleOrder(s, k, types.SideBuy, stage.AllocationAmount, decimal.Zero, at), nil
	}

	quantity := stage.AllocationAmount.Div(price).Truncate(s.Config.QuantityDecimals)
	fill, err := m.executor.Execute(ctx, execution.Order{
		SessionID:   s.ID,
		Symbol:      s.Config.SymbolCode,
		StageNumber: k,
		Side:        types.SideBuy,
		Quantity:    quantity,
		Price:       price,
		At:          at,
	})
	if err != nil {
		return m.fail(s, k, types.SideBuy, price, at, err), nil
	}

	return m.openPosition(s, k, fill.Price, fill.Quantity, at), nil
}

// ApplyStartSell closes the open position of stage k at price. With TWAP the position's
// quantity is sold through a scheduled order instead.
func (m *Manager) ApplyStartSell(ctx context.Context, s *types.Session, k int, price decimal.Decimal, at time.Time) (Result, error) {
	stage := s.Stage(k)
	if stage == nil {
		return Result{}, errors.Newf(errors.ErrCodeStageNotFound, "session %s has no stage %d", s.ID, k)
	}

	pos := s.Position(k)
	if stage.Status != types.StageStatusActive || pos == nil || !pos.IsOpen() || s.ActiveOrder != nil {
		return Result{}, nil
	}

	if s.Config.UseTwap {
		return m.scheduleOrder(s, k, types.SideSell, decimal.Zero, pos.Quantity, at), nil
	}

	fill, err := m.executor.Execute(ctx, execution.Order{
		SessionID:   s.ID,
		Symbol:      s.Config.SymbolCode,
		StageNumber: k,
		Side:        types.SideSell,
		Quantity:    pos.Quantity,
		Price:       price,
		At:          at,
	})
	if err != nil {
		return m.fail(s, k, types.SideSell, price, at, err), nil
	}

	return m.closePosition(s, k, fill.Price, at)
}

// AdvanceOrder fills the due slices of the in-flight TWAP order at price and finalizes the
// order once every slice is filled. An order past its deadline is cancelled instead.
func (m *Manager) AdvanceOrder(ctx context.Context, s *types.Session, price decimal.Decimal, at time.Time) (Result, error) {
	order := s.ActiveOrder
	if order == nil || s.Status != types.SessionStatusRunning {
		return Result{}, nil
	}

	if expired := m.ExpireOrder(s, at); expired.Applied {
		return expired, nil
	}

	var result Result
	for _, idx := range twap.DueSlices(order, at) {
		quantity := twap.SliceQuantity(order, idx, price, s.Config.QuantityDecimals)
		if quantity.IsZero() {
			// The slice notional buys less than one unit at this price.
			twap.RecordFill(order, idx, price, decimal.Zero, at)
			continue
		}

		fill, err := m.executor.Execute(ctx, execution.Order{
			SessionID:   s.ID,
			Symbol:      s.Config.SymbolCode,
			StageNumber: order.StageNumber,
			Side:        order.Side,
			Quantity:    quantity,
			Price:       price,
			At:          at,
		})
		if err != nil {
			// Unfilled slices are retried on the next tick until the deadline.
			m.logger.Warn("TWAP slice not filled",
				zap.String("session_id", s.ID),
				zap.Int("stage", order.StageNumber),
				zap.Int("slice", idx),
				zap.Error(err),
			)

			break
		}

		twap.RecordFill(order, idx, fill.Price, fill.Quantity, at)
		result.Applied = true
		msg := fmt.Sprintf("%s slice %d/%d filled", order.Side, idx+1, len(order.Slices))
		result.Events = append(result.Events,
			s.NewEvent(types.EventTwapSliceFilled, order.StageNumber, msg, at).WithTrade(fill.Price, fill.Quantity))
	}

	if !order.Done() {
		return result, nil
	}

	finalized, err := m.finalize(s, order, at)
	if err != nil {
		return result, err
	}
	result.merge(finalized)

	return result, nil
}

// ExpireOrder discards the in-flight TWAP order once its deadline has passed with slices
// still unfilled. The stage keeps its prior status and no partial position is kept.
func (m *Manager) ExpireOrder(s *types.Session, at time.Time) Result {
	order := s.ActiveOrder
	if order == nil || !twap.Expired(order, at) {
		return Result{}
	}

	twap.Cancel(order)
	s.ActiveOrder = nil

	m.logger.Warn("TWAP order expired",
		zap.String("session_id", s.ID),
		zap.Int("stage", order.StageNumber),
		zap.String("side", string(order.Side)),
		zap.Time("deadline", order.Deadline),
	)

	msg := fmt.Sprintf("%s order expired at %s with unfilled slices", order.Side, order.Deadline.Format(time.RFC3339))

	return Result{
		Applied: true,
		Failed:  true,
		Events: []types.Event{
			s.NewEvent(types.EventTwapCancelled, order.StageNumber, msg, at),
			s.NewEvent(types.EventTriggerFailed, order.StageNumber, msg, at),
		},
	}
}

func (m *Manager) scheduleOrder(s *types.Session, k int, side types.Side, notional, quantity decimal.Decimal, at time.Time) Result {
	order := m.scheduler.Schedule(twap.Request{
		StageNumber:      k,
		Side:             side,
		Notional:         notional,
		Quantity:         quantity,
		Start:            at,
		Slices:           s.Config.TwapSlices,
		QuantityDecimals: s.Config.QuantityDecimals,
	})
	s.ActiveOrder = order

	m.logger.Info("TWAP order scheduled",
		zap.String("session_id", s.ID),
		zap.Int("stage", k),
		zap.String("side", string(side)),
		zap.Int("slices", len(order.Slices)),
	)

	msg := fmt.Sprintf("%s scheduled in %d slices over %s", side, len(order.Slices), order.Window)

	return Result{
		Applied: true,
		Events:  []types.Event{s.NewEvent(types.EventTwapScheduled, k, msg, at)},
	}
}

func (m *Manager) finalize(s *types.Session, order *types.TwapOrder, at time.Time) (Result, error) {
	s.ActiveOrder = nil

	avg := order.AveragePrice()
	quantity := order.FilledQuantity()

	if order.Side == types.SideSell {
		if avg.IsNone() {
			return Result{}, errors.Newf(errors.ErrCodeInvariantViolation,
				"sell order for stage %d filled without quantity", order.StageNumber)
		}

		return m.closePosition(s, order.StageNumber, avg.Unwrap(), at)
	}

	if avg.IsNone() || !quantity.IsPositive() {
		err := errors.Newf(errors.ErrCodeZeroQuantity,
			"stage %d allocation %s buys no units", order.StageNumber, order.Notional)

		return m.fail(s, order.StageNumber, types.SideBuy, decimal.Zero, at, err), nil
	}

	return m.openPosition(s, order.StageNumber, avg.Unwrap(), quantity, at), nil
}

func (m *Manager) openPosition(s *types.Session, k int, price, quantity decimal.Decimal, at time.Time) Result {
	stage := s.Stage(k)
	s.Positions = append(s.Positions, types.NewPosition(*stage, price, quantity, at))
	stage.Status = types.StageStatusActive
	stage.StartedAt = optional.Some(at)
	stage.TradeFailed = false
	s.RefreshExpectedPrices()
	if k > s.CurrentStage {
		s.CurrentStage = k
	}

	m.logger.Info("Stage started",
		zap.String("session_id", s.ID),
		zap.Int("stage", k),
		zap.String("price", price.String()),
		zap.String("quantity", quantity.String()),
	)

	msg := fmt.Sprintf("stage %d bought %s at %s", k, quantity, price)

	return Result{
		Applied: true,
		Events:  []types.Event{s.NewEvent(types.EventStageStarted, k, msg, at).WithTrade(price, quantity)},
	}
}

func (m *Manager) closePosition(s *types.Session, k int, price decimal.Decimal, at time.Time) (Result, error) {
	stage := s.Stage(k)
	pos := s.Position(k)
	if pos == nil || !pos.IsOpen() {
		return Result{}, errors.Newf(errors.ErrCodePositionNotFound, "stage %d has no open position", k)
	}

	pos.Close(price, at)
	stage.Status = types.StageStatusCompleted
	stage.CompletedAt = optional.Some(at)
	stage.TradeFailed = false

	m.logger.Info("Stage completed",
		zap.String("session_id", s.ID),
		zap.Int("stage", k),
		zap.String("price", price.String()),
		zap.String("realized_profit", pos.Realized().String()),
	)

	msg := fmt.Sprintf("stage %d sold %s at %s, realized %s", k, pos.Quantity, price, pos.Realized())
	result := Result{
		Applied: true,
		Events:  []types.Event{s.NewEvent(types.EventStageCompleted, k, msg, at).WithTrade(price, pos.Quantity)},
	}

	if s.OpenPositions() > 0 {
		return result, nil
	}

	events, err := m.machine.Complete(s, at)
	if err != nil {
		return result, err
	}
	result.Completed = true
	result.Events = append(result.Events, events...)

	return result, nil
}

// fail records a failed trade of stage k. Only the first failure is appended to the event log;
// repeats while the stage keeps failing are logged.
func (m *Manager) fail(s *types.Session, k int, side types.Side, price decimal.Decimal, at time.Time, cause error) Result {
	stage := s.Stage(k)
	if stage != nil && stage.TradeFailed {
		m.logger.Debug("Stage trade still failing",
			zap.String("session_id", s.ID),
			zap.Int("stage", k),
			zap.String("side", string(side)),
			zap.String("price", price.String()),
			zap.Error(cause),
		)

		return Result{Failed: true}
	}

	if stage != nil {
		stage.TradeFailed = true
	}

	m.logger.Warn("Stage trade failed",
		zap.String("session_id", s.ID),
		zap.Int("stage", k),
		zap.String("side", string(side)),
		zap.Error(cause),
	)

	event := s.NewEvent(types.EventTriggerFailed, k, fmt.Sprintf("%s failed: %s", side, cause), at)
	if price.IsPositive() {
		event = event.WithPrice(price)
	}

	return Result{Failed: true, Events: []types.Event{event}}
}
