// Package twap splits a stage buy or sell into evenly spaced slices across a fixed window
// and tracks their fills.
package twap

import (
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/shopspring/decimal"
)

// Default scheduling policy.
const (
	DefaultWindow = time.Hour
	DefaultSlices = 2
)

// Request describes the order to schedule.
type Request struct {
	StageNumber int
	Side        types.Side
	// Notional is the quote amount to spend. Used by buys.
	Notional decimal.Decimal
	// Quantity is the base amount to dispose of. Used by sells.
	Quantity decimal.Decimal
	Start    time.Time
	// Slices overrides the scheduler default when positive.
	Slices int
	// QuantityDecimals is the precision of sell slice quantities.
	QuantityDecimals int32
}

// Scheduler builds TWAP orders.
type Scheduler struct {
	window time.Duration
	slices int
}

// NewScheduler creates a scheduler. Non-positive arguments fall back to the defaults.
func NewScheduler(window time.Duration, slices int) *Scheduler {
	if window <= 0 {
		window = DefaultWindow
	}
	if slices < 1 {
		slices = DefaultSlices
	}

	return &Scheduler{window: window, slices: slices}
}

// Window is the execution window of every order.
func (s *Scheduler) Window() time.Duration {
	return s.window
}

// Schedule splits the request into slices; slice i is released at start + i*window/slices.
// Slice amounts add up exactly to the requested notional (buys) or quantity (sells).
func (s *Scheduler) Schedule(req Request) *types.TwapOrder {
	n := s.slices
	if req.Slices > 0 {
		n = req.Slices
	}

	step := s.window / time.Duration(n)
	count := decimal.NewFromInt(int64(n))

	order := &types.TwapOrder{
		ID:          uuid.New().String(),
		StageNumber: req.StageNumber,
		Side:        req.Side,
		Notional:    req.Notional,
		Quantity:    req.Quantity,
		StartTime:   req.Start,
		Window:      s.window,
		Deadline:    req.Start.Add(s.window),
		PausedAt:    optional.None[time.Time](),
		Slices:      make([]types.TwapSlice, n),
	}

	allocated := decimal.Zero
	for i := 0; i < n; i++ {
		slice := types.TwapSlice{
			Index:            i,
			ScheduledAt:      req.Start.Add(step * time.Duration(i)),
			Notional:         decimal.Zero,
			Quantity:         decimal.Zero,
			ExecutedPrice:    optional.None[decimal.Decimal](),
			ExecutedQuantity: decimal.Zero,
			FilledAt:         optional.None[time.Time](),
			Status:           types.SliceStatusPending,
		}

		last := i == n-1
		switch req.Side {
		case types.SideBuy:
			part := req.Notional.Div(count)
			if last {
				part = req.Notional.Sub(allocated)
			}
			slice.Notional = part
			allocated = allocated.Add(part)
		case types.SideSell:
			part := req.Quantity.Div(count).Truncate(req.QuantityDecimals)
			if last {
				part = req.Quantity.Sub(allocated)
			}
			slice.Quantity = part
			allocated = allocated.Add(part)
		}

		order.Slices[i] = slice
	}

	return order
}

// DueSlices returns the indexes of pending slices released at or before now, in schedule order.
// A paused order releases nothing.
func DueSlices(order *types.TwapOrder, now time.Time) []int {
	if order.PausedAt.IsSome() {
		return nil
	}

	var due []int
	for i := range order.Slices {
		slice := &order.Slices[i]
		if slice.Status != types.SliceStatusPending {
			continue
		}
		if slice.ScheduledAt.After(now) {
			break
		}
		due = append(due, i)
	}

	return due
}

// SliceQuantity is the base quantity slice idx trades at price.
// Buys convert the slice notional, truncated to decimals; sells use the planned quantity.
func SliceQuantity(order *types.TwapOrder, idx int, price decimal.Decimal, decimals int32) decimal.Decimal {
	slice := order.Slices[idx]
	if order.Side == types.SideSell {
		return slice.Quantity
	}

	if !price.IsPositive() {
		return decimal.Zero
	}

	return slice.Notional.Div(price).Truncate(decimals)
}

// RecordFill marks slice idx filled.
func RecordFill(order *types.TwapOrder, idx int, price, quantity decimal.Decimal, at time.Time) {
	slice := &order.Slices[idx]
	slice.ExecutedPrice = optional.Some(price)
	slice.ExecutedQuantity = quantity
	slice.FilledAt = optional.Some(at)
	slice.Status = types.SliceStatusFilled
}

// Expired reports whether the window elapsed with slices still unfilled.
func Expired(order *types.TwapOrder, now time.Time) bool {
	if order.PausedAt.IsSome() {
		return false
	}

	return now.After(order.Deadline) && !order.Done()
}

// Cancel marks every pending slice cancelled.
func Cancel(order *types.TwapOrder) {
	for i := range order.Slices {
		if order.Slices[i].Status == types.SliceStatusPending {
			order.Slices[i].Status = types.SliceStatusCancelled
		}
	}
}

// Pause freezes the order at the given time.
func Pause(order *types.TwapOrder, at time.Time) {
	if order.PausedAt.IsSome() {
		return
	}

	order.PausedAt = optional.Some(at)
}

// Resume continues a paused order in place: remaining slices and the deadline shift by
// the time spent paused, so pausing never eats into the execution window.
func Resume(order *types.TwapOrder, at time.Time) {
	if order.PausedAt.IsNone() {
		return
	}

	shift := at.Sub(order.PausedAt.Unwrap())
	if shift < 0 {
		shift = 0
	}

	for i := range order.Slices {
		if order.Slices[i].Status == types.SliceStatusPending {
			order.Slices[i].ScheduledAt = order.Slices[i].ScheduledAt.Add(shift)
		}
	}

	order.Deadline = order.Deadline.Add(shift)
	order.PausedAt = optional.None[time.Time]()
}
