package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// TwapSlice is one timed fill of a TWAP order.
type TwapSlice struct {
	Index       int       `yaml:"index" json:"index"`
	ScheduledAt time.Time `yaml:"scheduled_at" json:"scheduled_at"`
	// Notional is the quote amount to spend (buy slices).
	Notional decimal.Decimal `yaml:"notional" json:"notional"`
	// Quantity is the base amount to dispose of (sell slices).
	Quantity         decimal.Decimal                  `yaml:"quantity" json:"quantity"`
	ExecutedPrice    optional.Option[decimal.Decimal] `yaml:"executed_price" json:"executed_price"`
	ExecutedQuantity decimal.Decimal                  `yaml:"executed_quantity" json:"executed_quantity"`
	FilledAt         optional.Option[time.Time]       `yaml:"filled_at" json:"filled_at"`
	Status           SliceStatus                      `yaml:"status" json:"status"`
}

// TwapOrder decomposes one stage buy or sell into timed slices across a window.
type TwapOrder struct {
	ID          string          `yaml:"id" json:"id"`
	StageNumber int             `yaml:"stage_number" json:"stage_number"`
	Side        Side            `yaml:"side" json:"side"`
	Notional    decimal.Decimal `yaml:"notional" json:"notional"`
	Quantity    decimal.Decimal `yaml:"quantity" json:"quantity"`
	StartTime   time.Time       `yaml:"start_time" json:"start_time"`
	Window      time.Duration   `yaml:"window" json:"window"`
	Deadline    time.Time       `yaml:"deadline" json:"deadline"`
	// PausedAt is set while the owning session is paused.
	PausedAt optional.Option[time.Time] `yaml:"paused_at" json:"paused_at"`
	Slices   []TwapSlice                `yaml:"slices" json:"slices"`
}

// Clone returns a deep copy of the order.
func (o *TwapOrder) Clone() *TwapOrder {
	if o == nil {
		return nil
	}

	c := *o
	c.Slices = append([]TwapSlice(nil), o.Slices...)

	return &c
}

// Done reports whether every slice has been filled.
func (o *TwapOrder) Done() bool {
	for _, s := range o.Slices {
		if s.Status != SliceStatusFilled {
			return false
		}
	}

	return true
}

// FilledQuantity is the total executed base quantity.
func (o *TwapOrder) FilledQuantity() decimal.Decimal {
	total := decimal.Zero
	for _, s := range o.Slices {
		if s.Status == SliceStatusFilled {
			total = total.Add(s.ExecutedQuantity)
		}
	}

	return total
}

// AveragePrice is the volume-weighted mean of the filled slice prices.
// It returns None until some quantity has been executed.
func (o *TwapOrder) AveragePrice() optional.Option[decimal.Decimal] {
	qty := decimal.Zero
	value := decimal.Zero
	for _, s := range o.Slices {
		if s.Status != SliceStatusFilled || s.ExecutedPrice.IsNone() {
			continue
		}
		qty = qty.Add(s.ExecutedQuantity)
		value = value.Add(s.ExecutedQuantity.Mul(s.ExecutedPrice.Unwrap()))
	}

	if qty.IsZero() {
		return optional.None[decimal.Decimal]()
	}

	return optional.Some(value.Div(qty))
}
