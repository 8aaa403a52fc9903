package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Position is the holding created when a stage buy executes.
type Position struct {
	StageNumber     int                              `yaml:"stage_number" json:"stage_number"`
	BuyPrice        decimal.Decimal                  `yaml:"buy_price" json:"buy_price"`
	Quantity        decimal.Decimal                  `yaml:"quantity" json:"quantity"`
	BuyTime         time.Time                        `yaml:"buy_time" json:"buy_time"`
	SellTargetPrice decimal.Decimal                  `yaml:"sell_target_price" json:"sell_target_price"`
	SellPrice       optional.Option[decimal.Decimal] `yaml:"sell_price" json:"sell_price"`
	SellTime        optional.Option[time.Time]       `yaml:"sell_time" json:"sell_time"`
	RealizedProfit  optional.Option[decimal.Decimal] `yaml:"realized_profit" json:"realized_profit"`
	Status          PositionStatus                   `yaml:"status" json:"status"`
}

// SellTarget returns buyPrice * (1 + targetReturnPct/100).
func SellTarget(buyPrice, targetReturnPct decimal.Decimal) decimal.Decimal {
	return buyPrice.Mul(one.Add(targetReturnPct.Div(hundred)))
}

// NewPosition opens a holding position for a stage.
func NewPosition(stage Stage, buyPrice, quantity decimal.Decimal, at time.Time) Position {
	return Position{
		StageNumber:     stage.Number,
		BuyPrice:        buyPrice,
		Quantity:        quantity,
		BuyTime:         at,
		SellTargetPrice: SellTarget(buyPrice, stage.TargetReturnPct),
		SellPrice:       optional.None[decimal.Decimal](),
		SellTime:        optional.None[time.Time](),
		RealizedProfit:  optional.None[decimal.Decimal](),
		Status:          PositionStatusHolding,
	}
}

// IsOpen reports whether the position is still held.
func (p *Position) IsOpen() bool {
	return p.Status == PositionStatusHolding
}

// Cost is the capital deployed by the position.
func (p *Position) Cost() decimal.Decimal {
	return p.BuyPrice.Mul(p.Quantity)
}

// Close marks the position sold and fixes its realized profit.
// Closing an already sold position keeps the original figures.
func (p *Position) Close(sellPrice decimal.Decimal, at time.Time) {
	if !p.IsOpen() {
		return
	}

	p.SellPrice = optional.Some(sellPrice)
	p.SellTime = optional.Some(at)
	p.RealizedProfit = optional.Some(sellPrice.Sub(p.BuyPrice).Mul(p.Quantity))
	p.Status = PositionStatusSold
}

// Realized returns the locked-in profit, zero while the position is open.
func (p *Position) Realized() decimal.Decimal {
	if p.RealizedProfit.IsSome() {
		return p.RealizedProfit.Unwrap()
	}

	return decimal.Zero
}

// Unrealized marks an open position to mark. Sold positions report zero.
func (p *Position) Unrealized(mark decimal.Decimal) decimal.Decimal {
	if !p.IsOpen() {
		return decimal.Zero
	}

	return mark.Sub(p.BuyPrice).Mul(p.Quantity)
}
