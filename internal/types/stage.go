package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Stage is the plan and progress of one step of a session.
type Stage struct {
	Number           int                              `yaml:"number" json:"number"`
	TargetReturnPct  decimal.Decimal                  `yaml:"target_return_pct" json:"target_return_pct"`
	DropPct          decimal.Decimal                  `yaml:"drop_pct" json:"drop_pct"`
	AllocationPct    decimal.Decimal                  `yaml:"allocation_pct" json:"allocation_pct"`
	AllocationAmount decimal.Decimal                  `yaml:"allocation_amount" json:"allocation_amount"`
	ExpectedPrice    optional.Option[decimal.Decimal] `yaml:"expected_price" json:"expected_price"`
	Status           StageStatus                      `yaml:"status" json:"status"`
	// TradeFailed is set once a failed trade of this stage was recorded and cleared by its next fill.
	TradeFailed      bool                             `yaml:"trade_failed" json:"trade_failed"`
	StartedAt        optional.Option[time.Time]       `yaml:"started_at" json:"started_at"`
	CompletedAt      optional.Option[time.Time]       `yaml:"completed_at" json:"completed_at"`
}

// NewStages materializes pending stages from a validated plan.
func NewStages(plans []StagePlan) []Stage {
	stages := make([]Stage, len(plans))
	for i, p := range plans {
		stages[i] = Stage{
			Number:           p.Number,
			TargetReturnPct:  p.TargetReturnPct,
			DropPct:          p.DropPct,
			AllocationPct:    p.AllocationPct,
			AllocationAmount: p.AllocationAmount,
			ExpectedPrice:    optional.None[decimal.Decimal](),
			Status:           StageStatusPending,
			TradeFailed:      false,
			StartedAt:        optional.None[time.Time](),
			CompletedAt:      optional.None[time.Time](),
		}
	}

	return stages
}

// ExpectedPrices cascades the trigger price of every stage. Stage 1 expects the anchor and
// stage k expects the buy price of stage k-1 scaled by (1 - drop_k/100). A predecessor that
// has not bought yet stands in with its own expected price.
func ExpectedPrices(anchor decimal.Decimal, stages []Stage, positions []Position) []decimal.Decimal {
	bought := make(map[int]decimal.Decimal, len(positions))
	for _, p := range positions {
		bought[p.StageNumber] = p.BuyPrice
	}

	prices := make([]decimal.Decimal, len(stages))
	for i, s := range stages {
		if i == 0 {
			prices[i] = anchor
			continue
		}

		base := prices[i-1]
		if price, ok := bought[stages[i-1].Number]; ok {
			base = price
		}
		prices[i] = base.Mul(one.Sub(s.DropPct.Div(hundred)))
	}

	return prices
}
