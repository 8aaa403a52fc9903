package types

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
)

// Policy bounds applied to every session configuration.
const (
	MinStages = 1
	MaxStages = 10
)

// AllocationTolerance is the allowed deviation of the per-stage allocation sum from 100%.
var AllocationTolerance = decimal.RequireFromString("0.01")

var (
	hundred = decimal.NewFromInt(100)
	one     = decimal.NewFromInt(1)
)

// StageConfig overrides the uniform trigger and allocation settings for one stage.
// Zero values fall back to the session-level settings.
type StageConfig struct {
	// TargetReturnPct is the sell trigger of the stage, in percent above its buy price.
	TargetReturnPct decimal.Decimal `yaml:"target_return_pct" json:"target_return_pct" jsonschema:"description=Sell trigger in percent above the stage buy price"`
	// DropPct is how far below the previous stage's expected price this stage buys. Ignored for stage 1.
	DropPct decimal.Decimal `yaml:"drop_pct" json:"drop_pct" jsonschema:"description=Buy trigger in percent below the previous stage expected price"`
	// AllocationPct is the share of the total investment committed to the stage.
	AllocationPct decimal.Decimal `yaml:"allocation_pct" json:"allocation_pct" jsonschema:"description=Share of the total investment for this stage"`
}

// SessionConfig is the immutable plan of a staged trading session.
// It is validated once when the session is created.
type SessionConfig struct {
	SymbolCode string `yaml:"symbol_code" json:"symbol_code" validate:"required,min=1,max=20" jsonschema:"description=Instrument code used by the price feed"`
	SymbolName string `yaml:"symbol_name" json:"symbol_name" validate:"required,min=1,max=100" jsonschema:"description=Display name of the instrument"`
	// InitialPrice anchors stage 1. When unset the first observed price is used.
	InitialPrice optional.Option[decimal.Decimal] `yaml:"initial_price" json:"initial_price" jsonschema:"description=Reference price of stage 1 (defaults to the first observed price)"`
	// AmountPerStage allocates the same notional to every stage. Mutually exclusive with TotalInvestment.
	AmountPerStage decimal.Decimal `yaml:"amount_per_stage" json:"amount_per_stage" jsonschema:"description=Notional committed to each stage"`
	// TotalInvestment is split across stages by their AllocationPct (uniform when unset).
	TotalInvestment decimal.Decimal `yaml:"total_investment" json:"total_investment" jsonschema:"description=Total notional split by per-stage allocation percentages"`
	TotalStages     int             `yaml:"total_stages" json:"total_stages" validate:"gte=1,lte=10" jsonschema:"description=Number of stages,minimum=1,maximum=10"`
	// SellTriggerPct is the uniform target return of every stage.
	SellTriggerPct decimal.Decimal `yaml:"sell_trigger_pct" json:"sell_trigger_pct" jsonschema:"description=Uniform sell trigger in percent"`
	// BuyTriggerPct is the uniform drop between consecutive stages.
	BuyTriggerPct decimal.Decimal `yaml:"buy_trigger_pct" json:"buy_trigger_pct" jsonschema:"description=Uniform buy drop in percent"`
	Stages        []StageConfig   `yaml:"stages" json:"stages" jsonschema:"description=Optional per-stage overrides"`
	UseTwap       bool            `yaml:"use_twap" json:"use_twap" jsonschema:"description=Execute stage buys and sells as time-weighted slices"`
	// TwapSlices is the number of slices per TWAP order. Zero uses the engine default.
	TwapSlices int `yaml:"twap_slices" json:"twap_slices" validate:"omitempty,gte=2,lte=60" jsonschema:"description=Slices per TWAP order"`
	// QuantityDecimals is the precision of bought quantities. Zero means whole units.
	QuantityDecimals int32 `yaml:"quantity_decimals" json:"quantity_decimals" validate:"gte=0,lte=8" jsonschema:"description=Decimal places of traded quantities"`
}

// StagePlan is one materialized stage of a validated configuration.
type StagePlan struct {
	Number           int
	TargetReturnPct  decimal.Decimal
	DropPct          decimal.Decimal
	AllocationPct    decimal.Decimal
	AllocationAmount decimal.Decimal
}

// Validate checks the configuration and returns the materialized stage plan.
func (c *SessionConfig) Validate() ([]StagePlan, error) {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return nil, errors.Wrap(errors.ErrCodeValidation, "invalid session config", err)
	}

	if c.InitialPrice.IsSome() && !c.InitialPrice.Unwrap().IsPositive() {
		return nil, errors.New(errors.ErrCodeValidation, "initial price must be positive")
	}

	if len(c.Stages) > 0 && len(c.Stages) != c.TotalStages {
		return nil, errors.Newf(errors.ErrCodeInvalidStageCount,
			"stage overrides (%d) do not match total stages (%d)", len(c.Stages), c.TotalStages)
	}

	perStage := c.AmountPerStage.IsPositive()
	total := c.TotalInvestment.IsPositive()
	if c.AmountPerStage.IsNegative() || c.TotalInvestment.IsNegative() {
		return nil, errors.New(errors.ErrCodeInvalidAllocation, "allocation amounts must not be negative")
	}
	if perStage == total {
		return nil, errors.New(errors.ErrCodeInvalidAllocation,
			"exactly one of amount_per_stage and total_investment must be set")
	}

	allocations, err := c.allocationPcts(perStage)
	if err != nil {
		return nil, err
	}

	plans := make([]StagePlan, c.TotalStages)
	for i := range plans {
		number := i + 1
		target := c.SellTriggerPct
		drop := c.BuyTriggerPct
		if len(c.Stages) > 0 {
			if !c.Stages[i].TargetReturnPct.IsZero() {
				target = c.Stages[i].TargetReturnPct
			}
			if !c.Stages[i].DropPct.IsZero() {
				drop = c.Stages[i].DropPct
			}
		}

		if !target.IsPositive() || target.GreaterThan(hundred) {
			return nil, errors.Newf(errors.ErrCodeInvalidPercentage,
				"stage %d target return must be in (0, 100], got %s", number, target)
		}

		if number == 1 {
			drop = decimal.Zero
		} else if !drop.IsPositive() || !drop.LessThan(hundred) {
			return nil, errors.Newf(errors.ErrCodeInvalidPercentage,
				"stage %d drop must be in (0, 100), got %s", number, drop)
		}

		amount := c.AmountPerStage
		if total {
			amount = c.TotalInvestment.Mul(allocations[i]).Div(hundred)
		}

		plans[i] = StagePlan{
			Number:           number,
			TargetReturnPct:  target,
			DropPct:          drop,
			AllocationPct:    allocations[i],
			AllocationAmount: amount,
		}
	}

	return plans, nil
}

// allocationPcts resolves per-stage allocation percentages, defaulting to an even split.
func (c *SessionConfig) allocationPcts(perStage bool) ([]decimal.Decimal, error) {
	even := hundred.Div(decimal.NewFromInt(int64(c.TotalStages)))
	pcts := make([]decimal.Decimal, c.TotalStages)

	explicit := false
	for _, s := range c.Stages {
		if !s.AllocationPct.IsZero() {
			explicit = true

			break
		}
	}

	if !explicit {
		for i := range pcts {
			pcts[i] = even
		}

		return pcts, nil
	}

	if perStage {
		return nil, errors.New(errors.ErrCodeInvalidAllocation,
			"per-stage allocation percentages require total_investment")
	}

	sum := decimal.Zero
	for i, s := range c.Stages {
		if !s.AllocationPct.IsPositive() {
			return nil, errors.Newf(errors.ErrCodeInvalidAllocation,
				"stage %d allocation must be positive, got %s", i+1, s.AllocationPct)
		}
		pcts[i] = s.AllocationPct
		sum = sum.Add(s.AllocationPct)
	}

	if sum.Sub(hundred).Abs().GreaterThan(AllocationTolerance) {
		return nil, errors.Newf(errors.ErrCodeInvalidAllocation,
			"stage allocations must sum to 100%%, got %s%%", sum)
	}

	return pcts, nil
}

// TotalAllocated returns the capital the configuration commits across all stages.
func (c *SessionConfig) TotalAllocated() decimal.Decimal {
	if c.TotalInvestment.IsPositive() {
		return c.TotalInvestment
	}

	return c.AmountPerStage.Mul(decimal.NewFromInt(int64(c.TotalStages)))
}

// TwapSlicesOrDefault returns the TWAP slice count, falling back to def when unset.
func (c *SessionConfig) TwapSlicesOrDefault(def int) int {
	if c.TwapSlices > 0 {
		return c.TwapSlices
	}

	return def
}

// DefaultTwapWindow is the execution window of every TWAP order.
const DefaultTwapWindow = time.Hour
