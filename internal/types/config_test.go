package types

import (
	"testing"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type SessionConfigTestSuite struct {
	suite.Suite
}

func TestSessionConfigSuite(t *testing.T) {
	suite.Run(t, new(SessionConfigTestSuite))
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func uniformConfig() SessionConfig {
	return SessionConfig{
		SymbolCode:     "005930",
		SymbolName:     "Samsung Electronics",
		InitialPrice:   optional.None[decimal.Decimal](),
		AmountPerStage: d("1000000"),
		TotalStages:    5,
		SellTriggerPct: d("15"),
		BuyTriggerPct:  d("5"),
	}
}

func (suite *SessionConfigTestSuite) TestUniformPlan() {
	cfg := uniformConfig()
	plans, err := cfg.Validate()
	suite.Require().NoError(err)
	suite.Len(plans, 5)

	suite.True(plans[0].DropPct.IsZero(), "stage 1 has no drop trigger")
	for i, p := range plans {
		suite.Equal(i+1, p.Number)
		suite.True(p.TargetReturnPct.Equal(d("15")))
		suite.True(p.AllocationAmount.Equal(d("1000000")))
		suite.True(p.AllocationPct.Equal(d("20")))
		if i > 0 {
			suite.True(p.DropPct.Equal(d("5")))
		}
	}
	suite.True(cfg.TotalAllocated().Equal(d("5000000")))
}

func (suite *SessionConfigTestSuite) TestPerStagePlan() {
	cfg := uniformConfig()
	cfg.AmountPerStage = decimal.Zero
	cfg.TotalInvestment = d("1000000")
	cfg.TotalStages = 3
	cfg.Stages = []StageConfig{
		{TargetReturnPct: d("15"), AllocationPct: d("20")},
		{TargetReturnPct: d("12"), DropPct: d("7"), AllocationPct: d("30")},
		{AllocationPct: d("50")},
	}

	plans, err := cfg.Validate()
	suite.Require().NoError(err)

	suite.True(plans[1].TargetReturnPct.Equal(d("12")))
	suite.True(plans[1].DropPct.Equal(d("7")))
	suite.True(plans[2].TargetReturnPct.Equal(d("15")), "falls back to the uniform sell trigger")
	suite.True(plans[2].DropPct.Equal(d("5")), "falls back to the uniform buy trigger")
	suite.True(plans[0].AllocationAmount.Equal(d("200000")))
	suite.True(plans[1].AllocationAmount.Equal(d("300000")))
	suite.True(plans[2].AllocationAmount.Equal(d("500000")))
}

func (suite *SessionConfigTestSuite) TestAllocationRoundTrip() {
	for stages := MinStages; stages <= MaxStages; stages++ {
		cfg := uniformConfig()
		cfg.AmountPerStage = decimal.Zero
		cfg.TotalInvestment = d("1000000")
		cfg.TotalStages = stages

		plans, err := cfg.Validate()
		suite.Require().NoError(err)

		sum := decimal.Zero
		for _, p := range plans {
			sum = sum.Add(p.AllocationPct)
		}
		suite.True(sum.Sub(d("100")).Abs().LessThanOrEqual(AllocationTolerance),
			"allocation sum %s for %d stages", sum, stages)
	}
}

func (suite *SessionConfigTestSuite) TestValidationErrors() {
	tests := []struct {
		name   string
		mutate func(*SessionConfig)
		code   errors.ErrorCode
	}{
		{"too many stages", func(c *SessionConfig) { c.TotalStages = 11 }, errors.ErrCodeValidation},
		{"zero stages", func(c *SessionConfig) { c.TotalStages = 0 }, errors.ErrCodeValidation},
		{"missing symbol", func(c *SessionConfig) { c.SymbolCode = "" }, errors.ErrCodeValidation},
		{"no allocation", func(c *SessionConfig) { c.AmountPerStage = decimal.Zero }, errors.ErrCodeInvalidAllocation},
		{"both allocations", func(c *SessionConfig) { c.TotalInvestment = d("10") }, errors.ErrCodeInvalidAllocation},
		{"zero sell trigger", func(c *SessionConfig) { c.SellTriggerPct = decimal.Zero }, errors.ErrCodeInvalidPercentage},
		{"drop of 100", func(c *SessionConfig) { c.BuyTriggerPct = d("100") }, errors.ErrCodeInvalidPercentage},
		{"negative initial price", func(c *SessionConfig) { c.InitialPrice = optional.Some(d("-1")) }, errors.ErrCodeValidation},
		{"one slice", func(c *SessionConfig) { c.TwapSlices = 1 }, errors.ErrCodeValidation},
		{"override count mismatch", func(c *SessionConfig) { c.Stages = []StageConfig{{}} }, errors.ErrCodeInvalidStageCount},
		{"allocations not 100", func(c *SessionConfig) {
			c.AmountPerStage = decimal.Zero
			c.TotalInvestment = d("1000")
			c.TotalStages = 2
			c.Stages = []StageConfig{{AllocationPct: d("40")}, {AllocationPct: d("50")}}
		}, errors.ErrCodeInvalidAllocation},
		{"percentages with amount per stage", func(c *SessionConfig) {
			c.TotalStages = 2
			c.Stages = []StageConfig{{AllocationPct: d("50")}, {AllocationPct: d("50")}}
		}, errors.ErrCodeInvalidAllocation},
	}

	for _, tc := range tests {
		suite.Run(tc.name, func() {
			cfg := uniformConfig()
			tc.mutate(&cfg)
			_, err := cfg.Validate()
			suite.Require().Error(err)
			suite.Equal(tc.code, errors.GetCode(err))
			suite.True(errors.IsValidation(err))
		})
	}
}

func (suite *SessionConfigTestSuite) TestAllocationWithinTolerance() {
	cfg := uniformConfig()
	cfg.AmountPerStage = decimal.Zero
	cfg.TotalInvestment = d("900")
	cfg.TotalStages = 3
	cfg.Stages = []StageConfig{
		{AllocationPct: d("33.33")},
		{AllocationPct: d("33.33")},
		{AllocationPct: d("33.34")},
	}

	_, err := cfg.Validate()
	suite.NoError(err)
}
