package aggregate

import (
	"testing"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type AggregateTestSuite struct {
	suite.Suite
	base time.Time
}

func TestAggregateSuite(t *testing.T) {
	suite.Run(t, new(AggregateTestSuite))
}

func (suite *AggregateTestSuite) SetupTest() {
	suite.base = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func (suite *AggregateTestSuite) newSession(id string, symbol string, createdOffset time.Duration) *types.Session {
	cfg := types.SessionConfig{
		SymbolCode:     symbol,
		SymbolName:     symbol,
		AmountPerStage: d("1000000"),
		TotalStages:    4,
		SellTriggerPct: d("10"),
		BuyTriggerPct:  d("5"),
	}
	plans, err := cfg.Validate()
	suite.Require().NoError(err)

	return types.NewSession(id, cfg, plans, suite.base.Add(createdOffset))
}

// completed builds a session that bought 10 units at 100000 and sold them at sellPrice.
func (suite *AggregateTestSuite) completed(id string, sellPrice string, completedAt time.Time) *types.Session {
	s := suite.newSession(id, "005930", 0)
	pos := types.NewPosition(s.Stages[0], d("100000"), d("10"), suite.base)
	pos.Close(d(sellPrice), completedAt)
	s.Positions = append(s.Positions, pos)
	s.Stages[0].Status = types.StageStatusCompleted
	s.CurrentStage = 1
	s.Status = types.SessionStatusCompleted
	s.CompletedAt = optional.Some(completedAt)

	return s
}

func (suite *AggregateTestSuite) TestSummarizeOpenPosition() {
	s := suite.newSession("s1", "005930", 0)
	s.Status = types.SessionStatusRunning
	s.CurrentStage = 1
	s.Stages[0].Status = types.StageStatusActive
	s.Positions = append(s.Positions, types.NewPosition(s.Stages[0], d("70000"), d("14"), suite.base))
	s.LastPrice = optional.Some(d("77000"))

	summary := Summarize(s)
	suite.True(summary.Allocated.Equal(d("4000000")))
	suite.True(summary.Invested.Equal(d("980000")))
	suite.True(summary.Realized.IsZero())
	suite.True(summary.Unrealized.Equal(d("98000")))
	suite.True(summary.ReturnPct.Equal(d("10")), summary.ReturnPct.String())
}

func (suite *AggregateTestSuite) TestSummarizeEmptySessionDoesNotDivideByZero() {
	summary := Summarize(suite.newSession("s1", "005930", 0))
	suite.True(summary.ReturnPct.IsZero())
	suite.True(summary.Invested.IsZero())
}

func (suite *AggregateTestSuite) TestListNewestFirstWithFilters() {
	older := suite.newSession("a", "005930", 0)
	newer := suite.newSession("b", "000660", time.Hour)
	newest := suite.newSession("c", "005930", 2*time.Hour)
	newest.Status = types.SessionStatusRunning

	all := List([]*types.Session{older, newest, newer}, Filter{})
	suite.Require().Len(all, 3)
	suite.Equal([]string{"c", "b", "a"}, []string{all[0].ID, all[1].ID, all[2].ID})

	ready := List([]*types.Session{older, newest, newer}, Filter{Status: optional.Some(types.SessionStatusReady)})
	suite.Require().Len(ready, 2)
	suite.Equal("b", ready[0].ID)

	bySymbol := List([]*types.Session{older, newest, newer}, Filter{SymbolCode: "005930"})
	suite.Len(bySymbol, 2)
}

func (suite *AggregateTestSuite) TestFilterByCompletedYear() {
	done2024 := suite.completed("a", "110000", time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC))
	done2025 := suite.completed("b", "110000", time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	open := suite.newSession("c", "005930", 0)

	out := List([]*types.Session{done2024, done2025, open}, Filter{CompletedYear: optional.Some(2025)})
	suite.Require().Len(out, 1)
	suite.Equal("b", out[0].ID)
}

func (suite *AggregateTestSuite) TestPortfolioWithoutCompletedSessions() {
	p := BuildPortfolio([]*types.Session{suite.newSession("a", "005930", 0)})
	suite.True(p.AverageReturnPct.IsZero())
	suite.True(p.AverageProgressPct.IsZero())
	suite.Equal(1, p.Counts.Ready)
	suite.Empty(p.ByYear)

	empty := BuildPortfolio(nil)
	suite.True(empty.AverageReturnPct.IsZero())
	suite.Equal(0, empty.Counts.All)
}

func (suite *AggregateTestSuite) TestPortfolioTotals() {
	win := suite.completed("a", "110000", time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC))
	loss := suite.completed("b", "95000", time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	win2025 := suite.completed("c", "120000", time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC))

	running := suite.newSession("d", "000660", 0)
	running.Status = types.SessionStatusRunning
	running.CurrentStage = 2

	p := BuildPortfolio([]*types.Session{win, loss, win2025, running})

	suite.Equal(4, p.Counts.All)
	suite.Equal(3, p.Counts.Completed)
	suite.Equal(1, p.Counts.Running)
	suite.True(p.CompletedAllocated.Equal(d("12000000")))
	suite.True(p.ActiveAllocated.Equal(d("4000000")))
	// 100000 - 50000 + 200000
	suite.True(p.Realized.Equal(d("250000")))
	// (10 - 5 + 20) / 3
	suite.True(p.AverageReturnPct.Sub(d("8.3333333333")).Abs().LessThan(d("0.0001")), p.AverageReturnPct.String())
	// 2 of 4 stages
	suite.True(p.AverageProgressPct.Equal(d("50")))

	suite.Require().Len(p.ByYear, 2)
	suite.Equal(2025, p.ByYear[0].Year)
	suite.Equal(2, p.ByYear[0].Sessions)
	suite.True(p.ByYear[0].Realized.Equal(d("150000")))
	suite.True(p.ByYear[0].AverageReturnPct.Equal(d("7.5")))
	suite.Equal(2024, p.ByYear[1].Year)
	suite.True(p.ByYear[1].AverageReturnPct.Equal(d("10")))
}
