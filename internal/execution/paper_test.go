package execution

import (
	"context"
	"testing"
	"time"

	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type PaperExecutorTestSuite struct {
	suite.Suite
	logger *logger.Logger
}

func TestPaperExecutorSuite(t *testing.T) {
	suite.Run(t, new(PaperExecutorTestSuite))
}

func (suite *PaperExecutorTestSuite) SetupSuite() {
	suite.logger = logger.NewNopLogger()
}

func (suite *PaperExecutorTestSuite) order(side types.Side, qty string) Order {
	return Order{
		SessionID:   "s1",
		Symbol:      "005930",
		StageNumber: 1,
		Side:        side,
		Quantity:    decimal.RequireFromString(qty),
		Price:       decimal.NewFromInt(70000),
		At:          time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC),
	}
}

func (suite *PaperExecutorTestSuite) TestFillsAtReferencePrice() {
	exec := NewPaperExecutor(decimal.Zero, suite.logger)

	fill, err := exec.Execute(context.Background(), suite.order(types.SideBuy, "14"))
	suite.Require().NoError(err)
	suite.True(fill.Price.Equal(decimal.NewFromInt(70000)))
	suite.True(fill.Quantity.Equal(decimal.NewFromInt(14)))
	suite.Equal(time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC), fill.At)
}

func (suite *PaperExecutorTestSuite) TestSlippageMovesAgainstTrader() {
	exec := NewPaperExecutor(decimal.NewFromInt(10), suite.logger)

	buy, err := exec.Execute(context.Background(), suite.order(types.SideBuy, "1"))
	suite.Require().NoError(err)
	suite.True(buy.Price.Equal(decimal.NewFromInt(70070)), buy.Price.String())

	sell, err := exec.Execute(context.Background(), suite.order(types.SideSell, "1"))
	suite.Require().NoError(err)
	suite.True(sell.Price.Equal(decimal.NewFromInt(69930)), sell.Price.String())
}

func (suite *PaperExecutorTestSuite) TestZeroQuantity() {
	exec := NewPaperExecutor(decimal.Zero, suite.logger)

	_, err := exec.Execute(context.Background(), suite.order(types.SideBuy, "0"))
	suite.Error(err)
	suite.Equal(errors.ErrCodeZeroQuantity, errors.GetCode(err))
}

func (suite *PaperExecutorTestSuite) TestCancelledContext() {
	exec := NewPaperExecutor(decimal.Zero, suite.logger)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := exec.Execute(ctx, suite.order(types.SideBuy, "1"))
	suite.Equal(errors.ErrCodeOrderFailed, errors.GetCode(err))
}

func (suite *PaperExecutorTestSuite) TestExecutorInfo() {
	info, err := GetExecutorInfo("paper")
	suite.Require().NoError(err)
	suite.Equal("Paper", info.DisplayName)

	_, err = GetExecutorInfo("binance-live")
	suite.Error(err)
}

func (suite *PaperExecutorTestSuite) TestNewExecutor() {
	executor, err := NewExecutor(Config{Type: "", SlippageBps: 10}, suite.logger)
	suite.Require().NoError(err)
	suite.IsType(&PaperExecutor{}, executor)

	_, err = NewExecutor(Config{Type: "binance-live", SlippageBps: 0}, suite.logger)
	suite.Equal(errors.ErrCodeInvalidConfig, errors.GetCode(err))
}
