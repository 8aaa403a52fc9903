package execution

import (
	"context"

	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var basisPoints = decimal.NewFromInt(10000)

// PaperExecutor fills every order immediately at the reference price, moved against the
// trader by SlippageBps.
type PaperExecutor struct {
	slippageBps decimal.Decimal
	logger      *logger.Logger
}

// NewPaperExecutor creates a paper executor.
func NewPaperExecutor(slippageBps decimal.Decimal, log *logger.Logger) *PaperExecutor {
	return &PaperExecutor{
		slippageBps: slippageBps,
		logger:      log,
	}
}

// Execute implements Executor.
func (p *PaperExecutor) Execute(ctx context.Context, order Order) (Fill, error) {
	if err := ctx.Err(); err != nil {
		return Fill{}, errors.Wrap(errors.ErrCodeOrderFailed, "order cancelled", err)
	}

	if !order.Quantity.IsPositive() {
		return Fill{}, errors.Newf(errors.ErrCodeZeroQuantity,
			"stage %d %s quantity must be positive, got %s", order.StageNumber, order.Side, order.Quantity)
	}

	if !order.Price.IsPositive() {
		return Fill{}, errors.Newf(errors.ErrCodeOrderFailed, "invalid reference price %s", order.Price)
	}

	slip := order.Price.Mul(p.slippageBps).Div(basisPoints)
	price := order.Price
	switch order.Side {
	case types.SideBuy:
		price = price.Add(slip)
	case types.SideSell:
		price = price.Sub(slip)
	}

	p.logger.Debug("Paper fill",
		zap.String("session_id", order.SessionID),
		zap.String("symbol", order.Symbol),
		zap.Int("stage", order.StageNumber),
		zap.String("side", string(order.Side)),
		zap.String("price", price.String()),
		zap.String("quantity", order.Quantity.String()),
	)

	return Fill{
		Price:    price,
		Quantity: order.Quantity,
		At:       order.At,
	}, nil
}
