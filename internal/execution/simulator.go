package execution

import (
	"context"
	"encoding/json"

	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/rxtech-lab/nsplit-trading/pkg/pricefeed"
	"go.uber.org/zap"
)

// orderPlacer is the order side of the simulator client.
type orderPlacer interface {
	PlaceOrder(ctx context.Context, side string, req pricefeed.SimulatorOrderRequest) (pricefeed.SimulatorOrder, error)
}

// SimulatorExecutor sends every order to the simulator service and reports the price and
// quantity the simulator executed.
type SimulatorExecutor struct {
	client  orderPlacer
	account string
	logger  *logger.Logger
}

// NewSimulatorExecutor creates an executor trading on the given simulator account.
func NewSimulatorExecutor(cfg pricefeed.SimulatorConfig, account string, log *logger.Logger) (*SimulatorExecutor, error) {
	if account == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "simulator account is required")
	}

	client, err := pricefeed.NewSimulatorClient(cfg, log)
	if err != nil {
		return nil, err
	}

	return &SimulatorExecutor{client: client, account: account, logger: log}, nil
}

// Execute implements Executor.
func (s *SimulatorExecutor) Execute(ctx context.Context, order Order) (Fill, error) {
	if !order.Quantity.IsPositive() {
		return Fill{}, errors.Newf(errors.ErrCodeZeroQuantity,
			"stage %d %s quantity must be positive, got %s", order.StageNumber, order.Side, order.Quantity)
	}

	if !order.Price.IsPositive() {
		return Fill{}, errors.Newf(errors.ErrCodeOrderFailed, "invalid reference price %s", order.Price)
	}

	placed, err := s.client.PlaceOrder(ctx, string(order.Side), pricefeed.SimulatorOrderRequest{
		UserID:    s.account,
		StockCode: order.Symbol,
		Price:     json.Number(order.Price.String()),
		Quantity:  json.Number(order.Quantity.String()),
	})
	if err != nil {
		return Fill{}, errors.Wrapf(errors.ErrCodeOrderFailed, err,
			"simulator rejected stage %d %s of %s", order.StageNumber, order.Side, order.Symbol)
	}

	fill := Fill{Price: placed.Price, Quantity: placed.Quantity, At: order.At}
	if !fill.Price.IsPositive() {
		fill.Price = order.Price
	}
	if !fill.Quantity.IsPositive() {
		fill.Quantity = order.Quantity
	}

	s.logger.Info("Simulator fill",
		zap.String("session_id", order.SessionID),
		zap.String("symbol", order.Symbol),
		zap.Int("stage", order.StageNumber),
		zap.String("side", string(order.Side)),
		zap.String("order_id", placed.ID),
		zap.String("price", fill.Price.String()),
		zap.String("quantity", fill.Quantity.String()),
	)

	return fill, nil
}
