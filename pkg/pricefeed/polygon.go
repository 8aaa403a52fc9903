package pricefeed

import (
	"context"
	"time"

	polygon "github.com/polygon-io/client-go/rest"
	"github.com/polygon-io/client-go/rest/models"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PolygonConfig configures the Polygon.io last-trade feed.
type PolygonConfig struct {
	APIKey string `yaml:"api_key" json:"api_key" jsonschema:"title=API Key,description=Polygon.io API key,required" keychain:"true" validate:"required"`
}

type lastTradeClient interface {
	GetLastTrade(ctx context.Context, params *models.GetLastTradeParams, options ...models.RequestOption) (*models.GetLastTradeResponse, error)
}

// PolygonFeed reads the last trade of a ticker from Polygon.io.
type PolygonFeed struct {
	client lastTradeClient
	logger *logger.Logger
	now    func() time.Time
}

// NewPolygonFeed creates a Polygon.io feed.
func NewPolygonFeed(cfg PolygonConfig, log *logger.Logger) (*PolygonFeed, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.ErrCodeMissingParameter, "polygon api key is required")
	}

	return &PolygonFeed{
		client: polygon.New(cfg.APIKey),
		logger: log,
		now:    time.Now,
	}, nil
}

// LatestPrice implements Feed.
func (f *PolygonFeed) LatestPrice(ctx context.Context, symbol string) (Quote, error) {
	res, err := f.client.GetLastTrade(ctx, &models.GetLastTradeParams{Ticker: symbol})
	if err != nil {
		f.logger.Debug("Polygon last trade request failed", zap.String("symbol", symbol), zap.Error(err))

		return Quote{}, unavailable(symbol, err)
	}

	if res == nil || res.Results.Price <= 0 {
		return Quote{}, errors.Newf(errors.ErrCodeFeedUnavailable, "polygon returned no trade for %s", symbol)
	}

	return Quote{
		Symbol:     symbol,
		Price:      decimal.NewFromFloat(res.Results.Price),
		ObservedAt: f.now(),
	}, nil
}
