// Package pricefeed provides the latest traded price of an instrument.
//
// Providers never fabricate a price: any failure is returned as an error carrying
// errors.ErrCodeFeedUnavailable and the caller retries on its next tick.
package pricefeed

import (
	"context"
	"time"

	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
)

// Quote is one observed price.
type Quote struct {
	Symbol     string          `json:"symbol"`
	Price      decimal.Decimal `json:"price"`
	ObservedAt time.Time       `json:"observed_at"`
}

// Feed returns the latest price of a symbol.
type Feed interface {
	LatestPrice(ctx context.Context, symbol string) (Quote, error)
}

// ProviderType names a price feed provider.
type ProviderType string

const (
	ProviderBinance    ProviderType = "binance"
	ProviderPolygon    ProviderType = "polygon"
	ProviderRedis      ProviderType = "redis"
	ProviderSimulator  ProviderType = "simulator"
	ProviderRandomWalk ProviderType = "randomwalk"
)

// Config selects and configures the provider.
type Config struct {
	Provider   ProviderType     `yaml:"provider" json:"provider" validate:"required,oneof=binance polygon redis simulator randomwalk" jsonschema:"title=Provider,enum=binance,enum=polygon,enum=redis,enum=simulator,enum=randomwalk"`
	Binance    BinanceConfig    `yaml:"binance" json:"binance"`
	Polygon    PolygonConfig    `yaml:"polygon" json:"polygon"`
	Redis      RedisConfig      `yaml:"redis" json:"redis"`
	Simulator  SimulatorConfig  `yaml:"simulator" json:"simulator"`
	RandomWalk RandomWalkConfig `yaml:"randomwalk" json:"randomwalk"`
}

// NewFeed creates the configured provider.
func NewFeed(cfg Config, log *logger.Logger) (Feed, error) {
	switch cfg.Provider {
	case ProviderBinance:
		return NewBinanceFeed(cfg.Binance, log), nil
	case ProviderPolygon:
		return NewPolygonFeed(cfg.Polygon, log)
	case ProviderRedis:
		return NewRedisFeed(cfg.Redis, log), nil
	case ProviderSimulator:
		return NewSimulatorClient(cfg.Simulator, log)
	case ProviderRandomWalk:
		return NewRandomWalkFeed(cfg.RandomWalk), nil
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidFeedProvider, "unsupported price feed provider: %s", cfg.Provider)
	}
}

func unavailable(symbol string, err error) error {
	return errors.Wrapf(errors.ErrCodeFeedUnavailable, err, "no price for %s", symbol)
}

func parsePrice(symbol, raw string) (decimal.Decimal, error) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, unavailable(symbol, err)
	}

	if !price.IsPositive() {
		return decimal.Zero, errors.Newf(errors.ErrCodeFeedUnavailable, "non-positive price %s for %s", raw, symbol)
	}

	return price, nil
}
