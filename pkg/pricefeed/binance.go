package pricefeed

import (
	"context"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"go.uber.org/zap"
)

// BinanceConfig configures the Binance ticker feed.
type BinanceConfig struct {
	APIKey    string `yaml:"api_key" json:"api_key" jsonschema:"title=API Key,description=Optional Binance API key" keychain:"true"`
	SecretKey string `yaml:"secret_key" json:"secret_key" jsonschema:"title=Secret Key,description=Optional Binance API secret" keychain:"true"`
	// BaseURL overrides the REST endpoint, e.g. for the testnet.
	BaseURL string `yaml:"base_url" json:"base_url" jsonschema:"title=Base URL,description=REST endpoint override"`
}

// BinanceFeed reads the symbol ticker price from Binance.
type BinanceFeed struct {
	client *binance.Client
	logger *logger.Logger
	now    func() time.Time
}

// NewBinanceFeed creates a Binance feed.
func NewBinanceFeed(cfg BinanceConfig, log *logger.Logger) *BinanceFeed {
	client := binance.NewClient(cfg.APIKey, cfg.SecretKey)
	if cfg.BaseURL != "" {
		client.BaseURL = cfg.BaseURL
	}

	return &BinanceFeed{
		client: client,
		logger: log,
		now:    time.Now,
	}
}

// LatestPrice implements Feed.
func (f *BinanceFeed) LatestPrice(ctx context.Context, symbol string) (Quote, error) {
	prices, err := f.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		f.logger.Debug("Binance ticker request failed", zap.String("symbol", symbol), zap.Error(err))

		return Quote{}, unavailable(symbol, err)
	}

	for _, p := range prices {
		if p.Symbol != symbol {
			continue
		}

		price, err := parsePrice(symbol, p.Price)
		if err != nil {
			return Quote{}, err
		}

		return Quote{Symbol: symbol, Price: price, ObservedAt: f.now()}, nil
	}

	return Quote{}, errors.Newf(errors.ErrCodeFeedUnavailable, "binance returned no ticker for %s", symbol)
}
