package pricefeed

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"go.uber.org/zap"
)

// RedisConfig configures the Redis feed.
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr" jsonschema:"title=Address,default=localhost:6379"`
	Password string `yaml:"password" json:"password" jsonschema:"title=Password" keychain:"true"`
	DB       int    `yaml:"db" json:"db" jsonschema:"title=Database"`
	// KeyPrefix is prepended to the symbol to build the price key.
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix" jsonschema:"title=Key prefix,default=price:"`
	// MaxAge rejects prices older than this. Zero disables the check.
	MaxAge time.Duration `yaml:"max_age" json:"max_age" jsonschema:"title=Maximum age"`
}

type stringGetter interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
}

// redisPrice is the value stored under a price key. A bare number is accepted as well.
type redisPrice struct {
	Price     json.Number `json:"price"`
	Timestamp time.Time   `json:"timestamp"`
}

// RedisFeed reads prices published to Redis by an external collector.
type RedisFeed struct {
	client stringGetter
	prefix string
	maxAge time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewRedisFeed creates a Redis feed.
func NewRedisFeed(cfg RedisConfig, log *logger.Logger) *RedisFeed {
	addr := cfg.Addr
	if addr == "" {
		addr = "localhost:6379"
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "price:"
	}

	client := goredis.NewClient(&goredis.Options{
		Addr:     addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisFeed{
		client: client,
		prefix: prefix,
		maxAge: cfg.MaxAge,
		logger: log,
		now:    time.Now,
	}
}

// LatestPrice implements Feed.
func (f *RedisFeed) LatestPrice(ctx context.Context, symbol string) (Quote, error) {
	key := f.prefix + symbol

	raw, err := f.client.Get(ctx, key).Result()
	if err == goredis.Nil {
		return Quote{}, errors.Newf(errors.ErrCodeFeedUnavailable, "no price published for %s", symbol)
	}
	if err != nil {
		f.logger.Debug("Redis price read failed", zap.String("key", key), zap.Error(err))

		return Quote{}, unavailable(symbol, err)
	}

	raw = strings.TrimSpace(raw)
	observedAt := f.now()
	priceText := raw

	if strings.HasPrefix(raw, "{") {
		var value redisPrice
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			return Quote{}, unavailable(symbol, err)
		}
		priceText = value.Price.String()
		if !value.Timestamp.IsZero() {
			observedAt = value.Timestamp
		}
	}

	price, err := parsePrice(symbol, priceText)
	if err != nil {
		return Quote{}, err
	}

	if f.maxAge > 0 && f.now().Sub(observedAt) > f.maxAge {
		return Quote{}, errors.Newf(errors.ErrCodeFeedUnavailable,
			"price for %s is stale (observed %s)", symbol, observedAt.Format(time.RFC3339))
	}

	return Quote{Symbol: symbol, Price: price, ObservedAt: observedAt}, nil
}
