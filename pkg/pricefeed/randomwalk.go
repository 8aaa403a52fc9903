package pricefeed

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// RandomWalkConfig configures the in-process random walk feed.
type RandomWalkConfig struct {
	Seed int64 `yaml:"seed" json:"seed" jsonschema:"title=Seed"`
	// VolatilityPct is the standard deviation of each step, in percent.
	VolatilityPct float64 `yaml:"volatility_pct" json:"volatility_pct" jsonschema:"title=Volatility,default=2"`
	// InitialPrices fixes the starting price per symbol. Others start between 50000 and 100000.
	InitialPrices map[string]float64 `yaml:"initial_prices" json:"initial_prices" jsonschema:"title=Initial prices"`
	// FloorPrice is the lowest price the walk may reach.
	FloorPrice float64 `yaml:"floor_price" json:"floor_price" jsonschema:"title=Floor price,default=1000"`
}

// RandomWalkFeed generates a price path per symbol. Every call advances the walk by one step.
type RandomWalkFeed struct {
	mu         sync.Mutex
	rng        *rand.Rand
	volatility float64
	floor      float64
	initial    map[string]float64
	prices     map[string]float64
	held       map[string]bool
	now        func() time.Time
}

// NewRandomWalkFeed creates a random walk feed. Use a fixed seed for reproducible paths.
func NewRandomWalkFeed(cfg RandomWalkConfig) *RandomWalkFeed {
	volatility := cfg.VolatilityPct
	if volatility <= 0 {
		volatility = 2
	}

	floor := cfg.FloorPrice
	if floor <= 0 {
		floor = 1000
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}

	initial := make(map[string]float64, len(cfg.InitialPrices))
	for symbol, price := range cfg.InitialPrices {
		initial[symbol] = price
	}

	return &RandomWalkFeed{
		rng:        rand.New(rand.NewSource(seed)),
		volatility: volatility / 100,
		floor:      floor,
		initial:    initial,
		prices:     map[string]float64{},
		held:       map[string]bool{},
		now:        time.Now,
	}
}

// LatestPrice implements Feed.
func (f *RandomWalkFeed) LatestPrice(ctx context.Context, symbol string) (Quote, error) {
	if err := ctx.Err(); err != nil {
		return Quote{}, unavailable(symbol, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	price, ok := f.prices[symbol]
	switch {
	case !ok:
		price, ok = f.initial[symbol]
		if !ok {
			price = float64(50000 + f.rng.Intn(50001))
		}
	case f.held[symbol]:
		delete(f.held, symbol)
	default:
		price *= 1 + f.rng.NormFloat64()*f.volatility
	}

	if price < f.floor {
		price = f.floor
	}
	f.prices[symbol] = price

	return Quote{
		Symbol:     symbol,
		Price:      decimal.NewFromFloat(price).Round(2),
		ObservedAt: f.now(),
	}, nil
}

// Set pins the price returned by the next call for symbol; the walk continues from it.
func (f *RandomWalkFeed) Set(symbol string, price decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.prices[symbol] = price.InexactFloat64()
	f.held[symbol] = true
}
