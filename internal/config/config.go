// Package config loads the service configuration from a YAML file and NSPLIT_* environment
// variables. Environment variables win over the file; unset values fall back to defaults.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rxtech-lab/nsplit-trading/internal/engine"
	"github.com/rxtech-lab/nsplit-trading/internal/execution"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/store/sqlstore"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/rxtech-lab/nsplit-trading/pkg/pricefeed"
	"gopkg.in/yaml.v3"
)

// Config is the complete service configuration.
type Config struct {
	Log      logger.Options   `yaml:"log" json:"log"`
	HTTP     HTTPConfig       `yaml:"http" json:"http"`
	Engine   engine.Config    `yaml:"engine" json:"engine"`
	Executor execution.Config `yaml:"executor" json:"executor"`
	Store    sqlstore.Config  `yaml:"store" json:"store"`
	// Feed is validated by the selected provider when the feed is built.
	Feed pricefeed.Config `yaml:"feed" json:"feed" validate:"-"`
}

// HTTPConfig configures the API server.
type HTTPConfig struct {
	Addr string `yaml:"addr" json:"addr" validate:"required"`
	// ShutdownTimeout bounds the graceful shutdown of the server.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout" validate:"gte=0"`
}

// Default returns the configuration used when no file is given: an in-process random walk
// feed, paper fills and a DuckDB file in the working directory.
func Default() Config {
	return Config{
		Log: logger.Options{Level: "info", Development: false},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
		},
		Engine: engine.Config{
			TickInterval:     5 * time.Second,
			Concurrency:      8,
			QuoteTimeout:     0,
			TwapWindow:       time.Hour,
			TwapSlices:       2,
			SubscriberBuffer: 64,
		},
		//nolint:exhaustruct // simulator settings only apply to the simulator executor
		Executor: execution.Config{Type: execution.ExecutorPaper, SlippageBps: 0, Account: "nsplit"},
		Store:    sqlstore.Config{Driver: sqlstore.DriverDuckDB, DSN: "nsplit.duckdb"},
		//nolint:exhaustruct // provider sub-configs default to their zero values
		Feed: pricefeed.Config{Provider: pricefeed.ProviderRandomWalk},
	}
}

// LookupFunc reads one environment variable.
type LookupFunc func(key string) (string, bool)

// Load reads path (optional) and the process environment.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv reads path (optional) and applies overrides from lookup.
func LoadWithEnv(path string, lookup LookupFunc) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfig, err, "failed to read config file %s", path)
		}

		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfig, err, "failed to parse config file %s", path)
		}
	}

	if err := applyEnv(&cfg, lookup); err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfig, "invalid configuration", err)
	}

	if _, err := pricefeed.GetProviderInfo(string(c.Feed.Provider)); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidFeedProvider, "invalid feed configuration", err)
	}

	return nil
}

type envBinding struct {
	key   string
	apply func(cfg *Config, value string) error
}

func stringVar(set func(cfg *Config, value string)) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		set(cfg, value)

		return nil
	}
}

func durationVar(set func(cfg *Config, value time.Duration)) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}

		set(cfg, d)

		return nil
	}
}

func intVar(set func(cfg *Config, value int)) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}

		set(cfg, n)

		return nil
	}
}

var envBindings = []envBinding{
	{"NSPLIT_LOG_LEVEL", stringVar(func(c *Config, v string) { c.Log.Level = v })},
	{"NSPLIT_HTTP_ADDR", stringVar(func(c *Config, v string) { c.HTTP.Addr = v })},
	{"NSPLIT_TICK_INTERVAL", durationVar(func(c *Config, v time.Duration) { c.Engine.TickInterval = v })},
	{"NSPLIT_CONCURRENCY", intVar(func(c *Config, v int) { c.Engine.Concurrency = v })},
	{"NSPLIT_TWAP_WINDOW", durationVar(func(c *Config, v time.Duration) { c.Engine.TwapWindow = v })},
	{"NSPLIT_TWAP_SLICES", intVar(func(c *Config, v int) { c.Engine.TwapSlices = v })},
	{"NSPLIT_STORE_DRIVER", stringVar(func(c *Config, v string) { c.Store.Driver = sqlstore.Driver(v) })},
	{"NSPLIT_STORE_DSN", stringVar(func(c *Config, v string) { c.Store.DSN = v })},
	{"NSPLIT_FEED_PROVIDER", stringVar(func(c *Config, v string) { c.Feed.Provider = pricefeed.ProviderType(v) })},
	{"NSPLIT_BINANCE_API_KEY", stringVar(func(c *Config, v string) { c.Feed.Binance.APIKey = v })},
	{"NSPLIT_BINANCE_SECRET_KEY", stringVar(func(c *Config, v string) { c.Feed.Binance.SecretKey = v })},
	{"NSPLIT_POLYGON_API_KEY", stringVar(func(c *Config, v string) { c.Feed.Polygon.APIKey = v })},
	{"NSPLIT_REDIS_ADDR", stringVar(func(c *Config, v string) { c.Feed.Redis.Addr = v })},
	{"NSPLIT_REDIS_PASSWORD", stringVar(func(c *Config, v string) { c.Feed.Redis.Password = v })},
	{"NSPLIT_SIMULATOR_URL", stringVar(func(c *Config, v string) {
		c.Feed.Simulator.BaseURL = v
		c.Executor.Simulator.BaseURL = v
	})},
	{"NSPLIT_SIMULATOR_API_KEY", stringVar(func(c *Config, v string) {
		c.Feed.Simulator.APIKey = v
		c.Executor.Simulator.APIKey = v
	})},
	{"NSPLIT_EXECUTOR", stringVar(func(c *Config, v string) { c.Executor.Type = execution.ExecutorType(v) })},
	{"NSPLIT_SIMULATOR_ACCOUNT", stringVar(func(c *Config, v string) { c.Executor.Account = v })},
}

func applyEnv(cfg *Config, lookup LookupFunc) error {
	for _, binding := range envBindings {
		value, ok := lookup(binding.key)
		if !ok || value == "" {
			continue
		}

		if err := binding.apply(cfg, value); err != nil {
			return errors.Wrapf(errors.ErrCodeInvalidConfig, err, "invalid value for %s", binding.key)
		}
	}

	return nil
}
