package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/nsplit-trading/internal/execution"
	"github.com/rxtech-lab/nsplit-trading/internal/store/sqlstore"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/rxtech-lab/nsplit-trading/pkg/pricefeed"
	"github.com/stretchr/testify/suite"
)

type ConfigTestSuite struct {
	suite.Suite
	dir string
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.dir = suite.T().TempDir()
}

func env(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]

		return v, ok
	}
}

func (suite *ConfigTestSuite) write(content string) string {
	path := filepath.Join(suite.dir, "nsplit.yaml")
	suite.Require().NoError(os.WriteFile(path, []byte(content), 0o600))

	return path
}

func (suite *ConfigTestSuite) TestDefaults() {
	cfg, err := LoadWithEnv("", env(nil))
	suite.Require().NoError(err)

	suite.Equal(":8080", cfg.HTTP.Addr)
	suite.Equal(5*time.Second, cfg.Engine.TickInterval)
	suite.Equal(pricefeed.ProviderRandomWalk, cfg.Feed.Provider)
	suite.Equal(sqlstore.DriverDuckDB, cfg.Store.Driver)
}

func (suite *ConfigTestSuite) TestFileOverridesDefaults() {
	path := suite.write(`
log:
  level: debug
engine:
  tick_interval: 2s
  twap_window: 30m
  twap_slices: 4
store:
  driver: sqlite3
  dsn: /tmp/nsplit.db
feed:
  provider: simulator
  simulator:
    base_url: http://localhost:8001
    api_key: secret
executor:
  slippage_bps: 5
`)

	cfg, err := LoadWithEnv(path, env(nil))
	suite.Require().NoError(err)

	suite.Equal("debug", cfg.Log.Level)
	suite.Equal(2*time.Second, cfg.Engine.TickInterval)
	suite.Equal(30*time.Minute, cfg.Engine.TwapWindow)
	suite.Equal(4, cfg.Engine.TwapSlices)
	// Unset keys keep their defaults.
	suite.Equal(8, cfg.Engine.Concurrency)
	suite.Equal(sqlstore.DriverSQLite, cfg.Store.Driver)
	suite.Equal("http://localhost:8001", cfg.Feed.Simulator.BaseURL)
	suite.InDelta(5.0, cfg.Executor.SlippageBps, 1e-9)
}

func (suite *ConfigTestSuite) TestEnvOverridesFile() {
	path := suite.write("http:\n  addr: \":9000\"\n")

	cfg, err := LoadWithEnv(path, env(map[string]string{
		"NSPLIT_HTTP_ADDR":       ":9100",
		"NSPLIT_TICK_INTERVAL":   "1s",
		"NSPLIT_FEED_PROVIDER":   "polygon",
		"NSPLIT_POLYGON_API_KEY": "pk",
		"NSPLIT_STORE_DRIVER":    "sqlite3",
		"NSPLIT_STORE_DSN":       "",
	}))
	suite.Require().NoError(err)

	suite.Equal(":9100", cfg.HTTP.Addr)
	suite.Equal(time.Second, cfg.Engine.TickInterval)
	suite.Equal(pricefeed.ProviderPolygon, cfg.Feed.Provider)
	suite.Equal("pk", cfg.Feed.Polygon.APIKey)
	// Empty variables are ignored.
	suite.Equal("nsplit.duckdb", cfg.Store.DSN)
}

func (suite *ConfigTestSuite) TestSimulatorEnvConfiguresFeedAndExecutor() {
	cfg, err := LoadWithEnv("", env(map[string]string{
		"NSPLIT_FEED_PROVIDER":     "simulator",
		"NSPLIT_EXECUTOR":          "simulator",
		"NSPLIT_SIMULATOR_URL":     "http://sim:8001",
		"NSPLIT_SIMULATOR_API_KEY": "secret",
		"NSPLIT_SIMULATOR_ACCOUNT": "user-7",
	}))
	suite.Require().NoError(err)

	suite.Equal(execution.ExecutorSimulator, cfg.Executor.Type)
	suite.Equal("user-7", cfg.Executor.Account)
	suite.Equal("http://sim:8001", cfg.Feed.Simulator.BaseURL)
	suite.Equal("http://sim:8001", cfg.Executor.Simulator.BaseURL)
	suite.Equal("secret", cfg.Executor.Simulator.APIKey)

	_, err = LoadWithEnv("", env(map[string]string{"NSPLIT_EXECUTOR": "live"}))
	suite.Equal(errors.ErrCodeInvalidConfig, errors.GetCode(err))
}

func (suite *ConfigTestSuite) TestInvalidValues() {
	_, err := LoadWithEnv("", env(map[string]string{"NSPLIT_TICK_INTERVAL": "soon"}))
	suite.Equal(errors.ErrCodeInvalidConfig, errors.GetCode(err))

	_, err = LoadWithEnv("", env(map[string]string{"NSPLIT_STORE_DRIVER": "mysql"}))
	suite.Equal(errors.ErrCodeInvalidConfig, errors.GetCode(err))

	_, err = LoadWithEnv("", env(map[string]string{"NSPLIT_FEED_PROVIDER": "yahoo"}))
	suite.Equal(errors.ErrCodeInvalidFeedProvider, errors.GetCode(err))

	_, err = LoadWithEnv(suite.write("engine: ["), env(nil))
	suite.Equal(errors.ErrCodeInvalidConfig, errors.GetCode(err))

	_, err = LoadWithEnv(filepath.Join(suite.dir, "missing.yaml"), env(nil))
	suite.Equal(errors.ErrCodeInvalidConfig, errors.GetCode(err))
}
