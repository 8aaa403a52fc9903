package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/store/sqlstore"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
)

type CLITestSuite struct {
	suite.Suite
	ctx context.Context
	dsn string
}

func TestCLISuite(t *testing.T) {
	suite.Run(t, new(CLITestSuite))
}

func (suite *CLITestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.dsn = filepath.Join(suite.T().TempDir(), "nsplit.db")
	suite.T().Setenv("NSPLIT_STORE_DRIVER", "sqlite3")
	suite.T().Setenv("NSPLIT_STORE_DSN", suite.dsn)
	suite.T().Setenv("NSPLIT_CONFIG", "")

	st, err := sqlstore.Open(suite.ctx, sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: suite.dsn}, logger.NewNopLogger())
	suite.Require().NoError(err)
	defer func() { suite.NoError(st.Close()) }()

	//nolint:exhaustruct
	cfg := types.SessionConfig{
		SymbolCode:     "005930",
		SymbolName:     "Samsung Electronics",
		AmountPerStage: decimal.NewFromInt(1000000),
		TotalStages:    3,
		SellTriggerPct: decimal.NewFromInt(15),
		BuyTriggerPct:  decimal.NewFromInt(5),
	}
	plans, err := cfg.Validate()
	suite.Require().NoError(err)

	now := time.Date(2025, 4, 1, 9, 0, 0, 0, time.UTC)
	s := types.NewSession("session-1", cfg, plans, now)
	created := s.NewEvent(types.EventSessionCreated, 0, "session created", now)
	suite.Require().NoError(st.SaveSession(suite.ctx, s, []types.Event{created}))
}

func (suite *CLITestSuite) run(args ...string) (string, error) {
	var out bytes.Buffer

	app := newApp()
	app.Writer = &out
	err := app.Run(suite.ctx, append([]string{"nsplit"}, args...))

	return out.String(), err
}

func (suite *CLITestSuite) TestSessionsList() {
	out, err := suite.run("sessions", "list")
	suite.Require().NoError(err)
	suite.Contains(out, "session-1")
	suite.Contains(out, "0/3")

	out, err = suite.run("sessions", "list", "--status", "completed")
	suite.Require().NoError(err)
	suite.Contains(out, "No sessions.")

	_, err = suite.run("sessions", "list", "--status", "sleeping")
	suite.True(errors.IsValidation(err))
}

func (suite *CLITestSuite) TestSessionsShowAndEvents() {
	out, err := suite.run("sessions", "show", "session-1")
	suite.Require().NoError(err)
	suite.Contains(out, "Samsung Electronics")
	suite.Contains(out, "1000000.00")

	out, err = suite.run("sessions", "events", "session-1")
	suite.Require().NoError(err)
	suite.Contains(out, "session_created")

	_, err = suite.run("sessions", "show", "missing")
	suite.True(errors.IsNotFound(err))

	_, err = suite.run("sessions", "show")
	suite.Equal(errors.ErrCodeMissingParameter, errors.GetCode(err))
}

func (suite *CLITestSuite) TestSchemaAndProviders() {
	out, err := suite.run("schema")
	suite.Require().NoError(err)
	suite.Contains(out, "amount_per_stage")

	out, err = suite.run("schema", "--provider", "polygon")
	suite.Require().NoError(err)
	suite.Contains(out, "api_key")

	out, err = suite.run("providers")
	suite.Require().NoError(err)
	suite.Contains(out, "randomwalk")
	suite.Contains(out, "simulator")
}

func (suite *CLITestSuite) TestExportRequiresDuckDB() {
	_, err := suite.run("export", "--dir", suite.T().TempDir())
	suite.Equal(errors.ErrCodeInvalidConfig, errors.GetCode(err))
}
