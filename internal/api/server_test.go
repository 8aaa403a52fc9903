package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rxtech-lab/nsplit-trading/internal/aggregate"
	"github.com/rxtech-lab/nsplit-trading/internal/engine"
	"github.com/rxtech-lab/nsplit-trading/internal/execution"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/metrics"
	"github.com/rxtech-lab/nsplit-trading/internal/store/sqlstore"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/mocks"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/rxtech-lab/nsplit-trading/pkg/pricefeed"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

const sessionBody = `{
  "symbol_code": "005930",
  "symbol_name": "Samsung Electronics",
  "amount_per_stage": "1000000",
  "total_stages": 3,
  "sell_trigger_pct": "15",
  "buy_trigger_pct": "5"
}`

type ServerTestSuite struct {
	suite.Suite
	ctx     context.Context
	store   *sqlstore.SQLStore
	metrics *metrics.Metrics
	server  *httptest.Server
}

func TestServerSuite(t *testing.T) {
	suite.Run(t, new(ServerTestSuite))
}

func (suite *ServerTestSuite) SetupTest() {
	suite.ctx = context.Background()
	log := logger.NewNopLogger()

	ctrl := gomock.NewController(suite.T())
	feed := mocks.NewMockFeed(ctrl)
	feed.EXPECT().LatestPrice(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, symbol string) (pricefeed.Quote, error) {
			return pricefeed.Quote{Symbol: symbol, Price: decimal.NewFromInt(70000), ObservedAt: time.Now()}, nil
		}).AnyTimes()

	st, err := sqlstore.Open(suite.ctx, sqlstore.Config{Driver: sqlstore.DriverSQLite, DSN: ""}, log)
	suite.Require().NoError(err)
	suite.store = st

	suite.metrics = metrics.NewMetrics()
	//nolint:exhaustruct
	eng := engine.New(engine.Config{}, feed, st, execution.NewPaperExecutor(decimal.Zero, log), suite.metrics, log)
	suite.server = httptest.NewServer(NewServer(eng, suite.metrics, log).Handler())
}

func (suite *ServerTestSuite) TearDownTest() {
	suite.server.Close()
	suite.NoError(suite.store.Close())
}

func (suite *ServerTestSuite) do(method, path, body string) *http.Response {
	req, err := http.NewRequestWithContext(suite.ctx, method, suite.server.URL+path, strings.NewReader(body))
	suite.Require().NoError(err)

	resp, err := http.DefaultClient.Do(req)
	suite.Require().NoError(err)
	suite.T().Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decode[T any](suite *ServerTestSuite, resp *http.Response) T {
	var out T
	suite.Require().NoError(json.NewDecoder(resp.Body).Decode(&out))

	return out
}

func (suite *ServerTestSuite) create() types.Session {
	resp := suite.do(http.MethodPost, "/api/sessions", sessionBody)
	suite.Require().Equal(http.StatusCreated, resp.StatusCode)

	return decode[types.Session](suite, resp)
}

func (suite *ServerTestSuite) TestCreateAndGet() {
	created := suite.create()
	suite.Equal(types.SessionStatusReady, created.Status)
	suite.Len(created.Stages, 3)

	resp := suite.do(http.MethodGet, "/api/sessions/"+created.ID, "")
	suite.Equal(http.StatusOK, resp.StatusCode)
	suite.Equal(created.ID, decode[types.Session](suite, resp).ID)
}

func (suite *ServerTestSuite) TestCreateRejectsInvalidConfig() {
	resp := suite.do(http.MethodPost, "/api/sessions", `{"symbol_code": "005930", "total_stages": 0}`)
	suite.Equal(http.StatusBadRequest, resp.StatusCode)

	body := decode[errorResponse](suite, resp)
	suite.True(errors.IsValidation(errors.New(body.Code, body.Error)))

	resp = suite.do(http.MethodPost, "/api/sessions", `{"unknown": true}`)
	suite.Equal(http.StatusBadRequest, resp.StatusCode)
}

func (suite *ServerTestSuite) TestUnknownSession() {
	resp := suite.do(http.MethodGet, "/api/sessions/missing", "")
	suite.Equal(http.StatusNotFound, resp.StatusCode)
	suite.Equal(errors.ErrCodeSessionNotFound, decode[errorResponse](suite, resp).Code)
}

func (suite *ServerTestSuite) TestTransitions() {
	created := suite.create()

	resp := suite.do(http.MethodPost, "/api/sessions/"+created.ID+"/start", "")
	suite.Require().Equal(http.StatusOK, resp.StatusCode)
	started := decode[types.Session](suite, resp)
	suite.Equal(types.SessionStatusRunning, started.Status)
	suite.Equal(1, started.CurrentStage)

	resp = suite.do(http.MethodPost, "/api/sessions/"+created.ID+"/pause", "")
	suite.Equal(http.StatusOK, resp.StatusCode)

	resp = suite.do(http.MethodPost, "/api/sessions/"+created.ID+"/pause", "")
	suite.Equal(http.StatusConflict, resp.StatusCode)

	resp = suite.do(http.MethodPatch, "/api/sessions/"+created.ID, sessionBody)
	suite.Equal(http.StatusConflict, resp.StatusCode)

	resp = suite.do(http.MethodDelete, "/api/sessions/"+created.ID, "")
	suite.Equal(http.StatusConflict, resp.StatusCode)

	resp = suite.do(http.MethodGet, "/api/sessions/"+created.ID+"/events", "")
	suite.Equal(http.StatusOK, resp.StatusCode)
	events := decode[[]types.Event](suite, resp)
	suite.Len(events, 4)
	suite.Equal(types.EventSessionPaused, events[3].Kind)
}

func (suite *ServerTestSuite) TestUpdateAndDeleteReadySession() {
	created := suite.create()

	body := strings.Replace(sessionBody, `"total_stages": 3`, `"total_stages": 2`, 1)
	resp := suite.do(http.MethodPatch, "/api/sessions/"+created.ID, body)
	suite.Require().Equal(http.StatusOK, resp.StatusCode)
	suite.Len(decode[types.Session](suite, resp).Stages, 2)

	resp = suite.do(http.MethodDelete, "/api/sessions/"+created.ID, "")
	suite.Equal(http.StatusNoContent, resp.StatusCode)

	resp = suite.do(http.MethodGet, "/api/sessions/"+created.ID, "")
	suite.Equal(http.StatusNotFound, resp.StatusCode)
}

func (suite *ServerTestSuite) TestListAndPortfolio() {
	first := suite.create()
	suite.create()
	suite.do(http.MethodPost, "/api/sessions/"+first.ID+"/start", "")

	resp := suite.do(http.MethodGet, "/api/sessions", "")
	suite.Len(decode[[]aggregate.SessionSummary](suite, resp), 2)

	resp = suite.do(http.MethodGet, "/api/sessions?status=running", "")
	running := decode[[]aggregate.SessionSummary](suite, resp)
	suite.Require().Len(running, 1)
	suite.Equal(first.ID, running[0].ID)

	resp = suite.do(http.MethodGet, "/api/sessions?status=sleeping", "")
	suite.Equal(http.StatusBadRequest, resp.StatusCode)

	resp = suite.do(http.MethodGet, "/api/portfolio", "")
	portfolio := decode[aggregate.Portfolio](suite, resp)
	suite.Equal(2, portfolio.Counts.All)
	suite.Equal(1, portfolio.Counts.Running)
}

func (suite *ServerTestSuite) TestDiscoveryEndpoints() {
	resp := suite.do(http.MethodGet, "/api/providers", "")
	providers := decode[[]pricefeed.ProviderInfo](suite, resp)
	suite.Len(providers, len(pricefeed.GetSupportedProviders()))

	resp = suite.do(http.MethodGet, "/api/schema/session", "")
	suite.Equal(http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	suite.Require().NoError(err)
	suite.Contains(string(raw), "sell_trigger_pct")

	resp = suite.do(http.MethodGet, "/metrics", "")
	raw, err = io.ReadAll(resp.Body)
	suite.Require().NoError(err)
	suite.Contains(string(raw), "nsplit_sessions")

	resp = suite.do(http.MethodGet, "/healthz", "")
	suite.Equal(http.StatusOK, resp.StatusCode)
}

func (suite *ServerTestSuite) TestStreamDeliversEvents() {
	created := suite.create()

	url := "ws" + strings.TrimPrefix(suite.server.URL, "http") + "/ws/events?session_id=" + created.ID
	conn, resp, err := websocket.DefaultDialer.DialContext(suite.ctx, url, nil)
	suite.Require().NoError(err)
	defer func() {
		_ = resp.Body.Close()
		_ = conn.Close()
	}()

	suite.Eventually(func() bool {
		return testutil.ToFloat64(suite.metrics.StreamClients) == 1
	}, 2*time.Second, 10*time.Millisecond)

	// Events of other sessions are filtered out.
	suite.create()
	suite.do(http.MethodPost, "/api/sessions/"+created.ID+"/start", "")

	suite.Require().NoError(conn.SetReadDeadline(time.Now().Add(2 * time.Second)))

	var kinds []types.EventKind
	for range 2 {
		var event types.Event
		suite.Require().NoError(conn.ReadJSON(&event))
		suite.Equal(created.ID, event.SessionID)
		kinds = append(kinds, event.Kind)
	}

	suite.Equal([]types.EventKind{types.EventSessionStarted, types.EventStageStarted}, kinds)
}

func (suite *ServerTestSuite) TestStreamUnknownSession() {
	resp := suite.do(http.MethodGet, "/ws/events?session_id=missing", "")
	suite.Equal(http.StatusNotFound, resp.StatusCode)
}
