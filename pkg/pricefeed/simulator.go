package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SimulatorAPIKeyHeader carries the simulator API key.
const SimulatorAPIKeyHeader = "X-Simulator-API-Key"

// SimulatorConfig configures the HTTP simulator client.
type SimulatorConfig struct {
	BaseURL string `yaml:"base_url" json:"base_url" jsonschema:"title=Base URL,description=Simulator service URL,required" validate:"required,url"`
	APIKey  string `yaml:"api_key" json:"api_key" jsonschema:"title=API Key" keychain:"true"`
	// Timeout bounds each request. Defaults to 5s.
	Timeout time.Duration `yaml:"timeout" json:"timeout" jsonschema:"title=Request timeout"`
	// MaxAttempts bounds the requests per call. Defaults to 3.
	MaxAttempts int `yaml:"max_attempts" json:"max_attempts" jsonschema:"title=Max attempts,minimum=1"`
	// InitialBackoff is the first retry delay, doubled on each attempt. Defaults to 1s.
	InitialBackoff time.Duration `yaml:"initial_backoff" json:"initial_backoff" jsonschema:"title=Initial backoff"`
}

type simulatorPrice struct {
	StockCode string      `json:"stock_code"`
	Price     json.Number `json:"price"`
	Timestamp time.Time   `json:"timestamp"`
}

// SimulatorOrderRequest places a market order on a simulator account.
type SimulatorOrderRequest struct {
	UserID    string      `json:"user_id"`
	StockCode string      `json:"stock_code"`
	Price     json.Number `json:"price"`
	Quantity  json.Number `json:"quantity"`
}

// SimulatorOrder is an order executed by the simulator.
type SimulatorOrder struct {
	ID         string          `json:"id"`
	StockCode  string          `json:"stock_code"`
	OrderType  string          `json:"order_type"`
	Price      decimal.Decimal `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Status     string          `json:"status"`
	ExecutedAt time.Time       `json:"executed_at"`
}

// SimulatorClient talks to the simulator service: it reads prices and places orders.
type SimulatorClient struct {
	baseURL        string
	apiKey         string
	maxAttempts    int
	initialBackoff time.Duration
	client         *http.Client
	logger         *logger.Logger
	now            func() time.Time
}

// NewSimulatorClient creates a simulator client.
func NewSimulatorClient(cfg SimulatorConfig, log *logger.Logger) (*SimulatorClient, error) {
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfig, err, "invalid simulator base url %q", cfg.BaseURL)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}

	initial := cfg.InitialBackoff
	if initial <= 0 {
		initial = time.Second
	}

	return &SimulatorClient{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:         cfg.APIKey,
		maxAttempts:    attempts,
		initialBackoff: initial,
		client:         &http.Client{Timeout: timeout},
		logger:         log,
		now:            time.Now,
	}, nil
}

// LatestPrice implements Feed.
func (c *SimulatorClient) LatestPrice(ctx context.Context, symbol string) (Quote, error) {
	var body simulatorPrice
	if err := c.do(ctx, http.MethodGet, "/api/price/"+url.PathEscape(symbol), nil, &body); err != nil {
		return Quote{}, unavailable(symbol, err)
	}

	price, err := parsePrice(symbol, body.Price.String())
	if err != nil {
		return Quote{}, err
	}

	observedAt := body.Timestamp
	if observedAt.IsZero() {
		observedAt = c.now()
	}

	return Quote{Symbol: symbol, Price: price, ObservedAt: observedAt}, nil
}

// PlaceOrder sends a buy or sell order. side is "buy" or "sell". Errors are returned as
// they come from the transport; callers attach their own code.
func (c *SimulatorClient) PlaceOrder(ctx context.Context, side string, req SimulatorOrderRequest) (SimulatorOrder, error) {
	var order SimulatorOrder
	if err := c.do(ctx, http.MethodPost, "/api/order/"+url.PathEscape(side), req, &order); err != nil {
		return SimulatorOrder{}, err
	}

	return order, nil
}

// do sends one request with exponential backoff and decodes the response into out.
// Client errors other than 429 are not retried.
func (c *SimulatorClient) do(ctx context.Context, method, path string, payload, out any) error {
	var encoded []byte
	if payload != nil {
		var err error
		if encoded, err = json.Marshal(payload); err != nil {
			return err
		}
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.initialBackoff
	policy.Multiplier = 2
	policy.RandomizationFactor = 0

	attempt := 0
	operation := func() error {
		attempt++

		var body io.Reader
		if encoded != nil {
			body = bytes.NewReader(encoded)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set(SimulatorAPIKeyHeader, c.apiKey)
		if encoded != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			statusErr := fmt.Errorf("simulator returned %s", resp.Status)
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(statusErr)
			}

			return statusErr
		}

		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return backoff.Permanent(err)
		}

		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("Retrying simulator request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	retry := backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.maxAttempts-1)), ctx)

	return backoff.RetryNotify(operation, retry, notify)
}
