// Package execution turns stage buys and sells into fills.
package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"github.com/rxtech-lab/nsplit-trading/pkg/pricefeed"
	"github.com/shopspring/decimal"
)

// Order is a request to trade a quantity of a symbol near a reference price.
type Order struct {
	SessionID   string
	Symbol      string
	StageNumber int
	Side        types.Side
	Quantity    decimal.Decimal
	// Price is the quote the decision was made on.
	Price decimal.Decimal
	At    time.Time
}

// Fill is the executed result of an order.
type Fill struct {
	Price    decimal.Decimal
	Quantity decimal.Decimal
	At       time.Time
}

// Executor executes orders.
type Executor interface {
	// Execute fills the order or returns a coded error. It never partially fills.
	Execute(ctx context.Context, order Order) (Fill, error)
}

// ExecutorType names a supported executor.
type ExecutorType string

const (
	ExecutorPaper     ExecutorType = "paper"
	ExecutorSimulator ExecutorType = "simulator"
)

// ExecutorInfo describes a registered executor.
type ExecutorInfo struct {
	Name        string `json:"name"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
}

var executorRegistry = map[ExecutorType]ExecutorInfo{
	ExecutorPaper: {
		Name:        string(ExecutorPaper),
		DisplayName: "Paper",
		Description: "Simulated fills at the observed quote with optional slippage",
	},
	ExecutorSimulator: {
		Name:        string(ExecutorSimulator),
		DisplayName: "Simulator",
		Description: "Orders placed on a simulator service account",
	},
}

// GetExecutorInfo returns metadata for an executor.
func GetExecutorInfo(name string) (ExecutorInfo, error) {
	info, exists := executorRegistry[ExecutorType(name)]
	if !exists {
		return ExecutorInfo{}, fmt.Errorf("unsupported executor: %s", name)
	}

	return info, nil
}

// Config selects and configures the executor.
type Config struct {
	Type ExecutorType `yaml:"type" json:"type" validate:"omitempty,oneof=paper simulator" jsonschema:"title=Executor,enum=paper,enum=simulator,default=paper"`
	// SlippageBps moves paper fills against the order, in basis points.
	SlippageBps float64 `yaml:"slippage_bps" json:"slippage_bps" validate:"gte=0,lte=1000" jsonschema:"title=Slippage (bps)"`
	// Account is the simulator account orders are placed on.
	Account string `yaml:"account" json:"account" jsonschema:"title=Simulator account"`
	// Simulator is checked when the simulator executor is built.
	Simulator pricefeed.SimulatorConfig `yaml:"simulator" json:"simulator" validate:"-"`
}

// NewExecutor creates the configured executor. An empty type selects paper.
func NewExecutor(cfg Config, log *logger.Logger) (Executor, error) {
	switch cfg.Type {
	case ExecutorPaper, "":
		return NewPaperExecutor(decimal.NewFromFloat(cfg.SlippageBps), log), nil
	case ExecutorSimulator:
		return NewSimulatorExecutor(cfg.Simulator, cfg.Account, log)
	default:
		return nil, errors.Newf(errors.ErrCodeInvalidConfig, "unsupported executor: %s", cfg.Type)
	}
}
