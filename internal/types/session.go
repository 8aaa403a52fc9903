package types

import (
	"time"

	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Session is the full state of one staged-trading plan for one instrument.
// Values handed out by the engine are snapshots; mutating them has no effect on the engine.
type Session struct {
	ID     string        `yaml:"id" json:"id"`
	Config SessionConfig `yaml:"config" json:"config"`
	Status SessionStatus `yaml:"status" json:"status"`
	// CurrentStage is the highest stage number that has been bought, 0 before the first buy.
	CurrentStage int `yaml:"current_stage" json:"current_stage"`
	// AnchorPrice is the stage 1 reference price: the configured initial price or the first observed one.
	AnchorPrice optional.Option[decimal.Decimal] `yaml:"anchor_price" json:"anchor_price"`
	LastPrice   optional.Option[decimal.Decimal] `yaml:"last_price" json:"last_price"`
	LastPriceAt optional.Option[time.Time]       `yaml:"last_price_at" json:"last_price_at"`
	Stages      []Stage                          `yaml:"stages" json:"stages"`
	Positions   []Position                       `yaml:"positions" json:"positions"`
	// ActiveOrder is the in-flight TWAP order, if any.
	ActiveOrder *TwapOrder                 `yaml:"active_order,omitempty" json:"active_order,omitempty"`
	FeedDown    bool                       `yaml:"feed_down" json:"feed_down"`
	EventSeq    int64                      `yaml:"event_seq" json:"event_seq"`
	CreatedAt   time.Time                  `yaml:"created_at" json:"created_at"`
	StartedAt   optional.Option[time.Time] `yaml:"started_at" json:"started_at"`
	CompletedAt optional.Option[time.Time] `yaml:"completed_at" json:"completed_at"`
}

// NewSession builds a ready session from a validated plan.
func NewSession(id string, cfg SessionConfig, plans []StagePlan, now time.Time) *Session {
	return &Session{
		ID:           id,
		Config:       cfg,
		Status:       SessionStatusReady,
		CurrentStage: 0,
		AnchorPrice:  optional.None[decimal.Decimal](),
		LastPrice:    optional.None[decimal.Decimal](),
		LastPriceAt:  optional.None[time.Time](),
		Stages:       NewStages(plans),
		Positions:    []Position{},
		ActiveOrder:  nil,
		FeedDown:     false,
		EventSeq:     0,
		CreatedAt:    now,
		StartedAt:    optional.None[time.Time](),
		CompletedAt:  optional.None[time.Time](),
	}
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := *s
	c.Config.Stages = append([]StageConfig(nil), s.Config.Stages...)
	c.Stages = append([]Stage(nil), s.Stages...)
	c.Positions = append([]Position(nil), s.Positions...)
	c.ActiveOrder = s.ActiveOrder.Clone()

	return &c
}

// TotalStages is the number of stages of the plan.
func (s *Session) TotalStages() int {
	return len(s.Stages)
}

// Stage returns stage k (1-based) or nil when out of range.
func (s *Session) Stage(k int) *Stage {
	if k < 1 || k > len(s.Stages) {
		return nil
	}

	return &s.Stages[k-1]
}

// Position returns the position of stage k or nil when the stage never bought.
func (s *Session) Position(k int) *Position {
	for i := range s.Positions {
		if s.Positions[i].StageNumber == k {
			return &s.Positions[i]
		}
	}

	return nil
}

// OpenPositions counts positions still held.
func (s *Session) OpenPositions() int {
	n := 0
	for i := range s.Positions {
		if s.Positions[i].IsOpen() {
			n++
		}
	}

	return n
}

// HasPositions reports whether the session ever bought.
func (s *Session) HasPositions() bool {
	return len(s.Positions) > 0
}

// Invested is the capital deployed by every position, held or sold.
func (s *Session) Invested() decimal.Decimal {
	total := decimal.Zero
	for i := range s.Positions {
		total = total.Add(s.Positions[i].Cost())
	}

	return total
}

// RealizedProfit sums the locked-in profit of sold positions.
func (s *Session) RealizedProfit() decimal.Decimal {
	total := decimal.Zero
	for i := range s.Positions {
		total = total.Add(s.Positions[i].Realized())
	}

	return total
}

// UnrealizedProfit marks open positions to the last observed price.
func (s *Session) UnrealizedProfit() decimal.Decimal {
	if s.LastPrice.IsNone() {
		return decimal.Zero
	}

	mark := s.LastPrice.Unwrap()
	total := decimal.Zero
	for i := range s.Positions {
		total = total.Add(s.Positions[i].Unrealized(mark))
	}

	return total
}

// RefreshExpectedPrices recomputes the derived trigger price of every stage from the anchor
// and the buy prices of the stages bought so far.
func (s *Session) RefreshExpectedPrices() {
	if s.AnchorPrice.IsNone() {
		return
	}

	for i, p := range ExpectedPrices(s.AnchorPrice.Unwrap(), s.Stages, s.Positions) {
		s.Stages[i].ExpectedPrice = optional.Some(p)
	}
}
