// Package trigger decides which stage transition, if any, is due for a session at a given price.
//
// Evaluation is a pure function of the session snapshot and the price: it never mutates the
// session and keeps no state between calls.
package trigger

import (
	"fmt"

	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/shopspring/decimal"
)

// ActionKind is the kind of transition returned by Evaluate.
type ActionKind string

const (
	ActionNone      ActionKind = "none"
	ActionStartBuy  ActionKind = "start_buy"
	ActionStartSell ActionKind = "start_sell"
)

// Action is the single transition due for a session.
type Action struct {
	Kind        ActionKind
	StageNumber int
	// TriggerPrice is the threshold that was crossed: the sell target or the expected buy price.
	TriggerPrice decimal.Decimal
}

// None is the empty action.
var None = Action{Kind: ActionNone, StageNumber: 0, TriggerPrice: decimal.Zero}

func (a Action) String() string {
	if a.Kind == ActionNone {
		return string(ActionNone)
	}

	return fmt.Sprintf("%s(%d)", a.Kind, a.StageNumber)
}

// IsNone reports whether nothing is due.
func (a Action) IsNone() bool {
	return a.Kind == ActionNone
}

// Evaluate returns at most one due action for the session at price.
//
// Sells take precedence over buys; among due sells the lowest stage wins. Stage 1 is due
// as soon as the session runs, regardless of price. A later stage is due once its
// predecessor is active or completed and price has fallen to its expected trigger price.
// Nothing is due while the session is not running or has a TWAP order in flight.
func Evaluate(session *types.Session, price decimal.Decimal) Action {
	if session.Status != types.SessionStatusRunning || session.ActiveOrder != nil {
		return None
	}

	if action := dueSell(session, price); !action.IsNone() {
		return action
	}

	return dueBuy(session, price)
}

func dueSell(session *types.Session, price decimal.Decimal) Action {
	for i := range session.Stages {
		stage := &session.Stages[i]
		if stage.Status != types.StageStatusActive {
			continue
		}

		pos := session.Position(stage.Number)
		if pos == nil || !pos.IsOpen() {
			continue
		}

		if price.GreaterThanOrEqual(pos.SellTargetPrice) {
			return Action{Kind: ActionStartSell, StageNumber: stage.Number, TriggerPrice: pos.SellTargetPrice}
		}
	}

	return None
}

func dueBuy(session *types.Session, price decimal.Decimal) Action {
	next := NextPendingStage(session)
	if next == nil {
		return None
	}

	if next.Number == 1 {
		anchor := price
		if session.AnchorPrice.IsSome() {
			anchor = session.AnchorPrice.Unwrap()
		}

		return Action{Kind: ActionStartBuy, StageNumber: 1, TriggerPrice: anchor}
	}

	expected, ok := ExpectedPrice(session, next.Number)
	if !ok {
		return None
	}

	if price.LessThanOrEqual(expected) {
		return Action{Kind: ActionStartBuy, StageNumber: next.Number, TriggerPrice: expected}
	}

	return None
}

// NextPendingStage returns the first pending stage whose predecessor is active or completed.
// Stage 1 qualifies while it is pending. It returns nil when no stage can activate.
func NextPendingStage(session *types.Session) *types.Stage {
	for i := range session.Stages {
		stage := &session.Stages[i]
		if stage.Status != types.StageStatusPending {
			continue
		}

		if i == 0 || session.Stages[i-1].Status != types.StageStatusPending {
			return stage
		}

		return nil
	}

	return nil
}

// ExpectedPrice returns the buy trigger of stage k: the buy price of stage k-1 lowered by
// stage k's drop, cascading from the session anchor through stages not bought yet.
// The second return value is false while the anchor is unknown.
func ExpectedPrice(session *types.Session, k int) (decimal.Decimal, bool) {
	if session.AnchorPrice.IsNone() || k < 1 || k > session.TotalStages() {
		return decimal.Zero, false
	}

	return types.ExpectedPrices(session.AnchorPrice.Unwrap(), session.Stages, session.Positions)[k-1], true
}
