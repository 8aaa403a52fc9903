package types

import (
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// EventKind classifies entries of a session's audit log.
type EventKind string

const (
	EventSessionCreated   EventKind = "session_created"
	EventSessionStarted   EventKind = "session_started"
	EventSessionPaused    EventKind = "session_paused"
	EventSessionResumed   EventKind = "session_resumed"
	EventSessionCompleted EventKind = "session_completed"
	EventStageStarted     EventKind = "stage_started"
	EventStageCompleted   EventKind = "stage_completed"
	EventTwapScheduled    EventKind = "twap_scheduled"
	EventTwapSliceFilled  EventKind = "twap_slice_filled"
	EventTwapCancelled    EventKind = "twap_cancelled"
	EventTriggerFailed    EventKind = "trigger_failed"
	EventFeedUnavailable  EventKind = "feed_unavailable"
	EventFeedRecovered    EventKind = "feed_recovered"
)

// Event is an append-only audit record owned by a session.
type Event struct {
	ID          string                           `yaml:"id" json:"id"`
	SessionID   string                           `yaml:"session_id" json:"session_id"`
	Sequence    int64                            `yaml:"sequence" json:"sequence"`
	Kind        EventKind                        `yaml:"kind" json:"kind"`
	StageNumber int                              `yaml:"stage_number,omitempty" json:"stage_number,omitempty"`
	Price       optional.Option[decimal.Decimal] `yaml:"price" json:"price"`
	Quantity    optional.Option[decimal.Decimal] `yaml:"quantity" json:"quantity"`
	Message     string                           `yaml:"message" json:"message"`
	CreatedAt   time.Time                        `yaml:"created_at" json:"created_at"`
}

// NewEvent builds the next event of the session's log and advances its sequence.
func (s *Session) NewEvent(kind EventKind, stageNumber int, message string, at time.Time) Event {
	s.EventSeq++

	return Event{
		ID:          uuid.New().String(),
		SessionID:   s.ID,
		Sequence:    s.EventSeq,
		Kind:        kind,
		StageNumber: stageNumber,
		Price:       optional.None[decimal.Decimal](),
		Quantity:    optional.None[decimal.Decimal](),
		Message:     message,
		CreatedAt:   at,
	}
}

// WithTrade attaches a traded price and quantity to the event.
func (e Event) WithTrade(price, quantity decimal.Decimal) Event {
	e.Price = optional.Some(price)
	e.Quantity = optional.Some(quantity)

	return e
}

// WithPrice attaches an observed price to the event.
func (e Event) WithPrice(price decimal.Decimal) Event {
	e.Price = optional.Some(price)

	return e
}
