package types

// SessionStatus is the lifecycle state of a strategy session.
type SessionStatus string

const (
	SessionStatusReady     SessionStatus = "ready"
	SessionStatusRunning   SessionStatus = "running"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
)

// StageStatus is the lifecycle state of one stage.
type StageStatus string

const (
	StageStatusPending   StageStatus = "pending"
	StageStatusActive    StageStatus = "active"
	StageStatusCompleted StageStatus = "completed"
)

// PositionStatus tells whether a position is still held.
type PositionStatus string

const (
	PositionStatusHolding PositionStatus = "holding"
	PositionStatusSold    PositionStatus = "sold"
)

// Side is the direction of an order.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// SliceStatus is the fill state of a TWAP slice.
type SliceStatus string

const (
	SliceStatusPending   SliceStatus = "pending"
	SliceStatusFilled    SliceStatus = "filled"
	SliceStatusCancelled SliceStatus = "cancelled"
)

// ParseSessionStatus converts a query string into a SessionStatus.
// The second return value is false for unknown values.
func ParseSessionStatus(s string) (SessionStatus, bool) {
	switch SessionStatus(s) {
	case SessionStatusReady, SessionStatusRunning, SessionStatusPaused, SessionStatusCompleted:
		return SessionStatus(s), true
	default:
		return "", false
	}
}
