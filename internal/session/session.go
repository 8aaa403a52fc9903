// Package session owns the status of a strategy session:
//
//	ready -> running <-> paused -> completed
//
// Every transition is explicit. Invalid requests fail with a state-conflict error and leave
// the session untouched.
package session

import (
	"fmt"
	"time"

	"github.com/moznion/go-optional"
	"github.com/rxtech-lab/nsplit-trading/internal/logger"
	"github.com/rxtech-lab/nsplit-trading/internal/twap"
	"github.com/rxtech-lab/nsplit-trading/internal/types"
	"github.com/rxtech-lab/nsplit-trading/pkg/errors"
	"go.uber.org/zap"
)

// StateMachine applies session-level transitions and records their events.
type StateMachine struct {
	logger *logger.Logger
}

// NewStateMachine creates a state machine.
func NewStateMachine(log *logger.Logger) *StateMachine {
	return &StateMachine{
		logger: log,
	}
}

// Create returns the session_created event of a freshly built session.
func (m *StateMachine) Create(s *types.Session) []types.Event {
	msg := fmt.Sprintf("session created for %s (%s) with %d stages", s.Config.SymbolCode, s.Config.SymbolName, s.TotalStages())

	return []types.Event{s.NewEvent(types.EventSessionCreated, 0, msg, s.CreatedAt)}
}

// Start moves a ready session to running. A paused session is resumed.
func (m *StateMachine) Start(s *types.Session, at time.Time) ([]types.Event, error) {
	switch s.Status {
	case types.SessionStatusReady:
		s.Status = types.SessionStatusRunning
		if s.StartedAt.IsNone() {
			s.StartedAt = optional.Some(at)
		}

		m.logger.Info("Session started", zap.String("session_id", s.ID), zap.String("symbol", s.Config.SymbolCode))

		return []types.Event{s.NewEvent(types.EventSessionStarted, 0, "session started", at)}, nil
	case types.SessionStatusPaused:
		return m.Resume(s, at)
	default:
		return nil, conflict(s, "start")
	}
}

// Resume moves a paused session back to running. An in-flight TWAP order continues in place
// with its remaining slices shifted by the paused duration.
func (m *StateMachine) Resume(s *types.Session, at time.Time) ([]types.Event, error) {
	if s.Status != types.SessionStatusPaused {
		return nil, conflict(s, "resume")
	}

	s.Status = types.SessionStatusRunning
	if s.ActiveOrder != nil {
		twap.Resume(s.ActiveOrder, at)
	}

	m.logger.Info("Session resumed", zap.String("session_id", s.ID))

	return []types.Event{s.NewEvent(types.EventSessionResumed, 0, "session resumed", at)}, nil
}

// Pause stops evaluation of a running session and freezes its TWAP order.
func (m *StateMachine) Pause(s *types.Session, at time.Time) ([]types.Event, error) {
	if s.Status != types.SessionStatusRunning {
		return nil, conflict(s, "pause")
	}

	s.Status = types.SessionStatusPaused
	if s.ActiveOrder != nil {
		twap.Pause(s.ActiveOrder, at)
	}

	m.logger.Info("Session paused", zap.String("session_id", s.ID))

	return []types.Event{s.NewEvent(types.EventSessionPaused, 0, "session paused", at)}, nil
}

// Complete marks a running session completed. Completing twice is a no-op.
func (m *StateMachine) Complete(s *types.Session, at time.Time) ([]types.Event, error) {
	switch s.Status {
	case types.SessionStatusCompleted:
		return nil, nil
	case types.SessionStatusRunning:
	default:
		return nil, conflict(s, "complete")
	}

	s.Status = types.SessionStatusCompleted
	s.CompletedAt = optional.Some(at)

	m.logger.Info("Session completed",
		zap.String("session_id", s.ID),
		zap.String("realized_profit", s.RealizedProfit().String()),
	)

	msg := fmt.Sprintf("session completed with realized profit %s", s.RealizedProfit())

	return []types.Event{s.NewEvent(types.EventSessionCompleted, 0, msg, at)}, nil
}

// CanUpdate reports whether the configuration may still be replaced.
func (m *StateMachine) CanUpdate(s *types.Session) error {
	if s.Status != types.SessionStatusReady {
		return conflict(s, "update")
	}

	return nil
}

// CanDelete reports whether the session may be deleted: only ready sessions without
// positions qualify.
func (m *StateMachine) CanDelete(s *types.Session) error {
	if s.Status != types.SessionStatusReady {
		return conflict(s, "delete")
	}

	if s.HasPositions() {
		return errors.Newf(errors.ErrCodePreconditionFailed,
			"session %s has %d positions", s.ID, len(s.Positions))
	}

	return nil
}

func conflict(s *types.Session, op string) error {
	return errors.Newf(errors.ErrCodeStateConflict, "cannot %s session %s in %s status", op, s.ID, s.Status)
}
