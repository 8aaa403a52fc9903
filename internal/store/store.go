// Package store defines persistence of strategy sessions and their event logs.
package store

import (
	"context"

	"github.com/rxtech-lab/nsplit-trading/internal/types"
)

// Store persists sessions. Implementations must be safe for concurrent use.
type Store interface {
	// SaveSession writes the full session state and appends events in one transaction.
	SaveSession(ctx context.Context, session *types.Session, events []types.Event) error
	// GetSession loads one session. Unknown ids fail with ErrCodeSessionNotFound.
	GetSession(ctx context.Context, id string) (*types.Session, error)
	// LoadSessions loads every session.
	LoadSessions(ctx context.Context) ([]*types.Session, error)
	// DeleteSession removes a session and everything it owns.
	DeleteSession(ctx context.Context, id string) error
	// Events returns the event log of a session in sequence order.
	Events(ctx context.Context, sessionID string) ([]types.Event, error)
	Close() error
}
