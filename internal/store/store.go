package store

import (
	"context"
	"errors"
	"time"

	"github.com/nhle/campaignbot/internal/model"
)

// ErrNotFound is returned when no session exists for a conversation.
var ErrNotFound = errors.New("session not found")

// SessionStore persists one DraftSession per conversation id. Sessions are
// replaced wholesale on every save.
type SessionStore interface {
	LoadSession(ctx context.Context, conversationID string) (*model.DraftSession, error)
	SaveSession(ctx context.Context, session model.DraftSession) error
	DeleteSession(ctx context.Context, conversationID string) error
	CountSessions(ctx context.Context) (int, error)

	// PurgeSessions deletes sessions not updated since before and returns
	// how many were removed.
	PurgeSessions(ctx context.Context, before time.Time) (int, error)

	Close() error
}
