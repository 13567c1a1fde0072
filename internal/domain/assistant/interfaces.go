package assistant

import (
	"context"

	"github.com/google/uuid"
)

// SessionStore owns the append-only message logs.
type SessionStore interface {
	Create(ctx context.Context, session Session) error
	Append(ctx context.Context, id uuid.UUID, msgs ...Message) error
	Messages(ctx context.Context, id uuid.UUID) ([]Message, error)
}

// Fragment is one piece of streamed generator output. A non-nil Err ends the
// stream.
type Fragment struct {
	Text string
	Err  error
}

// Generator produces free-form assistant text from the conversation so far.
// The returned channel is closed when generation ends or ctx is done.
type Generator interface {
	Stream(ctx context.Context, history []Message) (<-chan Fragment, error)
}

// TokenCounter estimates prompt tokens for history budgeting.
type TokenCounter interface {
	CountTokens(text string) int
}
