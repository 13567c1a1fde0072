package assistant

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	// RoleSystem is only used for instructions sent to the fallback generator.
	RoleSystem Role = "system"
)

// Welcome opens every new session.
const Welcome = "👋 Hello! Ask me about irrigation, weather, or crops."

// ErrorPrefix marks assistant turns that report a failure.
const ErrorPrefix = "⚠️ Error: "

// ErrSessionNotFound is returned by stores for unknown session ids.
var ErrSessionNotFound = errors.New("session not found")

// Message is one turn of a conversation.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt"`
}

// Session is an independent conversation with its own message log.
type Session struct {
	ID        uuid.UUID `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	Messages  []Message `json:"messages"`
}

// Source tells which stage of the chain produced a reply.
type Source string

const (
	SourceRule     Source = "rule"
	SourceFallback Source = "fallback"
	SourceError    Source = "error"
)

// Event is emitted while a reply is produced. Deltas arrive in order; the last
// event has Done set and carries the complete reply.
type Event struct {
	Delta  string `json:"delta,omitempty"`
	Done   bool   `json:"done"`
	Source Source `json:"source,omitempty"`
	Rule   string `json:"rule,omitempty"`
	Reply  string `json:"reply,omitempty"`
}

// ChatRequest is the payload for a user turn.
type ChatRequest struct {
	Content string `json:"content"`
}

// ChatResponse is the non-streaming result of a user turn.
type ChatResponse struct {
	SessionID uuid.UUID `json:"sessionId"`
	Reply     string    `json:"reply"`
	Source    Source    `json:"source"`
	Rule      string    `json:"rule,omitempty"`
}

// Config holds runtime knobs for the assistant service.
type Config struct {
	SystemPrompt     string
	MaxHistoryTokens int
}
