package sessionstore

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
)

type memorySession struct {
	messages  []assistant.Message
	expiresAt time.Time
}

// MemoryStore keeps chat sessions in process memory. Sessions idle for longer
// than the TTL are dropped on access.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*memorySession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore constructs a store backed by process memory. A zero ttl keeps
// sessions forever.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[uuid.UUID]*memorySession),
		ttl:      ttl,
		now:      time.Now,
	}
}

// Create implements assistant.SessionStore.
func (s *MemoryStore) Create(_ context.Context, session assistant.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = &memorySession{
		messages:  append([]assistant.Message(nil), session.Messages...),
		expiresAt: s.expiry(),
	}
	return nil
}

// Append implements assistant.SessionStore.
func (s *MemoryStore) Append(_ context.Context, id uuid.UUID, msgs ...assistant.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(id)
	if !ok {
		return assistant.ErrSessionNotFound
	}
	sess.messages = append(sess.messages, msgs...)
	sess.expiresAt = s.expiry()
	return nil
}

// Messages implements assistant.SessionStore.
func (s *MemoryStore) Messages(_ context.Context, id uuid.UUID) ([]assistant.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.live(id)
	if !ok {
		return nil, assistant.ErrSessionNotFound
	}
	return append([]assistant.Message(nil), sess.messages...), nil
}

// live returns the session unless it has expired. Callers hold the write lock.
func (s *MemoryStore) live(id uuid.UUID) (*memorySession, bool) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	if !sess.expiresAt.IsZero() && sess.expiresAt.Before(s.now()) {
		delete(s.sessions, id)
		return nil, false
	}
	return sess, true
}

func (s *MemoryStore) expiry() time.Time {
	if s.ttl <= 0 {
		return time.Time{}
	}
	return s.now().Add(s.ttl)
}

var _ assistant.SessionStore = (*MemoryStore)(nil)
