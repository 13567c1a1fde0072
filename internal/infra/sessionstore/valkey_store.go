package sessionstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/valkey-io/valkey-go"

	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
)

// ValkeyStore keeps each session as a list of JSON encoded turns plus a marker
// key. Both keys share a sliding TTL.
type ValkeyStore struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
}

// NewValkeyStore constructs a store backed by Valkey.
func NewValkeyStore(client valkey.Client, prefix string, ttl time.Duration) *ValkeyStore {
	if prefix == "" {
		prefix = "chat"
	}
	return &ValkeyStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *ValkeyStore) Create(ctx context.Context, session assistant.Session) error {
	marker := s.client.B().Set().Key(s.sessionKey(session.ID)).Value(session.CreatedAt.UTC().Format(time.RFC3339Nano))
	var cmd valkey.Completed
	if s.ttl > 0 {
		cmd = marker.Ex(s.ttl).Build()
	} else {
		cmd = marker.Build()
	}
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	if len(session.Messages) == 0 {
		return nil
	}
	return s.push(ctx, session.ID, session.Messages)
}

func (s *ValkeyStore) Append(ctx context.Context, id uuid.UUID, msgs ...assistant.Message) error {
	exists, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return assistant.ErrSessionNotFound
	}
	if len(msgs) == 0 {
		return nil
	}
	return s.push(ctx, id, msgs)
}

func (s *ValkeyStore) Messages(ctx context.Context, id uuid.UUID) ([]assistant.Message, error) {
	exists, err := s.exists(ctx, id)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, assistant.ErrSessionNotFound
	}
	raw, err := s.client.Do(ctx, s.client.B().Lrange().Key(s.messagesKey(id)).Start(0).Stop(-1).Build()).AsStrSlice()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("load messages: %w", err)
	}
	out := make([]assistant.Message, 0, len(raw))
	for _, item := range raw {
		var msg assistant.Message
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func (s *ValkeyStore) push(ctx context.Context, id uuid.UUID, msgs []assistant.Message) error {
	encoded := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		payload, err := json.Marshal(msg)
		if err != nil {
			return err
		}
		encoded = append(encoded, string(payload))
	}

	cmds := []valkey.Completed{s.client.B().Rpush().Key(s.messagesKey(id)).Element(encoded...).Build()}
	if s.ttl > 0 {
		seconds := int64(s.ttl / time.Second)
		if seconds < 1 {
			seconds = 1
		}
		cmds = append(cmds,
			s.client.B().Expire().Key(s.messagesKey(id)).Seconds(seconds).Build(),
			s.client.B().Expire().Key(s.sessionKey(id)).Seconds(seconds).Build(),
		)
	}
	for _, resp := range s.client.DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return fmt.Errorf("append messages: %w", err)
		}
	}
	return nil
}

func (s *ValkeyStore) exists(ctx context.Context, id uuid.UUID) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Exists().Key(s.sessionKey(id)).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("check session: %w", err)
	}
	return n > 0, nil
}

func (s *ValkeyStore) sessionKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:session:%s", s.prefix, id)
}

func (s *ValkeyStore) messagesKey(id uuid.UUID) string {
	return fmt.Sprintf("%s:session:%s:messages", s.prefix, id)
}

var _ assistant.SessionStore = (*ValkeyStore)(nil)
