package assistant

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/yanqian/irrigation-assistant/pkg/errors"
	"github.com/yanqian/irrigation-assistant/pkg/metrics"
	"github.com/yanqian/irrigation-assistant/pkg/util"
)

const persistTimeout = 5 * time.Second

// Service is the conversational entry point.
type Service interface {
	StartSession(ctx context.Context) (Session, error)
	History(ctx context.Context, id uuid.UUID) ([]Message, error)
	HandleUserMessage(ctx context.Context, id uuid.UUID, text string) (<-chan Event, error)
	Reply(ctx context.Context, id uuid.UUID, text string) (ChatResponse, error)
}

type service struct {
	store     SessionStore
	responder Responder
	metrics   *metrics.Collector
	logger    *slog.Logger
	now       func() time.Time
}

// NewService wires up the assistant domain.
func NewService(store SessionStore, responder Responder, collector *metrics.Collector, logger *slog.Logger) Service {
	return &service{
		store:     store,
		responder: responder,
		metrics:   collector,
		logger:    logger.With("component", "assistant.service"),
		now:       util.NowUTC,
	}
}

func (s *service) StartSession(ctx context.Context) (Session, error) {
	now := s.now()
	session := Session{
		ID:        uuid.New(),
		CreatedAt: now,
		Messages:  []Message{{Role: RoleAssistant, Content: Welcome, CreatedAt: now}},
	}
	if err := s.store.Create(ctx, session); err != nil {
		return Session{}, apperrors.Wrap(apperrors.CodeSessionError, "failed to create session", err)
	}
	s.logger.Info("chat session started", "session_id", session.ID)
	return session, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]Message, error) {
	msgs, err := s.store.Messages(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, apperrors.Wrap(apperrors.CodeNotFound, "session not found", err)
		}
		return nil, apperrors.Wrap(apperrors.CodeSessionError, "failed to load session", err)
	}
	return msgs, nil
}

// HandleUserMessage records the user turn and streams the assistant reply.
// The channel is closed after the final Done event, or early when ctx ends.
func (s *service) HandleUserMessage(ctx context.Context, id uuid.UUID, text string) (<-chan Event, error) {
	content := strings.TrimSpace(text)
	if content == "" {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "message cannot be empty", nil)
	}

	history, err := s.History(ctx, id)
	if err != nil {
		return nil, err
	}
	userMsg := Message{Role: RoleUser, Content: content, CreatedAt: s.now()}
	if err := s.store.Append(ctx, id, userMsg); err != nil {
		return nil, apperrors.Wrap(apperrors.CodeSessionError, "failed to record message", err)
	}
	history = append(history, userMsg)

	out := make(chan Event)
	go s.produce(ctx, id, history, out)
	return out, nil
}

func (s *service) Reply(ctx context.Context, id uuid.UUID, text string) (ChatResponse, error) {
	events, err := s.HandleUserMessage(ctx, id, text)
	if err != nil {
		return ChatResponse{}, err
	}
	for ev := range events {
		if ev.Done {
			return ChatResponse{SessionID: id, Reply: ev.Reply, Source: ev.Source, Rule: ev.Rule}, nil
		}
	}
	return ChatResponse{}, apperrors.Wrap(apperrors.CodeSessionError, "reply abandoned", ctx.Err())
}

func (s *service) produce(ctx context.Context, id uuid.UUID, history []Message, out chan<- Event) {
	defer close(out)
	defer s.metrics.StreamStarted()()

	send := func(ev Event) error {
		select {
		case out <- ev:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	var (
		builder   strings.Builder
		fragments int
	)
	emit := func(fragment string) error {
		builder.WriteString(fragment)
		fragments++
		return send(Event{Delta: fragment})
	}

	outcome, err := s.responder.Respond(ctx, history, emit)
	reply := builder.String()
	source := outcome.Source

	switch {
	case ctx.Err() != nil:
		s.logger.Info("chat reply abandoned", "session_id", id, "source", source, "received_chars", len(reply))
		if source == SourceFallback {
			s.metrics.RecordFallback("canceled")
		}
	case err != nil || !outcome.Handled || reply == "":
		if err == nil {
			err = errors.New("no reply was produced")
		}
		s.logger.Warn("chat reply failed", "session_id", id, "source", source, "rule", outcome.Rule, "error", err)
		if source == SourceFallback {
			s.metrics.RecordFallback("error")
		}
		notice := ErrorPrefix + err.Error()
		if reply != "" {
			notice = "\n\n" + notice
		}
		reply += notice
		source = SourceError
		_ = send(Event{Delta: notice})
	case source == SourceRule:
		s.metrics.RecordRuleMatch(outcome.Rule)
	default:
		s.metrics.RecordFallback("ok")
	}

	if outcome.Source == SourceFallback {
		s.metrics.RecordFragments(fragments)
	}

	if reply != "" {
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		defer cancel()
		msg := Message{Role: RoleAssistant, Content: reply, CreatedAt: s.now()}
		if err := s.store.Append(persistCtx, id, msg); err != nil {
			s.logger.Error("failed to record assistant reply", "session_id", id, "error", err)
		}
	}

	if ctx.Err() == nil {
		_ = send(Event{Done: true, Source: source, Rule: outcome.Rule, Reply: reply})
	}
}
