package sessionstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/yanqian/irrigation-assistant/internal/domain/assistant"
)

const schema = `
CREATE TABLE IF NOT EXISTS chat_sessions (
	id         UUID PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS chat_messages (
	id         BIGSERIAL PRIMARY KEY,
	session_id UUID NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
	role       TEXT NOT NULL,
	content    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (session_id, id);
`

// PostgresStore persists chat sessions in Postgres.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore constructs the adapter.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// EnsureSchema creates the chat tables when they are missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schema)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, session assistant.Session) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `
		INSERT INTO chat_sessions (id, created_at) VALUES ($1, $2)
	`, session.ID, session.CreatedAt); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if err := insertMessages(ctx, tx, session.ID, session.Messages); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Append(ctx context.Context, id uuid.UUID, msgs ...assistant.Message) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := sessionExists(ctx, tx, id); err != nil {
		return err
	}
	if err := insertMessages(ctx, tx, id, msgs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PostgresStore) Messages(ctx context.Context, id uuid.UUID) ([]assistant.Message, error) {
	if err := sessionExists(ctx, s.pool, id); err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx, `
		SELECT role, content, created_at
		FROM chat_messages
		WHERE session_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]assistant.Message, 0)
	for rows.Next() {
		var msg assistant.Message
		if err := rows.Scan(&msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func sessionExists(ctx context.Context, q querier, id uuid.UUID) error {
	var one int
	err := q.QueryRow(ctx, `SELECT 1 FROM chat_sessions WHERE id = $1`, id).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return assistant.ErrSessionNotFound
	}
	return err
}

func insertMessages(ctx context.Context, tx pgx.Tx, id uuid.UUID, msgs []assistant.Message) error {
	for _, msg := range msgs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO chat_messages (session_id, role, content, created_at)
			VALUES ($1, $2, $3, $4)
		`, id, string(msg.Role), msg.Content, msg.CreatedAt); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}
	}
	return nil
}

var _ assistant.SessionStore = (*PostgresStore)(nil)
