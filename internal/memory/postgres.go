package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversation windows in PostgreSQL.
type PostgresStore struct {
	pool        *pgxpool.Pool
	maxMessages int
}

func NewPostgresStore(ctx context.Context, databaseURL string, maxMessages int) (*PostgresStore, error) {
	if maxMessages <= 0 {
		maxMessages = 20
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool, maxMessages: maxMessages}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS chat_messages (
			id TEXT PRIMARY KEY,
			conversation_id TEXT NOT NULL,
			seq BIGINT GENERATED ALWAYS AS IDENTITY,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chat_messages_conversation_seq ON chat_messages (conversation_id, seq);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

// Append inserts the message and trims the window inside one transaction.
// A per-conversation advisory lock serializes same-conversation appends while
// leaving other conversations untouched.
func (s *PostgresStore) Append(ctx context.Context, conversationID string, msg Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}

	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`SELECT pg_advisory_xact_lock(hashtext($1))`, conversationID); err != nil {
			return fmt.Errorf("acquire conversation lock: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO chat_messages (id, conversation_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			msg.ID, conversationID, string(msg.Role), msg.Content, msg.CreatedAt,
		); err != nil {
			return fmt.Errorf("insert message: %w", err)
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM chat_messages
			 WHERE conversation_id = $1
			   AND seq NOT IN (
				SELECT seq FROM chat_messages
				WHERE conversation_id = $1
				ORDER BY seq DESC
				LIMIT $2
			   )`,
			conversationID, s.maxMessages,
		); err != nil {
			return fmt.Errorf("trim window: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	return nil
}

func (s *PostgresStore) Read(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM chat_messages WHERE conversation_id = $1 ORDER BY seq ASC`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query window: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0, s.maxMessages)
	for rows.Next() {
		var m Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		m.Role = Role(role)
		items = append(items, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate message rows: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) Clear(ctx context.Context, conversationID string) error {
	if _, err := s.pool.Exec(ctx,
		`DELETE FROM chat_messages WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("clear conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
