package profile

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists profiles and personas in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id TEXT PRIMARY KEY,
			full_name TEXT NOT NULL,
			age INT,
			gender TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE TABLE IF NOT EXISTS bots (
			user_id TEXT PRIMARY KEY,
			bot_name TEXT NOT NULL DEFAULT '',
			personality TEXT NOT NULL DEFAULT '',
			tone TEXT NOT NULL DEFAULT '',
			role TEXT NOT NULL DEFAULT ''
		);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (UserProfile, error) {
	var p UserProfile
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, full_name, age, gender FROM users WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.FullName, &p.Age, &p.Gender)
	if errors.Is(err, pgx.ErrNoRows) {
		return UserProfile{}, ErrNotFound
	}
	if err != nil {
		return UserProfile{}, fmt.Errorf("query user: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpsertUser(ctx context.Context, p UserProfile) (UserProfile, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO users (user_id, full_name, age, gender)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (user_id) DO UPDATE
		 SET full_name = EXCLUDED.full_name, age = EXCLUDED.age, gender = EXCLUDED.gender`,
		p.UserID, p.FullName, p.Age, p.Gender,
	)
	if err != nil {
		return UserProfile{}, fmt.Errorf("upsert user: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) GetPersona(ctx context.Context, userID string) (Persona, error) {
	var p Persona
	err := s.pool.QueryRow(ctx,
		`SELECT user_id, bot_name, personality, tone, role FROM bots WHERE user_id = $1`,
		userID,
	).Scan(&p.UserID, &p.BotName, &p.Personality, &p.Tone, &p.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return Persona{}, ErrNotFound
	}
	if err != nil {
		return Persona{}, fmt.Errorf("query persona: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) UpsertPersona(ctx context.Context, p Persona) (Persona, error) {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO bots (user_id, bot_name, personality, tone, role)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id) DO UPDATE
		 SET bot_name = EXCLUDED.bot_name, personality = EXCLUDED.personality,
		     tone = EXCLUDED.tone, role = EXCLUDED.role`,
		p.UserID, p.BotName, p.Personality, p.Tone, p.Role,
	)
	if err != nil {
		return Persona{}, fmt.Errorf("upsert persona: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
