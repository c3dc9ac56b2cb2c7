package retrieval

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgvectorIndex answers top-k similarity queries over a pgvector passage table.
// The search policy is fixed: no filters, configured k, cosine distance,
// a fresh query per call (no caching).
type PgvectorIndex struct {
	pool     *pgxpool.Pool
	embedder Embedder
	topK     int
}

func NewPgvectorIndex(ctx context.Context, databaseURL string, embedder Embedder, embedDim, topK int) (*PgvectorIndex, error) {
	if topK <= 0 {
		topK = 5
	}
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool, embedDim); err != nil {
		pool.Close()
		return nil, err
	}

	return &PgvectorIndex{pool: pool, embedder: embedder, topK: topK}, nil
}

// Passage ingestion is a separate pipeline; this service only queries the
// table, so schema init just makes an empty index queryable.
func initSchema(ctx context.Context, pool *pgxpool.Pool, embedDim int) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector;`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS passages (
			id TEXT PRIMARY KEY,
			content TEXT NOT NULL,
			embedding vector(%d)
		);`, embedDim),
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (x *PgvectorIndex) Retrieve(ctx context.Context, query string) ([]string, error) {
	embedding, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %v", ErrUnavailable, err)
	}

	rows, err := x.pool.Query(ctx,
		`SELECT content FROM passages
		 WHERE embedding IS NOT NULL
		 ORDER BY embedding <=> $1::vector
		 LIMIT $2`,
		vectorLiteral(embedding), x.topK,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: query passages: %v", ErrUnavailable, err)
	}
	defer rows.Close()

	passages := make([]string, 0, x.topK)
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("%w: scan passage row: %v", ErrUnavailable, err)
		}
		passages = append(passages, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate passage rows: %v", ErrUnavailable, err)
	}
	return passages, nil
}

func (x *PgvectorIndex) Close() error {
	x.pool.Close()
	return nil
}

// vectorLiteral renders the embedding in pgvector's input syntax, e.g. [1,2,3].
func vectorLiteral(v []float32) string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	sb.WriteByte(']')
	return sb.String()
}
