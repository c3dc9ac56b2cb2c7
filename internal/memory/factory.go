package memory

import (
	"context"
	"strings"
)

// NewStore creates a postgres-backed store when configured, otherwise in-memory.
func NewStore(ctx context.Context, databaseURL string, maxMessages int) (Store, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return NewInMemoryStore(maxMessages), nil
	}
	return NewPostgresStore(ctx, databaseURL, maxMessages)
}
