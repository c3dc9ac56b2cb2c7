package retrieval

import (
	"context"
	"errors"
)

// ErrUnavailable wraps any failure of the underlying index or embedder.
// Callers treat it as non-fatal: grounding degrades, the turn continues.
var ErrUnavailable = errors.New("retrieval unavailable")

// Retriever returns passages semantically relevant to the query text.
type Retriever interface {
	Retrieve(ctx context.Context, query string) ([]string, error)
}

// Disabled is used when no passage index is configured. It reports
// ErrUnavailable so the pipeline degrades the same way it does for a
// broken index.
type Disabled struct{}

func (Disabled) Retrieve(context.Context, string) ([]string, error) {
	return nil, ErrUnavailable
}
