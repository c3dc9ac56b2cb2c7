package ollama

import (
	"context"
	"fmt"
	"strings"
)

// Mock provides deterministic local replies when no model backend is running.
type Mock struct{}

func NewMock() *Mock { return &Mock{} }

func (m *Mock) StreamChat(ctx context.Context, req ChatRequest, onDelta DeltaHandler) (ChatResponse, error) {
	select {
	case <-ctx.Done():
		return ChatResponse{}, ctx.Err()
	default:
	}

	text := buildMockReply(req)
	if onDelta != nil && text != "" {
		if err := onDelta(text); err != nil {
			return ChatResponse{}, err
		}
	}
	return ChatResponse{Text: text}, nil
}

func buildMockReply(req ChatRequest) string {
	var last Message
	for _, m := range req.Messages {
		if m.Role == RoleUser {
			last = m
		}
	}
	base := strings.TrimSpace(last.Content)
	if base == "" {
		base = "I am listening."
	}
	if len(last.Images) > 0 {
		return fmt.Sprintf("I see the picture you sent. About %q: looks lovely to me.", base)
	}
	return fmt.Sprintf("I hear you: %s", base)
}
