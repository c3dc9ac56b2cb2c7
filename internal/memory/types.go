package memory

import (
	"context"
	"time"
)

// Role identifies which side of the conversation produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single conversational turn. Immutable once appended.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	Role           Role      `json:"role"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

// Store persists the bounded per-conversation message window.
//
// Append must be serialized per conversation: concurrent appends on the same
// conversation id may not drop or reorder messages. Appends on distinct
// conversations proceed in parallel.
type Store interface {
	// Append adds a message to the end of the window and evicts from the
	// front until the window is back within the configured cap.
	Append(ctx context.Context, conversationID string, msg Message) error
	// Read returns the current window oldest first. An unknown conversation
	// yields an empty slice, not an error.
	Read(ctx context.Context, conversationID string) ([]Message, error)
	// Clear deletes all messages for the conversation. Idempotent.
	Clear(ctx context.Context, conversationID string) error
	Close() error
}
