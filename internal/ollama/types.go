package ollama

import "context"

// Message is one prompt turn in Ollama's chat format. Images carry
// base64-encoded payloads for vision models.
type Message struct {
	Role    string   `json:"role"`
	Content string   `json:"content"`
	Images  []string `json:"images,omitempty"`
}

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatRequest is the request sent to the chat endpoint.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// ChatResponse is the final response after streaming deltas.
type ChatResponse struct {
	Text string `json:"text"`
}

// DeltaHandler receives streaming text fragments as they arrive.
// Returning an error stops the pull from the backend.
type DeltaHandler func(delta string) error

// Streamer produces a streamed model response.
type Streamer interface {
	StreamChat(ctx context.Context, req ChatRequest, onDelta DeltaHandler) (ChatResponse, error)
}
