package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/vibemate/internal/reliability"
)

const (
	retryMax         = 2
	retryBackoffBase = 250 * time.Millisecond
	retryBackoffCap  = 2 * time.Second
)

// Client talks to Ollama's chat API and forwards NDJSON deltas as they arrive.
type Client struct {
	baseURL string
	client  *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) StreamChat(ctx context.Context, req ChatRequest, onDelta DeltaHandler) (ChatResponse, error) {
	req.Stream = true
	payload, err := json.Marshal(req)
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshal chat request: %w", err)
	}

	// Retry only before the first delta reaches the caller; once fragments
	// have been forwarded, a restart would duplicate output.
	var lastErr error
	for attempt := 0; attempt <= retryMax; attempt++ {
		if attempt > 0 {
			backoff := reliability.ExponentialBackoff(attempt-1, retryBackoffBase, retryBackoffCap)
			select {
			case <-ctx.Done():
				return ChatResponse{}, ctx.Err()
			case <-time.After(backoff):
			}
		}

		res, err := c.post(ctx, payload)
		if err != nil {
			return ChatResponse{}, err
		}

		if res.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
			res.Body.Close()
			lastErr = fmt.Errorf("ollama chat status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
			if reliability.IsRetryableHTTPStatus(res.StatusCode) {
				continue
			}
			return ChatResponse{}, lastErr
		}

		out, err := consumeStream(res.Body, onDelta)
		res.Body.Close()
		return out, err
	}
	return ChatResponse{}, lastErr
}

func (c *Client) post(ctx context.Context, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("send chat request: %w", err)
	}
	return res, nil
}

type chatChunk struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done  bool   `json:"done"`
	Error string `json:"error"`
}

func consumeStream(body io.Reader, onDelta DeltaHandler) (ChatResponse, error) {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	var out strings.Builder
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return ChatResponse{}, fmt.Errorf("ollama stream error: %s", chunk.Error)
		}

		if chunk.Message.Content != "" {
			out.WriteString(chunk.Message.Content)
			if onDelta != nil {
				if err := onDelta(chunk.Message.Content); err != nil {
					return ChatResponse{}, err
				}
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return ChatResponse{}, fmt.Errorf("stream read: %w", err)
	}

	return ChatResponse{Text: out.String()}, nil
}
