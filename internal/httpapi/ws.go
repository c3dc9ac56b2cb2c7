package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/antoniostano/vibemate/internal/chat"
)

// Websocket chat protocol. The client sends turn messages:
//
//	{"type": "turn", "message": "..."}
//
// and receives a stream of events per turn:
//
//	{"type": "delta", "content": "..."}
//	{"type": "done"}
//	{"type": "error", "code": "...", "detail": "..."}
//
// Turns are processed one at a time in arrival order.
type wsClientMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type wsEvent struct {
	Type    string `json:"type"`
	Content string `json:"content,omitempty"`
	Code    string `json:"code,omitempty"`
	Detail  string `json:"detail,omitempty"`
}

const (
	wsWriteTimeout = 10 * time.Second
	wsReadTimeout  = 120 * time.Second
)

func (s *Server) handleChatWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		respondError(w, http.StatusBadRequest, "missing_user_id", "query parameter user_id is required")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	inbound := make(chan wsClientMessage, 16)
	outbound := make(chan wsEvent, 256)

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		s.runWSTurns(ctx, userID, inbound, outbound)
	}()

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-outbound:
				if !ok {
					return
				}
				_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
				if err := conn.WriteJSON(event); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadLimit(1 << 20)
	_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		return nil
	})

readLoop:
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		if msgType != websocket.TextMessage {
			continue
		}

		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "turn" {
			select {
			case outbound <- wsEvent{Type: "error", Code: "invalid_client_message", Detail: "expected a JSON turn message"}:
			default:
				// Keep websocket writes single-threaded; drop if the
				// outbound queue is saturated.
			}
			continue
		}

		select {
		case <-ctx.Done():
			break readLoop
		case inbound <- msg:
		}
	}

	cancel()
	close(inbound)
	<-runDone
	<-writerDone
}

// runWSTurns drains inbound turn messages sequentially so a connection's
// responses never interleave.
func (s *Server) runWSTurns(ctx context.Context, userID string, inbound <-chan wsClientMessage, outbound chan<- wsEvent) {
	send := func(event wsEvent) bool {
		select {
		case <-ctx.Done():
			return false
		case outbound <- event:
			return true
		}
	}

	for {
		var (
			msg wsClientMessage
			ok  bool
		)
		select {
		case <-ctx.Done():
			return
		case msg, ok = <-inbound:
			if !ok {
				return
			}
		}

		emit := func(fragment string) error {
			if !send(wsEvent{Type: "delta", Content: fragment}) {
				return ctx.Err()
			}
			return nil
		}

		err := s.chat.Respond(ctx, chat.Turn{ConversationID: userID, Text: msg.Message}, emit)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			_, code, detail := mapTurnError(err)
			send(wsEvent{Type: "error", Code: code, Detail: detail})
			continue
		}
		send(wsEvent{Type: "done"})
	}
}
