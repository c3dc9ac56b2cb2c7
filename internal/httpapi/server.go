package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/antoniostano/vibemate/internal/chat"
	"github.com/antoniostano/vibemate/internal/config"
	"github.com/antoniostano/vibemate/internal/memory"
	"github.com/antoniostano/vibemate/internal/observability"
	"github.com/antoniostano/vibemate/internal/profile"
)

// ChatService is the orchestration surface the API depends on.
type ChatService interface {
	Respond(ctx context.Context, turn chat.Turn, emit func(fragment string) error) error
	ChatMemory(ctx context.Context, conversationID string) ([]memory.Message, error)
	ClearMemory(ctx context.Context, conversationID string) error
}

type Server struct {
	cfg      config.Config
	chat     ChatService
	profiles profile.Store
	metrics  *observability.Metrics
	upgrader websocket.Upgrader
}

func New(cfg config.Config, chatService ChatService, profiles profile.Store, metrics *observability.Metrics) *Server {
	return &Server{
		cfg:      cfg,
		chat:     chatService,
		profiles: profiles,
		metrics:  metrics,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Default: only allow browser websocket connections from the
				// same origin, so other sites cannot drive a user's chat if
				// the service is ever exposed beyond localhost.
				if cfg.AllowAnyOrigin {
					return true
				}
				origin := strings.TrimSpace(r.Header.Get("Origin"))
				if origin == "" {
					// Non-browser clients often omit Origin. Allow them.
					return true
				}
				u, err := url.Parse(origin)
				if err != nil {
					return false
				}
				if u.Scheme != "http" && u.Scheme != "https" {
					return false
				}
				return strings.EqualFold(u.Host, r.Host)
			},
		},
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		observability.MetricsHandler().ServeHTTP(w, r)
	})

	r.Post("/api/chat", s.handleChat)
	r.Post("/api/chat/upload", s.handleUpload)
	r.Post("/api/chat/vision", s.handleVision)
	r.Post("/api/chat/memory", s.handleMemory)
	r.Delete("/api/chat/clear", s.handleClear)
	r.Get("/api/chat/ws", s.handleChatWS)

	r.Put("/api/users/{id}", s.handleUpsertUser)
	r.Get("/api/users/{id}", s.handleGetUser)
	r.Put("/api/users/{id}/bot", s.handleUpsertPersona)
	r.Get("/api/users/{id}/bot", s.handleGetPersona)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{
		"status":            "ready",
		"retrieval_enabled": strings.TrimSpace(s.cfg.DatabaseURL) != "",
	})
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

var errEmptyBody = errors.New("empty body")

func decodeJSON(r *http.Request, out any) error {
	if r.Body == nil {
		return errEmptyBody
	}
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(out); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "eof") {
			return errEmptyBody
		}
		return err
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, errorResponse{Error: message, Code: code})
}
