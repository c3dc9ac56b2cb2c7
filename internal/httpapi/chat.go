package httpapi

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/antoniostano/vibemate/internal/chat"
	"github.com/antoniostano/vibemate/internal/media"
)

// maxUploadBytes bounds document and image uploads.
const maxUploadBytes = 25 << 20

type chatRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON with user_id and message")
		return
	}
	s.streamTurn(w, r, chat.Turn{ConversationID: req.UserID, Text: req.Message})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	userID, message, data, ok := s.multipartUpload(w, r)
	if !ok {
		return
	}
	s.streamTurn(w, r, chat.Turn{ConversationID: userID, Text: message, Document: data})
}

func (s *Server) handleVision(w http.ResponseWriter, r *http.Request) {
	userID, message, data, ok := s.multipartUpload(w, r)
	if !ok {
		return
	}
	s.streamTurn(w, r, chat.Turn{ConversationID: userID, Text: message, Image: data})
}

// multipartUpload parses the shared multipart shape of the upload and vision
// endpoints: a "file" part plus user_id and message fields.
func (s *Server) multipartUpload(w http.ResponseWriter, r *http.Request) (userID, message string, data []byte, ok bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "expected multipart form with file, user_id and message")
		return "", "", nil, false
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "missing file part")
		return "", "", nil, false
	}
	defer file.Close()

	data, err = io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "could not read uploaded file")
		return "", "", nil, false
	}

	return r.FormValue("user_id"), r.FormValue("message"), data, true
}

// streamTurn runs the turn and forwards fragments as a markdown text stream.
// Errors after the first byte cannot change the status line; the stream just
// ends and the detail goes to the log.
func (s *Server) streamTurn(w http.ResponseWriter, r *http.Request, turn chat.Turn) {
	s.metrics.ActiveStreams.Inc()
	defer s.metrics.ActiveStreams.Dec()

	flusher, _ := w.(http.Flusher)
	wrote := false
	emit := func(fragment string) error {
		if !wrote {
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		if _, err := io.WriteString(w, fragment); err != nil {
			return err
		}
		if flusher != nil {
			flusher.Flush()
		}
		return nil
	}

	err := s.chat.Respond(r.Context(), turn, emit)
	if err == nil {
		if !wrote {
			// Zero-fragment turns still deliver an empty stream, not an error.
			w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
			w.WriteHeader(http.StatusOK)
		}
		return
	}

	if wrote {
		log.Printf("chat stream for %q ended early: %v", turn.ConversationID, err)
		return
	}
	status, code, message := mapTurnError(err)
	respondError(w, status, code, message)
}

// mapTurnError translates the pipeline taxonomy to HTTP. Validation and
// normalization messages guide the caller; backend detail stays in the log.
func mapTurnError(err error) (int, string, string) {
	var (
		invalid     *chat.ValidationError
		unsupported *media.UnsupportedImageFormatError
		unreadable  *media.UnreadableDocumentError
		modelErr    *chat.ModelError
		storageErr  *chat.StorageError
	)
	switch {
	case errors.As(err, &invalid):
		return http.StatusBadRequest, "invalid_request", invalid.Reason
	case errors.As(err, &unsupported):
		return http.StatusUnsupportedMediaType, "unsupported_image_format", unsupported.Error()
	case errors.As(err, &unreadable):
		return http.StatusUnprocessableEntity, "unreadable_document", unreadable.Error()
	case errors.As(err, &modelErr):
		log.Printf("model backend failure: %v", err)
		return http.StatusBadGateway, "model_unavailable", "the model backend is currently unavailable"
	case errors.As(err, &storageErr):
		log.Printf("storage failure: %v", err)
		return http.StatusInternalServerError, "storage_error", "internal storage error"
	default:
		log.Printf("turn failed: %v", err)
		return http.StatusInternalServerError, "internal_error", "internal error"
	}
}

type memoryEntry struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (s *Server) handleMemory(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	window, err := s.chat.ChatMemory(r.Context(), req.UserID)
	if err != nil {
		status, code, message := mapTurnError(err)
		respondError(w, status, code, message)
		return
	}

	entries := make([]memoryEntry, 0, len(window))
	for _, m := range window {
		entries = append(entries, memoryEntry{Role: string(m.Role), Content: m.Content})
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.UserID) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "user_id is required")
		return
	}

	if err := s.chat.ClearMemory(r.Context(), req.UserID); err != nil {
		status, code, message := mapTurnError(err)
		respondError(w, status, code, message)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
