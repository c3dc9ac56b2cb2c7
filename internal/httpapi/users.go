package httpapi

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/antoniostano/vibemate/internal/profile"
)

type userRequest struct {
	FullName string `json:"full_name"`
	Age      *int   `json:"age,omitempty"`
	Gender   string `json:"gender,omitempty"`
}

type personaRequest struct {
	BotName     string `json:"bot_name"`
	Personality string `json:"personality"`
	Tone        string `json:"tone"`
	Role        string `json:"role"`
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}
	if strings.TrimSpace(req.FullName) == "" {
		respondError(w, http.StatusBadRequest, "invalid_request", "full_name is required")
		return
	}

	saved, err := s.profiles.UpsertUser(r.Context(), profile.UserProfile{
		UserID:   id,
		FullName: req.FullName,
		Age:      req.Age,
		Gender:   req.Gender,
	})
	if err != nil {
		log.Printf("upsert user %q failed: %v", id, err)
		respondError(w, http.StatusInternalServerError, "storage_error", "internal storage error")
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	user, err := s.profiles.GetUser(r.Context(), id)
	if errors.Is(err, profile.ErrNotFound) {
		respondError(w, http.StatusNotFound, "user_not_found", "no profile for this user")
		return
	}
	if err != nil {
		log.Printf("get user %q failed: %v", id, err)
		respondError(w, http.StatusInternalServerError, "storage_error", "internal storage error")
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpsertPersona(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		respondError(w, http.StatusBadRequest, "invalid_user_id", "missing user id")
		return
	}
	var req personaRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "request body must be JSON")
		return
	}

	saved, err := s.profiles.UpsertPersona(r.Context(), profile.Persona{
		UserID:      id,
		BotName:     req.BotName,
		Personality: req.Personality,
		Tone:        req.Tone,
		Role:        req.Role,
	})
	if err != nil {
		log.Printf("upsert persona %q failed: %v", id, err)
		respondError(w, http.StatusInternalServerError, "storage_error", "internal storage error")
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleGetPersona(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	persona, err := s.profiles.GetPersona(r.Context(), id)
	if errors.Is(err, profile.ErrNotFound) {
		respondError(w, http.StatusNotFound, "persona_not_found", "no bot persona for this user")
		return
	}
	if err != nil {
		log.Printf("get persona %q failed: %v", id, err)
		respondError(w, http.StatusInternalServerError, "storage_error", "internal storage error")
		return
	}
	respondJSON(w, http.StatusOK, persona)
}
