package profile

import (
	"context"
	"errors"
)

// ErrNotFound is returned when no record exists for the given user.
var ErrNotFound = errors.New("profile record not found")

// UserProfile describes the human side of the conversation.
// Age and Gender are optional; prompt composition applies fallbacks.
type UserProfile struct {
	UserID   string `json:"user_id"`
	FullName string `json:"full_name"`
	Age      *int   `json:"age,omitempty"`
	Gender   string `json:"gender,omitempty"`
}

// Persona describes the configurable identity the bot presents.
// All fields except UserID are optional.
type Persona struct {
	UserID      string `json:"user_id"`
	BotName     string `json:"bot_name"`
	Personality string `json:"personality"`
	Tone        string `json:"tone"`
	Role        string `json:"role"`
}

// Store persists user profiles and bot personas, keyed by user id.
type Store interface {
	GetUser(ctx context.Context, userID string) (UserProfile, error)
	UpsertUser(ctx context.Context, p UserProfile) (UserProfile, error)
	GetPersona(ctx context.Context, userID string) (Persona, error)
	UpsertPersona(ctx context.Context, p Persona) (Persona, error)
	Close() error
}
