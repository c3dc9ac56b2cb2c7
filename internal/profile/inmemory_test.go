package profile

import (
	"context"
	"errors"
	"testing"
)

func TestGetUserUnknownReturnsNotFound(t *testing.T) {
	store := NewInMemoryStore()
	if _, err := store.GetUser(context.Background(), "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetUser() error = %v, want ErrNotFound", err)
	}
	if _, err := store.GetPersona(context.Background(), "u1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("GetPersona() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertUserRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	age := 27
	in := UserProfile{UserID: "u1", FullName: "Sam Doe", Age: &age, Gender: "female"}
	if _, err := store.UpsertUser(ctx, in); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}

	got, err := store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser() error = %v", err)
	}
	if got.FullName != "Sam Doe" || got.Age == nil || *got.Age != 27 || got.Gender != "female" {
		t.Fatalf("GetUser() = %+v, want %+v", got, in)
	}

	// Upsert replaces the record.
	in.FullName = "Sam D."
	in.Age = nil
	if _, err := store.UpsertUser(ctx, in); err != nil {
		t.Fatalf("second UpsertUser() error = %v", err)
	}
	got, err = store.GetUser(ctx, "u1")
	if err != nil {
		t.Fatalf("GetUser() after update error = %v", err)
	}
	if got.FullName != "Sam D." || got.Age != nil {
		t.Fatalf("GetUser() after update = %+v", got)
	}
}

func TestUpsertPersonaRoundTrip(t *testing.T) {
	store := NewInMemoryStore()
	ctx := context.Background()

	in := Persona{UserID: "u1", BotName: "Vibe", Personality: "playful", Tone: "warm", Role: "best friend"}
	if _, err := store.UpsertPersona(ctx, in); err != nil {
		t.Fatalf("UpsertPersona() error = %v", err)
	}
	got, err := store.GetPersona(ctx, "u1")
	if err != nil {
		t.Fatalf("GetPersona() error = %v", err)
	}
	if got != in {
		t.Fatalf("GetPersona() = %+v, want %+v", got, in)
	}
}
