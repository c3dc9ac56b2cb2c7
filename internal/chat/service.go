package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/vibemate/internal/media"
	"github.com/antoniostano/vibemate/internal/memory"
	"github.com/antoniostano/vibemate/internal/observability"
	"github.com/antoniostano/vibemate/internal/ollama"
	"github.com/antoniostano/vibemate/internal/profile"
	"github.com/antoniostano/vibemate/internal/prompt"
	"github.com/antoniostano/vibemate/internal/retrieval"
)

// Turn is one caller-submitted unit of input. Document and Image are
// mutually exclusive.
type Turn struct {
	ConversationID string
	Text           string
	Document       []byte
	Image          []byte
}

type turnKind string

const (
	kindText     turnKind = "text"
	kindDocument turnKind = "document"
	kindImage    turnKind = "image"
)

func (t Turn) kind() turnKind {
	switch {
	case len(t.Document) > 0:
		return kindDocument
	case len(t.Image) > 0:
		return kindImage
	default:
		return kindText
	}
}

// memorySaveTimeout bounds the post-stream write so a slow store cannot pin
// goroutines long after the response has been delivered.
const memorySaveTimeout = 2 * time.Second

// Service drives a turn through normalize, assemble, stream and record.
type Service struct {
	memory     memory.Store
	profiles   profile.Store
	retriever  retrieval.Retriever
	normalizer media.Normalizer
	model      ollama.Streamer
	metrics    *observability.Metrics

	chatModel   string
	visionModel string

	mu            sync.Mutex
	conversations map[string]*sync.Mutex
}

func NewService(
	memoryStore memory.Store,
	profiles profile.Store,
	retriever retrieval.Retriever,
	normalizer media.Normalizer,
	model ollama.Streamer,
	metrics *observability.Metrics,
	chatModel, visionModel string,
) *Service {
	return &Service{
		memory:        memoryStore,
		profiles:      profiles,
		retriever:     retriever,
		normalizer:    normalizer,
		model:         model,
		metrics:       metrics,
		chatModel:     chatModel,
		visionModel:   visionModel,
		conversations: make(map[string]*sync.Mutex),
	}
}

// Respond streams the model response for one turn through emit, then records
// the exchange. Fragments are forwarded as they arrive; an emit error or a
// cancelled context abandons generation and skips recording.
func (s *Service) Respond(ctx context.Context, turn Turn, emit func(fragment string) error) error {
	kind := turn.kind()

	if err := validate(turn); err != nil {
		s.metrics.Turns.WithLabelValues(string(kind), "invalid").Inc()
		return err
	}

	// Normalizing: fail fast before any model call or memory mutation.
	var (
		extracted string
		image     []byte
	)
	switch kind {
	case kindDocument:
		text, err := s.normalizer.ExtractDocumentText(turn.Document)
		if err != nil {
			s.metrics.Turns.WithLabelValues(string(kind), "unreadable_document").Inc()
			return err
		}
		extracted = text
	case kindImage:
		validated, _, err := s.normalizer.ValidateImage(turn.Image)
		if err != nil {
			s.metrics.Turns.WithLabelValues(string(kind), "unsupported_image").Inc()
			return err
		}
		image = validated
	}

	// Assembling: fresh persona/profile snapshot, memory window, grounding.
	persona, user, err := s.profileSnapshot(ctx, turn.ConversationID)
	if err != nil {
		s.metrics.Turns.WithLabelValues(string(kind), "storage_error").Inc()
		return err
	}

	history, err := s.memory.Read(ctx, turn.ConversationID)
	if err != nil {
		s.metrics.Turns.WithLabelValues(string(kind), "storage_error").Inc()
		return &StorageError{Op: "read memory", Err: err}
	}

	var passages []string
	if kind == kindText {
		passages = s.retrievePassages(ctx, turn.Text)
	}

	systemPrompt := prompt.BuildSystemPrompt(persona, user)

	var (
		msgs        []ollama.Message
		model       = s.chatModel
		userContent = turn.Text
	)
	switch kind {
	case kindText:
		msgs = prompt.AssembleTurn(systemPrompt, history, passages, turn.Text)
	case kindDocument:
		msgs = prompt.AssembleDocumentTurn(systemPrompt, history, turn.Text, extracted)
		userContent = turn.Text + extracted
	case kindImage:
		msgs = prompt.AssembleImageTurn(systemPrompt, history, turn.Text, image)
		model = s.visionModel
	}

	// Streaming.
	started := time.Now()
	var (
		emitErr  error
		gotFirst bool
	)
	onDelta := func(delta string) error {
		if !gotFirst {
			gotFirst = true
			s.metrics.ObserveFirstFragmentLatency(time.Since(started))
		}
		if err := emit(delta); err != nil {
			emitErr = err
			return err
		}
		return nil
	}

	res, err := s.model.StreamChat(ctx, ollama.ChatRequest{Model: model, Messages: msgs}, onDelta)
	if err != nil {
		if emitErr != nil || ctx.Err() != nil {
			// Caller went away mid-stream. Nothing is recorded for an
			// abandoned response.
			s.metrics.Turns.WithLabelValues(string(kind), "aborted").Inc()
			return err
		}
		s.metrics.Turns.WithLabelValues(string(kind), "model_error").Inc()
		return &ModelError{Err: err}
	}

	// Recorded: best-effort relative to the already-delivered response.
	s.recordExchange(turn.ConversationID, userContent, res.Text)
	s.metrics.Turns.WithLabelValues(string(kind), "ok").Inc()
	return nil
}

// ChatMemory returns the conversation window, oldest first.
func (s *Service) ChatMemory(ctx context.Context, conversationID string) ([]memory.Message, error) {
	if strings.TrimSpace(conversationID) == "" {
		return nil, &ValidationError{Reason: "conversation id is required"}
	}
	msgs, err := s.memory.Read(ctx, conversationID)
	if err != nil {
		return nil, &StorageError{Op: "read memory", Err: err}
	}
	return msgs, nil
}

// ClearMemory deletes the conversation window. Idempotent.
func (s *Service) ClearMemory(ctx context.Context, conversationID string) error {
	if strings.TrimSpace(conversationID) == "" {
		return &ValidationError{Reason: "conversation id is required"}
	}
	if err := s.memory.Clear(ctx, conversationID); err != nil {
		return &StorageError{Op: "clear memory", Err: err}
	}
	return nil
}

func validate(turn Turn) error {
	if strings.TrimSpace(turn.ConversationID) == "" {
		return &ValidationError{Reason: "conversation id is required"}
	}
	if strings.TrimSpace(turn.Text) == "" {
		return &ValidationError{Reason: "message text is required"}
	}
	if len(turn.Document) > 0 && len(turn.Image) > 0 {
		return &ValidationError{Reason: "a turn may carry a document or an image, not both"}
	}
	return nil
}

// profileSnapshot reads persona and user fresh per turn. Missing records are
// not an error: the prompt fallbacks cover them.
func (s *Service) profileSnapshot(ctx context.Context, userID string) (profile.Persona, profile.UserProfile, error) {
	persona, err := s.profiles.GetPersona(ctx, userID)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		return profile.Persona{}, profile.UserProfile{}, &StorageError{Op: "read persona", Err: err}
	}
	user, err := s.profiles.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		return profile.Persona{}, profile.UserProfile{}, &StorageError{Op: "read user profile", Err: err}
	}
	return persona, user, nil
}

// retrievePassages degrades to no grounding on any index failure.
func (s *Service) retrievePassages(ctx context.Context, query string) []string {
	passages, err := s.retriever.Retrieve(ctx, query)
	if err != nil {
		s.metrics.RetrievalFailures.Inc()
		log.Printf("retrieval degraded for this turn: %v", err)
		return nil
	}
	return passages
}

// recordExchange appends the user turn and the assistant reply as a pair,
// serialized per conversation so concurrent turns cannot interleave inside
// a pair. Failures are logged; the response has already been delivered.
func (s *Service) recordExchange(conversationID, userContent, assistantContent string) {
	lock := s.conversationLock(conversationID)
	lock.Lock()
	defer lock.Unlock()

	saveCtx, cancel := context.WithTimeout(context.Background(), memorySaveTimeout)
	defer cancel()

	if err := s.memory.Append(saveCtx, conversationID, memory.Message{
		Role:    memory.RoleUser,
		Content: userContent,
	}); err != nil {
		s.metrics.MemoryWriteFailures.Inc()
		log.Printf("memory write failed (user turn, conversation %s): %v", conversationID, err)
		return
	}
	if err := s.memory.Append(saveCtx, conversationID, memory.Message{
		Role:    memory.RoleAssistant,
		Content: assistantContent,
	}); err != nil {
		s.metrics.MemoryWriteFailures.Inc()
		log.Printf("memory write failed (assistant turn, conversation %s): %v", conversationID, err)
	}
}

func (s *Service) conversationLock(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.conversations[conversationID]
	if !ok {
		lock = &sync.Mutex{}
		s.conversations[conversationID] = lock
	}
	return lock
}
