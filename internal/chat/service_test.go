package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/antoniostano/vibemate/internal/media"
	"github.com/antoniostano/vibemate/internal/memory"
	"github.com/antoniostano/vibemate/internal/observability"
	"github.com/antoniostano/vibemate/internal/ollama"
	"github.com/antoniostano/vibemate/internal/profile"
	"github.com/antoniostano/vibemate/internal/retrieval"
)

var webpBytes = append([]byte("RIFF\x00\x00\x00\x00WEBP"), []byte("VP8 ")...)

var pngBytes = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A, 0, 0, 0, 0x0D, 'I', 'H', 'D', 'R'}

type stubRetriever struct {
	mu       sync.Mutex
	passages []string
	err      error
	calls    int
}

func (r *stubRetriever) Retrieve(_ context.Context, _ string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.passages, nil
}

func (r *stubRetriever) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// stubStreamer echoes the last user message as two fragments.
type stubStreamer struct {
	mu      sync.Mutex
	calls   int
	lastReq ollama.ChatRequest
	err     error
}

func (s *stubStreamer) StreamChat(ctx context.Context, req ollama.ChatRequest, onDelta ollama.DeltaHandler) (ollama.ChatResponse, error) {
	s.mu.Lock()
	s.calls++
	s.lastReq = req
	err := s.err
	s.mu.Unlock()
	if err != nil {
		return ollama.ChatResponse{}, err
	}
	if ctx.Err() != nil {
		return ollama.ChatResponse{}, ctx.Err()
	}

	var last ollama.Message
	for _, m := range req.Messages {
		if m.Role == ollama.RoleUser {
			last = m
		}
	}
	var out strings.Builder
	for _, frag := range []string{"echo: ", last.Content} {
		if err := onDelta(frag); err != nil {
			return ollama.ChatResponse{}, err
		}
		out.WriteString(frag)
	}
	return ollama.ChatResponse{Text: out.String()}, nil
}

func (s *stubStreamer) request() ollama.ChatRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastReq
}

func (s *stubStreamer) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type fixture struct {
	svc       *Service
	memory    *memory.InMemoryStore
	profiles  *profile.InMemoryStore
	retriever *stubRetriever
	streamer  *stubStreamer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		memory:    memory.NewInMemoryStore(20),
		profiles:  profile.NewInMemoryStore(),
		retriever: &stubRetriever{},
		streamer:  &stubStreamer{},
	}
	metrics := observability.NewMetrics(fmt.Sprintf("test_chat_%d", time.Now().UnixNano()))
	f.svc = NewService(f.memory, f.profiles, f.retriever, media.NewDetector(), f.streamer, metrics, "llama-test", "llava-test")
	return f
}

func collect(fragments *[]string) func(string) error {
	return func(f string) error {
		*fragments = append(*fragments, f)
		return nil
	}
}

func TestRespondTextTurnWithDefaults(t *testing.T) {
	f := newFixture(t)
	f.retriever.err = retrieval.ErrUnavailable
	ctx := context.Background()

	var fragments []string
	err := f.svc.Respond(ctx, Turn{ConversationID: "u1", Text: "hi"}, collect(&fragments))
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}
	if len(fragments) == 0 || strings.Join(fragments, "") == "" {
		t.Fatalf("no fragments streamed")
	}

	req := f.streamer.request()
	if req.Model != "llama-test" {
		t.Fatalf("model = %q, want chat model", req.Model)
	}
	if len(req.Messages) == 0 || req.Messages[0].Role != ollama.RoleSystem {
		t.Fatalf("request missing system prompt: %+v", req.Messages)
	}
	if !strings.Contains(req.Messages[0].Content, "companion") {
		t.Fatalf("system prompt missing role fallback:\n%s", req.Messages[0].Content)
	}

	window, err := f.memory.Read(ctx, "u1")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("window length = %d, want 2", len(window))
	}
	if window[0].Role != memory.RoleUser || window[0].Content != "hi" {
		t.Fatalf("window[0] = %+v, want recorded user turn", window[0])
	}
	if window[1].Role != memory.RoleAssistant || window[1].Content != "echo: hi" {
		t.Fatalf("window[1] = %+v, want recorded assistant reply", window[1])
	}
}

func TestRespondGroundsTextTurns(t *testing.T) {
	f := newFixture(t)
	f.retriever.passages = []string{"the sky is teal on Vibe World"}

	var fragments []string
	if err := f.svc.Respond(context.Background(), Turn{ConversationID: "u1", Text: "sky color?"}, collect(&fragments)); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	req := f.streamer.request()
	final := req.Messages[len(req.Messages)-1].Content
	ip := strings.Index(final, "the sky is teal on Vibe World")
	iq := strings.Index(final, "sky color?")
	if ip < 0 || iq < 0 || ip > iq {
		t.Fatalf("passages not ahead of question:\n%s", final)
	}
}

func TestRespondRetrievalFailureDegrades(t *testing.T) {
	f := newFixture(t)
	f.retriever.err = fmt.Errorf("%w: index down", retrieval.ErrUnavailable)

	var fragments []string
	err := f.svc.Respond(context.Background(), Turn{ConversationID: "u1", Text: "hi"}, collect(&fragments))
	if err != nil {
		t.Fatalf("Respond() error = %v, want degraded success", err)
	}
	if errors.Is(err, retrieval.ErrUnavailable) {
		t.Fatalf("ErrUnavailable leaked to caller")
	}
	if strings.Join(fragments, "") == "" {
		t.Fatalf("degraded turn produced no output")
	}
}

func TestRespondRejectsUnsupportedImage(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.Respond(ctx, Turn{ConversationID: "u1", Text: "what is this?", Image: webpBytes}, func(string) error {
		t.Error("fragment emitted for rejected image")
		return nil
	})
	var unsupported *media.UnsupportedImageFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("error = %v, want *UnsupportedImageFormatError", err)
	}
	if !strings.Contains(unsupported.MIME, "image/webp") {
		t.Fatalf("detected MIME = %q, want image/webp", unsupported.MIME)
	}
	if f.streamer.callCount() != 0 {
		t.Fatalf("model called %d times for rejected image, want 0", f.streamer.callCount())
	}
	window, _ := f.memory.Read(ctx, "u1")
	if len(window) != 0 {
		t.Fatalf("memory written for rejected image: %+v", window)
	}
}

func TestRespondRejectsUnreadableDocument(t *testing.T) {
	f := newFixture(t)

	err := f.svc.Respond(context.Background(), Turn{
		ConversationID: "u1",
		Text:           "summarize",
		Document:       []byte{0x00, 0x01, 0xFF, 0xFE, 0x00},
	}, func(string) error { return nil })
	var unreadable *media.UnreadableDocumentError
	if !errors.As(err, &unreadable) {
		t.Fatalf("error = %v, want *UnreadableDocumentError", err)
	}
	if f.streamer.callCount() != 0 {
		t.Fatalf("model called for unreadable document")
	}
}

func TestRespondValidatesTurnShape(t *testing.T) {
	f := newFixture(t)
	cases := []struct {
		name string
		turn Turn
	}{
		{name: "missing conversation id", turn: Turn{Text: "hi"}},
		{name: "missing text", turn: Turn{ConversationID: "u1"}},
		{name: "both attachments", turn: Turn{ConversationID: "u1", Text: "hi", Document: []byte("d"), Image: pngBytes}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.svc.Respond(context.Background(), tc.turn, func(string) error { return nil })
			var invalid *ValidationError
			if !errors.As(err, &invalid) {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
		})
	}
	if f.streamer.callCount() != 0 {
		t.Fatalf("model called for invalid turns")
	}
}

func TestRespondModelErrorSkipsRecording(t *testing.T) {
	f := newFixture(t)
	f.streamer.err = errors.New("connection refused")
	ctx := context.Background()

	err := f.svc.Respond(ctx, Turn{ConversationID: "u1", Text: "hi"}, func(string) error { return nil })
	var modelErr *ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("error = %v, want *ModelError", err)
	}
	window, _ := f.memory.Read(ctx, "u1")
	if len(window) != 0 {
		t.Fatalf("memory written after model failure: %+v", window)
	}
}

func TestRespondAbortedStreamSkipsRecording(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	abort := errors.New("client disconnected")
	err := f.svc.Respond(ctx, Turn{ConversationID: "u1", Text: "hi"}, func(string) error {
		return abort
	})
	if !errors.Is(err, abort) {
		t.Fatalf("Respond() error = %v, want abort error", err)
	}
	window, _ := f.memory.Read(ctx, "u1")
	if len(window) != 0 {
		t.Fatalf("memory written for aborted stream: %+v", window)
	}
}

func TestRespondImageTurnUsesVisionModelWithoutRetrieval(t *testing.T) {
	f := newFixture(t)

	var fragments []string
	err := f.svc.Respond(context.Background(), Turn{
		ConversationID: "u1",
		Text:           "what is in this photo?",
		Image:          pngBytes,
	}, collect(&fragments))
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	if f.retriever.callCount() != 0 {
		t.Fatalf("retrieval consulted for an image turn")
	}
	req := f.streamer.request()
	if req.Model != "llava-test" {
		t.Fatalf("model = %q, want vision model", req.Model)
	}
	final := req.Messages[len(req.Messages)-1]
	if len(final.Images) != 1 {
		t.Fatalf("image not attached to request")
	}
}

func TestRespondDocumentTurnRecordsCombinedContent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.svc.Respond(ctx, Turn{
		ConversationID: "u1",
		Text:           "summarize this: ",
		Document:       []byte("meeting notes about teal skies"),
	}, func(string) error { return nil })
	if err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	if f.retriever.callCount() != 0 {
		t.Fatalf("retrieval consulted for a document turn")
	}
	window, _ := f.memory.Read(ctx, "u1")
	if len(window) != 2 {
		t.Fatalf("window length = %d, want 2", len(window))
	}
	if window[0].Content != "summarize this: meeting notes about teal skies" {
		t.Fatalf("recorded user content = %q", window[0].Content)
	}
}

func TestRespondUsesStoredPersonaAndProfile(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	age := 29
	if _, err := f.profiles.UpsertUser(ctx, profile.UserProfile{UserID: "u1", FullName: "Alex", Age: &age, Gender: "male"}); err != nil {
		t.Fatalf("UpsertUser() error = %v", err)
	}
	if _, err := f.profiles.UpsertPersona(ctx, profile.Persona{UserID: "u1", BotName: "Nia", Role: "study buddy", Tone: "dry", Personality: "sharp"}); err != nil {
		t.Fatalf("UpsertPersona() error = %v", err)
	}

	if err := f.svc.Respond(ctx, Turn{ConversationID: "u1", Text: "hi"}, func(string) error { return nil }); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	system := f.streamer.request().Messages[0].Content
	for _, want := range []string{"Nia", "study buddy", "Alex", "29", "male"} {
		if !strings.Contains(system, want) {
			t.Fatalf("system prompt missing %q:\n%s", want, system)
		}
	}
}

func TestConcurrentTurnsSameConversationRecordEveryExchange(t *testing.T) {
	f := newFixture(t)
	f.retriever.err = retrieval.ErrUnavailable
	ctx := context.Background()

	const turns = 6
	var wg sync.WaitGroup
	for i := 0; i < turns; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			turn := Turn{ConversationID: "shared", Text: fmt.Sprintf("turn-%d", i)}
			if err := f.svc.Respond(ctx, turn, func(string) error { return nil }); err != nil {
				t.Errorf("Respond(%d) error = %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	window, err := f.memory.Read(ctx, "shared")
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(window) != 2*turns {
		t.Fatalf("window length = %d, want %d", len(window), 2*turns)
	}
	// Exchanges are recorded as adjacent user/assistant pairs.
	for i := 0; i < len(window); i += 2 {
		if window[i].Role != memory.RoleUser || window[i+1].Role != memory.RoleAssistant {
			t.Fatalf("pair %d interleaved: %q then %q", i/2, window[i].Role, window[i+1].Role)
		}
		if window[i+1].Content != "echo: "+window[i].Content {
			t.Fatalf("pair %d mismatched: %q vs %q", i/2, window[i].Content, window[i+1].Content)
		}
	}
}

func TestChatMemoryAndClearPassthrough(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.svc.Respond(ctx, Turn{ConversationID: "u1", Text: "hi"}, func(string) error { return nil }); err != nil {
		t.Fatalf("Respond() error = %v", err)
	}

	window, err := f.svc.ChatMemory(ctx, "u1")
	if err != nil {
		t.Fatalf("ChatMemory() error = %v", err)
	}
	if len(window) != 2 {
		t.Fatalf("ChatMemory() length = %d, want 2", len(window))
	}

	if err := f.svc.ClearMemory(ctx, "u1"); err != nil {
		t.Fatalf("ClearMemory() error = %v", err)
	}
	if err := f.svc.ClearMemory(ctx, "u1"); err != nil {
		t.Fatalf("second ClearMemory() error = %v", err)
	}
	window, err = f.svc.ChatMemory(ctx, "u1")
	if err != nil {
		t.Fatalf("ChatMemory() after clear error = %v", err)
	}
	if len(window) != 0 {
		t.Fatalf("window not empty after clear: %+v", window)
	}
}
