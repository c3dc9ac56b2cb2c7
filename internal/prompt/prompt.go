// Package prompt composes model requests from persona, profile, memory and
// retrieval context. Fallback rules live here, not at call sites.
package prompt

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/antoniostano/vibemate/internal/memory"
	"github.com/antoniostano/vibemate/internal/ollama"
	"github.com/antoniostano/vibemate/internal/profile"
)

const systemTemplate = `You are %s — my %s. Your tone is %s and your personality is %s.
You're chatting with %s, a %s-year-old %s.
Be helpful, warm, and responsive in our conversations.
Speak in a witty, humorous way without being offensive. Keep things casual but smart.
`

// BuildSystemPrompt renders the persona instruction. Age, gender and role get
// defaults when absent; bot name, tone and personality are inserted verbatim
// even when empty. The asymmetry is deliberate and load-bearing: persona
// authoring treats those three as always-present free text.
func BuildSystemPrompt(persona profile.Persona, user profile.UserProfile) string {
	age := "unknown age"
	if user.Age != nil {
		age = strconv.Itoa(*user.Age)
	}
	gender := user.Gender
	if gender == "" {
		gender = "user"
	}
	role := persona.Role
	if role == "" {
		role = "companion"
	}

	return fmt.Sprintf(systemTemplate,
		persona.BotName,
		role,
		persona.Tone,
		persona.Personality,
		user.FullName,
		age,
		gender,
	)
}

// AssembleTurn builds a grounded text request: system instruction, the memory
// window as prior turns, then the current question with retrieved passages
// ahead of it.
func AssembleTurn(systemPrompt string, history []memory.Message, passages []string, text string) []ollama.Message {
	msgs := baseMessages(systemPrompt, history)
	return append(msgs, ollama.Message{
		Role:    ollama.RoleUser,
		Content: groundedContent(passages, text),
	})
}

// AssembleDocumentTurn appends the extracted document text to the user's
// question. Document turns are never grounded against the passage index.
func AssembleDocumentTurn(systemPrompt string, history []memory.Message, text, extracted string) []ollama.Message {
	msgs := baseMessages(systemPrompt, history)
	return append(msgs, ollama.Message{
		Role:    ollama.RoleUser,
		Content: text + extracted,
	})
}

// AssembleImageTurn attaches the validated image to the user instruction.
// Image turns answer from vision, persona and memory only; the passage index
// is intentionally not consulted.
func AssembleImageTurn(systemPrompt string, history []memory.Message, text string, image []byte) []ollama.Message {
	msgs := baseMessages(systemPrompt, history)
	return append(msgs, ollama.Message{
		Role:    ollama.RoleUser,
		Content: text,
		Images:  []string{base64.StdEncoding.EncodeToString(image)},
	})
}

func baseMessages(systemPrompt string, history []memory.Message) []ollama.Message {
	msgs := make([]ollama.Message, 0, len(history)+2)
	if systemPrompt != "" {
		msgs = append(msgs, ollama.Message{Role: ollama.RoleSystem, Content: systemPrompt})
	}
	for _, m := range history {
		role := ollama.RoleUser
		if m.Role == memory.RoleAssistant {
			role = ollama.RoleAssistant
		}
		msgs = append(msgs, ollama.Message{Role: role, Content: m.Content})
	}
	return msgs
}

func groundedContent(passages []string, text string) string {
	if len(passages) == 0 {
		return text
	}
	var sb strings.Builder
	sb.WriteString("Use the following passages as background when they are relevant.\n\n")
	for _, p := range passages {
		sb.WriteString(p)
		sb.WriteString("\n\n")
	}
	sb.WriteString("Question: ")
	sb.WriteString(text)
	return sb.String()
}
