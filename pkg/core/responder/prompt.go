// Package responder implements the Responder collaborator: prompt
// composition plus the Gemini generation backend.
package responder

import (
	"fmt"
	"strings"

	"github.com/calleq/calleq/pkg/core"
)

// BuildPrompt composes a single generation request from the turn's inputs:
// utterance, emotion signal, retrieved passages, and the windowed history.
func BuildPrompt(req core.GenerateRequest) string {
	emotions := make([]string, 0, len(req.Emotions))
	for _, e := range req.Emotions {
		emotions = append(emotions, fmt.Sprintf("%s (%.2f)", e.Label, e.Score))
	}

	passages := make([]string, 0, len(req.Context))
	for _, p := range req.Context {
		passages = append(passages, p.Text)
	}

	history := make([]string, 0, len(req.History))
	for _, turn := range req.History {
		history = append(history, fmt.Sprintf("%s: %s", turn.Role, turn.Text))
	}

	var b strings.Builder
	b.WriteString("You are a helpful call center agent. Keep your responses brief and direct - maximum 2 sentences.\n\n")
	b.WriteString("User's emotional states (with confidence scores): ")
	b.WriteString(strings.Join(emotions, ", "))
	b.WriteString("\n\nRelevant context:\n")
	b.WriteString(strings.Join(passages, "\n"))
	b.WriteString("\n\nConversation history:\n")
	b.WriteString(strings.Join(history, "\n"))
	b.WriteString("\n\nUser's message: ")
	b.WriteString(req.Utterance)
	b.WriteString("\n\nInstructions:\n")
	b.WriteString("1. Keep your response brief and direct - maximum 2 sentences\n")
	b.WriteString("2. Do not mention emotions in your response\n")
	b.WriteString("3. Focus on answering the user's question directly\n")
	b.WriteString("4. If the user asks what you can help with, provide a brief list of 2-3 main capabilities")
	return b.String()
}
