package responder

import (
	"strings"
	"testing"

	"github.com/calleq/calleq/pkg/core"
	"github.com/calleq/calleq/pkg/core/types"
)

func TestBuildPrompt_IncludesAllSections(t *testing.T) {
	prompt := BuildPrompt(core.GenerateRequest{
		Utterance: "Where is my order?",
		History: []types.Turn{
			{Role: types.RoleUser, Text: "hi"},
			{Role: types.RoleAssistant, Text: "hello"},
		},
		Emotions: []types.EmotionSignal{
			{Label: "anger", Score: 0.72},
			{Label: "neutral", Score: 0.2},
		},
		Context: []types.Passage{
			{Text: "Orders ship within 2 days.", Score: 0.9},
			{Text: "Tracking numbers are emailed.", Score: 0.7},
		},
	})

	for _, want := range []string{
		"helpful call center agent",
		"anger (0.72), neutral (0.20)",
		"Orders ship within 2 days.\nTracking numbers are emailed.",
		"user: hi\nassistant: hello",
		"User's message: Where is my order?",
		"2. Do not mention emotions in your response",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPrompt_EmptyContextAndHistory(t *testing.T) {
	prompt := BuildPrompt(core.GenerateRequest{
		Utterance: "hello",
		Emotions:  types.NeutralEmotion(),
	})

	if !strings.Contains(prompt, "neutral (1.00)") {
		t.Fatalf("prompt missing neutral fallback:\n%s", prompt)
	}
	if !strings.Contains(prompt, "User's message: hello") {
		t.Fatalf("prompt missing utterance:\n%s", prompt)
	}
}
