// Package core implements the call session orchestration pipeline: session
// lifecycle, per-turn stage sequencing with independent failure isolation,
// and bounded conversation history. The external capabilities it depends on
// (classification, retrieval, generation, synthesis) are consumed through
// the narrow interfaces in this file and implemented under pkg/core/....
package core

import (
	"context"

	"github.com/calleq/calleq/pkg/core/types"
)

// Classifier infers the user's emotional state from one utterance.
type Classifier interface {
	// Classify returns up to three (label, score) pairs ordered by
	// descending confidence.
	Classify(ctx context.Context, text string) ([]types.EmotionSignal, error)
}

// Retriever finds background passages relevant to one utterance.
type Retriever interface {
	// Search returns at most limit passages ordered by descending
	// relevance. Tie order is the store's own insertion order.
	Search(ctx context.Context, text string, limit int) ([]types.Passage, error)
}

// GenerateRequest carries everything the responder needs for one reply.
type GenerateRequest struct {
	Utterance string
	History   []types.Turn
	Emotions  []types.EmotionSignal
	Context   []types.Passage
}

// Responder produces the assistant's reply text.
type Responder interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// Speaker synthesizes speech for the assistant's reply.
type Speaker interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
