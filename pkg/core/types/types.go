// Package types defines the shared data model for call sessions and turns.
package types

import "time"

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one utterance in a session's conversation history.
// Turns are immutable once appended.
type Turn struct {
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Ordinal   int       `json:"ordinal"`
	Timestamp time.Time `json:"timestamp"`
}

// EmotionSignal is one (label, confidence) pair from the emotion classifier.
// A turn carries at most three, ordered by descending confidence.
type EmotionSignal struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// NeutralEmotion is the fallback signal substituted when classification fails.
func NeutralEmotion() []EmotionSignal {
	return []EmotionSignal{{Label: "neutral", Score: 1.0}}
}

// Passage is one retrieved context snippet with its relevance score.
// Passages keep the retriever's own ordering; the pipeline never re-sorts.
type Passage struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Stage names the pipeline stages that can degrade independently.
type Stage string

const (
	StageEmotion   Stage = "emotion"
	StageRetrieval Stage = "retrieval"
	StageResponse  Stage = "response"
	StageSynthesis Stage = "synthesis"
)

// TurnResult is the pipeline's output for one user turn.
type TurnResult struct {
	Text     string          `json:"text"`
	Audio    []byte          `json:"-"`
	HasAudio bool            `json:"has_audio"`
	Emotions []EmotionSignal `json:"emotions"`
	Context  []Passage       `json:"context"`

	// Degraded lists the stages that fell back to their substitute output,
	// in pipeline order. Empty means a fully healthy turn.
	Degraded []Stage `json:"degraded"`
}

// IsDegraded reports whether the given stage fell back during this turn.
func (r TurnResult) IsDegraded(stage Stage) bool {
	for _, s := range r.Degraded {
		if s == stage {
			return true
		}
	}
	return false
}
