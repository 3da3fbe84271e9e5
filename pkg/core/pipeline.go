package core

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/calleq/calleq/pkg/core/types"
)

// ApologyText is the fixed response returned when the responder itself
// fails. Any fabricated fallback answer would mislead the caller, so the
// pipeline never synthesizes one.
const ApologyText = "I apologize, but I'm having trouble generating a response right now. Please try again."

// PipelineConfig bounds each collaborator call and sizes the turn inputs.
type PipelineConfig struct {
	RetrievalLimit    int
	ClassifyTimeout   time.Duration
	RetrieveTimeout   time.Duration
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration
}

func (c PipelineConfig) withDefaults() PipelineConfig {
	if c.RetrievalLimit <= 0 {
		c.RetrievalLimit = 3
	}
	if c.ClassifyTimeout <= 0 {
		c.ClassifyTimeout = 5 * time.Second
	}
	if c.RetrieveTimeout <= 0 {
		c.RetrieveTimeout = 5 * time.Second
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 30 * time.Second
	}
	if c.SynthesizeTimeout <= 0 {
		c.SynthesizeTimeout = 20 * time.Second
	}
	return c
}

// Pipeline runs the per-turn stages in fixed order:
// emotion -> retrieval -> generation -> optional synthesis.
// Emotion and retrieval have no data dependency and are dispatched
// concurrently; generation waits for both. Every stage has an explicit
// fallback so a collaborator failure degrades the turn instead of
// aborting it; the failed stage is recorded on the TurnResult.
type Pipeline struct {
	classifier Classifier
	retriever  Retriever
	responder  Responder
	speaker    Speaker
	cfg        PipelineConfig
	logger     *slog.Logger
}

// PipelineDeps wires the pipeline's collaborators.
type PipelineDeps struct {
	Classifier Classifier
	Retriever  Retriever
	Responder  Responder
	Speaker    Speaker
	Config     PipelineConfig
	Logger     *slog.Logger
}

// NewPipeline creates a turn pipeline.
func NewPipeline(deps PipelineDeps) *Pipeline {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		classifier: deps.Classifier,
		retriever:  deps.Retriever,
		responder:  deps.Responder,
		speaker:    deps.Speaker,
		cfg:        deps.Config.withDefaults(),
		logger:     logger,
	}
}

// TurnInput is one user utterance plus the session context it runs with.
type TurnInput struct {
	SessionID string
	Text      string

	// History is the already-windowed recent history handed to the
	// responder.
	History []types.Turn

	// WantAudio requests speech synthesis of the reply.
	WantAudio bool
}

// stageOutcome is the result of one attempt-with-fallback stage.
type stageOutcome[T any] struct {
	value    T
	degraded bool
}

// attempt runs one collaborator call under its timeout and substitutes
// fallback on any failure. The returned error is non-nil only when the
// parent context was canceled, which aborts the whole turn.
func attempt[T any](ctx context.Context, timeout time.Duration, fallback T, fn func(context.Context) (T, error)) (stageOutcome[T], error) {
	if err := ctx.Err(); err != nil {
		return stageOutcome[T]{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	value, err := fn(callCtx)
	if err == nil {
		return stageOutcome[T]{value: value}, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		// Parent cancellation, not a collaborator failure: the turn is
		// being torn down and partial results must not be delivered.
		return stageOutcome[T]{}, ctxErr
	}
	return stageOutcome[T]{value: fallback, degraded: true}, nil
}

// Run processes one turn. It returns an error only when ctx is canceled;
// every collaborator failure resolves to the stage's fallback and is
// recorded on the result's Degraded set.
func (p *Pipeline) Run(ctx context.Context, in TurnInput) (types.TurnResult, error) {
	var (
		emotion   stageOutcome[[]types.EmotionSignal]
		passages  stageOutcome[[]types.Passage]
		emoErr    error
		searchErr error
	)

	// Stages 1 and 2 are independent; dispatch both before generation.
	done := make(chan struct{})
	go func() {
		defer close(done)
		passages, searchErr = attempt(ctx, p.cfg.RetrieveTimeout, []types.Passage{}, func(ctx context.Context) ([]types.Passage, error) {
			found, err := p.retriever.Search(ctx, in.Text, p.cfg.RetrievalLimit)
			if err != nil {
				return nil, NewRetrieverError(err)
			}
			return found, nil
		})
	}()

	emotion, emoErr = attempt(ctx, p.cfg.ClassifyTimeout, types.NeutralEmotion(), func(ctx context.Context) ([]types.EmotionSignal, error) {
		signals, err := p.classifier.Classify(ctx, in.Text)
		if err != nil {
			return nil, NewClassifierError(err)
		}
		if len(signals) > 3 {
			signals = signals[:3]
		}
		return signals, nil
	})
	<-done

	if emoErr != nil {
		return types.TurnResult{}, emoErr
	}
	if searchErr != nil {
		return types.TurnResult{}, searchErr
	}

	result := types.TurnResult{
		Emotions: emotion.value,
		Context:  passages.value,
	}
	if emotion.degraded {
		result.Degraded = append(result.Degraded, types.StageEmotion)
		p.logger.Warn("emotion stage degraded", "session_id", in.SessionID)
	}
	if passages.degraded {
		result.Degraded = append(result.Degraded, types.StageRetrieval)
		p.logger.Warn("retrieval stage degraded", "session_id", in.SessionID)
	}

	// Stage 3: generation is the only load-bearing stage. Its fallback is
	// the fixed apology, never a fabricated answer.
	response, genErr := attempt(ctx, p.cfg.GenerateTimeout, ApologyText, func(ctx context.Context) (string, error) {
		text, err := p.responder.Generate(ctx, GenerateRequest{
			Utterance: in.Text,
			History:   in.History,
			Emotions:  emotion.value,
			Context:   passages.value,
		})
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return "", NewGenerationTimeoutError()
			}
			return "", NewGenerationError(err)
		}
		return text, nil
	})
	if genErr != nil {
		return types.TurnResult{}, genErr
	}
	result.Text = response.value
	if response.degraded {
		result.Degraded = append(result.Degraded, types.StageResponse)
		p.logger.Warn("response stage degraded", "session_id", in.SessionID)
	}

	// Stage 4: synthesis is optional and text-only delivery is an
	// acceptable degraded outcome. The final response text (apology
	// included) is what gets spoken.
	if in.WantAudio && p.speaker != nil {
		audio, synErr := attempt(ctx, p.cfg.SynthesizeTimeout, nil, func(ctx context.Context) ([]byte, error) {
			data, err := p.speaker.Synthesize(ctx, result.Text)
			if err != nil {
				return nil, NewSynthesisError(err)
			}
			return data, nil
		})
		if synErr != nil {
			return types.TurnResult{}, synErr
		}
		if audio.degraded || len(audio.value) == 0 {
			result.Degraded = append(result.Degraded, types.StageSynthesis)
			p.logger.Warn("synthesis stage degraded", "session_id", in.SessionID)
		} else {
			result.Audio = audio.value
			result.HasAudio = true
		}
	}

	return result, nil
}

// Speak synthesizes standalone text outside a turn (the session greeting).
// Failures resolve to no audio, mirroring the synthesis stage fallback.
func (p *Pipeline) Speak(ctx context.Context, text string) []byte {
	if p.speaker == nil {
		return nil
	}
	audio, err := attempt(ctx, p.cfg.SynthesizeTimeout, nil, func(ctx context.Context) ([]byte, error) {
		return p.speaker.Synthesize(ctx, text)
	})
	if err != nil || audio.degraded {
		return nil
	}
	return audio.value
}
