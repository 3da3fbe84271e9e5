package core

import (
	"context"
	"log/slog"
	"strings"

	"github.com/calleq/calleq/pkg/core/types"
)

// GreetingText is the fixed greeting returned when a call starts.
const GreetingText = "Hello, my name is AI Assistant from Company X. How can I help you?"

// DefaultHistoryWindow is how many recent turns are handed to the responder.
const DefaultHistoryWindow = 6

// Orchestrator is the public surface of the call core. It owns the
// start-session / submit-turn / end-session operations and is the only
// component reachable from the transport layer.
type Orchestrator struct {
	registry *Registry
	pipeline *Pipeline
	window   int
	logger   *slog.Logger
}

// OrchestratorDeps wires an Orchestrator.
type OrchestratorDeps struct {
	Registry      *Registry
	Pipeline      *Pipeline
	HistoryWindow int
	Logger        *slog.Logger
}

// NewOrchestrator creates the session orchestrator.
func NewOrchestrator(deps OrchestratorDeps) *Orchestrator {
	window := deps.HistoryWindow
	if window <= 0 {
		window = DefaultHistoryWindow
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		registry: deps.Registry,
		pipeline: deps.Pipeline,
		window:   window,
		logger:   logger,
	}
}

// Registry exposes the session registry for transport binding and shutdown.
func (o *Orchestrator) Registry() *Registry {
	return o.registry
}

// StartResult is the outcome of starting a call.
type StartResult struct {
	SessionID     string
	GreetingText  string
	GreetingAudio []byte
}

// StartSession creates a session and returns the fixed greeting, with its
// synthesis when audio is requested. No pipeline stages other than
// synthesis run here.
func (o *Orchestrator) StartSession(ctx context.Context, wantAudio bool) (StartResult, error) {
	s, err := o.registry.Create(ctx)
	if err != nil {
		return StartResult{}, err
	}

	result := StartResult{
		SessionID:    s.ID,
		GreetingText: GreetingText,
	}
	if wantAudio {
		result.GreetingAudio = o.pipeline.Speak(ctx, GreetingText)
	}

	o.logger.Info("session started", "session_id", s.ID)
	return result, nil
}

// SubmitTurn processes one user utterance. Turns within a session run
// strictly sequentially; the user turn and the assistant turn are both
// appended to history even when stages degrade, so the record reflects
// exactly what was said and what was returned.
func (o *Orchestrator) SubmitTurn(ctx context.Context, sessionID, text string, wantAudio bool) (types.TurnResult, error) {
	if strings.TrimSpace(text) == "" {
		return types.TurnResult{}, NewInvalidRequestError("turn text must not be empty")
	}

	s, err := o.registry.Get(sessionID)
	if err != nil {
		return types.TurnResult{}, err
	}

	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	// Re-check under the turn lock: the session may have been closed while
	// a previous turn was in flight.
	if s.isClosed() {
		return types.TurnResult{}, NewSessionNotFoundError(sessionID)
	}

	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.mu.Lock()
	s.cancelTurn = cancel
	s.lastActive = o.registry.now()
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.cancelTurn = nil
		s.mu.Unlock()
	}()

	history := o.registry.History()
	if _, err := history.Append(turnCtx, sessionID, types.RoleUser, text); err != nil {
		return types.TurnResult{}, err
	}

	window, err := history.Recent(turnCtx, sessionID, o.window)
	if err != nil {
		return types.TurnResult{}, err
	}

	result, err := o.pipeline.Run(turnCtx, TurnInput{
		SessionID: sessionID,
		Text:      text,
		History:   window,
		WantAudio: wantAudio,
	})
	if err != nil {
		// Canceled mid-turn: the session is being torn down and partial
		// results are discarded, not delivered.
		return types.TurnResult{}, err
	}

	if _, err := history.Append(turnCtx, sessionID, types.RoleAssistant, result.Text); err != nil {
		return types.TurnResult{}, err
	}

	if len(result.Degraded) > 0 {
		o.logger.Info("turn completed degraded", "session_id", sessionID, "degraded", result.Degraded)
	}
	return result, nil
}

// History returns the full conversation record for an active session.
func (o *Orchestrator) History(ctx context.Context, sessionID string) ([]types.Turn, error) {
	if _, err := o.registry.Get(sessionID); err != nil {
		return nil, err
	}
	return o.registry.History().All(ctx, sessionID)
}

// EndSession closes a session. Idempotent.
func (o *Orchestrator) EndSession(sessionID string) {
	o.registry.Close(sessionID)
}
