package handlers

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/calleq/calleq/pkg/core"
	"github.com/calleq/calleq/pkg/core/types"
	"github.com/calleq/calleq/pkg/gateway/config"
	"github.com/calleq/calleq/pkg/gateway/lifecycle"
	"github.com/calleq/calleq/pkg/gateway/metrics"
	"github.com/calleq/calleq/pkg/gateway/mw"
)

const maxStartBodyBytes = 4 << 10

// CallsHandler serves POST /v1/calls.
type CallsHandler struct {
	Config       config.Config
	Orchestrator *core.Orchestrator
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
}

type startCallRequest struct {
	WantAudio bool `json:"want_audio"`
}

type startCallResponse struct {
	SessionID        string `json:"session_id"`
	Greeting         string `json:"greeting"`
	GreetingAudioB64 string `json:"greeting_audio_b64,omitempty"`
}

func (h CallsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeCoreErrorJSON(w, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, &core.Error{Type: core.ErrOverloaded, Message: "gateway is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}

	// The body is optional; an empty POST starts a text-only call.
	var req startCallRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxStartBodyBytes))
	if err != nil {
		writeError(w, core.NewInvalidRequestError("failed to read request body"))
		return
	}
	if len(body) > 0 {
		if err := json.Unmarshal(body, &req); err != nil {
			writeError(w, core.NewInvalidRequestError("request body must be valid JSON"))
			return
		}
	}

	result, err := h.Orchestrator.StartSession(r.Context(), req.WantAudio)
	if err != nil {
		writeError(w, err)
		return
	}
	if h.Metrics != nil {
		h.Metrics.SessionsTotal.Inc()
		h.Metrics.SessionsActive.Set(float64(h.Orchestrator.Registry().Count()))
	}

	resp := startCallResponse{
		SessionID: result.SessionID,
		Greeting:  result.GreetingText,
	}
	if len(result.GreetingAudio) > 0 {
		resp.GreetingAudioB64 = base64.StdEncoding.EncodeToString(result.GreetingAudio)
	}
	writeJSON(w, http.StatusCreated, resp)
}

// CallItemHandler serves /v1/calls/{id}, /v1/calls/{id}/history and
// /v1/calls/{id}/live.
type CallItemHandler struct {
	Config       config.Config
	Orchestrator *core.Orchestrator
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
	Live         LiveHandler
}

func (h CallItemHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/calls/")
	if rest == "" || rest == r.URL.Path {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}
	sessionID, tail, _ := strings.Cut(rest, "/")
	if sessionID == "" || strings.Contains(tail, "/") {
		NotFoundHandler{}.ServeHTTP(w, r)
		return
	}

	switch tail {
	case "":
		if r.Method != http.MethodDelete {
			writeCoreErrorJSON(w, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
			return
		}
		h.endCall(w, r, sessionID)
	case "history":
		if r.Method != http.MethodGet {
			writeCoreErrorJSON(w, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
			return
		}
		h.history(w, r, sessionID)
	case "live":
		h.Live.ServeSession(w, r, sessionID)
	default:
		NotFoundHandler{}.ServeHTTP(w, r)
	}
}

type endCallResponse struct {
	SessionID string `json:"session_id"`
	Closed    bool   `json:"closed"`
}

func (h CallItemHandler) endCall(w http.ResponseWriter, r *http.Request, sessionID string) {
	s, err := h.Orchestrator.Registry().Get(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	h.Orchestrator.EndSession(sessionID)
	if h.Metrics != nil {
		h.Metrics.SessionsActive.Set(float64(h.Orchestrator.Registry().Count()))
		h.Metrics.SessionDuration.Observe(time.Since(s.CreatedAt).Seconds())
	}
	if h.Logger != nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		h.Logger.Info("session ended", "session_id", sessionID, "request_id", reqID)
	}
	writeJSON(w, http.StatusOK, endCallResponse{SessionID: sessionID, Closed: true})
}

type historyResponse struct {
	SessionID string       `json:"session_id"`
	Turns     []types.Turn `json:"turns"`
}

func (h CallItemHandler) history(w http.ResponseWriter, r *http.Request, sessionID string) {
	turns, err := h.Orchestrator.History(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if turns == nil {
		turns = []types.Turn{}
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Turns: turns})
}
