package handlers

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/calleq/calleq/pkg/core"
	"github.com/calleq/calleq/pkg/gateway/config"
	"github.com/calleq/calleq/pkg/gateway/lifecycle"
	"github.com/calleq/calleq/pkg/gateway/live/session"
	"github.com/calleq/calleq/pkg/gateway/metrics"
	"github.com/calleq/calleq/pkg/gateway/mw"
)

// LiveHandler upgrades GET /v1/calls/{id}/live to a websocket and binds
// the connection to an existing call session.
type LiveHandler struct {
	Config       config.Config
	Orchestrator *core.Orchestrator
	Metrics      *metrics.Metrics
	Logger       *slog.Logger
	Lifecycle    *lifecycle.Lifecycle
}

func (h LiveHandler) ServeSession(w http.ResponseWriter, r *http.Request, sessionID string) {
	if r.Method != http.MethodGet {
		writeCoreErrorJSON(w, &core.Error{Type: core.ErrInvalidRequest, Message: "method not allowed", Code: "method_not_allowed"}, http.StatusMethodNotAllowed)
		return
	}
	if h.Lifecycle != nil && h.Lifecycle.IsDraining() {
		writeCoreErrorJSON(w, &core.Error{Type: core.ErrOverloaded, Message: "gateway is draining", Code: "draining"}, http.StatusServiceUnavailable)
		return
	}
	if !h.originAllowed(r) {
		writeCoreErrorJSON(w, &core.Error{Type: core.ErrPermission, Message: "origin is not allowed", Param: "Origin"}, http.StatusForbidden)
		return
	}

	// Resolve the session before the upgrade so a bad id still gets a
	// regular HTTP error.
	s, err := h.Orchestrator.Registry().Get(sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	live, err := session.New(session.Dependencies{
		Conn:         conn,
		Session:      s,
		Orchestrator: h.Orchestrator,
		Metrics:      h.Metrics,
		Logger:       h.Logger,
		Config: session.Config{
			PingInterval:    h.Config.WSPingInterval,
			WriteTimeout:    h.Config.WSWriteTimeout,
			MaxMessageBytes: h.Config.WSMaxMessageBytes,
			MaxTurnBytes:    h.Config.MaxTurnBytes,
		},
	})
	if err != nil {
		return
	}

	runErr := live.Run(r.Context())
	if h.Metrics != nil {
		h.Metrics.SessionsActive.Set(float64(h.Orchestrator.Registry().Count()))
	}
	if runErr != nil && h.Logger != nil {
		reqID, _ := mw.RequestIDFrom(r.Context())
		h.Logger.Warn("live session ended with error", "session_id", sessionID, "request_id", reqID, "error", runErr)
	}
}

func (h LiveHandler) originAllowed(r *http.Request) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	if len(h.Config.CORSAllowedOrigins) == 0 {
		return false
	}
	_, ok := h.Config.CORSAllowedOrigins[origin]
	return ok
}
