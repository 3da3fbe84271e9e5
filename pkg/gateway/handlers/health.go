package handlers

import (
	"net/http"

	"github.com/calleq/calleq/pkg/gateway/config"
)

type HealthHandler struct{}

func (h HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok\n"))
}

type ReadyHandler struct {
	Config config.Config
}

func (h ReadyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	type readyResp struct {
		OK             bool     `json:"ok"`
		AuthMode       string   `json:"auth_mode"`
		HistoryBackend string   `json:"history_backend"`
		AudioEnabled   bool     `json:"audio_enabled"`
		Issues         []string `json:"issues,omitempty"`
	}

	issues := make([]string, 0, 4)

	switch h.Config.AuthMode {
	case config.AuthModeRequired, config.AuthModeOptional, config.AuthModeDisabled:
	default:
		issues = append(issues, "invalid auth_mode")
	}
	if h.Config.AuthMode == config.AuthModeRequired && len(h.Config.APIKeys) == 0 {
		issues = append(issues, "auth_mode=required but no api keys configured")
	}

	switch h.Config.HistoryBackend {
	case config.HistoryBackendMemory:
	case config.HistoryBackendRedis:
		if h.Config.RedisAddr == "" {
			issues = append(issues, "history_backend=redis but no redis address configured")
		}
	default:
		issues = append(issues, "invalid history_backend")
	}

	if h.Config.GeminiAPIKey == "" {
		issues = append(issues, "gemini api key is not configured")
	}
	if h.Config.HistoryWindow <= 0 {
		issues = append(issues, "history window must be > 0")
	}
	if h.Config.RetrievalLimit <= 0 {
		issues = append(issues, "retrieval limit must be > 0")
	}
	if h.Config.MaxTurnBytes <= 0 {
		issues = append(issues, "max turn bytes must be > 0")
	}
	if h.Config.ClassifyTimeout <= 0 || h.Config.RetrieveTimeout <= 0 ||
		h.Config.GenerateTimeout <= 0 || h.Config.SynthesizeTimeout <= 0 {
		issues = append(issues, "stage timeouts must be > 0")
	}
	if h.Config.WSPingInterval <= 0 || h.Config.WSWriteTimeout <= 0 {
		issues = append(issues, "websocket intervals must be > 0")
	}
	if h.Config.ReadHeaderTimeout <= 0 || h.Config.ReadTimeout <= 0 {
		issues = append(issues, "timeouts must be > 0")
	}

	audioEnabled := h.Config.ElevenLabsAPIKey != "" && h.Config.ElevenLabsVoiceID != ""

	ok := len(issues) == 0
	status := http.StatusOK
	if !ok {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, readyResp{
		OK:             ok,
		AuthMode:       string(h.Config.AuthMode),
		HistoryBackend: string(h.Config.HistoryBackend),
		AudioEnabled:   audioEnabled,
		Issues:         issues,
	})
}
