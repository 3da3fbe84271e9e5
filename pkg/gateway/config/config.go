package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type AuthMode string

const (
	AuthModeRequired AuthMode = "required"
	AuthModeOptional AuthMode = "optional"
	AuthModeDisabled AuthMode = "disabled"
)

type HistoryBackend string

const (
	HistoryBackendMemory HistoryBackend = "memory"
	HistoryBackendRedis  HistoryBackend = "redis"
)

type Config struct {
	Addr string

	AuthMode AuthMode
	APIKeys  map[string]struct{}

	// CORS
	CORSAllowedOrigins map[string]struct{} // empty => disabled

	// Conversation shape.
	HistoryWindow  int
	RetrievalLimit int
	MaxTurnBytes   int64

	// Per-stage collaborator budgets.
	ClassifyTimeout   time.Duration
	RetrieveTimeout   time.Duration
	GenerateTimeout   time.Duration
	SynthesizeTimeout time.Duration

	// Collaborator endpoints and credentials.
	EmotionEndpoint   string
	EmotionAPIKey     string
	EmbeddingEndpoint string
	EmbeddingAPIKey   string
	QdrantURL         string
	QdrantAPIKey      string
	QdrantCollection  string
	GeminiAPIKey      string
	GeminiModel       string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string

	// History persistence.
	HistoryBackend HistoryBackend
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	HistoryTTL     time.Duration

	// Live websocket mode.
	WSPingInterval     time.Duration
	WSWriteTimeout     time.Duration
	WSMaxMessageBytes  int64
	SessionIdleTTL     time.Duration
	SessionSweepPeriod time.Duration

	// Operational defaults.
	ReadHeaderTimeout   time.Duration
	ReadTimeout         time.Duration
	ShutdownGracePeriod time.Duration
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("CALLEQ_ADDR", ":8080"),
		AuthMode:            AuthMode(envOr("CALLEQ_AUTH_MODE", string(AuthModeDisabled))),
		APIKeys:             make(map[string]struct{}),
		CORSAllowedOrigins:  make(map[string]struct{}),
		HistoryWindow:       envIntOr("CALLEQ_HISTORY_WINDOW", 6),
		RetrievalLimit:      envIntOr("CALLEQ_RETRIEVAL_LIMIT", 3),
		MaxTurnBytes:        envInt64Or("CALLEQ_MAX_TURN_BYTES", 16<<10), // 16 KiB
		ClassifyTimeout:     envDurationOr("CALLEQ_CLASSIFY_TIMEOUT", 5*time.Second),
		RetrieveTimeout:     envDurationOr("CALLEQ_RETRIEVE_TIMEOUT", 5*time.Second),
		GenerateTimeout:     envDurationOr("CALLEQ_GENERATE_TIMEOUT", 30*time.Second),
		SynthesizeTimeout:   envDurationOr("CALLEQ_SYNTHESIZE_TIMEOUT", 20*time.Second),
		EmotionEndpoint:     envOr("CALLEQ_EMOTION_ENDPOINT", ""),
		EmotionAPIKey:       envOr("CALLEQ_EMOTION_API_KEY", ""),
		EmbeddingEndpoint:   envOr("CALLEQ_EMBEDDING_ENDPOINT", ""),
		EmbeddingAPIKey:     envOr("CALLEQ_EMBEDDING_API_KEY", ""),
		QdrantURL:           envOr("CALLEQ_QDRANT_URL", ""),
		QdrantAPIKey:        envOr("CALLEQ_QDRANT_API_KEY", ""),
		QdrantCollection:    envOr("CALLEQ_QDRANT_COLLECTION", "conversations"),
		GeminiAPIKey:        envOr("CALLEQ_GEMINI_API_KEY", envOr("GOOGLE_API_KEY", "")),
		GeminiModel:         envOr("CALLEQ_GEMINI_MODEL", "gemini-2.0-flash"),
		ElevenLabsAPIKey:    envOr("CALLEQ_ELEVENLABS_API_KEY", ""),
		ElevenLabsVoiceID:   envOr("CALLEQ_ELEVENLABS_VOICE_ID", ""),
		HistoryBackend:      HistoryBackend(envOr("CALLEQ_HISTORY_BACKEND", string(HistoryBackendMemory))),
		RedisAddr:           envOr("CALLEQ_REDIS_ADDR", "localhost:6379"),
		RedisPassword:       envOr("CALLEQ_REDIS_PASSWORD", ""),
		RedisDB:             envIntOr("CALLEQ_REDIS_DB", 0),
		HistoryTTL:          envDurationOr("CALLEQ_HISTORY_TTL", 24*time.Hour),
		WSPingInterval:      envDurationOr("CALLEQ_WS_PING_INTERVAL", 20*time.Second),
		WSWriteTimeout:      envDurationOr("CALLEQ_WS_WRITE_TIMEOUT", 5*time.Second),
		WSMaxMessageBytes:   envInt64Or("CALLEQ_WS_MAX_MESSAGE_BYTES", 64*1024),
		SessionIdleTTL:      envDurationOr("CALLEQ_SESSION_IDLE_TTL", 30*time.Minute),
		SessionSweepPeriod:  envDurationOr("CALLEQ_SESSION_SWEEP_PERIOD", time.Minute),
		ReadHeaderTimeout:   envDurationOr("CALLEQ_READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:         envDurationOr("CALLEQ_READ_TIMEOUT", 30*time.Second),
		ShutdownGracePeriod: envDurationOr("CALLEQ_SHUTDOWN_GRACE_PERIOD", 30*time.Second),
	}

	switch cfg.AuthMode {
	case AuthModeRequired, AuthModeOptional, AuthModeDisabled:
	default:
		return Config{}, fmt.Errorf("CALLEQ_AUTH_MODE must be one of required|optional|disabled")
	}

	for _, key := range splitCSV(os.Getenv("CALLEQ_API_KEYS")) {
		cfg.APIKeys[key] = struct{}{}
	}
	for _, origin := range splitCSV(os.Getenv("CALLEQ_CORS_ORIGINS")) {
		cfg.CORSAllowedOrigins[origin] = struct{}{}
	}

	if cfg.AuthMode == AuthModeRequired && len(cfg.APIKeys) == 0 {
		return Config{}, fmt.Errorf("CALLEQ_API_KEYS must be set when CALLEQ_AUTH_MODE=required")
	}

	if cfg.HistoryWindow <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_HISTORY_WINDOW must be > 0")
	}
	if cfg.RetrievalLimit <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_RETRIEVAL_LIMIT must be > 0")
	}
	if cfg.MaxTurnBytes <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_MAX_TURN_BYTES must be > 0")
	}
	if cfg.ClassifyTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_CLASSIFY_TIMEOUT must be > 0")
	}
	if cfg.RetrieveTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_RETRIEVE_TIMEOUT must be > 0")
	}
	if cfg.GenerateTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_GENERATE_TIMEOUT must be > 0")
	}
	if cfg.SynthesizeTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_SYNTHESIZE_TIMEOUT must be > 0")
	}

	switch cfg.HistoryBackend {
	case HistoryBackendMemory, HistoryBackendRedis:
	default:
		return Config{}, fmt.Errorf("CALLEQ_HISTORY_BACKEND must be one of memory|redis")
	}
	if cfg.HistoryBackend == HistoryBackendRedis && strings.TrimSpace(cfg.RedisAddr) == "" {
		return Config{}, fmt.Errorf("CALLEQ_REDIS_ADDR must be set when CALLEQ_HISTORY_BACKEND=redis")
	}
	if cfg.HistoryTTL <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_HISTORY_TTL must be > 0")
	}

	if cfg.WSPingInterval <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_WS_PING_INTERVAL must be > 0")
	}
	if cfg.WSWriteTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_WS_WRITE_TIMEOUT must be > 0")
	}
	if cfg.WSMaxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_WS_MAX_MESSAGE_BYTES must be > 0")
	}
	if cfg.SessionIdleTTL < 0 {
		return Config{}, fmt.Errorf("CALLEQ_SESSION_IDLE_TTL must be >= 0")
	}
	if cfg.SessionSweepPeriod <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_SESSION_SWEEP_PERIOD must be > 0")
	}

	if cfg.ReadHeaderTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ReadTimeout <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_READ_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return Config{}, fmt.Errorf("CALLEQ_SHUTDOWN_GRACE_PERIOD must be > 0")
	}

	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return Config{}, fmt.Errorf("CALLEQ_GEMINI_API_KEY must be set")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envInt64Or(key string, def int64) int64 {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}

func splitCSV(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
