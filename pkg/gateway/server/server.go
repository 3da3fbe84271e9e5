// Package server assembles the call gateway: collaborators, session core,
// HTTP routes and the middleware chain.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/calleq/calleq/pkg/core"
	"github.com/calleq/calleq/pkg/core/emotion"
	"github.com/calleq/calleq/pkg/core/history/redisstore"
	"github.com/calleq/calleq/pkg/core/responder"
	"github.com/calleq/calleq/pkg/core/retrieval"
	"github.com/calleq/calleq/pkg/core/speech"
	"github.com/calleq/calleq/pkg/core/types"
	"github.com/calleq/calleq/pkg/gateway/config"
	"github.com/calleq/calleq/pkg/gateway/handlers"
	"github.com/calleq/calleq/pkg/gateway/lifecycle"
	"github.com/calleq/calleq/pkg/gateway/metrics"
	"github.com/calleq/calleq/pkg/gateway/mw"
)

// Server owns the orchestrator and its collaborators for the lifetime of
// the process.
type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux

	orchestrator *core.Orchestrator
	history      core.HistoryStore
	retriever    core.Retriever
	metrics      *metrics.Metrics
	lifecycle    *lifecycle.Lifecycle
}

// New wires a server from config. The context covers collaborator client
// construction only, not the server's lifetime.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			Proxy:                 http.ProxyFromEnvironment,
			ForceAttemptHTTP2:     true,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}

	classifier := emotion.NewClient(cfg.EmotionEndpoint, cfg.EmotionAPIKey, httpClient)

	var retriever core.Retriever = unconfiguredRetriever{}
	if cfg.QdrantURL != "" && cfg.EmbeddingEndpoint != "" {
		embedder := retrieval.NewHTTPEmbedder(cfg.EmbeddingEndpoint, cfg.EmbeddingAPIKey, httpClient)
		qr, err := retrieval.NewQdrant(retrieval.Config{
			URL:        cfg.QdrantURL,
			Collection: cfg.QdrantCollection,
			APIKey:     cfg.QdrantAPIKey,
		}, embedder)
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		retriever = qr
	} else {
		logger.Warn("retrieval backend is not configured; turns will run without context")
	}

	gem, err := responder.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	var speaker core.Speaker
	if cfg.ElevenLabsAPIKey != "" && cfg.ElevenLabsVoiceID != "" {
		speaker = speech.NewElevenLabs(cfg.ElevenLabsAPIKey, cfg.ElevenLabsVoiceID, httpClient)
	}

	var history core.HistoryStore
	switch cfg.HistoryBackend {
	case config.HistoryBackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		history = redisstore.New(client, cfg.HistoryTTL)
	default:
		history = core.NewMemoryHistory()
	}

	registry := core.NewRegistry(history)
	pipeline := core.NewPipeline(core.PipelineDeps{
		Classifier: classifier,
		Retriever:  retriever,
		Responder:  gem,
		Speaker:    speaker,
		Config: core.PipelineConfig{
			RetrievalLimit:    cfg.RetrievalLimit,
			ClassifyTimeout:   cfg.ClassifyTimeout,
			RetrieveTimeout:   cfg.RetrieveTimeout,
			GenerateTimeout:   cfg.GenerateTimeout,
			SynthesizeTimeout: cfg.SynthesizeTimeout,
		},
		Logger: logger,
	})
	orchestrator := core.NewOrchestrator(core.OrchestratorDeps{
		Registry:      registry,
		Pipeline:      pipeline,
		HistoryWindow: cfg.HistoryWindow,
		Logger:        logger,
	})

	s := &Server{
		cfg:          cfg,
		logger:       logger,
		mux:          http.NewServeMux(),
		orchestrator: orchestrator,
		history:      history,
		retriever:    retriever,
		metrics:      metrics.New("calleq"),
		lifecycle:    &lifecycle.Lifecycle{},
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.Handle("/healthz", handlers.HealthHandler{})
	s.mux.Handle("/readyz", handlers.ReadyHandler{Config: s.cfg})
	s.mux.Handle("/metrics", s.metrics.Handler())

	s.mux.Handle("/v1/calls", handlers.CallsHandler{
		Config:       s.cfg,
		Orchestrator: s.orchestrator,
		Metrics:      s.metrics,
		Logger:       s.logger,
		Lifecycle:    s.lifecycle,
	})
	s.mux.Handle("/v1/calls/", handlers.CallItemHandler{
		Config:       s.cfg,
		Orchestrator: s.orchestrator,
		Metrics:      s.metrics,
		Logger:       s.logger,
		Lifecycle:    s.lifecycle,
		Live: handlers.LiveHandler{
			Config:       s.cfg,
			Orchestrator: s.orchestrator,
			Metrics:      s.metrics,
			Logger:       s.logger,
			Lifecycle:    s.lifecycle,
		},
	})
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

// Handler returns the full middleware chain around the routes.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.Auth(s.cfg, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Orchestrator exposes the call core for tests and shutdown handling.
func (s *Server) Orchestrator() *core.Orchestrator {
	return s.orchestrator
}

// SetDraining flips the gateway into drain mode. New calls and live
// attachments are rejected while existing sessions keep running.
func (s *Server) SetDraining(draining bool) {
	s.lifecycle.SetDraining(draining)
}

// WarnLiveSessions notifies every live session that shutdown is imminent.
func (s *Server) WarnLiveSessions() int {
	return s.orchestrator.Registry().WarnAll("shutting_down", "gateway is shutting down")
}

// WaitSessions blocks until all sessions have closed or ctx expires.
func (s *Server) WaitSessions(ctx context.Context) bool {
	return s.orchestrator.Registry().Wait(ctx)
}

// CloseSessions force-closes every remaining session.
func (s *Server) CloseSessions() int {
	return s.orchestrator.Registry().CloseAll()
}

// StartIdleSweeper expires sessions idle longer than the configured TTL.
// Returns immediately when expiry is disabled; otherwise sweeps until ctx
// is canceled.
func (s *Server) StartIdleSweeper(ctx context.Context) {
	if s.cfg.SessionIdleTTL <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.cfg.SessionSweepPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if closed := s.orchestrator.Registry().CloseIdle(s.cfg.SessionIdleTTL); closed > 0 {
					s.logger.Info("expired idle sessions", "count", closed)
					s.metrics.SessionsActive.Set(float64(s.orchestrator.Registry().Count()))
				}
			}
		}
	}()
}

// Close releases collaborator clients and the history backend.
func (s *Server) Close() error {
	var firstErr error
	if closer, ok := s.retriever.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			firstErr = err
		}
	}
	if err := s.history.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// unconfiguredRetriever stands in when no vector store is configured. The
// pipeline treats its error as a retrieval fallback, so turns proceed with
// empty context.
type unconfiguredRetriever struct{}

func (unconfiguredRetriever) Search(ctx context.Context, text string, limit int) ([]types.Passage, error) {
	return nil, fmt.Errorf("retrieval backend is not configured")
}
