// Copyright (C) 2025 CodeMentor AI (oss@codementor-ai.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package mentor assembles the conversational mentor service: safety
// gate, session memory, knowledge retrieval, tool registry, the turn
// orchestrator, and the HTTP surface.
package mentor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/CodeMentorAI/CodeMentorFOSS/services/llm"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/conversation"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/emitter"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/memory"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/observability"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/retrieval"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/routes"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/safety"
	"github.com/CodeMentorAI/CodeMentorFOSS/services/mentor/tools"
)

// Config holds service configuration. Zero values fall back to working
// defaults in applyDefaults.
type Config struct {
	// Port the HTTP server listens on.
	Port string
	// GinMode is gin's run mode (debug, release, test).
	GinMode string

	// LLMBackend selects the model client: gemini, openai, or ollama.
	LLMBackend string

	// WeaviateURL enables knowledge retrieval and document ingestion
	// when set, e.g. "http://weaviate:8080". Empty runs without RAG.
	WeaviateURL string
	// EmbeddingURL is the embedding sidecar's /embed endpoint. Required
	// when WeaviateURL is set.
	EmbeddingURL string

	// EnableMetrics registers Prometheus metrics and /metrics.
	EnableMetrics bool

	MemoryWindow        int
	RetrievalMaxResults int
	RetrievalMinScore   float64
	MaxToolRounds       int
	ToolTimeout         time.Duration
	ChunkDelay          time.Duration

	// ExtraDenylist extends the built-in safety denylist.
	ExtraDenylist []string
	// SystemPrompt overrides the default mentor persona.
	SystemPrompt string
	// InterviewSearchURL overrides the interview question bank URL.
	InterviewSearchURL string
	// WebSearchURL overrides the Brave-compatible search API URL.
	WebSearchURL string
	// WebSearchAPIKey authenticates against the search API. When
	// empty the web_search tool stays registered but returns an
	// explanation instead of results.
	WebSearchAPIKey string
}

// applyDefaults fills unset fields with working defaults.
func (c *Config) applyDefaults() {
	if c.Port == "" {
		c.Port = "12310"
	}
	if c.GinMode == "" {
		c.GinMode = gin.ReleaseMode
	}
	if c.LLMBackend == "" {
		c.LLMBackend = "gemini"
	}
	if c.MemoryWindow <= 0 {
		c.MemoryWindow = memory.DefaultWindowSize
	}
	if c.RetrievalMaxResults <= 0 {
		c.RetrievalMaxResults = retrieval.DefaultMaxResults
	}
	if c.RetrievalMinScore <= 0 {
		c.RetrievalMinScore = retrieval.DefaultMinScore
	}
	if c.MaxToolRounds <= 0 {
		c.MaxToolRounds = conversation.DefaultMaxToolRounds
	}
	if c.ToolTimeout <= 0 {
		c.ToolTimeout = tools.DefaultCallTimeout
	}
	if c.ChunkDelay <= 0 {
		c.ChunkDelay = emitter.DefaultDelay
	}
}

// ConfigFromEnv builds a Config from environment variables, logging a
// warning for each unset variable that has a meaningful default.
func ConfigFromEnv() Config {
	cfg := Config{
		Port:               os.Getenv("MENTOR_PORT"),
		GinMode:            os.Getenv("GIN_MODE"),
		LLMBackend:         os.Getenv("LLM_BACKEND_TYPE"),
		WeaviateURL:        strings.Trim(os.Getenv("WEAVIATE_SERVICE_URL"), "\"' "),
		EmbeddingURL:       os.Getenv("EMBEDDING_SERVICE_URL"),
		SystemPrompt:       os.Getenv("SYSTEM_PROMPT"),
		InterviewSearchURL: os.Getenv("INTERVIEW_SEARCH_URL"),
		WebSearchURL:       os.Getenv("WEB_SEARCH_API_URL"),
		WebSearchAPIKey:    os.Getenv("WEB_SEARCH_API_KEY"),
		EnableMetrics:      os.Getenv("DISABLE_METRICS") == "",
	}
	if extra := os.Getenv("SAFETY_EXTRA_DENYLIST"); extra != "" {
		cfg.ExtraDenylist = strings.Split(extra, ",")
	}
	cfg.MemoryWindow = envInt("MEMORY_WINDOW_SIZE", 0)
	cfg.RetrievalMaxResults = envInt("RETRIEVAL_MAX_RESULTS", 0)
	cfg.RetrievalMinScore = envFloat("RETRIEVAL_MIN_SCORE", 0)
	cfg.MaxToolRounds = envInt("MAX_TOOL_ROUNDS", 0)
	cfg.ToolTimeout = time.Duration(envInt("TOOL_TIMEOUT_SECONDS", 0)) * time.Second
	cfg.ChunkDelay = time.Duration(envInt("STREAM_CHUNK_DELAY_MS", 0)) * time.Millisecond
	cfg.applyDefaults()
	return cfg
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		slog.Warn("invalid integer environment variable, using default", "key", key, "value", raw)
		return fallback
	}
	return v
}

func envFloat(key string, fallback float64) float64 {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		slog.Warn("invalid float environment variable, using default", "key", key, "value", raw)
		return fallback
	}
	return v
}

// Service is the assembled mentor service.
type Service struct {
	cfg    Config
	router *gin.Engine
	logger *slog.Logger
}

// New assembles a Service from the config.
//
// # Description
//
// Builds the full dependency graph: model client per LLMBackend, safety
// gate, session store, Weaviate-backed retriever (when configured),
// tool registry with the interview question tool, observers, the
// orchestrator, and the gin router with tracing middleware and all
// routes.
//
// # Inputs
//
//   - cfg: Service configuration. Zero values take defaults.
//
// # Outputs
//
//   - *Service: Ready to Run.
//   - error: Model client construction failure, or invalid Weaviate
//     configuration.
func New(cfg Config) (*Service, error) {
	cfg.applyDefaults()
	logger := slog.Default()

	llmClient, err := newLLMClient(cfg.LLMBackend)
	if err != nil {
		return nil, fmt.Errorf("initialize LLM client: %w", err)
	}

	var metrics *observability.ChatMetrics
	if cfg.EnableMetrics {
		metrics = observability.InitMetrics()
	}

	gate := safety.NewGate(cfg.ExtraDenylist)
	store := memory.NewStore(cfg.MemoryWindow)

	weaviateClient, embedClient, retriever := buildRetrieval(cfg, logger)

	if cfg.WebSearchAPIKey == "" {
		logger.Warn("WEB_SEARCH_API_KEY not set, web_search tool will report itself unavailable")
	}
	registry, err := tools.NewRegistry(
		tools.NewInterviewQuestionTool(nil, cfg.InterviewSearchURL),
		tools.NewWebSearchTool(nil, cfg.WebSearchURL, cfg.WebSearchAPIKey),
	)
	if err != nil {
		return nil, fmt.Errorf("build tool registry: %w", err)
	}
	dispatcher := tools.NewDispatcher(registry, cfg.ToolTimeout, logger)
	if metrics != nil {
		dispatcher.SetResultObserver(metrics.RecordToolCall)
	}

	observers := []observability.ModelObserver{&observability.LoggingObserver{Logger: logger}}
	if metrics != nil {
		observers = append(observers, &observability.MetricsObserver{Metrics: metrics})
	}

	orch := conversation.NewOrchestrator(conversation.Config{
		LLMClient:     llmClient,
		Gate:          gate,
		Store:         store,
		Retriever:     retriever,
		Registry:      registry,
		Dispatcher:    dispatcher,
		Observer:      observability.NewMultiObserver(logger, observers...),
		Logger:        logger,
		SystemPrompt:  cfg.SystemPrompt,
		MaxToolRounds: cfg.MaxToolRounds,
	})

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("mentor-service"))

	routes.SetupRoutes(router, routes.Dependencies{
		Orchestrator: orch,
		Store:        store,
		Weaviate:     weaviateClient,
		Embed:        embedClient,
		Metrics:      metrics,
		ChunkDelay:   cfg.ChunkDelay,
	})

	return &Service{cfg: cfg, router: router, logger: logger}, nil
}

// newLLMClient selects the model backend.
func newLLMClient(backend string) (llm.LLMClient, error) {
	switch backend {
	case "gemini":
		slog.Info("Using Gemini LLM backend")
		return llm.NewGeminiClient()
	case "openai":
		slog.Info("Using OpenAI LLM backend")
		return llm.NewOpenAIClient()
	case "ollama":
		slog.Info("Using Ollama LLM backend")
		return llm.NewOllamaClient()
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to gemini", "backend", backend)
		return llm.NewGeminiClient()
	}
}

// buildRetrieval wires the Weaviate client, embedding client, and
// retriever when configured. Any gap degrades to chat-only mode.
func buildRetrieval(cfg Config, logger *slog.Logger) (*weaviate.Client, *retrieval.EmbeddingClient, retrieval.Retriever) {
	if cfg.WeaviateURL == "" {
		slog.Info("WEAVIATE_SERVICE_URL not set. Running in chat-only mode.")
		return nil, nil, nil
	}
	parsedURL, err := url.Parse(cfg.WeaviateURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running in chat-only mode.",
			"url", cfg.WeaviateURL, "error", err)
		return nil, nil, nil
	}
	if cfg.EmbeddingURL == "" {
		slog.Warn("EMBEDDING_SERVICE_URL not set. Running in chat-only mode.")
		return nil, nil, nil
	}

	weaviateClient, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("Failed to create Weaviate client. Running in chat-only mode.", "error", err)
		return nil, nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := retrieval.EnsureSchema(ctx, weaviateClient); err != nil {
		slog.Warn("could not ensure knowledge schema, ingestion may fail until Weaviate is reachable", "error", err)
	}

	embedClient := retrieval.NewEmbeddingClient(cfg.EmbeddingURL)
	retriever := retrieval.NewWeaviateRetriever(weaviateClient, embedClient,
		cfg.RetrievalMaxResults, cfg.RetrievalMinScore, logger)
	return weaviateClient, embedClient, retriever
}

// Router exposes the gin engine, mainly for tests.
func (s *Service) Router() *gin.Engine {
	return s.router
}

// Run starts the HTTP server and blocks until ctx is cancelled or the
// server fails. Shutdown drains in-flight requests for up to 10s.
func (s *Service) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting mentor server", "port", s.cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.logger.Info("shutting down mentor server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
