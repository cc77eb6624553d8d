// Command chat-server runs the textbook chat backend: RAG retrieval over the
// Weaviate corpus index, safety-checked persona-adapted generation, and chat
// persistence, served over HTTP, SSE, and WebSocket.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"

	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/agent"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/config"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/handlers"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/health"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/llm"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/middleware"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/monitoring"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/rag"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/safety"
	"github.com/jamilurrahmanmuhammad/smart-humanoid/pkg/store"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	setupLogging(cfg.LogLevel)
	logger := slog.Default().With("component", "chat-server")
	logger.Info("Starting chat backend", "app", cfg.AppName, "version", version, "port", cfg.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(&store.Config{
		Path:       cfg.DatabasePath,
		MessageTTL: cfg.MessageRetention,
	})
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	var cache rag.EmbeddingCache
	if cfg.RedisEnabled {
		redisCache := rag.NewRedisEmbeddingCache(&rag.RedisCacheConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			Database: cfg.RedisDB,
			TTL:      cfg.RedisCacheTTL,
		})
		defer redisCache.Close()
		cache = redisCache
	}

	embedder := rag.NewEmbeddingService(&rag.EmbeddingConfig{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		ModelName: cfg.OpenAIEmbeddingModel,
	}, cache)

	vectorStore, err := rag.NewVectorStoreClient(&rag.WeaviateConfig{
		Host:             cfg.WeaviateURL,
		Scheme:           cfg.WeaviateScheme,
		APIKey:           cfg.WeaviateAPIKey,
		ClassName:        cfg.WeaviateClass,
		DefaultThreshold: cfg.RAGSimilarityThreshold,
	})
	if err != nil {
		logger.Error("Failed to create vector store client", "error", err)
		os.Exit(1)
	}
	if err := vectorStore.EnsureSchema(ctx); err != nil {
		// Readiness keeps gating on the index; startup continues so the
		// service can recover once Weaviate comes back.
		logger.Warn("Failed to ensure vector schema, continuing", "error", err)
	}

	pipeline, err := rag.NewPipeline(embedder, vectorStore, &rag.PipelineConfig{
		RelevanceThreshold:  cfg.RAGSimilarityThreshold,
		PageScopedThreshold: cfg.RAGPageScopedThreshold,
		MaxCitations:        cfg.RAGMaxCitations,
		MaxContextTokens:    cfg.RAGMaxContextTokens,
		CharsPerToken:       cfg.RAGCharsPerToken,
	})
	if err != nil {
		logger.Error("Failed to create RAG pipeline", "error", err)
		os.Exit(1)
	}

	llmClient := llm.NewClient(&llm.Config{
		APIKey:    cfg.OpenAIAPIKey,
		BaseURL:   cfg.OpenAIBaseURL,
		ModelName: cfg.OpenAIModel,
	})

	runner := agent.NewRunner(pipeline, agent.ChatGenerator{Client: llmClient}, safety.NewChecker(cfg.SafetyEnabled))
	metrics := monitoring.NewMetrics()

	healthChecker := health.NewHealthChecker(cfg.AppName, version)
	healthChecker.RegisterDependency("vector-index", func(ctx context.Context) *health.Check {
		if err := vectorStore.Ready(ctx); err != nil {
			return &health.Check{Status: health.StatusUnhealthy, Message: err.Error()}
		}
		return &health.Check{Status: health.StatusHealthy}
	})
	healthChecker.RegisterDependency("store", func(ctx context.Context) *health.Check {
		if err := st.Ping(ctx); err != nil {
			return &health.Check{Status: health.StatusUnhealthy, Message: err.Error()}
		}
		return &health.Check{Status: health.StatusHealthy}
	})

	chatHandler := handlers.NewChatHandler(runner, st, metrics, &handlers.Config{
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	})
	sessionHandler := handlers.NewSessionHandler(st)
	analyticsHandler := handlers.NewAnalyticsHandler(st)

	router := mux.NewRouter()
	router.HandleFunc("/healthz", healthChecker.HealthzHandler).Methods(http.MethodGet)
	router.HandleFunc("/readyz", healthChecker.ReadyzHandler).Methods(http.MethodGet)
	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	chatHandler.RegisterRoutes(router)
	sessionHandler.RegisterRoutes(router)
	analyticsHandler.RegisterRoutes(router)

	var handler http.Handler = router
	if cfg.CORSEnabled {
		corsConfig := middleware.CORSConfig{AllowedOrigins: cfg.AllowedOrigins}
		if err := middleware.ValidateCORSConfig(corsConfig); err != nil {
			logger.Error("Invalid CORS configuration", "error", err)
			os.Exit(1)
		}
		handler = middleware.NewCORS(corsConfig).Middleware(handler)
	}

	purge := store.NewPurgeService(st, cfg.PurgeInterval)
	go purge.Run(ctx)

	// No WriteTimeout: SSE and WebSocket responses outlive any fixed window.
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", "addr", server.Addr)
		healthChecker.SetReady(true)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	healthChecker.SetReady(false)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.GracefulShutdown)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", "error", err)
	}
	logger.Info("Shutdown complete")
}

func setupLogging(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}
