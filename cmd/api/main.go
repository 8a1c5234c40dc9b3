// Package main is the entry point for the API server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/finsight-ai/advisor-platform/internal/chat"
	"github.com/finsight-ai/advisor-platform/internal/config"
	"github.com/finsight-ai/advisor-platform/internal/handler"
	"github.com/finsight-ai/advisor-platform/internal/llm"
	"github.com/finsight-ai/advisor-platform/internal/middleware"
	natsclient "github.com/finsight-ai/advisor-platform/internal/nats"
	"github.com/finsight-ai/advisor-platform/internal/portfolio"
	"github.com/finsight-ai/advisor-platform/internal/remote"
	"github.com/finsight-ai/advisor-platform/internal/responder"
	"github.com/finsight-ai/advisor-platform/pkg/logger"
	"github.com/finsight-ai/advisor-platform/pkg/tracing"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	log.Info("starting API server")

	// Initialize tracing if enabled
	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "advisor-platform", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Select the remote store: JetStream KV when a NATS URL is
	// configured, otherwise the in-process store.
	var (
		remoteStore remote.Store
		natsConn    *natsclient.Client
	)
	if cfg.NATSURL != "" {
		natsConn, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer natsConn.Close()

		kv, err := natsConn.EnsureBucket(ctx)
		if err != nil {
			log.Error("failed to ensure bucket", zap.Error(err))
			os.Exit(1)
		}
		remoteStore = remote.NewNATSStore(kv, log)
	} else {
		log.Warn("no NATS URL configured, using in-process store")
		remoteStore = remote.NewMemoryStore()
	}

	// Select the responder: the advisor endpoint when configured, an LLM
	// provider when credentials exist, canned replies otherwise.
	var rsp responder.Responder
	switch {
	case cfg.AdvisorURL != "":
		rsp = responder.NewHTTPResponder(cfg.AdvisorURL, 30*time.Second)
	case cfg.AnthropicAPIKey != "" || cfg.OpenAIAPIKey != "":
		provider := llm.Provider(cfg.DefaultLLM)
		apiKey := cfg.AnthropicAPIKey
		if provider == llm.ProviderOpenAI || cfg.AnthropicAPIKey == "" {
			provider = llm.ProviderOpenAI
			apiKey = cfg.OpenAIAPIKey
		}
		client, err := llm.NewClient(provider, apiKey)
		if err != nil {
			log.Error("failed to create LLM client", zap.Error(err))
			os.Exit(1)
		}
		rsp = responder.NewLLMResponder(client)
	default:
		log.Warn("no advisor endpoint or LLM credentials, using canned replies")
		rsp = responder.NewLocal()
	}

	// Initialize engines and supporting stores
	manager := chat.NewManager(ctx, remoteStore, rsp, cfg.JWTSecret, cfg.FreeTrialLimit, log)
	defer manager.Close()
	portfolioStore := portfolio.NewStore(remoteStore, cfg.DataDir, log)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(natsConn)
	sessionHandler := handler.NewSessionHandler(manager, log)
	messageHandler := handler.NewMessageHandler(manager, log)
	streamHandler := handler.NewStreamHandler(manager, log)
	authHandler := handler.NewAuthHandler(manager, remoteStore, log)
	portfolioHandler := handler.NewPortfolioHandler(manager, portfolioStore, log)

	// Create router
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Identity(cfg.JWTSecret))
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.ClientIDHeader},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health endpoints
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signin", authHandler.SignIn)
			r.Post("/signout", authHandler.SignOut)
			r.Get("/me", authHandler.Me)
		})

		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.List)
			r.Post("/", sessionHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Post("/activate", sessionHandler.Activate)
				r.Get("/messages", sessionHandler.Messages)
			})
		})

		r.Post("/messages", messageHandler.Send)
		r.Get("/stream", streamHandler.Stream)

		r.Route("/portfolio", func(r chi.Router) {
			r.Get("/", portfolioHandler.Get)
			r.Put("/", portfolioHandler.Replace)
			r.Post("/stocks", portfolioHandler.AddStock)
			r.Delete("/stocks/{symbol}", portfolioHandler.RemoveStock)
		})
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
