// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/capitalize-ai/livechat-engine/internal/chat"
	"github.com/capitalize-ai/livechat-engine/internal/config"
	"github.com/capitalize-ai/livechat-engine/internal/handler"
	"github.com/capitalize-ai/livechat-engine/internal/llm"
	"github.com/capitalize-ai/livechat-engine/internal/model"
	natsclient "github.com/capitalize-ai/livechat-engine/internal/nats"
	"github.com/capitalize-ai/livechat-engine/internal/store"
	"github.com/capitalize-ai/livechat-engine/pkg/logger"
	"github.com/capitalize-ai/livechat-engine/pkg/tracing"
)

func main() {
	// A missing .env is fine; the environment wins either way.
	_ = godotenv.Load()

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
		tp, err := tracing.InitTracer(ctx, "livechat-engine", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Open the conversation store
	db, err := store.NewSQLiteStore(cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to open store", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	defer db.Close()

	hub := chat.NewHub()
	publishers := chat.Publishers{hub}
	checks := map[string]handler.ReadinessCheck{
		"store": db.Ping,
	}

	var (
		notifier chat.Notifier
		history  handler.EventHistory
	)
	if cfg.NATSEnabled {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		// Ensure JetStream stream exists
		events := natsclient.NewEventStream(natsClient)
		if err := events.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		publishers = append(publishers, events)
		notifier = events
		history = events
		checks["nats"] = func(context.Context) error {
			if !natsClient.IsConnected() {
				return errors.New("not connected")
			}
			return nil
		}
	}

	// Initialize LLM client
	var llmClient llm.Client
	if key := llmKey(cfg); key != "" {
		llmClient, err = llm.NewClient(llm.Provider(cfg.DefaultLLM), key)
		if err != nil {
			log.Warn("failed to create completion client, assistant disabled", zap.Error(err))
			llmClient = nil
		}
	} else {
		log.Warn("no completion API key configured, assistant disabled")
	}

	// Seed agents start online and are written to the directory.
	seeds := make([]model.Agent, 0, len(cfg.SeedAgents))
	for _, s := range cfg.SeedAgents {
		a := model.Agent{ID: s.ID, Name: s.Name, Role: model.AgentRole(s.Role), Status: model.PresenceOnline}
		if err := db.UpsertAgent(ctx, a); err != nil {
			log.Warn("failed to save seed agent", logger.AgentID(a.ID), zap.Error(err))
		}
		seeds = append(seeds, a)
	}

	engineCfg := chat.Config{
		SweepInterval:     cfg.SnoozeSweepInterval,
		SettleDelay:       cfg.AssignSettleDelay,
		CompletionTimeout: cfg.CompletionTimeout,
		Model:             cfg.LLMModel,
	}
	if cfg.OpenHour != cfg.CloseHour {
		engineCfg.Hours = &chat.OperatingHours{
			OpenHour:  cfg.OpenHour,
			CloseHour: cfg.CloseHour,
			Location:  cfg.Location(),
		}
	}
	deps := chat.Deps{
		Store:     db,
		Publisher: publishers,
		LLM:       llmClient,
		Notifier:  notifier,
		Logger:    log,
		Agents:    seeds,
	}
	engine := chat.NewEngine(engineCfg, deps)

	// Restore state
	convs, err := db.LoadConversations(ctx)
	if err != nil {
		log.Fatal("failed to load conversations", zap.Error(err))
	}
	engine.Load(convs)

	agents, err := db.ListAgents(ctx)
	if err != nil {
		log.Warn("failed to load agent directory", zap.Error(err))
	}
	for _, a := range agents {
		engine.RegisterAgent(a)
	}

	engine.Start(ctx)

	router := handler.NewRouter(handler.RouterConfig{
		Engine:            engine,
		Hub:               hub,
		History:           history,
		Directory:         db,
		Checks:            checks,
		Logger:            log,
		JWTSecret:         cfg.JWTSecret,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
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
	engine.Shutdown()

	log.Info("server stopped")
}

// llmKey picks the API key for the configured provider, falling back to
// whichever key is present.
func llmKey(cfg *config.Config) string {
	switch llm.Provider(cfg.DefaultLLM) {
	case llm.ProviderOpenAI:
		if cfg.OpenAIAPIKey != "" {
			return cfg.OpenAIAPIKey
		}
	default:
		if cfg.AnthropicAPIKey != "" {
			return cfg.AnthropicAPIKey
		}
	}
	if cfg.AnthropicAPIKey != "" {
		cfg.DefaultLLM = string(llm.ProviderAnthropic)
		return cfg.AnthropicAPIKey
	}
	if cfg.OpenAIAPIKey != "" {
		cfg.DefaultLLM = string(llm.ProviderOpenAI)
		return cfg.OpenAIAPIKey
	}
	return ""
}
