package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/meggy-ai/meggy/internal/accounts"
	"github.com/meggy-ai/meggy/internal/agents"
	"github.com/meggy-ai/meggy/internal/auth"
	"github.com/meggy-ai/meggy/internal/chat"
	"github.com/meggy-ai/meggy/internal/config"
	"github.com/meggy-ai/meggy/internal/httpapi"
	"github.com/meggy-ai/meggy/internal/memory"
	"github.com/meggy-ai/meggy/internal/observability"
	"github.com/meggy-ai/meggy/internal/responder"
	"github.com/meggy-ai/meggy/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	metrics := observability.NewMetrics(cfg.MetricsNamespace)
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	ctx := context.Background()
	backends, err := storage.Open(ctx, cfg.DatabaseURL, cfg.SQLitePath)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	defer backends.Close()
	log.Printf("storage backend: %s", backends.Mode())

	// Accounts first: its schema owns the users table everything else
	// references.
	userStore, err := accounts.NewStore(ctx, backends)
	if err != nil {
		log.Fatalf("accounts store init failed: %v", err)
	}
	defer userStore.Close()

	agentStore, err := agents.NewStore(ctx, backends)
	if err != nil {
		log.Fatalf("agents store init failed: %v", err)
	}
	defer agentStore.Close()

	chatStore, err := chat.NewStore(ctx, backends)
	if err != nil {
		log.Fatalf("chat store init failed: %v", err)
	}
	defer chatStore.Close()

	memoryStore, err := memory.NewStore(ctx, backends)
	if err != nil {
		log.Fatalf("memory store init failed: %v", err)
	}
	defer memoryStore.Close()

	tokens, err := auth.NewTokenManager(cfg.JWTSecret, cfg.AccessTTL, cfg.RefreshTTL)
	if err != nil {
		log.Fatalf("token manager init failed: %v", err)
	}

	var rsp responder.Responder
	switch cfg.LLMProvider {
	case "openai":
		rsp = responder.NewOpenAIResponder(responder.OpenAIConfig{
			APIKey:  cfg.OpenAIAPIKey,
			BaseURL: cfg.OpenAIBaseURL,
			Model:   cfg.OpenAIModel,
		})
		log.Printf("responder: openai-compatible (base_url=%q)", cfg.OpenAIBaseURL)
	default:
		rsp = responder.NewPlaceholder()
		log.Printf("responder: placeholder")
	}

	extractor := memory.NewExtractor(memoryStore, userStore, logger, metrics)
	retriever := memory.NewRetriever(memoryStore, userStore, logger, metrics)

	chatService := chat.NewService(chatStore, userStore, agentStore, extractor, retriever, rsp,
		logger, metrics, chat.ServiceOptions{
			HistoryLimit: cfg.ChatHistoryLimit,
			MemoryLimit:  cfg.MemoryContextLimit,
		})

	api := httpapi.New(cfg, userStore, tokens, agentStore, chatService, chatStore,
		memoryStore, backends.Mode(), metrics, logger)
	httpServer := &http.Server{
		Addr:    cfg.BindAddr,
		Handler: api.Router(),
	}

	go func() {
		log.Printf("server listening on %s", cfg.BindAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}

	log.Printf("shutdown complete")
}
