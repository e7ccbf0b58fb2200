package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/engram-labs/engram/internal/api"
	"github.com/engram-labs/engram/internal/cluster"
	"github.com/engram-labs/engram/internal/config"
	"github.com/engram-labs/engram/internal/embedding"
	"github.com/engram-labs/engram/internal/logging"
	"github.com/engram-labs/engram/internal/memory"
	"github.com/engram-labs/engram/internal/safety"
	"github.com/engram-labs/engram/internal/search"
	"github.com/engram-labs/engram/internal/store"
)

func main() {
	// Config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Logger
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	// SQLite
	db, err := store.Open(cfg.DBPath)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Stores
	recordStore := store.NewRecordStore(db)
	scopeStore := store.NewScopeStore(db)
	clusterStore := store.NewClusterStore(db)
	keywordStore := store.NewKeywordStore(db)
	embCacheStore := store.NewEmbeddingCacheStore(db)

	// Embedding providers
	ollama := embedding.NewOllamaProvider(cfg.OllamaBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDim)
	registry, err := embedding.NewRegistry(cfg.Provider, map[string]embedding.Provider{
		"ollama": ollama,
		"mock":   embedding.NewMockProvider(cfg.EmbeddingDim),
	})
	if err != nil {
		logger.Error("failed to build provider registry", "error", err)
		os.Exit(1)
	}
	provider := registry.Default()

	embedder, err := embedding.NewCachedEmbedder(provider, embCacheStore, cfg.EmbeddingModel, logger)
	if err != nil {
		logger.Error("failed to build embedding cache", "error", err)
		os.Exit(1)
	}

	// Memory service
	dedup := memory.NewDeduplicator(recordStore, cfg.NearDupFloor)
	svc := memory.NewService(recordStore, scopeStore, embedder, dedup, logger)

	// Search
	searchEngine := search.NewEngine(
		recordStore, keywordStore, embedder,
		cfg.DefaultThreshold, time.Duration(cfg.SearchBudgetMillis)*time.Millisecond,
		logger,
	)

	// Clustering
	clusterEngine := cluster.NewEngine(recordStore, clusterStore, logger)
	scheduler := cluster.NewScheduler(
		clusterEngine,
		time.Duration(cfg.ClusterDebounceMillis)*time.Millisecond,
		cluster.Options{},
		logger,
	)

	// Safety
	validator := safety.NewValidator(cfg.MaxContextTokens, logger)

	if err := provider.HealthCheck(context.Background()); err != nil {
		logger.Warn("embedding provider not available at startup, will retry on first use", "error", err)
	}

	// Router
	router := api.NewRouter(db, svc, searchEngine, clusterEngine, scheduler, validator, provider, cfg.APIKey, logger)

	// Server
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("engram server starting", "addr", addr, "provider", cfg.Provider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-done
	logger.Info("shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown error", "error", err)
	}

	scheduler.Close()

	logger.Info("server stopped")
}
