package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/agents"
	"github.com/mnemos-ai/mnemos/internal/api"
	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/domain"
	"github.com/mnemos-ai/mnemos/internal/embedding"
	"github.com/mnemos-ai/mnemos/internal/ltm"
	"github.com/mnemos-ai/mnemos/internal/service"
	"github.com/mnemos-ai/mnemos/internal/store"
)

const consolidationInterval = time.Hour

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := newLogger(cfg.LogLevel)
	defer func() { _ = logger.Sync() }()

	st, err := store.Open(cfg.StoragePath, logger, domain.RealClock)
	if err != nil {
		logger.Fatal("failed to open storage", zap.Error(err), zap.String("path", cfg.StoragePath))
	}
	logger.Info("storage opened", zap.String("path", cfg.StoragePath))

	var embedder domain.EmbeddingClient
	if cfg.EnableEmbeddings {
		embedder, err = embedding.NewClient(cfg.EmbeddingProvider, cfg.EmbeddingAPIKey, cfg.EmbedModel)
		if err != nil {
			logger.Warn("embedding client initialization failed", zap.Error(err))
		} else {
			logger.Info("embedding client initialized", zap.String("provider", cfg.EmbeddingProvider))
		}
	}

	var (
		vaultWriter service.VaultWriter
		ltmSearcher service.LTMSearcher
		watcher     *ltm.Watcher
	)
	if cfg.LTMVaultPath != "" {
		vaultWriter = ltm.NewVault(cfg.LTMVaultPath, cfg.LTMPromotedFolder, logger)
		idx := ltm.NewIndex(cfg.LTMVaultPath, cfg.LTMIndexPath, logger)
		ltmSearcher = idx
		watcher, err = ltm.Watch(cfg.LTMVaultPath, idx, logger)
		if err != nil {
			logger.Warn("vault watcher unavailable, index refreshes on demand only", zap.Error(err))
		}
		logger.Info("ltm vault configured", zap.String("path", cfg.LTMVaultPath))
	} else {
		logger.Info("ltm vault not configured, running short-term only")
	}

	scorer := service.NewScorer(cfg)
	memorySvc := service.NewMemoryService(st, scorer, embedder, vaultWriter, cfg, logger, domain.RealClock)
	activationSvc := service.NewActivationService(st, scorer, cfg, logger, domain.RealClock)
	unified := service.NewUnifiedSearch(memorySvc, ltmSearcher, cfg, logger)
	scheduler := agents.NewScheduler(st, scorer, vaultWriter, cfg, logger, domain.RealClock)

	memorySvc.SetMutationHook(activationSvc.RebuildIndex)
	scheduler.SetMutationHook(activationSvc.RebuildIndex)
	memorySvc.SetPostSaveHook(func(id string) {
		go func() {
			if _, err := scheduler.PostSaveCheck(id, false); err != nil {
				logger.Warn("post-save check failed", zap.String("memory_id", id), zap.Error(err))
			}
		}()
	})

	scheduler.Start(consolidationInterval)

	app := api.NewApp(api.Deps{
		Config:     cfg,
		Logger:     logger,
		Memories:   memorySvc,
		Activation: activationSvc,
		Unified:    unified,
		Scheduler:  scheduler,
	})

	addr := cfg.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	scheduler.Stop()
	if watcher != nil {
		_ = watcher.Close()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

func newLogger(level string) *zap.Logger {
	if level == "debug" {
		logger, _ := zap.NewDevelopment()
		return logger
	}
	logger, _ := zap.NewProduction()
	return logger
}
