package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/agents"
	"github.com/mnemos-ai/mnemos/internal/buildconfig"
	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/domain"
	"github.com/mnemos-ai/mnemos/internal/embedding"
	"github.com/mnemos-ai/mnemos/internal/ltm"
	"github.com/mnemos-ai/mnemos/internal/service"
	"github.com/mnemos-ai/mnemos/internal/store"
)

// stack is the wired service set a subcommand works against.
type stack struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     domain.Storage
	memories  *service.MemoryService
	unified   *service.UnifiedSearch
	scheduler *agents.Scheduler
}

func newStack() (*stack, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := zap.NewNop()
	if os.Getenv("MNEMOSCTL_VERBOSE") != "" {
		logger, _ = zap.NewDevelopment()
	}

	st, err := store.Open(cfg.StoragePath, logger, domain.RealClock)
	if err != nil {
		return nil, fmt.Errorf("open storage at %s: %w", cfg.StoragePath, err)
	}

	var embedder domain.EmbeddingClient
	if cfg.EnableEmbeddings {
		if embedder, err = embedding.NewClient(cfg.EmbeddingProvider, cfg.EmbeddingAPIKey, cfg.EmbedModel); err != nil {
			logger.Warn("embedding client unavailable", zap.Error(err))
			embedder = nil
		}
	}

	var (
		vaultWriter service.VaultWriter
		ltmSearcher service.LTMSearcher
	)
	if cfg.LTMVaultPath != "" {
		vaultWriter = ltm.NewVault(cfg.LTMVaultPath, cfg.LTMPromotedFolder, logger)
		ltmSearcher = ltm.NewIndex(cfg.LTMVaultPath, cfg.LTMIndexPath, logger)
	}

	scorer := service.NewScorer(cfg)
	memories := service.NewMemoryService(st, scorer, embedder, vaultWriter, cfg, logger, domain.RealClock)
	return &stack{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		memories:  memories,
		unified:   service.NewUnifiedSearch(memories, ltmSearcher, cfg, logger),
		scheduler: agents.NewScheduler(st, scorer, vaultWriter, cfg, logger, domain.RealClock),
	}, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mnemosctl",
		Short:         "Operate a mnemos short-term memory store",
		Version:       buildconfig.Version(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newConsolidateCmd(),
		newGCCmd(),
		newCompactCmd(),
		newSearchCmd(),
		newStatsCmd(),
	)
	return root
}
