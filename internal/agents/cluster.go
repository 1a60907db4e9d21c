package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/core"
	"github.com/mnemos-ai/mnemos/internal/domain"
)

// ClusterDetector surfaces groups of similar memories with a suggested
// disposition. It never mutates; acting on a cluster is the merge agent's
// job (auto-merge) or a human's (llm-review).
type ClusterDetector struct {
	store  domain.Storage
	cfg    *config.Config
	logger *zap.Logger
}

func NewClusterDetector(store domain.Storage, cfg *config.Config, logger *zap.Logger) *ClusterDetector {
	return &ClusterDetector{store: store, cfg: cfg, logger: logger}
}

func (a *ClusterDetector) Name() string { return "cluster_detector" }

func (a *ClusterDetector) Run(ctx context.Context, dryRun bool) (*Report, error) {
	scan := func() ([]*domain.Cluster, error) {
		memories := a.store.ListMemories(domain.StatusActive, 0, 0)
		return core.ClusterMemories(memories, core.ClusterParams{
			Threshold:      a.cfg.ClusterLinkThreshold,
			MinClusterSize: 2,
			MaxClusterSize: a.cfg.ClusterMaxSize,
		}), nil
	}
	process := func(c *domain.Cluster) (*Action, error) {
		ids := make([]string, len(c.Memories))
		for i, m := range c.Memories {
			ids[i] = m.ID
		}
		return &Action{
			Type:      strings.ReplaceAll(string(c.SuggestedAction), "-", "_"),
			MemoryIDs: ids,
			Detail:    fmt.Sprintf("cohesion %.4f", c.Cohesion),
		}, nil
	}
	return runItems(ctx, a.Name(), dryRun, a.logger, scan, process)
}
