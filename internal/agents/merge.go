package agents

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/core"
	"github.com/mnemos-ai/mnemos/internal/domain"
	"github.com/mnemos-ai/mnemos/internal/service"
)

const mergedStrengthCap = 2.0

// SemanticMerge collapses near-duplicate pairs above the high similarity
// threshold. The higher-scoring memory survives, absorbing the duplicate's
// use count, and the duplicate is deleted. Ties break toward the older
// memory so repeated runs pick the same survivor.
type SemanticMerge struct {
	store  domain.Storage
	scorer *service.Scorer
	cfg    *config.Config
	logger *zap.Logger
	clock  domain.Clock
}

func NewSemanticMerge(store domain.Storage, scorer *service.Scorer, cfg *config.Config, logger *zap.Logger, clock domain.Clock) *SemanticMerge {
	return &SemanticMerge{store: store, scorer: scorer, cfg: cfg, logger: logger, clock: clock}
}

func (a *SemanticMerge) Name() string { return "semantic_merge" }

func (a *SemanticMerge) Run(ctx context.Context, dryRun bool) (*Report, error) {
	now := a.clock()

	scan := func() ([]core.DuplicatePair, error) {
		memories := a.store.ListMemories(domain.StatusActive, 0, 0)
		return core.FindDuplicates(memories, a.cfg.SemanticHi), nil
	}
	process := func(p core.DuplicatePair) (*Action, error) {
		// earlier merges in this run may have consumed one side
		primary := a.store.GetMemory(p.First.ID)
		dup := a.store.GetMemory(p.Second.ID)
		if primary == nil || dup == nil ||
			primary.Status != domain.StatusActive || dup.Status != domain.StatusActive {
			return nil, nil
		}
		if a.mergeOrder(dup, primary, now) {
			primary, dup = dup, primary
		}

		action := &Action{
			Type:      "merged",
			MemoryIDs: []string{primary.ID, dup.ID},
			Detail:    fmt.Sprintf("similarity %.4f, kept %s", p.Similarity, primary.ID),
		}
		if dryRun {
			return action, nil
		}

		useCount := primary.UseCount + dup.UseCount
		strength := primary.Strength
		if dup.Strength > strength {
			strength = dup.Strength
		}
		if strength > mergedStrengthCap {
			strength = mergedStrengthCap
		}
		lastUsed := primary.LastUsed
		if dup.LastUsed > lastUsed {
			lastUsed = dup.LastUsed
		}
		merged := *primary
		merged.UseCount = useCount
		merged.Strength = strength
		merged.LastUsed = lastUsed
		merged.Entities = unionEntities(primary.Entities, dup.Entities)
		if err := a.store.SaveMemory(&merged); err != nil {
			return nil, fmt.Errorf("merge into %s: %w", primary.ID, err)
		}
		if _, err := a.store.DeleteMemory(dup.ID); err != nil {
			return nil, fmt.Errorf("remove duplicate %s: %w", dup.ID, err)
		}
		a.logger.Info("memories merged",
			zap.String("kept", primary.ID),
			zap.String("removed", dup.ID),
			zap.Float64("similarity", p.Similarity))
		return action, nil
	}
	return runItems(ctx, a.Name(), dryRun, a.logger, scan, process)
}

// unionEntities keeps the survivor's entities and appends the duplicate's
// new ones, compared case-insensitively.
func unionEntities(primary, dup []string) []string {
	seen := make(map[string]bool, len(primary))
	out := make([]string, 0, len(primary)+len(dup))
	for _, e := range primary {
		key := strings.ToLower(e)
		if !seen[key] {
			seen[key] = true
			out = append(out, e)
		}
	}
	for _, e := range dup {
		key := strings.ToLower(e)
		if !seen[key] {
			seen[key] = true
			out = append(out, e)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// mergeOrder reports whether b should survive over a.
func (a *SemanticMerge) mergeOrder(b, other *domain.Memory, now int64) bool {
	bs, os := a.scorer.Score(b, now), a.scorer.Score(other, now)
	if bs != os {
		return bs > os
	}
	if b.CreatedAt != other.CreatedAt {
		return b.CreatedAt < other.CreatedAt
	}
	return b.ID < other.ID
}
