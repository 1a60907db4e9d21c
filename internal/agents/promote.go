package agents

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/domain"
	"github.com/mnemos-ai/mnemos/internal/service"
)

// LTMPromoter moves promotion-eligible memories into the vault. The vault
// write happens before the status transition; a failed write leaves the
// memory active for the next run.
type LTMPromoter struct {
	store  domain.Storage
	scorer *service.Scorer
	vault  service.VaultWriter
	logger *zap.Logger
	clock  domain.Clock
}

func NewLTMPromoter(store domain.Storage, scorer *service.Scorer, vault service.VaultWriter, logger *zap.Logger, clock domain.Clock) *LTMPromoter {
	return &LTMPromoter{store: store, scorer: scorer, vault: vault, logger: logger, clock: clock}
}

func (a *LTMPromoter) Name() string { return "ltm_promoter" }

func (a *LTMPromoter) Run(ctx context.Context, dryRun bool) (*Report, error) {
	now := a.clock()
	promoted := domain.StatusPromoted

	type candidate struct {
		m      *domain.Memory
		reason string
	}
	scan := func() ([]candidate, error) {
		var out []candidate
		for _, m := range a.store.ListMemories(domain.StatusActive, 0, 0) {
			if ok, reason := a.scorer.ShouldPromote(m, now); ok {
				out = append(out, candidate{m: m, reason: reason})
			}
		}
		return out, nil
	}
	process := func(c candidate) (*Action, error) {
		action := &Action{
			Type:      "promoted",
			MemoryIDs: []string{c.m.ID},
			Detail:    c.reason,
		}
		if dryRun {
			return action, nil
		}
		if a.vault == nil {
			return nil, fmt.Errorf("%w: vault not configured", domain.ErrDependency)
		}
		path, err := a.vault.WriteNote(c.m, a.scorer.Score(c.m, now), now)
		if err != nil {
			return nil, fmt.Errorf("vault write for %s: %w", c.m.ID, err)
		}
		if _, err := a.store.UpdateMemory(c.m.ID, domain.MemoryUpdate{
			Status:     &promoted,
			PromotedAt: &now,
			PromotedTo: &path,
		}); err != nil {
			return nil, fmt.Errorf("promote %s: %w", c.m.ID, err)
		}
		a.logger.Info("memory promoted",
			zap.String("memory_id", c.m.ID),
			zap.String("path", path),
			zap.String("reason", c.reason))
		return action, nil
	}
	return runItems(ctx, a.Name(), dryRun, a.logger, scan, process)
}
