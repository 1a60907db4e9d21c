package agents

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/domain"
	"github.com/mnemos-ai/mnemos/internal/service"
)

// A score at or below half its value from the previous analysis counts as a
// sharp drop.
const sharpDropRatio = 0.5

// DecayAnalyzer archives memories whose score fell below the forget
// threshold and flags memories whose score dropped sharply since the last
// analysis. Consolidation archives rather than deletes so a later review
// can still recover content; hard removal stays with the gc tool.
type DecayAnalyzer struct {
	store  domain.Storage
	scorer *service.Scorer
	logger *zap.Logger
	clock  domain.Clock

	mu         sync.Mutex
	lastScores map[string]float64
}

func NewDecayAnalyzer(store domain.Storage, scorer *service.Scorer, logger *zap.Logger, clock domain.Clock) *DecayAnalyzer {
	return &DecayAnalyzer{store: store, scorer: scorer, logger: logger, clock: clock}
}

func (a *DecayAnalyzer) Name() string { return "decay_analyzer" }

type decayItem struct {
	memory    *domain.Memory
	score     float64
	prevScore float64
	forget    bool
}

func (a *DecayAnalyzer) Run(ctx context.Context, dryRun bool) (*Report, error) {
	now := a.clock()
	archived := domain.StatusArchived

	scan := func() ([]decayItem, error) {
		a.mu.Lock()
		prev := a.lastScores
		next := make(map[string]float64)
		var items []decayItem
		for _, m := range a.store.ListMemories(domain.StatusActive, 0, 0) {
			score := a.scorer.Score(m, now)
			next[m.ID] = score
			if a.scorer.ShouldForget(m, now) {
				items = append(items, decayItem{memory: m, score: score, forget: true})
				continue
			}
			if last, ok := prev[m.ID]; ok && last > 0 && score <= last*sharpDropRatio {
				items = append(items, decayItem{memory: m, score: score, prevScore: last})
			}
		}
		a.lastScores = next
		a.mu.Unlock()
		return items, nil
	}
	process := func(it decayItem) (*Action, error) {
		if !it.forget {
			// advisory only; the memory is still above the forget threshold
			return &Action{
				Type:      "sharp_drop",
				MemoryIDs: []string{it.memory.ID},
				Detail:    fmt.Sprintf("score fell from %.4f to %.4f since last analysis", it.prevScore, it.score),
			}, nil
		}
		if !dryRun {
			if _, err := a.store.UpdateMemory(it.memory.ID, domain.MemoryUpdate{Status: &archived}); err != nil {
				return nil, fmt.Errorf("archive %s: %w", it.memory.ID, err)
			}
		}
		return &Action{
			Type:      "archived",
			MemoryIDs: []string{it.memory.ID},
			Detail:    fmt.Sprintf("score %.4f below forget threshold", it.score),
		}, nil
	}
	return runItems(ctx, a.Name(), dryRun, a.logger, scan, process)
}
