package agents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/domain"
	"github.com/mnemos-ai/mnemos/internal/service"
)

// Scheduler runs the consolidation agents in a fixed order: decay first so
// merges and promotions never operate on forgotten memories, relations last
// so they see the post-merge survivor set. One failing agent aborts the
// tick; the next tick starts from scratch.
type Scheduler struct {
	agents     []Agent
	store      domain.Storage
	scorer     *service.Scorer
	cfg        *config.Config
	logger     *zap.Logger
	clock      domain.Clock
	onMutation func()

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

func NewScheduler(store domain.Storage, scorer *service.Scorer, vault service.VaultWriter, cfg *config.Config, logger *zap.Logger, clock domain.Clock) *Scheduler {
	return &Scheduler{
		agents: []Agent{
			NewDecayAnalyzer(store, scorer, logger, clock),
			NewClusterDetector(store, cfg, logger),
			NewSemanticMerge(store, scorer, cfg, logger, clock),
			NewLTMPromoter(store, scorer, vault, logger, clock),
			NewRelationshipDiscovery(store, cfg, logger, clock),
		},
		store:  store,
		scorer: scorer,
		cfg:    cfg,
		logger: logger,
		clock:  clock,
	}
}

// SetMutationHook registers a callback fired after a tick that changed
// stored memories.
func (s *Scheduler) SetMutationHook(fn func()) { s.onMutation = fn }

// Agents returns the configured agents in execution order.
func (s *Scheduler) Agents() []Agent { return s.agents }

// Tick runs every agent once. Reports for completed agents are returned
// even when a later agent fails.
func (s *Scheduler) Tick(ctx context.Context, dryRun bool) ([]*Report, error) {
	reports := make([]*Report, 0, len(s.agents))
	mutated := false
	for _, agent := range s.agents {
		report, err := agent.Run(ctx, dryRun)
		if err != nil {
			return reports, fmt.Errorf("agent %s: %w", agent.Name(), err)
		}
		reports = append(reports, report)
		if !dryRun && report.Processed > 0 {
			mutated = true
		}
		s.logger.Info("agent completed",
			zap.String("agent", report.Agent),
			zap.Bool("dry_run", dryRun),
			zap.Int("scanned", report.Scanned),
			zap.Int("processed", report.Processed),
			zap.Int("errors", report.Errors))
	}
	if mutated && s.onMutation != nil {
		s.onMutation()
	}
	return reports, nil
}

// RunAgent runs a single agent by name.
func (s *Scheduler) RunAgent(ctx context.Context, name string, dryRun bool) (*Report, error) {
	for _, agent := range s.agents {
		if agent.Name() == name {
			report, err := agent.Run(ctx, dryRun)
			if err != nil {
				return nil, fmt.Errorf("agent %s: %w", name, err)
			}
			if !dryRun && report.Processed > 0 && s.onMutation != nil {
				s.onMutation()
			}
			return report, nil
		}
	}
	return nil, fmt.Errorf("%w: unknown agent %q", domain.ErrInvalidArgument, name)
}

type PostSaveResult struct {
	MemoryID string  `json:"memory_id"`
	Score    float64 `json:"score"`
	DryRun   bool    `json:"dry_run"`
	Action   string  `json:"action"`
}

// PostSaveCheck inspects a freshly saved memory for unusually fast decay
// and flags it by resetting last_used, giving it a fresh decay window.
func (s *Scheduler) PostSaveCheck(memoryID string, dryRun bool) (*PostSaveResult, error) {
	m := s.store.GetMemory(memoryID)
	if m == nil {
		return nil, fmt.Errorf("%w: memory %s", domain.ErrNotFound, memoryID)
	}
	now := s.clock()
	score := s.scorer.Score(m, now)
	result := &PostSaveResult{MemoryID: memoryID, Score: score, DryRun: dryRun}
	if !s.scorer.IsUrgent(m, now) {
		result.Action = "none"
		return result, nil
	}

	if dryRun {
		result.Action = "would_flag_urgent"
		return result, nil
	}
	if _, err := s.store.UpdateMemory(memoryID, domain.MemoryUpdate{LastUsed: &now}); err != nil {
		return nil, fmt.Errorf("flag urgent %s: %w", memoryID, err)
	}
	result.Action = "flagged_urgent"
	s.logger.Warn("memory decaying urgently after save",
		zap.String("memory_id", memoryID),
		zap.Float64("score", score))
	return result, nil
}

// Start launches a background loop ticking at the given interval. A second
// Start without Stop is a no-op.
func (s *Scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				if _, err := s.Tick(context.Background(), false); err != nil {
					s.logger.Error("consolidation tick failed", zap.Error(err))
				}
			}
		}
	}()
	s.logger.Info("consolidation scheduler started", zap.Duration("interval", interval))
}

// Stop halts the background loop and waits for an in-flight tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	close(s.stop)
	<-s.done
	s.running = false
	s.logger.Info("consolidation scheduler stopped")
}
