// Package service implements the operational layer: activation, memory tool
// semantics, unified search. Services own their dependencies, log with zap,
// and return domain error kinds for the transport layer to map.
package service

import (
	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/core"
	"github.com/mnemos-ai/mnemos/internal/domain"
)

// Scorer evaluates the configured decay model for a memory. One model is
// selected per process; there is no per-memory override.
type Scorer struct {
	cfg *config.Config
}

func NewScorer(cfg *config.Config) *Scorer {
	return &Scorer{cfg: cfg}
}

func (s *Scorer) Score(m *domain.Memory, now int64) float64 {
	switch s.cfg.DecayModel {
	case config.DecayPowerLaw:
		return core.ScorePowerLaw(m.UseCount, m.LastUsed, m.Strength, now,
			s.cfg.PowerLawAlpha, s.cfg.DecayBeta, s.cfg.HalflifeDays)
	case config.DecayTwoComponent:
		return core.ScoreTwoComponent(m.UseCount, m.LastUsed, m.Strength, now,
			core.DecayLambda(s.cfg.FastHalflifeDays), core.DecayLambda(s.cfg.SlowHalflifeDays),
			s.cfg.FastWeight, s.cfg.DecayBeta)
	default:
		return core.Score(m.UseCount, m.LastUsed, m.Strength, now, s.cfg.DecayLambda, s.cfg.DecayBeta)
	}
}

// Temporal maps the raw score into [0,1] for activation weighting. Raw
// scores typically land in [0,2], so halve and cap.
func (s *Scorer) Temporal(m *domain.Memory, now int64) float64 {
	t := s.Score(m, now) / 2
	if t > 1 {
		t = 1
	}
	return t
}

// ShouldForget reports GC eligibility.
func (s *Scorer) ShouldForget(m *domain.Memory, now int64) bool {
	return s.Score(m, now) < s.cfg.ForgetThreshold
}

// ShouldPromote reports promotion eligibility: high score, or heavy use
// inside the recency window.
func (s *Scorer) ShouldPromote(m *domain.Memory, now int64) (bool, string) {
	if score := s.Score(m, now); score >= s.cfg.PromoteThreshold {
		return true, "high_score"
	}
	windowStart := now - int64(s.cfg.PromoteTimeWindow)*86400
	if m.UseCount >= s.cfg.PromoteUseCount && m.LastUsed >= windowStart {
		return true, "frequent_use"
	}
	return false, ""
}

func (s *Scorer) IsUrgent(m *domain.Memory, now int64) bool {
	return s.Score(m, now) < s.cfg.UrgentThreshold
}
