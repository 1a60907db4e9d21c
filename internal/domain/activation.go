package domain

// ActivationContext carries one inbound message through the activation
// pipeline. It is built by the middleware hook and mutated only by the
// pipeline that owns it.
type ActivationContext struct {
	Message             string          `json:"message"`
	Keywords            []string        `json:"keywords"`
	SessionID           string          `json:"session_id,omitempty"`
	AlreadyActivated    map[string]bool `json:"-"`
	MaxMemories         int             `json:"max_memories"`
	ActivationThreshold float64         `json:"activation_threshold"`
	EnableSpreading     bool            `json:"enable_spreading"`
}

type ActivationSource string

const (
	SourceDirect     ActivationSource = "direct"
	SourceSpread1Hop ActivationSource = "spread_1hop"
	SourceSpread2Hop ActivationSource = "spread_2hop"
	SourceSpread3Hop ActivationSource = "spread_3hop"
)

func SpreadSource(hops int) ActivationSource {
	switch hops {
	case 1:
		return SourceSpread1Hop
	case 2:
		return SourceSpread2Hop
	default:
		return SourceSpread3Hop
	}
}

// ActivationScore is the per-memory outcome of one activation pass.
// Treated as immutable once calculated.
type ActivationScore struct {
	MemoryID        string           `json:"memory_id"`
	BaseRelevance   float64          `json:"base_relevance"`
	TemporalScore   float64          `json:"temporal_score"`
	SpreadingScore  float64          `json:"spreading_score"`
	FinalScore      float64          `json:"final_score"`
	Source          ActivationSource `json:"source"`
	MatchedKeywords []string         `json:"matched_keywords,omitempty"`
}

// Component weights for the combined activation score.
const (
	WeightBase      = 0.5
	WeightTemporal  = 0.3
	WeightSpreading = 0.2
)

// CalculateActivation combines the three components and caps the result
// at 1.0.
func CalculateActivation(memoryID string, base, temporal, spreading float64, source ActivationSource, matched []string) ActivationScore {
	final := WeightBase*base + WeightTemporal*temporal + WeightSpreading*spreading
	if final > 1.0 {
		final = 1.0
	}
	return ActivationScore{
		MemoryID:        memoryID,
		BaseRelevance:   base,
		TemporalScore:   temporal,
		SpreadingScore:  spreading,
		FinalScore:      final,
		Source:          source,
		MatchedKeywords: matched,
	}
}

// FallbackTier reports which activation tier produced the result.
type FallbackTier string

const (
	TierFull        FallbackTier = "full"
	TierKeywordOnly FallbackTier = "keyword_only"
	TierError       FallbackTier = "error"
)

type ActivationResult struct {
	ActivatedMemories   []string                   `json:"activated_memories"`
	ActivationScores    map[string]ActivationScore `json:"activation_scores"`
	DirectMatches       []string                   `json:"direct_matches"`
	SpreadMatches       []string                   `json:"spread_matches"`
	TotalCandidates     int                        `json:"total_candidates"`
	ActivationLatencyMS float64                    `json:"activation_latency_ms"`
	TimingBreakdown     map[string]float64         `json:"timing_breakdown,omitempty"`
	FallbackTier        FallbackTier               `json:"fallback_tier"`
}
