package service

import (
	"context"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/core"
	"github.com/mnemos-ai/mnemos/internal/domain"
	"github.com/mnemos-ai/mnemos/internal/index"
)

const (
	maxSpreadHops = 3
	spreadDecay   = 0.5

	messageKeywords = 20
)

// ActivationService surfaces relevant memories for a conversation message:
// keyword matching against the activation graph, temporal decay weighting,
// and spreading activation through relations. The hot path never returns an
// error; failures degrade through fallback tiers in the result.
type ActivationService struct {
	store     domain.Storage
	extractor *core.KeywordExtractor
	scorer    *Scorer
	cfg       *config.Config
	logger    *zap.Logger
	clock     domain.Clock

	graph atomic.Pointer[index.ActivationGraph]
}

func NewActivationService(store domain.Storage, scorer *Scorer, cfg *config.Config, logger *zap.Logger, clock domain.Clock) *ActivationService {
	s := &ActivationService{
		store:     store,
		extractor: core.NewKeywordExtractor(),
		scorer:    scorer,
		cfg:       cfg,
		logger:    logger,
		clock:     clock,
	}
	s.RebuildIndex()
	return s
}

// RebuildIndex builds a fresh activation graph from a storage snapshot and
// publishes it with an atomic pointer swap. In-flight activations keep
// reading the graph they started with.
func (s *ActivationService) RebuildIndex() {
	memories, relations := s.store.Snapshot()
	active := memories[:0]
	for _, m := range memories {
		if m.Status == domain.StatusActive {
			active = append(active, m)
		}
	}
	g := index.Build(active, relations, s.extractor, s.clock())
	s.graph.Store(g)
	s.logger.Info("activation graph rebuilt",
		zap.Int("memories", g.MemoryCount),
		zap.Int("relations", g.RelationCount))
}

// NewContext builds an activation context with configured defaults.
func (s *ActivationService) NewContext(message, sessionID string) *domain.ActivationContext {
	return &domain.ActivationContext{
		Message:             message,
		SessionID:           sessionID,
		AlreadyActivated:    make(map[string]bool),
		MaxMemories:         s.cfg.ActivationMaxMemory,
		ActivationThreshold: s.cfg.ActivationThreshold,
		EnableSpreading:     true,
	}
}

// Activate runs the pipeline: extract, match, score, spread, rank. The
// result's fallback tier records how far it got; ctx expiry after matching
// degrades to keyword_only rather than failing.
func (s *ActivationService) Activate(ctx context.Context, actx *domain.ActivationContext) *domain.ActivationResult {
	start := time.Now()
	now := s.clock()
	timing := make(map[string]float64, 4)

	graph := s.graph.Load()
	if graph == nil || ctx.Err() != nil {
		return emptyResult(start, timing, domain.TierError)
	}

	// extraction
	stage := time.Now()
	keywords := actx.Keywords
	if len(keywords) == 0 {
		keywords = s.extractor.Extract(actx.Message, messageKeywords)
	}
	timing["extraction"] = msSince(stage)

	// matching
	stage = time.Now()
	candidates := s.findCandidates(graph, keywords)
	for id := range actx.AlreadyActivated {
		delete(candidates, id)
	}
	if len(candidates) == 0 {
		timing["matching"] = msSince(stage)
		r := emptyResult(start, timing, domain.TierFull)
		return r
	}

	memoryMap := make(map[string]*domain.Memory, len(candidates))
	for id := range candidates {
		if m := s.store.GetMemory(id); m != nil {
			memoryMap[id] = m
		}
	}

	scores := make(map[string]domain.ActivationScore, len(memoryMap))
	directMatches := make([]string, 0, len(memoryMap))
	for id, m := range memoryMap {
		base, matched := s.keywordRelevance(m, keywords)
		scores[id] = domain.CalculateActivation(id, base, s.scorer.Temporal(m, now), 0, domain.SourceDirect, matched)
		directMatches = append(directMatches, id)
	}
	timing["matching"] = msSince(stage)

	// spreading
	stage = time.Now()
	tier := domain.TierFull
	var spreadMatches []string
	if actx.EnableSpreading {
		if ctx.Err() != nil {
			tier = domain.TierKeywordOnly
		} else {
			spreadMatches = s.spread(graph, directMatches, scores, memoryMap, actx, now)
		}
	}
	timing["spreading"] = msSince(stage)

	// ranking
	stage = time.Now()
	type ranked struct {
		id    string
		score domain.ActivationScore
	}
	all := make([]ranked, 0, len(scores))
	for id, sc := range scores {
		if sc.FinalScore >= actx.ActivationThreshold {
			all = append(all, ranked{id, sc})
		}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].score.FinalScore != all[j].score.FinalScore {
			return all[i].score.FinalScore > all[j].score.FinalScore
		}
		return all[i].id < all[j].id
	})
	if len(all) > actx.MaxMemories {
		all = all[:actx.MaxMemories]
	}
	activated := make([]string, len(all))
	finalScores := make(map[string]domain.ActivationScore, len(all))
	for i, r := range all {
		activated[i] = r.id
		finalScores[r.id] = r.score
	}
	timing["ranking"] = msSince(stage)

	return &domain.ActivationResult{
		ActivatedMemories:   activated,
		ActivationScores:    finalScores,
		DirectMatches:       directMatches,
		SpreadMatches:       spreadMatches,
		TotalCandidates:     len(candidates),
		ActivationLatencyMS: msSince(start),
		TimingBreakdown:     timing,
		FallbackTier:        tier,
	}
}

func (s *ActivationService) findCandidates(graph *index.ActivationGraph, keywords []string) map[string]bool {
	candidates := graph.FindByKeywords(keywords)
	for id := range graph.FindByEntities(keywords) {
		candidates[id] = true
	}
	for id := range graph.FindByTags(keywords) {
		candidates[id] = true
	}
	return candidates
}

// keywordRelevance scores a memory as the fraction of query keywords found
// among its tags, entities, and extracted content keywords.
func (s *ActivationService) keywordRelevance(m *domain.Memory, keywords []string) (float64, []string) {
	if len(keywords) == 0 {
		return 0, nil
	}
	terms := make(map[string]bool)
	for _, t := range m.Meta.Tags {
		terms[strings.ToLower(t)] = true
	}
	for _, e := range m.Entities {
		terms[strings.ToLower(e)] = true
	}
	for _, kw := range s.extractor.Extract(m.Content, messageKeywords) {
		terms[kw] = true
	}

	query := make(map[string]bool, len(keywords))
	for _, k := range keywords {
		query[strings.ToLower(k)] = true
	}

	var matched []string
	for k := range query {
		if terms[k] {
			matched = append(matched, k)
		}
	}
	relevance := float64(len(matched)) / float64(len(query))
	if relevance > 1 {
		relevance = 1
	}
	return relevance, matched
}

// spread walks relations breadth-first from the direct matches, up to
// maxSpreadHops, halving the carried score each hop. The visited set starts
// with the direct matches so cycles and re-scoring are impossible.
func (s *ActivationService) spread(
	graph *index.ActivationGraph,
	directMatches []string,
	scores map[string]domain.ActivationScore,
	memoryMap map[string]*domain.Memory,
	actx *domain.ActivationContext,
	now int64,
) []string {
	type item struct {
		id    string
		hops  int
		score float64
	}

	visited := make(map[string]bool, len(directMatches))
	queue := make([]item, 0, len(directMatches))
	for _, id := range directMatches {
		visited[id] = true
		if sc, ok := scores[id]; ok {
			queue = append(queue, item{id: id, hops: 0, score: sc.FinalScore})
		}
	}

	var spreadMatches []string
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.hops >= maxSpreadHops {
			continue
		}
		for _, relatedID := range graph.RelatedMemories(cur.id) {
			if visited[relatedID] || actx.AlreadyActivated[relatedID] {
				continue
			}
			visited[relatedID] = true

			m, ok := memoryMap[relatedID]
			if !ok {
				m = s.store.GetMemory(relatedID)
				if m == nil {
					continue
				}
				memoryMap[relatedID] = m
			}

			spreadingScore := cur.score * spreadDecay
			scores[relatedID] = domain.CalculateActivation(
				relatedID, 0, s.scorer.Temporal(m, now), spreadingScore,
				domain.SpreadSource(cur.hops+1), nil)
			spreadMatches = append(spreadMatches, relatedID)
			queue = append(queue, item{id: relatedID, hops: cur.hops + 1, score: spreadingScore})
		}
	}
	return spreadMatches
}

func emptyResult(start time.Time, timing map[string]float64, tier domain.FallbackTier) *domain.ActivationResult {
	return &domain.ActivationResult{
		ActivatedMemories:   []string{},
		ActivationScores:    map[string]domain.ActivationScore{},
		DirectMatches:       []string{},
		SpreadMatches:       nil,
		TotalCandidates:     0,
		ActivationLatencyMS: msSince(start),
		TimingBreakdown:     timing,
		FallbackTier:        tier,
	}
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000.0
}
