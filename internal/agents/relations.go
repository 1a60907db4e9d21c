package agents

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/core"
	"github.com/mnemos-ai/mnemos/internal/domain"
)

const discoveredRelationType = "related"

// Confidence weights: shared entities dominate, tag overlap and content
// similarity refine. Three or more shared entities saturate the entity term.
const (
	confidenceEntityWeight  = 0.5
	confidenceTagWeight     = 0.3
	confidenceContentWeight = 0.2
	confidenceEntitySat     = 3
)

// RelationshipDiscovery links pairs of active memories that share at least
// RelationMinShared entities and clear the confidence gate. Pairs that
// already have a relation of any type are left alone, which also makes
// reruns idempotent.
type RelationshipDiscovery struct {
	store  domain.Storage
	cfg    *config.Config
	logger *zap.Logger
	clock  domain.Clock
}

func NewRelationshipDiscovery(store domain.Storage, cfg *config.Config, logger *zap.Logger, clock domain.Clock) *RelationshipDiscovery {
	return &RelationshipDiscovery{store: store, cfg: cfg, logger: logger, clock: clock}
}

func (a *RelationshipDiscovery) Name() string { return "relationship_discovery" }

type entityPair struct {
	from, to string
}

func (a *RelationshipDiscovery) Run(ctx context.Context, dryRun bool) (*Report, error) {
	now := a.clock()

	scan := func() ([]entityPair, error) {
		memories := a.store.ListMemories(domain.StatusActive, 0, 0)

		byEntity := make(map[string][]string)
		for _, m := range memories {
			seen := make(map[string]bool, len(m.Entities))
			for _, e := range m.Entities {
				key := strings.ToLower(e)
				if !seen[key] {
					seen[key] = true
					byEntity[key] = append(byEntity[key], m.ID)
				}
			}
		}

		shared := make(map[[2]string]int)
		for _, ids := range byEntity {
			sort.Strings(ids)
			for i := 0; i < len(ids); i++ {
				for j := i + 1; j < len(ids); j++ {
					shared[[2]string{ids[i], ids[j]}]++
				}
			}
		}

		related := make(map[[2]string]bool)
		for _, r := range a.store.AllRelations() {
			related[pairKey(r.FromMemoryID, r.ToMemoryID)] = true
		}

		minShared := a.cfg.RelationMinShared
		if minShared < 1 {
			minShared = 1
		}
		pairs := make([]entityPair, 0, len(shared))
		for key, count := range shared {
			if count < minShared || related[key] {
				continue
			}
			pairs = append(pairs, entityPair{from: key[0], to: key[1]})
		}
		sort.Slice(pairs, func(i, j int) bool {
			if pairs[i].from != pairs[j].from {
				return pairs[i].from < pairs[j].from
			}
			return pairs[i].to < pairs[j].to
		})
		return pairs, nil
	}
	process := func(p entityPair) (*Action, error) {
		from := a.store.GetMemory(p.from)
		to := a.store.GetMemory(p.to)
		if from == nil || to == nil ||
			from.Status != domain.StatusActive || to.Status != domain.StatusActive {
			return nil, nil
		}

		shared := sharedEntities(from, to)
		confidence, reasoning := pairConfidence(from, to, shared)
		if confidence < a.cfg.RelationMinConfidence {
			a.logger.Debug("pair below confidence gate",
				zap.String("from", p.from), zap.String("to", p.to),
				zap.Float64("confidence", confidence))
			return nil, nil
		}

		action := &Action{
			Type:      discoveredRelationType,
			MemoryIDs: []string{p.from, p.to},
			Detail:    reasoning,
		}
		if dryRun {
			return action, nil
		}

		r := domain.NewRelation(p.from, p.to, discoveredRelationType, confidence, now)
		r.Metadata = map[string]any{
			"discovered_by":   a.Name(),
			"shared_entities": shared,
			"confidence":      confidence,
			"reasoning":       reasoning,
		}
		if err := a.store.CreateRelation(r); err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return nil, nil
			}
			return nil, fmt.Errorf("relate %s and %s: %w", p.from, p.to, err)
		}
		return action, nil
	}
	return runItems(ctx, a.Name(), dryRun, a.logger, scan, process)
}

// sharedEntities returns the entities both memories mention, compared
// case-insensitively, keeping the first memory's casing.
func sharedEntities(a, b *domain.Memory) []string {
	bset := make(map[string]bool, len(b.Entities))
	for _, e := range b.Entities {
		bset[strings.ToLower(e)] = true
	}
	seen := make(map[string]bool)
	var shared []string
	for _, e := range a.Entities {
		key := strings.ToLower(e)
		if bset[key] && !seen[key] {
			seen[key] = true
			shared = append(shared, e)
		}
	}
	sort.Strings(shared)
	return shared
}

func pairConfidence(a, b *domain.Memory, shared []string) (float64, string) {
	entityFactor := float64(len(shared)) / confidenceEntitySat
	if entityFactor > 1 {
		entityFactor = 1
	}
	tagOverlap := core.Jaccard(lowerSet(a.Meta.Tags), lowerSet(b.Meta.Tags))
	contentSim := core.MemorySimilarity(a, b)

	confidence := confidenceEntityWeight*entityFactor +
		confidenceTagWeight*tagOverlap +
		confidenceContentWeight*contentSim
	if confidence > 1 {
		confidence = 1
	}
	reasoning := fmt.Sprintf("%d shared entities (%s), tag overlap %.2f, content similarity %.2f",
		len(shared), strings.Join(shared, ", "), tagOverlap, contentSim)
	return confidence, reasoning
}

func pairKey(a, b string) [2]string {
	if b < a {
		a, b = b, a
	}
	return [2]string{a, b}
}

func lowerSet(values []string) map[string]bool {
	set := make(map[string]bool, len(values))
	for _, v := range values {
		set[strings.ToLower(v)] = true
	}
	return set
}
