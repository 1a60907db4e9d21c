package core

import (
	"sort"

	"github.com/google/uuid"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

// Cohesion bands for the suggested cluster action.
const (
	autoMergeCohesion = 0.90
	llmReviewCohesion = 0.75
)

type ClusterParams struct {
	Threshold      float64
	MinClusterSize int
	MaxClusterSize int
}

type DuplicatePair struct {
	First      *domain.Memory
	Second     *domain.Memory
	Similarity float64
}

// MemorySimilarity compares two memories: cosine over embeddings when both
// carry one, token Jaccard over content otherwise.
func MemorySimilarity(a, b *domain.Memory) float64 {
	if len(a.Embedding) > 0 && len(a.Embedding) == len(b.Embedding) {
		sim, err := Cosine(a.Embedding, b.Embedding)
		if err == nil {
			return sim
		}
	}
	return TextSimilarity(a.Content, b.Content)
}

// ClusterMemories groups memories by single-linkage clustering: a memory
// joins a cluster when it clears the threshold against any member. Clusters
// below MinClusterSize are dropped; oversized ones are truncated. Cohesion
// is the mean pairwise similarity of the final members.
func ClusterMemories(memories []*domain.Memory, p ClusterParams) []*domain.Cluster {
	if p.MinClusterSize < 2 {
		p.MinClusterSize = 2
	}

	var groups [][]*domain.Memory
	for _, m := range memories {
		var similar []int
		for idx, group := range groups {
			for _, member := range group {
				if MemorySimilarity(m, member) >= p.Threshold {
					similar = append(similar, idx)
					break
				}
			}
		}
		if len(similar) == 0 {
			groups = append(groups, []*domain.Memory{m})
			continue
		}
		// merge into the first similar group, then fold the rest in
		target := similar[0]
		groups[target] = append(groups[target], m)
		for i := len(similar) - 1; i >= 1; i-- {
			idx := similar[i]
			groups[target] = append(groups[target], groups[idx]...)
			groups = append(groups[:idx], groups[idx+1:]...)
		}
	}

	var clusters []*domain.Cluster
	for _, group := range groups {
		if len(group) < p.MinClusterSize {
			continue
		}
		if p.MaxClusterSize > 0 && len(group) > p.MaxClusterSize {
			group = group[:p.MaxClusterSize]
		}

		cohesion := meanPairwiseSimilarity(group)
		action := domain.ActionKeepSeparate
		switch {
		case cohesion >= autoMergeCohesion:
			action = domain.ActionAutoMerge
		case cohesion >= llmReviewCohesion:
			action = domain.ActionLLMReview
		}

		var centroid []float32
		if embeddings := groupEmbeddings(group); len(embeddings) == len(group) {
			centroid = Centroid(embeddings)
		}

		clusters = append(clusters, &domain.Cluster{
			ID:              uuid.NewString(),
			Memories:        group,
			Centroid:        centroid,
			Cohesion:        cohesion,
			SuggestedAction: action,
		})
	}
	return clusters
}

// FindDuplicates returns memory pairs at or above the threshold, most
// similar first.
func FindDuplicates(memories []*domain.Memory, threshold float64) []DuplicatePair {
	var pairs []DuplicatePair
	for i := 0; i < len(memories); i++ {
		for j := i + 1; j < len(memories); j++ {
			sim := MemorySimilarity(memories[i], memories[j])
			if sim >= threshold {
				pairs = append(pairs, DuplicatePair{
					First:      memories[i],
					Second:     memories[j],
					Similarity: sim,
				})
			}
		}
	}
	sort.SliceStable(pairs, func(i, j int) bool {
		return pairs[i].Similarity > pairs[j].Similarity
	})
	return pairs
}

func meanPairwiseSimilarity(group []*domain.Memory) float64 {
	if len(group) < 2 {
		return 1.0
	}
	var sum float64
	n := 0
	for i := 0; i < len(group); i++ {
		for j := i + 1; j < len(group); j++ {
			sum += MemorySimilarity(group[i], group[j])
			n++
		}
	}
	return sum / float64(n)
}

func groupEmbeddings(group []*domain.Memory) [][]float32 {
	var out [][]float32
	for _, m := range group {
		if len(m.Embedding) == 0 {
			return nil
		}
		out = append(out, m.Embedding)
	}
	return out
}
