// Package index builds the in-memory activation graph: inverted postings
// from keywords, entities, and tags to memory ids, plus outgoing relation
// edges for spreading. Graphs are immutable once built; callers publish a
// rebuilt graph with an atomic pointer swap.
package index

import (
	"strings"

	"github.com/mnemos-ai/mnemos/internal/core"
	"github.com/mnemos-ai/mnemos/internal/domain"
)

// keywords indexed per memory content
const keywordsPerMemory = 10

type ActivationGraph struct {
	keywordToMemories map[string][]string
	entityToMemories  map[string][]string
	tagToMemories     map[string][]string
	outgoingRelations map[string][]string

	LastUpdated   int64
	MemoryCount   int
	RelationCount int
}

// Build indexes all given memories and relations. Only the caller-supplied
// snapshot is read; the resulting graph holds no references into storage.
func Build(memories []*domain.Memory, relations []*domain.Relation, extractor *core.KeywordExtractor, now int64) *ActivationGraph {
	g := &ActivationGraph{
		keywordToMemories: make(map[string][]string),
		entityToMemories:  make(map[string][]string),
		tagToMemories:     make(map[string][]string),
		outgoingRelations: make(map[string][]string),
		LastUpdated:       now,
		MemoryCount:       len(memories),
		RelationCount:     len(relations),
	}

	for _, m := range memories {
		if extractor != nil {
			for _, kw := range extractor.Extract(m.Content, keywordsPerMemory) {
				g.keywordToMemories[kw] = append(g.keywordToMemories[kw], m.ID)
			}
		}
		for _, e := range m.Entities {
			key := strings.ToLower(e)
			g.entityToMemories[key] = append(g.entityToMemories[key], m.ID)
		}
		for _, tag := range m.Meta.Tags {
			key := strings.ToLower(tag)
			g.tagToMemories[key] = append(g.tagToMemories[key], m.ID)
		}
	}

	for _, r := range relations {
		g.outgoingRelations[r.FromMemoryID] = append(g.outgoingRelations[r.FromMemoryID], r.ToMemoryID)
	}

	return g
}

// FindByKeywords returns memory ids matching any keyword.
func (g *ActivationGraph) FindByKeywords(keywords []string) map[string]bool {
	return g.findAny(g.keywordToMemories, keywords)
}

// FindByEntities returns memory ids containing any entity (case-insensitive).
func (g *ActivationGraph) FindByEntities(entities []string) map[string]bool {
	return g.findAnyLower(g.entityToMemories, entities)
}

// FindByTags returns memory ids carrying any tag (case-insensitive).
func (g *ActivationGraph) FindByTags(tags []string) map[string]bool {
	return g.findAnyLower(g.tagToMemories, tags)
}

// RelatedMemories returns the outgoing relation targets of a memory.
// Backlinks are not indexed; callers needing them go through storage.
func (g *ActivationGraph) RelatedMemories(memoryID string) []string {
	return g.outgoingRelations[memoryID]
}

func (g *ActivationGraph) findAny(postings map[string][]string, terms []string) map[string]bool {
	out := make(map[string]bool)
	for _, term := range terms {
		for _, id := range postings[term] {
			out[id] = true
		}
	}
	return out
}

func (g *ActivationGraph) findAnyLower(postings map[string][]string, terms []string) map[string]bool {
	out := make(map[string]bool)
	for _, term := range terms {
		for _, id := range postings[strings.ToLower(term)] {
			out[id] = true
		}
	}
	return out
}
