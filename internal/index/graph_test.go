package index

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mnemos-ai/mnemos/internal/core"
	"github.com/mnemos-ai/mnemos/internal/domain"
)

const testNow = int64(1_700_000_000)

func newMem(id, content string, tags, entities []string) *domain.Memory {
	return &domain.Memory{
		ID:        id,
		Content:   content,
		Meta:      domain.MemoryMetadata{Tags: tags},
		Entities:  entities,
		CreatedAt: testNow,
		LastUsed:  testNow,
		UseCount:  1,
		Strength:  1.0,
		Status:    domain.StatusActive,
	}
}

func TestBuildKeywordPostings(t *testing.T) {
	memories := []*domain.Memory{
		newMem("m1", "typescript project scaffolding", nil, nil),
		newMem("m2", "postgres connection pooling", nil, nil),
	}
	g := Build(memories, nil, core.NewKeywordExtractor(), testNow)

	got := g.FindByKeywords([]string{"typescript project scaffolding"})
	assert.True(t, got["m1"])
	assert.False(t, got["m2"])
	assert.Equal(t, 2, g.MemoryCount)
}

func TestFindByEntitiesCaseInsensitive(t *testing.T) {
	memories := []*domain.Memory{
		newMem("m1", "content", nil, []string{"PostgreSQL"}),
	}
	g := Build(memories, nil, nil, testNow)

	assert.True(t, g.FindByEntities([]string{"postgresql"})["m1"])
	assert.True(t, g.FindByEntities([]string{"POSTGRESQL"})["m1"])
	assert.Empty(t, g.FindByEntities([]string{"mysql"}))
}

func TestFindByTags(t *testing.T) {
	memories := []*domain.Memory{
		newMem("m1", "content", []string{"Infra", "db"}, nil),
		newMem("m2", "content", []string{"db"}, nil),
	}
	g := Build(memories, nil, nil, testNow)

	got := g.FindByTags([]string{"db"})
	assert.Len(t, got, 2)
	assert.True(t, g.FindByTags([]string{"infra"})["m1"])
}

func TestRelatedMemories(t *testing.T) {
	relations := []*domain.Relation{
		domain.NewRelation("a", "b", "references", 1.0, testNow),
		domain.NewRelation("a", "c", "references", 1.0, testNow),
		domain.NewRelation("b", "c", "follows_from", 1.0, testNow),
	}
	g := Build(nil, relations, nil, testNow)

	assert.ElementsMatch(t, []string{"b", "c"}, g.RelatedMemories("a"))
	assert.Equal(t, []string{"c"}, g.RelatedMemories("b"))
	assert.Empty(t, g.RelatedMemories("c"), "no reverse edges")
	assert.Equal(t, 3, g.RelationCount)
}
