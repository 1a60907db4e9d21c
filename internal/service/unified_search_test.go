package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

type fakeLTM struct {
	results  []*domain.LTMSearchResult
	err      error
	gotQuery string
	gotTags  []string
	gotLimit int
}

func (f *fakeLTM) Search(query string, tags []string, limit int) ([]*domain.LTMSearchResult, error) {
	f.gotQuery, f.gotTags, f.gotLimit = query, tags, limit
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func newUnifiedFixture(t *testing.T, ltm LTMSearcher) (*UnifiedSearch, *MemoryService, domain.Storage) {
	t.Helper()
	svc, _, st := newTestService(t)
	svc.cfg.EnableEmbeddings = false
	return NewUnifiedSearch(svc, ltm, svc.cfg, zap.NewNop()), svc, st
}

func TestUnifiedSearchMergesTiers(t *testing.T) {
	ltm := &fakeLTM{results: []*domain.LTMSearchResult{
		{Note: &domain.LTMNote{Path: "notes/ts.md", Title: "TypeScript setup", Content: "archived typescript project notes"}, Relevance: 1.0},
	}}
	unified, svc, _ := newUnifiedFixture(t, ltm)
	stmID := mustSave(t, svc, "current typescript project uses strict mode", nil)

	resp, err := unified.Search(context.Background(), UnifiedRequest{Query: "typescript project"})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, 1, resp.STMCount)
	assert.Equal(t, 1, resp.LTMCount)

	// short-term outranks long-term: 1.0 weight vs 0.7
	assert.Equal(t, "stm", resp.Results[0].Source)
	assert.Equal(t, stmID, resp.Results[0].ID)
	assert.Equal(t, "ltm", resp.Results[1].Source)
	assert.Equal(t, "notes/ts.md", resp.Results[1].Path)
	assert.InDelta(t, 0.7, resp.Results[1].Score, 1e-9)
	assert.Greater(t, resp.Results[0].Score, resp.Results[1].Score)
}

func TestUnifiedSearchDeduplicates(t *testing.T) {
	content := "typescript project uses strict mode"
	ltm := &fakeLTM{results: []*domain.LTMSearchResult{
		{Note: &domain.LTMNote{Path: "notes/dup.md", Title: "dup", Content: content}, Relevance: 1.0},
	}}
	unified, svc, _ := newUnifiedFixture(t, ltm)
	mustSave(t, svc, content, nil)

	resp, err := unified.Search(context.Background(), UnifiedRequest{Query: "typescript project"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count, "identical content collapses, short-term wins")
	assert.Equal(t, "stm", resp.Results[0].Source)
	assert.Zero(t, resp.LTMCount)
}

func TestUnifiedSearchDegradesWithoutLTM(t *testing.T) {
	tests := []struct {
		name string
		ltm  LTMSearcher
	}{
		{"nil searcher", nil},
		{"dependency error", &fakeLTM{err: fmt.Errorf("%w: vault not configured", domain.ErrDependency)}},
		{"transient error", &fakeLTM{err: fmt.Errorf("read index: permission denied")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unified, svc, _ := newUnifiedFixture(t, tt.ltm)
			mustSave(t, svc, "typescript project uses strict mode", nil)

			resp, err := unified.Search(context.Background(), UnifiedRequest{Query: "typescript project"})
			require.NoError(t, err)
			assert.Equal(t, 1, resp.STMCount)
			assert.Zero(t, resp.LTMCount)
		})
	}
}

func TestUnifiedSearchValidation(t *testing.T) {
	unified, _, _ := newUnifiedFixture(t, nil)

	_, err := unified.Search(context.Background(), UnifiedRequest{Query: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = unified.Search(context.Background(), UnifiedRequest{Query: "ok", TopK: maxTopK + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	bad := -0.5
	_, err = unified.Search(context.Background(), UnifiedRequest{Query: "ok", STMWeight: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestUnifiedSearchLongContentTruncated(t *testing.T) {
	long := make([]byte, 2000)
	for i := range long {
		long[i] = 'a'
	}
	ltm := &fakeLTM{results: []*domain.LTMSearchResult{
		{Note: &domain.LTMNote{Path: "notes/long.md", Title: "long", Content: "typescript " + string(long)}, Relevance: 0.9},
	}}
	unified, _, _ := newUnifiedFixture(t, ltm)

	resp, err := unified.Search(context.Background(), UnifiedRequest{Query: "typescript"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count)
	assert.LessOrEqual(t, len(resp.Results[0].Content), ltmContentPreview)
}

func TestUnifiedSearchKeepsHigherScoredDuplicate(t *testing.T) {
	content := "typescript project uses strict mode"
	ltm := &fakeLTM{results: []*domain.LTMSearchResult{
		{Note: &domain.LTMNote{Path: "notes/dup.md", Title: "dup", Content: content}, Relevance: 1.0},
	}}
	unified, _, st := newUnifiedFixture(t, ltm)

	// decayed short-term copy: 12 days idle scores 2^-4, well under the
	// weighted long-term 0.7
	ts := testNow - 12*86400
	require.NoError(t, st.SaveMemory(&domain.Memory{
		ID:        "old",
		Content:   content,
		CreatedAt: ts,
		LastUsed:  ts,
		UseCount:  1,
		Strength:  1.0,
		Status:    domain.StatusActive,
	}))

	resp, err := unified.Search(context.Background(), UnifiedRequest{Query: "typescript project"})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count, "identical content collapses, higher score wins")
	assert.Equal(t, "ltm", resp.Results[0].Source)
	assert.Equal(t, 1, resp.LTMCount)
	assert.Zero(t, resp.STMCount)
}

func TestUnifiedSearchPlumbsFilters(t *testing.T) {
	ltm := &fakeLTM{}
	unified, svc, _ := newUnifiedFixture(t, ltm)
	mustSave(t, svc, "grafana dashboard tweaks", []string{"infra"})
	mustSave(t, svc, "sourdough starter schedule", []string{"cooking"})

	minScore := 0.01
	resp, err := unified.Search(context.Background(), UnifiedRequest{
		Query:      "schedule dashboard",
		Tags:       []string{"infra"},
		TopK:       5,
		WindowDays: 30,
		MinScore:   &minScore,
	})
	require.NoError(t, err)
	require.Equal(t, 1, resp.Count, "tag filter drops the cooking memory")
	assert.Equal(t, "grafana dashboard tweaks", resp.Results[0].Content)

	assert.Equal(t, "schedule dashboard", ltm.gotQuery)
	assert.Equal(t, []string{"infra"}, ltm.gotTags)
	assert.Equal(t, 5, ltm.gotLimit)
}

func TestUnifiedSearchPerRequestWeights(t *testing.T) {
	ltm := &fakeLTM{results: []*domain.LTMSearchResult{
		{Note: &domain.LTMNote{Path: "notes/ts.md", Title: "TypeScript setup", Content: "archived typescript project notes"}, Relevance: 1.0},
	}}
	unified, svc, _ := newUnifiedFixture(t, ltm)
	mustSave(t, svc, "current typescript project uses strict mode", nil)

	stmWeight := 0.1
	resp, err := unified.Search(context.Background(), UnifiedRequest{Query: "typescript project", STMWeight: &stmWeight})
	require.NoError(t, err)
	require.Equal(t, 2, resp.Count)
	assert.Equal(t, "ltm", resp.Results[0].Source, "down-weighted short-term loses the top slot")
	assert.Equal(t, "stm", resp.Results[1].Source)
}
