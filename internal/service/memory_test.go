package service

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/domain"
	"github.com/mnemos-ai/mnemos/internal/embedding"
	"github.com/mnemos-ai/mnemos/internal/store"
)

const testNow int64 = 1_700_000_000

func testClock() int64 { return testNow }

type fakeVault struct {
	written []string
	fail    bool
}

func (v *fakeVault) WriteNote(m *domain.Memory, score float64, now int64) (string, error) {
	if v.fail {
		return "", fmt.Errorf("disk full")
	}
	path := "vault/stm-promoted/" + m.ID + ".md"
	v.written = append(v.written, path)
	return path, nil
}

func newTestService(t *testing.T) (*MemoryService, *fakeVault, domain.Storage) {
	t.Helper()
	cfg := config.Default()
	cfg.EnableEmbeddings = true

	st, err := store.Open(t.TempDir(), zap.NewNop(), testClock)
	require.NoError(t, err)

	vault := &fakeVault{}
	svc := NewMemoryService(st, NewScorer(cfg), embedding.NewMockClient(), vault, cfg, zap.NewNop(), testClock)
	return svc, vault, st
}

func mustSave(t *testing.T, svc *MemoryService, content string, tags []string) string {
	t.Helper()
	resp, err := svc.Save(context.Background(), SaveRequest{Content: content, Tags: tags})
	require.NoError(t, err)
	return resp.MemoryID
}

func TestSaveValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  SaveRequest
	}{
		{"empty content", SaveRequest{Content: "   "}},
		{"oversized content", SaveRequest{Content: strings.Repeat("x", maxContentLen+1)}},
		{"too many tags", SaveRequest{Content: "ok", Tags: make([]string, maxTags+1)}},
		{"oversized tag", SaveRequest{Content: "ok", Tags: []string{strings.Repeat("t", maxTagLen+1)}}},
		{"too many entities", SaveRequest{Content: "ok", Entities: make([]string, maxEntities+1)}},
		{"oversized source", SaveRequest{Content: "ok", Source: strings.Repeat("s", maxSourceLen+1)}},
		{"oversized context", SaveRequest{Content: "ok", Context: strings.Repeat("c", maxContextLen+1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Save(ctx, tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}
}

func TestSavePersistsWithEmbedding(t *testing.T) {
	svc, _, st := newTestService(t)

	var savedID string
	svc.SetPostSaveHook(func(id string) { savedID = id })

	resp, err := svc.Save(context.Background(), SaveRequest{
		Content: "prefers tabs over spaces",
		Tags:    []string{"preferences"},
	})
	require.NoError(t, err)
	assert.True(t, resp.HasEmbedding)
	assert.Equal(t, resp.MemoryID, savedID)

	m := st.GetMemory(resp.MemoryID)
	require.NotNil(t, m)
	assert.Equal(t, 1, m.UseCount, "creation counts as first use")
	assert.Equal(t, testNow, m.LastUsed)
	assert.Equal(t, domain.StatusActive, m.Status)
	assert.NotEmpty(t, m.Embedding)
}

func TestSearchRanksSubstringMatchFirst(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.cfg.EnableEmbeddings = false

	mustSave(t, svc, "user prefers dark mode in the editor", nil)
	want := mustSave(t, svc, "project deadline moved to friday", nil)

	resp, err := svc.Search(context.Background(), SearchRequest{Query: "project deadline", TopK: 5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, want, resp.Results[0].ID)
	assert.Nil(t, resp.Results[0].Similarity)
}

func TestSearchWithEmbeddings(t *testing.T) {
	svc, _, _ := newTestService(t)

	want := mustSave(t, svc, "postgres connection pooling settings", nil)
	mustSave(t, svc, "favorite lunch spot downtown", nil)

	resp, err := svc.Search(context.Background(), SearchRequest{
		Query:         "postgres connection pooling",
		TopK:          5,
		UseEmbeddings: true,
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	assert.Equal(t, want, resp.Results[0].ID)
	require.NotNil(t, resp.Results[0].Similarity)
	assert.Greater(t, *resp.Results[0].Similarity, 0.5)
}

func TestSearchValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Search(ctx, SearchRequest{TopK: maxTopK + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.Search(ctx, SearchRequest{WindowDays: maxWindowDays + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	bad := 1.5
	_, err = svc.Search(ctx, SearchRequest{MinScore: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestTouchReinforces(t *testing.T) {
	svc, _, st := newTestService(t)
	id := mustSave(t, svc, "remember this", nil)

	resp, err := svc.Touch(id, true)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.UseCount)
	assert.InDelta(t, 1.1, resp.Strength, 1e-9)
	assert.Greater(t, resp.NewScore, resp.OldScore)

	m := st.GetMemory(id)
	require.NotNil(t, m)
	assert.Equal(t, 2, m.UseCount)

	// strength never exceeds the cap
	for i := 0; i < 20; i++ {
		resp, err = svc.Touch(id, true)
		require.NoError(t, err)
	}
	assert.LessOrEqual(t, resp.Strength, strengthCap)
}

func TestTouchUnknownMemory(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.Touch("missing", false)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func staleMemory(t *testing.T, st domain.Storage, id string, ageDays int) {
	t.Helper()
	m := &domain.Memory{
		ID:        id,
		Content:   "stale " + id,
		CreatedAt: testNow - int64(ageDays)*86400,
		LastUsed:  testNow - int64(ageDays)*86400,
		UseCount:  1,
		Strength:  1.0,
		Status:    domain.StatusActive,
	}
	require.NoError(t, st.SaveMemory(m))
}

func TestGCDryRunAndDelete(t *testing.T) {
	svc, _, st := newTestService(t)
	staleMemory(t, st, "old-a", 60)
	staleMemory(t, st, "old-b", 30)
	fresh := mustSave(t, svc, "still relevant", nil)

	dry, err := svc.GC(GCRequest{DryRun: true})
	require.NoError(t, err)
	assert.Equal(t, 2, dry.TotalAffected)
	assert.Equal(t, 2, dry.RemovedCount)
	assert.Equal(t, "old-a", dry.MemoryIDs[0], "lowest score removed first")
	require.NotNil(t, st.GetMemory("old-a"), "dry run must not mutate")

	live, err := svc.GC(GCRequest{})
	require.NoError(t, err)
	assert.Equal(t, 2, live.RemovedCount)
	assert.Greater(t, live.FreedScoreSum, 0.0)
	assert.Nil(t, st.GetMemory("old-a"))
	assert.Nil(t, st.GetMemory("old-b"))
	assert.NotNil(t, st.GetMemory(fresh))
}

func TestGCArchiveInstead(t *testing.T) {
	svc, _, st := newTestService(t)
	staleMemory(t, st, "old", 60)

	resp, err := svc.GC(GCRequest{ArchiveInstead: true})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ArchivedCount)
	assert.Equal(t, 0, resp.RemovedCount)

	m := st.GetMemory("old")
	require.NotNil(t, m)
	assert.Equal(t, domain.StatusArchived, m.Status)
}

func TestGCLimit(t *testing.T) {
	svc, _, st := newTestService(t)
	staleMemory(t, st, "old-a", 60)
	staleMemory(t, st, "old-b", 45)
	staleMemory(t, st, "old-c", 30)

	resp, err := svc.GC(GCRequest{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, resp.TotalAffected)
	assert.Nil(t, st.GetMemory("old-a"))
	assert.NotNil(t, st.GetMemory("old-c"), "highest score survives the limit")
}

func TestPromoteIneligibleWithoutForce(t *testing.T) {
	svc, vault, st := newTestService(t)
	staleMemory(t, st, "meh", 9)

	resp, err := svc.Promote(PromoteRequest{MemoryID: "meh"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.Ineligible)
	assert.Empty(t, resp.PromotedIDs)
	assert.Empty(t, vault.written)
}

func TestPromoteForceWritesVault(t *testing.T) {
	svc, vault, st := newTestService(t)
	staleMemory(t, st, "meh", 9)

	resp, err := svc.Promote(PromoteRequest{MemoryID: "meh", Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.PromotedCount)
	require.Len(t, vault.written, 1)

	m := st.GetMemory("meh")
	require.NotNil(t, m)
	assert.Equal(t, domain.StatusPromoted, m.Status)
	assert.Equal(t, vault.written[0], m.PromotedTo)
	require.NotNil(t, m.PromotedAt)
	assert.Equal(t, testNow, *m.PromotedAt)
}

func TestPromoteAlreadyPromotedConflicts(t *testing.T) {
	svc, _, st := newTestService(t)
	staleMemory(t, st, "meh", 9)

	_, err := svc.Promote(PromoteRequest{MemoryID: "meh", Force: true})
	require.NoError(t, err)

	_, err = svc.Promote(PromoteRequest{MemoryID: "meh", Force: true})
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), "vault/stm-promoted/meh.md")

	_, err = svc.Promote(PromoteRequest{MemoryID: "nope"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestPromoteAutoDetect(t *testing.T) {
	svc, vault, _ := newTestService(t)
	hot := mustSave(t, svc, "heavily used fact", nil)
	for i := 0; i < 5; i++ {
		_, err := svc.Touch(hot, false)
		require.NoError(t, err)
	}
	mustSave(t, svc, "barely used", nil)

	dry, err := svc.Promote(PromoteRequest{AutoDetect: true, DryRun: true})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, dry.CandidatesFound, 1)
	assert.Empty(t, vault.written, "dry run must not write the vault")

	live, err := svc.Promote(PromoteRequest{AutoDetect: true})
	require.NoError(t, err)
	assert.Contains(t, live.PromotedIDs, hot)
	assert.NotEmpty(t, vault.written)
}

func TestPromoteDryRunCandidatePreviews(t *testing.T) {
	svc, _, _ := newTestService(t)
	id := mustSave(t, svc, strings.Repeat("long content ", 20), nil)
	for i := 0; i < 5; i++ {
		_, err := svc.Touch(id, false)
		require.NoError(t, err)
	}

	resp, err := svc.Promote(PromoteRequest{AutoDetect: true, DryRun: true})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Candidates)
	assert.LessOrEqual(t, len(resp.Candidates[0].ContentPreview), previewLen)
	assert.NotEmpty(t, resp.Candidates[0].Reason)
}

func TestClusterFindsDuplicates(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustSave(t, svc, "deploy the api server with docker compose", nil)
	mustSave(t, svc, "deploy the api server with docker compose today", nil)
	mustSave(t, svc, "completely unrelated gardening notes about tulips", nil)

	resp, err := svc.Cluster(ClusterRequest{FindDuplicates: true})
	require.NoError(t, err)
	assert.Equal(t, "duplicate_detection", resp.Mode)
	require.GreaterOrEqual(t, resp.DuplicatesFound, 1)
	assert.Greater(t, resp.Duplicates[0].Similarity, 0.88)
}

func TestClusterReportsReviewBand(t *testing.T) {
	svc, _, _ := newTestService(t)
	svc.cfg.EnableEmbeddings = false
	mustSave(t, svc, "deploy the api server with docker compose", nil)
	mustSave(t, svc, "deploy the api server with docker compose today", nil)
	mustSave(t, svc, "completely unrelated gardening notes about tulips", nil)

	resp, err := svc.Cluster(ClusterRequest{FindDuplicates: true})
	require.NoError(t, err)

	// token overlap 7/8 lands between semantic_lo and semantic_hi
	assert.Zero(t, resp.DuplicatesFound)
	require.Equal(t, 1, resp.ReviewFound)
	sim := resp.Review[0].Similarity
	assert.GreaterOrEqual(t, sim, svc.cfg.SemanticLo)
	assert.Less(t, sim, svc.cfg.SemanticHi)
}

func TestClusterGroupsSimilarMemories(t *testing.T) {
	svc, _, _ := newTestService(t)
	mustSave(t, svc, "configure nginx reverse proxy for the app", nil)
	mustSave(t, svc, "configure nginx reverse proxy with tls for the app", nil)
	mustSave(t, svc, "birthday gift ideas for sam", nil)

	threshold := 0.7
	resp, err := svc.Cluster(ClusterRequest{Threshold: &threshold})
	require.NoError(t, err)
	assert.Equal(t, "clustering", resp.Mode)
	require.Equal(t, 1, resp.ClustersFound)
	assert.Equal(t, 2, resp.Clusters[0].Size)
	assert.NotEmpty(t, resp.Clusters[0].SuggestedAction)
}

func TestOpenWithRelations(t *testing.T) {
	svc, _, _ := newTestService(t)
	a := mustSave(t, svc, "memory a", nil)
	b := mustSave(t, svc, "memory b", nil)
	_, err := svc.CreateRelation(CreateRelationRequest{FromMemoryID: a, ToMemoryID: b, RelationType: "relates_to"})
	require.NoError(t, err)

	resp, err := svc.Open([]string{a, b, "ghost"}, true, true)
	require.NoError(t, err)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, []string{"ghost"}, resp.NotFound)

	first := resp.Memories[0]
	require.NotNil(t, first.Score)
	require.Len(t, first.Outgoing, 1)
	assert.Equal(t, b, first.Outgoing[0].MemoryID)

	second := resp.Memories[1]
	require.Len(t, second.Incoming, 1)
	assert.Equal(t, a, second.Incoming[0].MemoryID)
}

func TestCreateRelationErrors(t *testing.T) {
	svc, _, _ := newTestService(t)
	a := mustSave(t, svc, "memory a", nil)
	b := mustSave(t, svc, "memory b", nil)

	_, err := svc.CreateRelation(CreateRelationRequest{FromMemoryID: a, ToMemoryID: "ghost", RelationType: "relates_to"})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.CreateRelation(CreateRelationRequest{FromMemoryID: a, ToMemoryID: b, RelationType: "relates_to"})
	require.NoError(t, err)
	_, err = svc.CreateRelation(CreateRelationRequest{FromMemoryID: a, ToMemoryID: b, RelationType: "relates_to"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	bad := 1.5
	_, err = svc.CreateRelation(CreateRelationRequest{FromMemoryID: a, ToMemoryID: b, RelationType: "x", Strength: &bad})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestReadGraphStatsAndPagination(t *testing.T) {
	svc, _, _ := newTestService(t)
	for i := 0; i < 15; i++ {
		mustSave(t, svc, fmt.Sprintf("memory number %d", i), nil)
	}

	resp, err := svc.ReadGraph(ReadGraphRequest{IncludeScores: true, Page: 2, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 15, resp.Stats.TotalMemories)
	assert.Equal(t, "active", resp.Stats.StatusFilter)
	assert.Greater(t, resp.Stats.AvgScore, 0.0)
	assert.Len(t, resp.Memories, 5)
	assert.Equal(t, 2, resp.Pagination.Page)
	assert.True(t, resp.Pagination.HasPrevious)
	assert.False(t, resp.Pagination.HasMore)
	require.NotNil(t, resp.Memories[0].Score)
}

func TestReadGraphValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.ReadGraph(ReadGraphRequest{Status: "bogus"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.ReadGraph(ReadGraphRequest{Limit: maxGraphLimit + 1})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestMutationHookFires(t *testing.T) {
	svc, _, _ := newTestService(t)
	var fired int
	svc.SetMutationHook(func() { fired++ })

	mustSave(t, svc, "something", nil)
	assert.Equal(t, 1, fired)
}
