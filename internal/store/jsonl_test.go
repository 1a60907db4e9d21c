package store

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

const testNow = int64(1_700_000_000)

func testClock() int64 { return testNow }

func openTestStore(t *testing.T, dir string) *JSONL {
	t.Helper()
	s, err := Open(dir, zap.NewNop(), testClock)
	require.NoError(t, err)
	return s
}

func mem(content string, tags []string) *domain.Memory {
	return domain.NewMemory(content, domain.MemoryMetadata{Tags: tags}, nil, testNow)
}

func TestSaveAndGetMemory(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	m := mem("redis runs on port 6380 in staging", []string{"infra"})
	require.NoError(t, s.SaveMemory(m))

	got := s.GetMemory(m.ID)
	require.NotNil(t, got)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, domain.StatusActive, got.Status)

	assert.Nil(t, s.GetMemory("missing"))
}

func TestReloadConvergence(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)

	kept := mem("kept", nil)
	updated := mem("updated", nil)
	deleted := mem("deleted", nil)
	require.NoError(t, s.SaveMemory(kept))
	require.NoError(t, s.SaveMemory(updated))
	require.NoError(t, s.SaveMemory(deleted))

	newCount := 7
	ok, err := s.UpdateMemory(updated.ID, domain.MemoryUpdate{UseCount: &newCount})
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.DeleteMemory(deleted.ID)
	require.NoError(t, err)
	require.True(t, ok)

	// a fresh load over the same files must converge to the same state
	reloaded := openTestStore(t, dir)
	assert.Equal(t, 2, reloaded.CountMemories(""))
	assert.Nil(t, reloaded.GetMemory(deleted.ID))
	got := reloaded.GetMemory(updated.ID)
	require.NotNil(t, got)
	assert.Equal(t, 7, got.UseCount)
}

func TestUpdateMemoryUnknownID(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	n := 3
	ok, err := s.UpdateMemory("nope", domain.MemoryUpdate{UseCount: &n})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDeleteMemoryUnknownID(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	ok, err := s.DeleteMemory("nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestListMemoriesSortedByLastUsed(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	old := mem("old", nil)
	old.LastUsed = testNow - 86400
	recent := mem("recent", nil)
	require.NoError(t, s.SaveMemory(old))
	require.NoError(t, s.SaveMemory(recent))

	got := s.ListMemories("", 0, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "recent", got[0].Content)
	assert.Equal(t, "old", got[1].Content)

	limited := s.ListMemories("", 1, 1)
	require.Len(t, limited, 1)
	assert.Equal(t, "old", limited[0].Content)
}

func TestSearchMemoriesFilters(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	tagged := mem("tagged", []string{"go", "perf"})
	stale := mem("stale", []string{"go"})
	stale.LastUsed = testNow - 30*86400
	archived := mem("archived", []string{"go"})
	archived.Status = domain.StatusArchived
	require.NoError(t, s.SaveMemory(tagged))
	require.NoError(t, s.SaveMemory(stale))
	require.NoError(t, s.SaveMemory(archived))

	got := s.SearchMemories(domain.StoreQuery{
		Tags:       []string{"perf", "unused"},
		Status:     domain.StatusActive,
		WindowDays: 7,
		Limit:      10,
	})
	require.Len(t, got, 1)
	assert.Equal(t, "tagged", got[0].Content)

	// any-overlap tag match, no window
	got = s.SearchMemories(domain.StoreQuery{Tags: []string{"go"}, Status: domain.StatusActive, Limit: 10})
	assert.Len(t, got, 2)
}

func TestCreateRelationDuplicateConflict(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	r := domain.NewRelation("a", "b", "references", 1.0, testNow)
	require.NoError(t, s.CreateRelation(r))

	dup := domain.NewRelation("a", "b", "references", 0.5, testNow)
	err := s.CreateRelation(dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Contains(t, err.Error(), r.ID)

	// a different type between the same pair is fine
	other := domain.NewRelation("a", "b", "follows_from", 1.0, testNow)
	assert.NoError(t, s.CreateRelation(other))
	assert.Len(t, s.AllRelations(), 2)
}

func TestRelationsFilter(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	require.NoError(t, s.CreateRelation(domain.NewRelation("a", "b", "references", 1.0, testNow)))
	require.NoError(t, s.CreateRelation(domain.NewRelation("b", "c", "references", 1.0, testNow)))
	require.NoError(t, s.CreateRelation(domain.NewRelation("a", "c", "similar_to", 1.0, testNow)))

	assert.Len(t, s.Relations(domain.RelationFilter{FromMemoryID: "a"}), 2)
	assert.Len(t, s.Relations(domain.RelationFilter{ToMemoryID: "c"}), 2)
	assert.Len(t, s.Relations(domain.RelationFilter{RelationType: "references"}), 2)
	assert.Len(t, s.Relations(domain.RelationFilter{FromMemoryID: "a", RelationType: "similar_to"}), 1)
}

func TestCompactDropsDeadLines(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)

	m := mem("compact me", nil)
	require.NoError(t, s.SaveMemory(m))
	for i := 0; i < 4; i++ {
		n := i + 2
		_, err := s.UpdateMemory(m.ID, domain.MemoryUpdate{UseCount: &n})
		require.NoError(t, err)
	}
	gone := mem("gone", nil)
	require.NoError(t, s.SaveMemory(gone))
	_, err := s.DeleteMemory(gone.ID)
	require.NoError(t, err)

	res, err := s.Compact()
	require.NoError(t, err)
	assert.Equal(t, 7, res.MemoriesBefore) // 5 versions + 1 record + 1 tombstone
	assert.Equal(t, 1, res.MemoriesAfter)

	reloaded := openTestStore(t, dir)
	got := reloaded.GetMemory(m.ID)
	require.NotNil(t, got)
	assert.Equal(t, 5, got.UseCount)
	assert.Nil(t, reloaded.GetMemory(gone.ID))
}

func TestStats(t *testing.T) {
	s := openTestStore(t, t.TempDir())

	m := mem("stats", nil)
	require.NoError(t, s.SaveMemory(m))
	n := 2
	_, err := s.UpdateMemory(m.ID, domain.MemoryUpdate{UseCount: &n})
	require.NoError(t, err)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Memories.Active)
	assert.Equal(t, 2, stats.Memories.TotalLines)
	assert.Equal(t, 1, stats.Memories.CompactionSavings)
	assert.Greater(t, stats.Memories.FileSizeBytes, int64(0))
	assert.False(t, stats.ShouldCompact)
}

func TestLoadAbortsOnMalformedInteriorLine(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	require.NoError(t, s.SaveMemory(mem("first", nil)))
	require.NoError(t, s.SaveMemory(mem("last", nil)))

	// corrupt the middle of the file
	path := filepath.Join(dir, "memories.jsonl")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	corrupted := append([]byte("{broken\n"), data...)
	require.NoError(t, os.WriteFile(path, corrupted, 0o644))

	_, err = Open(dir, zap.NewNop(), testClock)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")
}

func TestLoadSkipsTornFinalLine(t *testing.T) {
	dir := t.TempDir()
	s := openTestStore(t, dir)
	require.NoError(t, s.SaveMemory(mem("intact", nil)))

	path := filepath.Join(dir, "memories.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"torn","content":"trunc`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reloaded, err := Open(dir, zap.NewNop(), testClock)
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.CountMemories(""))
}

func TestSaveUpsertsByID(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	m := mem("v1", nil)
	require.NoError(t, s.SaveMemory(m))
	m.Content = "v2"
	require.NoError(t, s.SaveMemory(m))

	assert.Equal(t, 1, s.CountMemories(""))
	assert.Equal(t, "v2", s.GetMemory(m.ID).Content)
}

func TestSnapshot(t *testing.T) {
	s := openTestStore(t, t.TempDir())
	for i := 0; i < 3; i++ {
		require.NoError(t, s.SaveMemory(mem(fmt.Sprintf("m%d", i), nil)))
	}
	require.NoError(t, s.CreateRelation(domain.NewRelation("a", "b", "references", 1.0, testNow)))

	memories, relations := s.Snapshot()
	assert.Len(t, memories, 3)
	assert.Len(t, relations, 1)
}
