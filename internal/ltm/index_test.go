package ltm

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

func writeNoteFile(t *testing.T, vault, name, body string) {
	t.Helper()
	path := filepath.Join(vault, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func newTestIndex(t *testing.T) (*Index, string) {
	t.Helper()
	vault := t.TempDir()
	idx := NewIndex(vault, filepath.Join(vault, ".stm-index.jsonl"), zap.NewNop())
	return idx, vault
}

func TestSearchRanksTitleAboveContent(t *testing.T) {
	idx, vault := newTestIndex(t)
	writeNoteFile(t, vault, "a.md", "---\ntitle: Docker deployment guide\n---\n\ndocker steps for production rollout\n")
	writeNoteFile(t, vault, "b.md", "---\ntitle: Meeting notes\n---\n\nwe discussed docker briefly\n")
	writeNoteFile(t, vault, "c.md", "---\ntitle: Gardening\n---\n\ntulips and daffodils\n")

	results, err := idx.Search("docker", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 2)

	// title plus content hit: (2+1)/3 = 1.0; content only: 1/3
	assert.Equal(t, "a.md", results[0].Note.Path)
	assert.InDelta(t, 1.0, results[0].Relevance, 1e-9)
	assert.InDelta(t, 1.0/3.0, results[1].Relevance, 1e-9)
}

func TestSearchFiltersByTags(t *testing.T) {
	idx, vault := newTestIndex(t)
	writeNoteFile(t, vault, "a.md", "---\ntitle: Docker deployment guide\ntags: [infra]\n---\n\ndocker rollout steps\n")
	writeNoteFile(t, vault, "b.md", "---\ntitle: Docker for local dev\ntags: [tooling]\n---\n\ndocker compose tips\n")

	results, err := idx.Search("docker", []string{"infra"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a.md", results[0].Note.Path)

	// tags without a query return every tagged note at flat relevance
	results, err = idx.Search("", []string{"Tooling"}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b.md", results[0].Note.Path)
	assert.InDelta(t, 0.5, results[0].Relevance, 1e-9)
}

func TestSearchTagOnlyMatch(t *testing.T) {
	idx, vault := newTestIndex(t)
	writeNoteFile(t, vault, "a.md", "---\ntitle: Weekly review\ntags: [docker, infra]\n---\n\nnothing else relevant\n")

	results, err := idx.Search("docker", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 0.5, results[0].Relevance, 1e-9)
}

func TestSearchUnconfiguredVault(t *testing.T) {
	idx := NewIndex("", "", zap.NewNop())
	_, err := idx.Search("anything", nil, 5)
	assert.ErrorIs(t, err, domain.ErrDependency)
}

func TestIndexPersistsAcrossRestarts(t *testing.T) {
	idx, vault := newTestIndex(t)
	writeNoteFile(t, vault, "notes/a.md", "---\ntitle: Docker guide\n---\n\ncontent here\n")
	require.NoError(t, idx.Rebuild())

	// a fresh index loads from the persisted file without a rescan
	again := NewIndex(vault, filepath.Join(vault, ".stm-index.jsonl"), zap.NewNop())
	results, err := again.Search("docker", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, filepath.Join("notes", "a.md"), results[0].Note.Path)
}

func TestMarkStaleTriggersRescan(t *testing.T) {
	idx, vault := newTestIndex(t)
	require.NoError(t, idx.Rebuild())

	results, err := idx.Search("docker", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, results)

	writeNoteFile(t, vault, "new.md", "---\ntitle: Docker tips\n---\n\nuse multi-stage builds\n")
	idx.MarkStale()

	results, err = idx.Search("docker", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
}

func TestWatcherMarksIndexStale(t *testing.T) {
	idx, vault := newTestIndex(t)
	require.NoError(t, idx.Rebuild())

	w, err := Watch(vault, idx, zap.NewNop())
	require.NoError(t, err)
	defer func() { _ = w.Close() }()

	writeNoteFile(t, vault, "fresh.md", "---\ntitle: Docker compose\n---\n\nservice definitions\n")

	require.Eventually(t, func() bool {
		results, err := idx.Search("docker", nil, 10)
		return err == nil && len(results) == 1
	}, 2*time.Second, 20*time.Millisecond)
}

func TestParseNoteWithoutFrontmatter(t *testing.T) {
	idx, vault := newTestIndex(t)
	writeNoteFile(t, vault, "plain.md", "just some docker content\n")
	require.NoError(t, idx.Rebuild())

	results, err := idx.Search("docker", nil, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "plain", results[0].Note.Title)
}
