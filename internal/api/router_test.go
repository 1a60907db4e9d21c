package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/agents"
	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/domain"
	"github.com/mnemos-ai/mnemos/internal/embedding"
	"github.com/mnemos-ai/mnemos/internal/service"
	"github.com/mnemos-ai/mnemos/internal/store"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := config.Default()
	cfg.EnableEmbeddings = true
	logger := zap.NewNop()

	st, err := store.Open(t.TempDir(), logger, domain.RealClock)
	require.NoError(t, err)

	scorer := service.NewScorer(cfg)
	memories := service.NewMemoryService(st, scorer, embedding.NewMockClient(), nil, cfg, logger, domain.RealClock)
	activation := service.NewActivationService(st, scorer, cfg, logger, domain.RealClock)
	memories.SetMutationHook(activation.RebuildIndex)

	return NewApp(Deps{
		Config:     cfg,
		Logger:     logger,
		Memories:   memories,
		Activation: activation,
		Unified:    service.NewUnifiedSearch(memories, nil, cfg, logger),
		Scheduler:  agents.NewScheduler(st, scorer, nil, cfg, logger, domain.RealClock),
	})
}

func doJSON(t *testing.T, app *App, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	app.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndVersion(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	rec = doJSON(t, app, http.MethodGet, "/version", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var version map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &version))
	assert.Contains(t, version, "version")
}

func TestSaveSearchTouchRoundTrip(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, http.MethodPost, "/v1/memories", map[string]any{
		"content": "the staging database lives on host db-stage-2",
		"tags":    []string{"infra"},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	var saved service.SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	require.NotEmpty(t, saved.MemoryID)

	rec = doJSON(t, app, http.MethodPost, "/v1/memories/search", map[string]any{
		"query": "staging database",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var found service.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	require.Equal(t, 1, found.Count)
	assert.Equal(t, saved.MemoryID, found.Results[0].ID)

	rec = doJSON(t, app, http.MethodPost, "/v1/memories/"+saved.MemoryID+"/touch", map[string]any{
		"boost_strength": true,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var touched service.TouchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &touched))
	assert.Equal(t, 2, touched.UseCount)
}

func TestErrorStatusMapping(t *testing.T) {
	app := newTestApp(t)

	// unknown memory id
	rec := doJSON(t, app, http.MethodPost, "/v1/memories/ghost/touch", map[string]any{})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// invalid save
	rec = doJSON(t, app, http.MethodPost, "/v1/memories", map[string]any{"content": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// promotion without a vault
	rec = doJSON(t, app, http.MethodPost, "/v1/memories", map[string]any{"content": "promote me"})
	require.Equal(t, http.StatusCreated, rec.Code)
	var saved service.SaveResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	rec = doJSON(t, app, http.MethodPost, "/v1/memories/promote", map[string]any{
		"memory_id": saved.MemoryID,
		"force":     true,
	})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestActivateEndpoint(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, http.MethodPost, "/v1/memories", map[string]any{
		"content": "Set up a TypeScript project",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, app, http.MethodPost, "/v1/activate/", map[string]any{
		"message": "Help me set up a TypeScript project",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var result domain.ActivationResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, domain.TierFull, result.FallbackTier)
	assert.Len(t, result.ActivatedMemories, 1)
}

func TestActivateEndpointBounds(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, http.MethodPost, "/v1/activate/", map[string]any{
		"message":      "anything",
		"max_memories": 500,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, app, http.MethodPost, "/v1/activate/", map[string]any{
		"message":   "anything",
		"threshold": 1.5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnifiedSearchEndpointWithoutVault(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, http.MethodPost, "/v1/memories", map[string]any{
		"content": "kubernetes ingress rewrite rules",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, app, http.MethodPost, "/v1/search", map[string]any{
		"query": "kubernetes ingress",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp service.UnifiedResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.STMCount)
	assert.Zero(t, resp.LTMCount)
}

func TestConsolidateEndpointDryRun(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, http.MethodPost, "/v1/consolidate/", map[string]any{"dry_run": true})
	require.Equal(t, http.StatusOK, rec.Code)
	var reports []*agents.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reports))
	assert.Len(t, reports, 5)

	rec = doJSON(t, app, http.MethodPost, "/v1/consolidate/", map[string]any{"agent": "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageStatsEndpoint(t *testing.T) {
	app := newTestApp(t)

	rec := doJSON(t, app, http.MethodGet, "/v1/graph?include_scores=true", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, app, http.MethodGet, "/v1/storage/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var stats domain.StorageStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.False(t, stats.ShouldCompact)
}
