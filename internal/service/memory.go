package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/core"
	"github.com/mnemos-ai/mnemos/internal/domain"
)

// Validation limits for the tool surface.
const (
	maxContentLen  = 50000
	maxTagLen      = 100
	maxTags        = 50
	maxEntities    = 100
	maxSourceLen   = 500
	maxContextLen  = 1000
	maxTopK        = 100
	maxWindowDays  = 3650
	maxGraphLimit  = 10000
	defaultTopK    = 10
	strengthCap    = 2.0
	strengthBoost  = 0.1
	previewLen     = 100
	clusterPreview = 80
)

// VaultWriter persists a promoted memory as a long-term note and returns
// the path it landed at.
type VaultWriter interface {
	WriteNote(m *domain.Memory, score float64, now int64) (string, error)
}

// MemoryService implements the tool surface: save, search, touch, gc,
// promote, cluster, open, read-graph, create-relation, stats, compact.
type MemoryService struct {
	store    domain.Storage
	scorer   *Scorer
	embedder domain.EmbeddingClient
	vault    VaultWriter
	cfg      *config.Config
	logger   *zap.Logger
	clock    domain.Clock

	onMutation func()       // activation index invalidation
	onSave     func(string) // post-save urgent check
}

func NewMemoryService(store domain.Storage, scorer *Scorer, embedder domain.EmbeddingClient, vault VaultWriter, cfg *config.Config, logger *zap.Logger, clock domain.Clock) *MemoryService {
	return &MemoryService{
		store:    store,
		scorer:   scorer,
		embedder: embedder,
		vault:    vault,
		cfg:      cfg,
		logger:   logger,
		clock:    clock,
	}
}

// SetMutationHook registers a callback fired after writes that change the
// candidate set (save, gc, promote, relation create).
func (s *MemoryService) SetMutationHook(fn func()) { s.onMutation = fn }

// SetPostSaveHook registers the scheduler's urgent-decay check.
func (s *MemoryService) SetPostSaveHook(fn func(string)) { s.onSave = fn }

func (s *MemoryService) notifyMutation() {
	if s.onMutation != nil {
		s.onMutation()
	}
}

type SaveRequest struct {
	Content  string         `json:"content"`
	Tags     []string       `json:"tags,omitempty"`
	Entities []string       `json:"entities,omitempty"`
	Source   string         `json:"source,omitempty"`
	Context  string         `json:"context,omitempty"`
	Meta     map[string]any `json:"meta,omitempty"`
}

type SaveResponse struct {
	MemoryID     string `json:"memory_id"`
	HasEmbedding bool   `json:"has_embedding"`
}

// Save validates, optionally embeds, and persists a new memory. Embedding
// failure is a degraded save, not an error.
func (s *MemoryService) Save(ctx context.Context, req SaveRequest) (*SaveResponse, error) {
	if err := validateSave(req); err != nil {
		return nil, err
	}

	now := s.clock()
	m := domain.NewMemory(req.Content, domain.MemoryMetadata{
		Tags:    req.Tags,
		Source:  req.Source,
		Context: req.Context,
		Extra:   req.Meta,
	}, req.Entities, now)

	if s.cfg.EnableEmbeddings && s.embedder != nil {
		embed, err := s.embedder.Embed(ctx, req.Content)
		if err != nil {
			s.logger.Warn("embedding generation failed, saving without",
				zap.String("memory_id", m.ID), zap.Error(err))
		} else {
			m.Embedding = embed
		}
	}

	if err := s.store.SaveMemory(m); err != nil {
		return nil, fmt.Errorf("save memory: %w", err)
	}
	s.logger.Info("memory saved",
		zap.String("memory_id", m.ID),
		zap.Int("content_len", len(m.Content)),
		zap.Bool("has_embedding", len(m.Embedding) > 0))

	s.notifyMutation()
	if s.onSave != nil {
		s.onSave(m.ID)
	}
	return &SaveResponse{MemoryID: m.ID, HasEmbedding: len(m.Embedding) > 0}, nil
}

func validateSave(req SaveRequest) error {
	if strings.TrimSpace(req.Content) == "" {
		return fmt.Errorf("%w: content is required", domain.ErrInvalidArgument)
	}
	if len(req.Content) > maxContentLen {
		return fmt.Errorf("%w: content exceeds %d chars", domain.ErrInvalidArgument, maxContentLen)
	}
	if len(req.Tags) > maxTags {
		return fmt.Errorf("%w: at most %d tags allowed", domain.ErrInvalidArgument, maxTags)
	}
	for _, t := range req.Tags {
		if len(t) > maxTagLen {
			return fmt.Errorf("%w: tag %q exceeds %d chars", domain.ErrInvalidArgument, t[:maxTagLen], maxTagLen)
		}
	}
	if len(req.Entities) > maxEntities {
		return fmt.Errorf("%w: at most %d entities allowed", domain.ErrInvalidArgument, maxEntities)
	}
	if len(req.Source) > maxSourceLen {
		return fmt.Errorf("%w: source exceeds %d chars", domain.ErrInvalidArgument, maxSourceLen)
	}
	if len(req.Context) > maxContextLen {
		return fmt.Errorf("%w: context exceeds %d chars", domain.ErrInvalidArgument, maxContextLen)
	}
	return nil
}

type SearchRequest struct {
	Query         string   `json:"query,omitempty"`
	Tags          []string `json:"tags,omitempty"`
	TopK          int      `json:"top_k,omitempty"`
	WindowDays    int      `json:"window_days,omitempty"`
	MinScore      *float64 `json:"min_score,omitempty"`
	UseEmbeddings bool     `json:"use_embeddings,omitempty"`
}

type SearchHit struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Tags       []string `json:"tags,omitempty"`
	Score      float64  `json:"score"`
	Similarity *float64 `json:"similarity,omitempty"`
	UseCount   int      `json:"use_count"`
	LastUsed   int64    `json:"last_used"`
	AgeDays    float64  `json:"age_days"`
}

type SearchResponse struct {
	Count   int         `json:"count"`
	Results []SearchHit `json:"results"`
}

// Search ranks active memories by decay score times a query-relevance
// boost, or by semantic similarity when embeddings are requested.
func (s *MemoryService) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	topK := req.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < 1 || topK > maxTopK {
		return nil, fmt.Errorf("%w: top_k must be in [1,%d]", domain.ErrInvalidArgument, maxTopK)
	}
	if req.WindowDays != 0 && (req.WindowDays < 1 || req.WindowDays > maxWindowDays) {
		return nil, fmt.Errorf("%w: window_days must be in [1,%d]", domain.ErrInvalidArgument, maxWindowDays)
	}
	if req.MinScore != nil && (*req.MinScore < 0 || *req.MinScore > 1) {
		return nil, fmt.Errorf("%w: min_score must be in [0,1]", domain.ErrInvalidArgument)
	}

	now := s.clock()
	candidates := s.store.SearchMemories(domain.StoreQuery{
		Tags:       req.Tags,
		Status:     domain.StatusActive,
		WindowDays: req.WindowDays,
		Limit:      topK * 3, // oversample, scoring reorders
	})

	var queryEmbed []float32
	if req.UseEmbeddings && req.Query != "" && s.cfg.EnableEmbeddings && s.embedder != nil {
		embed, err := s.embedder.Embed(ctx, req.Query)
		if err != nil {
			s.logger.Warn("query embedding failed, falling back to text match", zap.Error(err))
		} else {
			queryEmbed = embed
		}
	}

	type scored struct {
		m          *domain.Memory
		score      float64
		similarity *float64
	}
	var results []scored
	for _, m := range candidates {
		score := s.scorer.Score(m, now)
		if req.MinScore != nil && score < *req.MinScore {
			continue
		}

		var similarity *float64
		if len(queryEmbed) > 0 && len(m.Embedding) > 0 {
			if sim, err := core.Cosine(queryEmbed, m.Embedding); err == nil {
				similarity = &sim
			}
		}

		final := score
		if similarity != nil {
			final = score * *similarity
		} else if req.Query != "" {
			final = score * textRelevance(req.Query, m.Content)
		}
		results = append(results, scored{m: m, score: final, similarity: similarity})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > topK {
		results = results[:topK]
	}

	hits := make([]SearchHit, len(results))
	for i, r := range results {
		hits[i] = SearchHit{
			ID:         r.m.ID,
			Content:    r.m.Content,
			Tags:       r.m.Meta.Tags,
			Score:      r.score,
			Similarity: r.similarity,
			UseCount:   r.m.UseCount,
			LastUsed:   r.m.LastUsed,
			AgeDays:    r.m.AgeDays(now),
		}
	}
	return &SearchResponse{Count: len(hits), Results: hits}, nil
}

// textRelevance boosts exact substring matches over word overlap.
func textRelevance(query, content string) float64 {
	q := strings.ToLower(query)
	c := strings.ToLower(content)
	if strings.Contains(c, q) {
		return 2.0
	}
	for _, word := range strings.Fields(q) {
		if strings.Contains(c, word) {
			return 1.5
		}
	}
	return 1.0
}

type TouchResponse struct {
	MemoryID string  `json:"memory_id"`
	OldScore float64 `json:"old_score"`
	NewScore float64 `json:"new_score"`
	UseCount int     `json:"use_count"`
	Strength float64 `json:"strength"`
}

// Touch reinforces a memory: bumps use_count, resets the decay clock, and
// optionally boosts base strength up to the cap.
func (s *MemoryService) Touch(id string, boostStrength bool) (*TouchResponse, error) {
	m := s.store.GetMemory(id)
	if m == nil {
		return nil, fmt.Errorf("%w: memory %s", domain.ErrNotFound, id)
	}

	now := s.clock()
	oldScore := s.scorer.Score(m, now)

	newUseCount := m.UseCount + 1
	newStrength := m.Strength
	if boostStrength {
		newStrength = m.Strength + strengthBoost
		if newStrength > strengthCap {
			newStrength = strengthCap
		}
	}

	if _, err := s.store.UpdateMemory(id, domain.MemoryUpdate{
		LastUsed: &now,
		UseCount: &newUseCount,
		Strength: &newStrength,
	}); err != nil {
		return nil, fmt.Errorf("touch memory: %w", err)
	}

	updated := *m
	updated.UseCount = newUseCount
	updated.LastUsed = now
	updated.Strength = newStrength

	return &TouchResponse{
		MemoryID: id,
		OldScore: oldScore,
		NewScore: s.scorer.Score(&updated, now),
		UseCount: newUseCount,
		Strength: newStrength,
	}, nil
}

type GCRequest struct {
	DryRun         bool `json:"dry_run"`
	ArchiveInstead bool `json:"archive_instead"`
	Limit          int  `json:"limit,omitempty"`
}

type GCResponse struct {
	DryRun        bool     `json:"dry_run"`
	RemovedCount  int      `json:"removed_count"`
	ArchivedCount int      `json:"archived_count"`
	FreedScoreSum float64  `json:"freed_score_sum"`
	MemoryIDs     []string `json:"memory_ids"`
	TotalAffected int      `json:"total_affected"`
}

// GC applies the forget policy to active memories, lowest score first.
// Per-item failures are logged and skipped.
func (s *MemoryService) GC(req GCRequest) (*GCResponse, error) {
	now := s.clock()
	memories := s.store.ListMemories(domain.StatusActive, 0, 0)

	type doomed struct {
		m     *domain.Memory
		score float64
	}
	var toRemove []doomed
	for _, m := range memories {
		if score := s.scorer.Score(m, now); score < s.cfg.ForgetThreshold {
			toRemove = append(toRemove, doomed{m: m, score: score})
		}
	}
	sort.SliceStable(toRemove, func(i, j int) bool { return toRemove[i].score < toRemove[j].score })
	if req.Limit > 0 && len(toRemove) > req.Limit {
		toRemove = toRemove[:req.Limit]
	}

	resp := &GCResponse{DryRun: req.DryRun}
	archived := domain.StatusArchived
	for _, d := range toRemove {
		resp.FreedScoreSum += d.score
		resp.MemoryIDs = append(resp.MemoryIDs, d.m.ID)
		if req.DryRun {
			if req.ArchiveInstead {
				resp.ArchivedCount++
			} else {
				resp.RemovedCount++
			}
			continue
		}
		if req.ArchiveInstead {
			if _, err := s.store.UpdateMemory(d.m.ID, domain.MemoryUpdate{Status: &archived}); err != nil {
				s.logger.Warn("gc archive failed", zap.String("memory_id", d.m.ID), zap.Error(err))
				continue
			}
			resp.ArchivedCount++
		} else {
			if _, err := s.store.DeleteMemory(d.m.ID); err != nil {
				s.logger.Warn("gc delete failed", zap.String("memory_id", d.m.ID), zap.Error(err))
				continue
			}
			resp.RemovedCount++
		}
	}
	resp.TotalAffected = len(resp.MemoryIDs)

	if !req.DryRun && resp.TotalAffected > 0 {
		s.logger.Info("gc completed",
			zap.Int("removed", resp.RemovedCount),
			zap.Int("archived", resp.ArchivedCount),
			zap.Float64("freed_score_sum", resp.FreedScoreSum))
		s.notifyMutation()
	}
	return resp, nil
}

type PromoteRequest struct {
	MemoryID   string `json:"memory_id,omitempty"`
	AutoDetect bool   `json:"auto_detect"`
	DryRun     bool   `json:"dry_run"`
	Force      bool   `json:"force"`
}

type PromotionPreview struct {
	ID             string  `json:"id"`
	ContentPreview string  `json:"content_preview"`
	Reason         string  `json:"reason"`
	Score          float64 `json:"score"`
	UseCount       int     `json:"use_count"`
	AgeDays        float64 `json:"age_days"`
}

type PromoteResponse struct {
	DryRun          bool               `json:"dry_run"`
	CandidatesFound int                `json:"candidates_found"`
	PromotedCount   int                `json:"promoted_count"`
	PromotedIDs     []string           `json:"promoted_ids"`
	Candidates      []PromotionPreview `json:"candidates"`
	Ineligible      string             `json:"ineligible_reason,omitempty"`
}

// Promote moves eligible memories to the long-term vault. A specific id is
// checked against the policy unless forced; auto_detect scans all active
// memories. Already-promoted is a conflict.
func (s *MemoryService) Promote(req PromoteRequest) (*PromoteResponse, error) {
	now := s.clock()
	var candidates []domain.PromotionCandidate

	switch {
	case req.MemoryID != "":
		m := s.store.GetMemory(req.MemoryID)
		if m == nil {
			return nil, fmt.Errorf("%w: memory %s", domain.ErrNotFound, req.MemoryID)
		}
		if m.Status == domain.StatusPromoted {
			return nil, fmt.Errorf("%w: memory %s already promoted to %s", domain.ErrConflict, m.ID, m.PromotedTo)
		}
		eligible, reason := s.scorer.ShouldPromote(m, now)
		score := s.scorer.Score(m, now)
		if !eligible && !req.Force {
			return &PromoteResponse{
				DryRun:      req.DryRun,
				PromotedIDs: []string{},
				Candidates:  []PromotionPreview{},
				Ineligible:  fmt.Sprintf("score %.4f below threshold and use_count %d outside window", score, m.UseCount),
			}, nil
		}
		if reason == "" {
			reason = "forced"
		}
		candidates = append(candidates, domain.PromotionCandidate{
			Memory: m, Reason: reason, Score: score, UseCount: m.UseCount, AgeDays: m.AgeDays(now),
		})

	case req.AutoDetect:
		for _, m := range s.store.ListMemories(domain.StatusActive, 0, 0) {
			if eligible, reason := s.scorer.ShouldPromote(m, now); eligible {
				candidates = append(candidates, domain.PromotionCandidate{
					Memory: m, Reason: reason, Score: s.scorer.Score(m, now),
					UseCount: m.UseCount, AgeDays: m.AgeDays(now),
				})
			}
		}
		sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	default:
		return nil, fmt.Errorf("%w: memory_id or auto_detect is required", domain.ErrInvalidArgument)
	}

	resp := &PromoteResponse{
		DryRun:          req.DryRun,
		CandidatesFound: len(candidates),
		PromotedIDs:     []string{},
	}
	for _, c := range candidates {
		if len(resp.Candidates) < 10 {
			resp.Candidates = append(resp.Candidates, PromotionPreview{
				ID:             c.Memory.ID,
				ContentPreview: preview(c.Memory.Content, previewLen),
				Reason:         c.Reason,
				Score:          c.Score,
				UseCount:       c.UseCount,
				AgeDays:        c.AgeDays,
			})
		}
	}

	if req.DryRun {
		return resp, nil
	}
	if s.vault == nil {
		return nil, fmt.Errorf("%w: LTM vault path not configured; set LTM_VAULT_PATH", domain.ErrDependency)
	}

	promoted := domain.StatusPromoted
	for _, c := range candidates {
		path, err := s.vault.WriteNote(c.Memory, c.Score, now)
		if err != nil {
			s.logger.Warn("vault write failed", zap.String("memory_id", c.Memory.ID), zap.Error(err))
			continue
		}
		if _, err := s.store.UpdateMemory(c.Memory.ID, domain.MemoryUpdate{
			Status:     &promoted,
			PromotedAt: &now,
			PromotedTo: &path,
		}); err != nil {
			s.logger.Warn("promotion status update failed", zap.String("memory_id", c.Memory.ID), zap.Error(err))
			continue
		}
		resp.PromotedIDs = append(resp.PromotedIDs, c.Memory.ID)
	}
	resp.PromotedCount = len(resp.PromotedIDs)

	if resp.PromotedCount > 0 {
		s.logger.Info("memories promoted", zap.Int("count", resp.PromotedCount))
		s.notifyMutation()
	}
	return resp, nil
}

type ClusterRequest struct {
	Strategy           string   `json:"strategy,omitempty"`
	Threshold          *float64 `json:"threshold,omitempty"`
	MaxClusterSize     int      `json:"max_cluster_size,omitempty"`
	FindDuplicates     bool     `json:"find_duplicates"`
	DuplicateThreshold *float64 `json:"duplicate_threshold,omitempty"`
}

type DuplicateReport struct {
	ID1             string  `json:"id1"`
	ID2             string  `json:"id2"`
	Content1Preview string  `json:"content1_preview"`
	Content2Preview string  `json:"content2_preview"`
	Similarity      float64 `json:"similarity"`
}

type ClusterReport struct {
	ID              string   `json:"id"`
	Size            int      `json:"size"`
	Cohesion        float64  `json:"cohesion"`
	SuggestedAction string   `json:"suggested_action"`
	MemoryIDs       []string `json:"memory_ids"`
	ContentPreviews []string `json:"content_previews"`
}

type ClusterResponse struct {
	Mode            string            `json:"mode"`
	Strategy        string            `json:"strategy,omitempty"`
	Threshold       float64           `json:"threshold,omitempty"`
	ClustersFound   int               `json:"clusters_found,omitempty"`
	Clusters        []ClusterReport   `json:"clusters,omitempty"`
	DuplicatesFound int               `json:"duplicates_found,omitempty"`
	Duplicates      []DuplicateReport `json:"duplicates,omitempty"`
	ReviewFound     int               `json:"review_found,omitempty"`
	Review          []DuplicateReport `json:"review,omitempty"`
}

// Cluster groups similar active memories, or reports likely duplicate pairs
// when find_duplicates is set.
func (s *MemoryService) Cluster(req ClusterRequest) (*ClusterResponse, error) {
	if req.Threshold != nil && (*req.Threshold < 0 || *req.Threshold > 1) {
		return nil, fmt.Errorf("%w: threshold must be in [0,1]", domain.ErrInvalidArgument)
	}
	memories := s.store.ListMemories(domain.StatusActive, 0, 0)

	if req.FindDuplicates {
		threshold := s.cfg.SemanticHi
		if req.DuplicateThreshold != nil {
			threshold = *req.DuplicateThreshold
		}
		// scan down to the review band floor: pairs at or above the
		// duplicate threshold are likely duplicates, pairs between the two
		// thresholds need a human look
		floor := s.cfg.SemanticLo
		if threshold < floor {
			floor = threshold
		}
		resp := &ClusterResponse{Mode: "duplicate_detection"}
		for _, p := range core.FindDuplicates(memories, floor) {
			report := DuplicateReport{
				ID1:             p.First.ID,
				ID2:             p.Second.ID,
				Content1Preview: preview(p.First.Content, previewLen),
				Content2Preview: preview(p.Second.Content, previewLen),
				Similarity:      p.Similarity,
			}
			if p.Similarity >= threshold {
				resp.DuplicatesFound++
				if len(resp.Duplicates) < 20 {
					resp.Duplicates = append(resp.Duplicates, report)
				}
			} else {
				resp.ReviewFound++
				if len(resp.Review) < 20 {
					resp.Review = append(resp.Review, report)
				}
			}
		}
		return resp, nil
	}

	strategy := req.Strategy
	if strategy == "" {
		strategy = "similarity"
	}
	threshold := s.cfg.ClusterLinkThreshold
	if req.Threshold != nil {
		threshold = *req.Threshold
	}
	maxSize := s.cfg.ClusterMaxSize
	if req.MaxClusterSize > 0 {
		maxSize = req.MaxClusterSize
	}

	clusters := core.ClusterMemories(memories, core.ClusterParams{
		Threshold:      threshold,
		MinClusterSize: 2,
		MaxClusterSize: maxSize,
	})

	resp := &ClusterResponse{
		Mode:          "clustering",
		Strategy:      strategy,
		Threshold:     threshold,
		ClustersFound: len(clusters),
	}
	for _, c := range clusters {
		if len(resp.Clusters) >= 20 {
			break
		}
		report := ClusterReport{
			ID:              c.ID,
			Size:            len(c.Memories),
			Cohesion:        c.Cohesion,
			SuggestedAction: string(c.SuggestedAction),
		}
		for i, m := range c.Memories {
			report.MemoryIDs = append(report.MemoryIDs, m.ID)
			if i < 3 {
				report.ContentPreviews = append(report.ContentPreviews, preview(m.Content, clusterPreview))
			}
		}
		resp.Clusters = append(resp.Clusters, report)
	}
	return resp, nil
}

type RelationEdge struct {
	MemoryID string  `json:"memory_id"`
	Type     string  `json:"type"`
	Strength float64 `json:"strength"`
}

type MemoryDetail struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Entities   []string `json:"entities,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	Source     string   `json:"source,omitempty"`
	Context    string   `json:"context,omitempty"`
	CreatedAt  int64    `json:"created_at"`
	LastUsed   int64    `json:"last_used"`
	UseCount   int      `json:"use_count"`
	Strength   float64  `json:"strength"`
	Status     string   `json:"status"`
	PromotedAt *int64   `json:"promoted_at,omitempty"`
	PromotedTo string   `json:"promoted_to,omitempty"`
	Score      *float64 `json:"score,omitempty"`
	AgeDays    *float64 `json:"age_days,omitempty"`

	Outgoing []RelationEdge `json:"outgoing_relations,omitempty"`
	Incoming []RelationEdge `json:"incoming_relations,omitempty"`
}

type OpenResponse struct {
	Count    int            `json:"count"`
	Memories []MemoryDetail `json:"memories"`
	NotFound []string       `json:"not_found"`
}

// Open retrieves specific memories by id with their relations and scores.
// Unknown ids are reported, not fatal.
func (s *MemoryService) Open(ids []string, includeRelations, includeScores bool) (*OpenResponse, error) {
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: memory_ids is required", domain.ErrInvalidArgument)
	}
	now := s.clock()
	resp := &OpenResponse{NotFound: []string{}}

	for _, id := range ids {
		m := s.store.GetMemory(id)
		if m == nil {
			resp.NotFound = append(resp.NotFound, id)
			continue
		}
		detail := s.memoryDetail(m, now, includeScores)
		if includeRelations {
			for _, r := range s.store.Relations(domain.RelationFilter{FromMemoryID: id}) {
				detail.Outgoing = append(detail.Outgoing, RelationEdge{MemoryID: r.ToMemoryID, Type: r.RelationType, Strength: r.Strength})
			}
			for _, r := range s.store.Relations(domain.RelationFilter{ToMemoryID: id}) {
				detail.Incoming = append(detail.Incoming, RelationEdge{MemoryID: r.FromMemoryID, Type: r.RelationType, Strength: r.Strength})
			}
		}
		resp.Memories = append(resp.Memories, detail)
	}
	resp.Count = len(resp.Memories)
	return resp, nil
}

func (s *MemoryService) memoryDetail(m *domain.Memory, now int64, includeScores bool) MemoryDetail {
	detail := MemoryDetail{
		ID:         m.ID,
		Content:    m.Content,
		Entities:   m.Entities,
		Tags:       m.Meta.Tags,
		Source:     m.Meta.Source,
		Context:    m.Meta.Context,
		CreatedAt:  m.CreatedAt,
		LastUsed:   m.LastUsed,
		UseCount:   m.UseCount,
		Strength:   m.Strength,
		Status:     string(m.Status),
		PromotedAt: m.PromotedAt,
		PromotedTo: m.PromotedTo,
	}
	if includeScores {
		score := s.scorer.Score(m, now)
		age := m.AgeDays(now)
		detail.Score = &score
		detail.AgeDays = &age
	}
	return detail
}

type ReadGraphRequest struct {
	Status        string `json:"status,omitempty"`
	IncludeScores bool   `json:"include_scores"`
	Page          int    `json:"page,omitempty"`
	PageSize      int    `json:"page_size,omitempty"`
	Limit         int    `json:"limit,omitempty"`
}

type GraphStats struct {
	TotalMemories  int     `json:"total_memories"`
	TotalRelations int     `json:"total_relations"`
	AvgScore       float64 `json:"avg_score"`
	AvgUseCount    float64 `json:"avg_use_count"`
	StatusFilter   string  `json:"status_filter"`
}

type ReadGraphResponse struct {
	Memories   []MemoryDetail     `json:"memories"`
	Relations  []*domain.Relation `json:"relations"`
	Stats      GraphStats         `json:"stats"`
	Pagination core.PageMeta      `json:"pagination"`
}

// ReadGraph returns a page of the knowledge graph with aggregate stats.
// status "all" (or empty "active" default) filters memories; relations are
// always returned whole.
func (s *MemoryService) ReadGraph(req ReadGraphRequest) (*ReadGraphResponse, error) {
	status := domain.StatusActive
	switch req.Status {
	case "", "active":
	case "all":
		status = ""
	default:
		if !domain.ValidStatus(req.Status) {
			return nil, fmt.Errorf("%w: status must be active, promoted, archived, or all", domain.ErrInvalidArgument)
		}
		status = domain.MemoryStatus(req.Status)
	}
	if req.Limit < 0 || req.Limit > maxGraphLimit {
		return nil, fmt.Errorf("%w: limit must be in [0,%d]", domain.ErrInvalidArgument, maxGraphLimit)
	}
	page, pageSize, err := core.ValidatePagination(req.Page, req.PageSize)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	memories := s.store.ListMemories(status, req.Limit, 0)
	relations := s.store.AllRelations()

	stats := GraphStats{
		TotalMemories:  len(memories),
		TotalRelations: len(relations),
		StatusFilter:   req.Status,
	}
	if stats.StatusFilter == "" {
		stats.StatusFilter = "active"
	}
	if len(memories) > 0 {
		var scoreSum, useSum float64
		for _, m := range memories {
			scoreSum += s.scorer.Score(m, now)
			useSum += float64(m.UseCount)
		}
		stats.AvgScore = scoreSum / float64(len(memories))
		stats.AvgUseCount = useSum / float64(len(memories))
	}

	pageItems, meta := core.Paginate(memories, page, pageSize)
	details := make([]MemoryDetail, len(pageItems))
	for i, m := range pageItems {
		details[i] = s.memoryDetail(m, now, req.IncludeScores)
	}

	return &ReadGraphResponse{
		Memories:   details,
		Relations:  relations,
		Stats:      stats,
		Pagination: meta,
	}, nil
}

type CreateRelationRequest struct {
	FromMemoryID string         `json:"from_memory_id"`
	ToMemoryID   string         `json:"to_memory_id"`
	RelationType string         `json:"relation_type"`
	Strength     *float64       `json:"strength,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

type CreateRelationResponse struct {
	RelationID string  `json:"relation_id"`
	From       string  `json:"from"`
	To         string  `json:"to"`
	Type       string  `json:"type"`
	Strength   float64 `json:"strength"`
}

// CreateRelation links two existing memories. Duplicate (from, to, type) is
// a conflict carrying the existing relation id.
func (s *MemoryService) CreateRelation(req CreateRelationRequest) (*CreateRelationResponse, error) {
	if req.FromMemoryID == "" || req.ToMemoryID == "" || req.RelationType == "" {
		return nil, fmt.Errorf("%w: from_memory_id, to_memory_id and relation_type are required", domain.ErrInvalidArgument)
	}
	strength := 1.0
	if req.Strength != nil {
		if *req.Strength < 0 || *req.Strength > 1 {
			return nil, fmt.Errorf("%w: strength must be in [0,1]", domain.ErrInvalidArgument)
		}
		strength = *req.Strength
	}
	if s.store.GetMemory(req.FromMemoryID) == nil {
		return nil, fmt.Errorf("%w: source memory %s", domain.ErrNotFound, req.FromMemoryID)
	}
	if s.store.GetMemory(req.ToMemoryID) == nil {
		return nil, fmt.Errorf("%w: target memory %s", domain.ErrNotFound, req.ToMemoryID)
	}

	r := domain.NewRelation(req.FromMemoryID, req.ToMemoryID, req.RelationType, strength, s.clock())
	r.Metadata = req.Metadata
	if err := s.store.CreateRelation(r); err != nil {
		return nil, err
	}

	s.notifyMutation()
	return &CreateRelationResponse{
		RelationID: r.ID,
		From:       r.FromMemoryID,
		To:         r.ToMemoryID,
		Type:       r.RelationType,
		Strength:   r.Strength,
	}, nil
}

func (s *MemoryService) StorageStats() (domain.StorageStats, error) {
	return s.store.Stats()
}

func (s *MemoryService) Compact() (domain.CompactResult, error) {
	res, err := s.store.Compact()
	if err != nil {
		return res, err
	}
	s.notifyMutation()
	return res, nil
}

func preview(content string, n int) string {
	if len(content) <= n {
		return content
	}
	return content[:n]
}
