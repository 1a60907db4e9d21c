package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mnemos-ai/mnemos/internal/config"
	"github.com/mnemos-ai/mnemos/internal/domain"
)

const (
	ltmContentPreview = 500
	dedupKeyLen       = 100
)

// LTMSearcher queries the long-term vault index. Implementations return
// ErrDependency when the vault is not configured or the index is unusable.
type LTMSearcher interface {
	Search(query string, tags []string, limit int) ([]*domain.LTMSearchResult, error)
}

// UnifiedSearch queries short-term and long-term memory concurrently and
// merges the tiers into one ranking.
type UnifiedSearch struct {
	memories *MemoryService
	ltm      LTMSearcher
	cfg      *config.Config
	logger   *zap.Logger
}

func NewUnifiedSearch(memories *MemoryService, ltm LTMSearcher, cfg *config.Config, logger *zap.Logger) *UnifiedSearch {
	return &UnifiedSearch{memories: memories, ltm: ltm, cfg: cfg, logger: logger}
}

type UnifiedRequest struct {
	Query      string   `json:"query,omitempty"`
	Tags       []string `json:"tags,omitempty"`
	TopK       int      `json:"top_k,omitempty"`
	WindowDays int      `json:"window_days,omitempty"`
	MinScore   *float64 `json:"min_score,omitempty"`
	STMWeight  *float64 `json:"stm_weight,omitempty"`
	LTMWeight  *float64 `json:"ltm_weight,omitempty"`
}

type UnifiedHit struct {
	Source   string   `json:"source"` // stm or ltm
	ID       string   `json:"id,omitempty"`
	Path     string   `json:"path,omitempty"`
	Title    string   `json:"title,omitempty"`
	Content  string   `json:"content"`
	Tags     []string `json:"tags,omitempty"`
	Score    float64  `json:"score"`     // tier-weighted, used for ranking
	RawScore float64  `json:"raw_score"` // score within the source tier
}

type UnifiedResponse struct {
	Count    int          `json:"count"`
	STMCount int          `json:"stm_count"`
	LTMCount int          `json:"ltm_count"`
	Results  []UnifiedHit `json:"results"`
}

// Search runs both tiers, weights them, sorts the merged list, and then
// deduplicates near-identical content keeping the higher-scored occurrence.
// A missing or failing long-term tier degrades to short-term only.
func (u *UnifiedSearch) Search(ctx context.Context, req UnifiedRequest) (*UnifiedResponse, error) {
	if strings.TrimSpace(req.Query) == "" && len(req.Tags) == 0 {
		return nil, fmt.Errorf("%w: query or tags is required", domain.ErrInvalidArgument)
	}
	topK := req.TopK
	if topK == 0 {
		topK = defaultTopK
	}
	if topK < 1 || topK > maxTopK {
		return nil, fmt.Errorf("%w: top_k must be in [1,%d]", domain.ErrInvalidArgument, maxTopK)
	}
	stmWeight, err := tierWeight("stm_weight", req.STMWeight, u.cfg.SearchSTMWeight)
	if err != nil {
		return nil, err
	}
	ltmWeight, err := tierWeight("ltm_weight", req.LTMWeight, u.cfg.SearchLTMWeight)
	if err != nil {
		return nil, err
	}

	var (
		stmResp *SearchResponse
		ltmHits []*domain.LTMSearchResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		resp, err := u.memories.Search(gctx, SearchRequest{
			Query:      req.Query,
			Tags:       req.Tags,
			TopK:       topK,
			WindowDays: req.WindowDays,
			MinScore:   req.MinScore,
		})
		if err != nil {
			return fmt.Errorf("stm tier: %w", err)
		}
		stmResp = resp
		return nil
	})
	g.Go(func() error {
		if u.ltm == nil {
			return nil
		}
		hits, err := u.ltm.Search(req.Query, req.Tags, topK)
		if err != nil {
			if errors.Is(err, domain.ErrDependency) {
				u.logger.Debug("ltm tier unavailable", zap.Error(err))
				return nil
			}
			u.logger.Warn("ltm tier search failed", zap.Error(err))
			return nil
		}
		ltmHits = hits
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := make([]UnifiedHit, 0, len(stmResp.Results)+len(ltmHits))
	for _, hit := range stmResp.Results {
		merged = append(merged, UnifiedHit{
			Source:   "stm",
			ID:       hit.ID,
			Content:  hit.Content,
			Tags:     hit.Tags,
			Score:    stmWeight * hit.Score,
			RawScore: hit.Score,
		})
	}
	for _, hit := range ltmHits {
		merged = append(merged, UnifiedHit{
			Source:   "ltm",
			Path:     hit.Note.Path,
			Title:    hit.Note.Title,
			Content:  preview(hit.Note.Content, ltmContentPreview),
			Tags:     hit.Note.Tags,
			Score:    ltmWeight * hit.Relevance,
			RawScore: hit.Relevance,
		})
	}

	// rank first so dedup keeps the higher-scored occurrence
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })

	resp := &UnifiedResponse{}
	seen := make(map[string]bool)
	for _, hit := range merged {
		key := dedupKey(hit.Content)
		if seen[key] {
			continue
		}
		seen[key] = true
		resp.Results = append(resp.Results, hit)
		if len(resp.Results) == topK {
			break
		}
	}
	for _, hit := range resp.Results {
		if hit.Source == "stm" {
			resp.STMCount++
		} else {
			resp.LTMCount++
		}
	}
	resp.Count = len(resp.Results)
	return resp, nil
}

func tierWeight(field string, override *float64, def float64) (float64, error) {
	if override == nil {
		return def, nil
	}
	if *override < 0 {
		return 0, fmt.Errorf("%w: %s must be >= 0", domain.ErrInvalidArgument, field)
	}
	return *override, nil
}

func dedupKey(content string) string {
	key := strings.ToLower(strings.TrimSpace(content))
	if len(key) > dedupKeyLen {
		key = key[:dedupKeyLen]
	}
	return key
}
