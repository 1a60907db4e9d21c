package domain

type ClusterAction string

const (
	ActionAutoMerge    ClusterAction = "auto-merge"
	ActionLLMReview    ClusterAction = "llm-review"
	ActionKeepSeparate ClusterAction = "keep-separate"
)

type Cluster struct {
	ID              string        `json:"id"`
	Memories        []*Memory     `json:"memories"`
	Centroid        []float32     `json:"centroid,omitempty"`
	Cohesion        float64       `json:"cohesion"`
	SuggestedAction ClusterAction `json:"suggested_action"`
}

type PromotionCandidate struct {
	Memory   *Memory `json:"memory"`
	Reason   string  `json:"reason"`
	Score    float64 `json:"score"`
	UseCount int     `json:"use_count"`
	AgeDays  float64 `json:"age_days"`
}

// FileStats describes one JSONL file: live records vs total appended lines.
type FileStats struct {
	Active            int   `json:"active"`
	TotalLines        int   `json:"total_lines"`
	FileSizeBytes     int64 `json:"file_size_bytes"`
	CompactionSavings int   `json:"compaction_savings"`
}

type StorageStats struct {
	Memories      FileStats `json:"memories"`
	Relations     FileStats `json:"relations"`
	ShouldCompact bool      `json:"should_compact"`
}

type CompactResult struct {
	MemoriesBefore  int `json:"memories_before"`
	MemoriesAfter   int `json:"memories_after"`
	RelationsBefore int `json:"relations_before"`
	RelationsAfter  int `json:"relations_after"`
}
