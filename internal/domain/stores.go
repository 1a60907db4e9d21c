package domain

import "context"

// MemoryUpdate is a partial update applied read-modify-append. Nil fields
// are left untouched.
type MemoryUpdate struct {
	LastUsed   *int64
	UseCount   *int
	Strength   *float64
	Status     *MemoryStatus
	PromotedAt *int64
	PromotedTo *string
}

// StoreQuery filters SearchMemories. Zero values mean "no filter" except
// Status, which callers set explicitly (StatusActive for the common case).
type StoreQuery struct {
	Tags       []string
	Status     MemoryStatus
	WindowDays int
	Limit      int
}

type RelationFilter struct {
	FromMemoryID string
	ToMemoryID   string
	RelationType string
}

// Storage is the durability layer: append-only persistence with O(1) point
// lookup. Implementations are single-writer; callers serialize writes per
// instance.
type Storage interface {
	SaveMemory(m *Memory) error
	GetMemory(id string) *Memory
	UpdateMemory(id string, upd MemoryUpdate) (bool, error)
	DeleteMemory(id string) (bool, error)
	ListMemories(status MemoryStatus, limit, offset int) []*Memory
	SearchMemories(q StoreQuery) []*Memory
	CountMemories(status MemoryStatus) int

	CreateRelation(r *Relation) error
	Relations(f RelationFilter) []*Relation
	AllRelations() []*Relation
	DeleteRelation(id string) (bool, error)

	// Snapshot returns a consistent view for index builds.
	Snapshot() ([]*Memory, []*Relation)

	Compact() (CompactResult, error)
	Stats() (StorageStats, error)
}

type EmbeddingClient interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
