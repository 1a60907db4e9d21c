package domain

import (
	"time"

	"github.com/google/uuid"
)

type MemoryStatus string

const (
	StatusActive   MemoryStatus = "active"
	StatusPromoted MemoryStatus = "promoted"
	StatusArchived MemoryStatus = "archived"
)

func ValidStatus(s string) bool {
	switch MemoryStatus(s) {
	case StatusActive, StatusPromoted, StatusArchived:
		return true
	}
	return false
}

type MemoryMetadata struct {
	Tags    []string       `json:"tags,omitempty"`
	Source  string         `json:"source,omitempty"`
	Context string         `json:"context,omitempty"`
	Extra   map[string]any `json:"extra,omitempty"`
}

// Memory is a single short-term memory record. Timestamps are Unix epoch
// seconds; decay math works in seconds throughout.
type Memory struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Meta       MemoryMetadata `json:"meta"`
	Entities   []string       `json:"entities,omitempty"`
	CreatedAt  int64          `json:"created_at"`
	LastUsed   int64          `json:"last_used"`
	UseCount   int            `json:"use_count"`
	Strength   float64        `json:"strength"`
	Status     MemoryStatus   `json:"status"`
	PromotedAt *int64         `json:"promoted_at,omitempty"`
	PromotedTo string         `json:"promoted_to,omitempty"`
	Embedding  []float32      `json:"embed,omitempty"`
}

// NewMemory returns an active memory with use_count 1 (creation counts as
// first use) and strength 1.0.
func NewMemory(content string, meta MemoryMetadata, entities []string, now int64) *Memory {
	return &Memory{
		ID:        uuid.NewString(),
		Content:   content,
		Meta:      meta,
		Entities:  entities,
		CreatedAt: now,
		LastUsed:  now,
		UseCount:  1,
		Strength:  1.0,
		Status:    StatusActive,
	}
}

func (m *Memory) AgeDays(now int64) float64 {
	return float64(now-m.CreatedAt) / 86400.0
}

// Touch records an access: bumps use_count and resets the decay clock.
func (m *Memory) Touch(now int64) {
	m.UseCount++
	m.LastUsed = now
}

type Relation struct {
	ID           string         `json:"id"`
	FromMemoryID string         `json:"from_memory_id"`
	ToMemoryID   string         `json:"to_memory_id"`
	RelationType string         `json:"relation_type"`
	Strength     float64        `json:"strength"`
	CreatedAt    int64          `json:"created_at"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

func NewRelation(fromID, toID, relationType string, strength float64, now int64) *Relation {
	return &Relation{
		ID:           uuid.NewString(),
		FromMemoryID: fromID,
		ToMemoryID:   toID,
		RelationType: relationType,
		Strength:     strength,
		CreatedAt:    now,
	}
}

// Clock supplies the current time as Unix epoch seconds. Services take a
// Clock so tests can pin time exactly.
type Clock func() int64

func RealClock() int64 {
	return time.Now().Unix()
}
