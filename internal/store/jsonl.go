// Package store persists memories and relations as append-only JSONL files
// with an in-memory index. Human-readable and git-friendly; last write wins,
// tombstones delete, compaction rewrites.
package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

const (
	memoriesFile  = "memories.jsonl"
	relationsFile = "relations.jsonl"

	// compaction is worth it once either file carries this many dead lines
	compactionThreshold = 100
)

type tombstone struct {
	ID      string `json:"id"`
	Deleted bool   `json:"_deleted"`
}

// JSONL is the append-only file store. All exported methods are safe for
// concurrent use; writes are serialized by a single mutex.
type JSONL struct {
	dir           string
	memoriesPath  string
	relationsPath string
	logger        *zap.Logger
	clock         domain.Clock

	mu               sync.RWMutex
	memories         map[string]*domain.Memory
	relations        map[string]*domain.Relation
	deletedMemories  map[string]bool
	deletedRelations map[string]bool
}

// Open creates the storage directory if needed and loads both files.
// Loading is O(N) over appended lines.
func Open(dir string, logger *zap.Logger, clock domain.Clock) (*JSONL, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	s := &JSONL{
		dir:              dir,
		memoriesPath:     filepath.Join(dir, memoriesFile),
		relationsPath:    filepath.Join(dir, relationsFile),
		logger:           logger,
		clock:            clock,
		memories:         make(map[string]*domain.Memory),
		relations:        make(map[string]*domain.Relation),
		deletedMemories:  make(map[string]bool),
		deletedRelations: make(map[string]bool),
	}
	if err := loadFile(s.memoriesPath, logger, func(data []byte) error {
		var m domain.Memory
		if err := json.Unmarshal(data, &m); err != nil {
			return err
		}
		s.memories[m.ID] = &m
		return nil
	}, func(id string) {
		s.deletedMemories[id] = true
		delete(s.memories, id)
	}); err != nil {
		return nil, err
	}
	if err := loadFile(s.relationsPath, logger, func(data []byte) error {
		var r domain.Relation
		if err := json.Unmarshal(data, &r); err != nil {
			return err
		}
		s.relations[r.ID] = &r
		return nil
	}, func(id string) {
		s.deletedRelations[id] = true
		delete(s.relations, id)
	}); err != nil {
		return nil, err
	}
	logger.Info("storage loaded",
		zap.String("dir", dir),
		zap.Int("memories", len(s.memories)),
		zap.Int("relations", len(s.relations)))
	return s, nil
}

// loadFile replays one JSONL file. A malformed line aborts the load with its
// line number, except a short final line, which a crashed append can leave
// behind; that one is skipped with a warning.
func loadFile(path string, logger *zap.Logger, apply func([]byte) error, applyTombstone func(string)) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	type pending struct {
		line string
		num  int
	}
	var prev *pending
	lineNum := 0

	process := func(p *pending) error {
		line := strings.TrimSpace(p.line)
		if line == "" {
			return nil
		}
		var ts tombstone
		if err := json.Unmarshal([]byte(line), &ts); err == nil && ts.Deleted {
			applyTombstone(ts.ID)
			return nil
		}
		if err := apply([]byte(line)); err != nil {
			return fmt.Errorf("%s line %d: %w", filepath.Base(path), p.num, err)
		}
		return nil
	}

	for scanner.Scan() {
		lineNum++
		if prev != nil {
			if err := process(prev); err != nil {
				return err
			}
		}
		prev = &pending{line: scanner.Text(), num: lineNum}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if prev != nil {
		if err := process(prev); err != nil {
			// the final line may be a torn append, not corruption
			logger.Warn("skipping unparseable final line",
				zap.String("file", filepath.Base(path)),
				zap.Int("line", prev.num),
				zap.Error(err))
		}
	}
	return nil
}

func appendLine(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s for append: %w", path, err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append to %s: %w", path, err)
	}
	return nil
}

// SaveMemory upserts by id: appends the full record and updates the index.
func (s *JSONL) SaveMemory(m *domain.Memory) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *m
	if err := appendLine(s.memoriesPath, &cp); err != nil {
		return err
	}
	s.memories[cp.ID] = &cp
	return nil
}

func (s *JSONL) GetMemory(id string) *domain.Memory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.memories[id]
	if !ok {
		return nil
	}
	cp := *m
	return &cp
}

// UpdateMemory merges the partial update into the stored record and appends
// the result. Returns false when the id is unknown.
func (s *JSONL) UpdateMemory(id string, upd domain.MemoryUpdate) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.memories[id]
	if !ok {
		return false, nil
	}
	cp := *m
	if upd.LastUsed != nil {
		cp.LastUsed = *upd.LastUsed
	}
	if upd.UseCount != nil {
		cp.UseCount = *upd.UseCount
	}
	if upd.Strength != nil {
		cp.Strength = *upd.Strength
	}
	if upd.Status != nil {
		cp.Status = *upd.Status
	}
	if upd.PromotedAt != nil {
		cp.PromotedAt = upd.PromotedAt
	}
	if upd.PromotedTo != nil {
		cp.PromotedTo = *upd.PromotedTo
	}
	if err := appendLine(s.memoriesPath, &cp); err != nil {
		return false, err
	}
	s.memories[id] = &cp
	return true, nil
}

// DeleteMemory appends a tombstone. Returns false when the id is unknown.
func (s *JSONL) DeleteMemory(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.memories[id]; !ok {
		return false, nil
	}
	if err := appendLine(s.memoriesPath, tombstone{ID: id, Deleted: true}); err != nil {
		return false, err
	}
	delete(s.memories, id)
	s.deletedMemories[id] = true
	return true, nil
}

// ListMemories returns memories sorted by last_used descending. Empty status
// means no filter; limit <= 0 means no limit.
func (s *JSONL) ListMemories(status domain.MemoryStatus, limit, offset int) []*domain.Memory {
	s.mu.RLock()
	out := make([]*domain.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		if status != "" && m.Status != status {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sortByLastUsed(out)
	if offset > 0 {
		if offset > len(out) {
			return nil
		}
		out = out[offset:]
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (s *JSONL) SearchMemories(q domain.StoreQuery) []*domain.Memory {
	now := s.clock()
	s.mu.RLock()
	out := make([]*domain.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		if q.Status != "" && m.Status != q.Status {
			continue
		}
		if q.WindowDays > 0 && m.LastUsed < now-int64(q.WindowDays)*86400 {
			continue
		}
		if len(q.Tags) > 0 && !anyTagOverlap(q.Tags, m.Meta.Tags) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	s.mu.RUnlock()

	sortByLastUsed(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

func (s *JSONL) CountMemories(status domain.MemoryStatus) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if status == "" {
		return len(s.memories)
	}
	n := 0
	for _, m := range s.memories {
		if m.Status == status {
			n++
		}
	}
	return n
}

// CreateRelation rejects a duplicate (from, to, type) triple with Conflict
// and does not append.
func (s *JSONL) CreateRelation(r *domain.Relation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.relations {
		if existing.FromMemoryID == r.FromMemoryID &&
			existing.ToMemoryID == r.ToMemoryID &&
			existing.RelationType == r.RelationType {
			return fmt.Errorf("%w: relation %s already links %s -> %s (%s)",
				domain.ErrConflict, existing.ID, r.FromMemoryID, r.ToMemoryID, r.RelationType)
		}
	}
	cp := *r
	if err := appendLine(s.relationsPath, &cp); err != nil {
		return err
	}
	s.relations[cp.ID] = &cp
	return nil
}

func (s *JSONL) Relations(f domain.RelationFilter) []*domain.Relation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*domain.Relation
	for _, r := range s.relations {
		if f.FromMemoryID != "" && r.FromMemoryID != f.FromMemoryID {
			continue
		}
		if f.ToMemoryID != "" && r.ToMemoryID != f.ToMemoryID {
			continue
		}
		if f.RelationType != "" && r.RelationType != f.RelationType {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	return out
}

func (s *JSONL) AllRelations() []*domain.Relation {
	return s.Relations(domain.RelationFilter{})
}

func (s *JSONL) DeleteRelation(id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.relations[id]; !ok {
		return false, nil
	}
	if err := appendLine(s.relationsPath, tombstone{ID: id, Deleted: true}); err != nil {
		return false, err
	}
	delete(s.relations, id)
	s.deletedRelations[id] = true
	return true, nil
}

// Snapshot returns copies of all live memories and relations under one lock
// acquisition, for activation index builds.
func (s *JSONL) Snapshot() ([]*domain.Memory, []*domain.Relation) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	memories := make([]*domain.Memory, 0, len(s.memories))
	for _, m := range s.memories {
		cp := *m
		memories = append(memories, &cp)
	}
	relations := make([]*domain.Relation, 0, len(s.relations))
	for _, r := range s.relations {
		cp := *r
		relations = append(relations, &cp)
	}
	return memories, relations
}

// Compact rewrites each file to hold only the latest live record per id,
// replacing atomically via a temporary sibling. Tombstone tracking resets.
func (s *JSONL) Compact() (domain.CompactResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := domain.CompactResult{
		MemoriesBefore:  countLines(s.memoriesPath),
		MemoriesAfter:   len(s.memories),
		RelationsBefore: countLines(s.relationsPath),
		RelationsAfter:  len(s.relations),
	}

	memRecords := make([]any, 0, len(s.memories))
	for _, m := range s.memories {
		memRecords = append(memRecords, m)
	}
	if err := rewriteFile(s.memoriesPath, memRecords); err != nil {
		return res, err
	}

	relRecords := make([]any, 0, len(s.relations))
	for _, r := range s.relations {
		relRecords = append(relRecords, r)
	}
	if err := rewriteFile(s.relationsPath, relRecords); err != nil {
		return res, err
	}

	s.deletedMemories = make(map[string]bool)
	s.deletedRelations = make(map[string]bool)

	s.logger.Info("storage compacted",
		zap.Int("memories_before", res.MemoriesBefore),
		zap.Int("memories_after", res.MemoriesAfter),
		zap.Int("relations_before", res.RelationsBefore),
		zap.Int("relations_after", res.RelationsAfter))
	return res, nil
}

func rewriteFile(path string, records []any) error {
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	w := bufio.NewWriter(f)
	for _, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			f.Close()
			return fmt.Errorf("marshal during compact: %w", err)
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

func (s *JSONL) Stats() (domain.StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	memLines := countLines(s.memoriesPath)
	relLines := countLines(s.relationsPath)

	stats := domain.StorageStats{
		Memories: domain.FileStats{
			Active:            len(s.memories),
			TotalLines:        memLines,
			FileSizeBytes:     fileSize(s.memoriesPath),
			CompactionSavings: memLines - len(s.memories),
		},
		Relations: domain.FileStats{
			Active:            len(s.relations),
			TotalLines:        relLines,
			FileSizeBytes:     fileSize(s.relationsPath),
			CompactionSavings: relLines - len(s.relations),
		},
	}
	stats.ShouldCompact = stats.Memories.CompactionSavings > compactionThreshold ||
		stats.Relations.CompactionSavings > compactionThreshold
	return stats, nil
}

func countLines(path string) int {
	f, err := os.Open(path)
	if err != nil {
		return 0
	}
	defer f.Close()
	n := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if strings.TrimSpace(scanner.Text()) != "" {
			n++
		}
	}
	return n
}

func fileSize(path string) int64 {
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}

func sortByLastUsed(memories []*domain.Memory) {
	sort.SliceStable(memories, func(i, j int) bool {
		if memories[i].LastUsed != memories[j].LastUsed {
			return memories[i].LastUsed > memories[j].LastUsed
		}
		return memories[i].ID < memories[j].ID
	})
}

func anyTagOverlap(want, have []string) bool {
	for _, w := range want {
		for _, h := range have {
			if w == h {
				return true
			}
		}
	}
	return false
}
