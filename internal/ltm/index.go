package ltm

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

const (
	titleMatchWeight   = 2.0
	contentMatchWeight = 1.0
	relevanceScale     = 3.0
	tagOnlyRelevance   = 0.5
)

// Index maintains a searchable snapshot of the vault's markdown notes,
// persisted as JSONL so restarts skip the initial scan. A watcher marks it
// stale; the next search rescans.
type Index struct {
	vaultPath string
	indexPath string
	logger    *zap.Logger

	mu    sync.RWMutex
	notes []*domain.LTMNote
	stale bool
}

func NewIndex(vaultPath, indexPath string, logger *zap.Logger) *Index {
	idx := &Index{
		vaultPath: vaultPath,
		indexPath: indexPath,
		logger:    logger,
		stale:     true,
	}
	if err := idx.load(); err == nil {
		idx.stale = false
	}
	return idx
}

// MarkStale schedules a rescan before the next search.
func (i *Index) MarkStale() {
	i.mu.Lock()
	i.stale = true
	i.mu.Unlock()
}

// Rebuild scans the vault for markdown notes and persists the index.
func (i *Index) Rebuild() error {
	if i.vaultPath == "" {
		return fmt.Errorf("%w: vault path not configured", domain.ErrDependency)
	}

	var notes []*domain.LTMNote
	err := filepath.WalkDir(i.vaultPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".md") {
			return nil
		}
		note, err := parseNote(i.vaultPath, path)
		if err != nil {
			i.logger.Warn("skipping unreadable vault note", zap.String("path", path), zap.Error(err))
			return nil
		}
		notes = append(notes, note)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: scan vault: %v", domain.ErrDependency, err)
	}

	i.mu.Lock()
	i.notes = notes
	i.stale = false
	i.mu.Unlock()

	if err := i.save(notes); err != nil {
		i.logger.Warn("index persist failed", zap.Error(err))
	}
	i.logger.Info("ltm index rebuilt", zap.Int("notes", len(notes)))
	return nil
}

// Search ranks notes by query relevance, restricted to notes carrying any
// of the given tags when a tag filter is set. Title hits count double; a
// tag-only hit keeps the note in the results at low relevance.
func (i *Index) Search(query string, tags []string, limit int) ([]*domain.LTMSearchResult, error) {
	if i.vaultPath == "" {
		return nil, fmt.Errorf("%w: vault path not configured", domain.ErrDependency)
	}

	i.mu.RLock()
	stale := i.stale
	i.mu.RUnlock()
	if stale {
		if err := i.Rebuild(); err != nil {
			return nil, err
		}
	}

	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 && len(tags) == 0 {
		return nil, nil
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	var results []*domain.LTMSearchResult
	for _, note := range i.notes {
		if len(tags) > 0 && !noteHasAnyTag(note, tags) {
			continue
		}
		rel := tagOnlyRelevance
		if len(terms) > 0 {
			rel = noteRelevance(note, terms)
		}
		if rel > 0 {
			results = append(results, &domain.LTMSearchResult{Note: note, Relevance: rel})
		}
	}
	sort.SliceStable(results, func(a, b int) bool { return results[a].Relevance > results[b].Relevance })
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func noteHasAnyTag(note *domain.LTMNote, tags []string) bool {
	for _, want := range tags {
		for _, have := range note.Tags {
			if strings.EqualFold(want, have) {
				return true
			}
		}
	}
	return false
}

func noteRelevance(note *domain.LTMNote, terms []string) float64 {
	title := strings.ToLower(note.Title)
	content := strings.ToLower(note.Content)

	var sum float64
	for _, term := range terms {
		if strings.Contains(title, term) {
			sum += titleMatchWeight
		}
		if strings.Contains(content, term) {
			sum += contentMatchWeight
		}
	}
	if sum > 0 {
		rel := sum / relevanceScale
		if rel > 1 {
			rel = 1
		}
		return rel
	}

	for _, term := range terms {
		for _, tag := range note.Tags {
			if strings.Contains(strings.ToLower(tag), term) {
				return tagOnlyRelevance
			}
		}
	}
	return 0
}

func (i *Index) load() error {
	f, err := os.Open(i.indexPath)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	var notes []*domain.LTMNote
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var note domain.LTMNote
		if err := json.Unmarshal([]byte(line), &note); err != nil {
			return fmt.Errorf("parse index line: %w", err)
		}
		notes = append(notes, &note)
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	i.mu.Lock()
	i.notes = notes
	i.mu.Unlock()
	return nil
}

func (i *Index) save(notes []*domain.LTMNote) error {
	if i.indexPath == "" {
		return nil
	}
	tmp := i.indexPath + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, note := range notes {
		data, err := json.Marshal(note)
		if err != nil {
			_ = f.Close()
			return err
		}
		w.Write(data)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, i.indexPath)
}

// parseNote reads a markdown note, pulling title and tags out of the YAML
// frontmatter when present. Files without frontmatter index under their
// filename.
func parseNote(vaultPath, path string) (*domain.LTMNote, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	rel, err := filepath.Rel(vaultPath, path)
	if err != nil {
		rel = path
	}

	note := &domain.LTMNote{
		Path:       rel,
		Title:      strings.TrimSuffix(filepath.Base(path), ".md"),
		ModifiedAt: info.ModTime().Unix(),
	}

	body := string(data)
	if strings.HasPrefix(body, "---\n") {
		if end := strings.Index(body[4:], "\n---"); end >= 0 {
			front := body[4 : 4+end]
			body = strings.TrimLeft(body[4+end+4:], "\n")
			for _, line := range strings.Split(front, "\n") {
				key, value, ok := strings.Cut(line, ":")
				if !ok {
					continue
				}
				value = strings.TrimSpace(value)
				switch strings.TrimSpace(key) {
				case "title":
					if value != "" {
						note.Title = value
					}
				case "tags":
					note.Tags = parseTagList(value)
				}
			}
		}
	}
	note.Content = body
	return note, nil
}

func parseTagList(value string) []string {
	value = strings.Trim(value, "[]")
	var tags []string
	for _, t := range strings.Split(value, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}
