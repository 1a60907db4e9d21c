// Package ltm manages the long-term memory vault: writing promoted
// memories as markdown notes and searching the note index.
package ltm

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mnemos-ai/mnemos/internal/domain"
)

const (
	titleMaxWords = 8
	slugMaxLen    = 60
	shortIDLen    = 8
)

// Vault writes promoted memories into a markdown vault. Notes carry YAML
// frontmatter so vault tooling can index them.
type Vault struct {
	root   string
	folder string
	logger *zap.Logger
}

func NewVault(root, folder string, logger *zap.Logger) *Vault {
	return &Vault{root: root, folder: folder, logger: logger}
}

// WriteNote renders the memory as a markdown note and returns the path
// relative to the vault root.
func (v *Vault) WriteNote(m *domain.Memory, score float64, now int64) (string, error) {
	if v.root == "" {
		return "", fmt.Errorf("%w: vault root not configured", domain.ErrDependency)
	}
	dir := filepath.Join(v.root, v.folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create vault folder: %w", err)
	}

	name := noteFilename(m)
	relPath := filepath.Join(v.folder, name)

	var b strings.Builder
	b.WriteString("---\n")
	fmt.Fprintf(&b, "id: %s\n", m.ID)
	fmt.Fprintf(&b, "title: %s\n", noteTitle(m.Content))
	fmt.Fprintf(&b, "created: %s\n", time.Unix(m.CreatedAt, 0).UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "promoted: %s\n", time.Unix(now, 0).UTC().Format(time.RFC3339))
	if len(m.Meta.Tags) > 0 {
		fmt.Fprintf(&b, "tags: [%s]\n", strings.Join(m.Meta.Tags, ", "))
	}
	if m.Meta.Source != "" {
		fmt.Fprintf(&b, "source: %s\n", m.Meta.Source)
	}
	if len(m.Entities) > 0 {
		fmt.Fprintf(&b, "entities: [%s]\n", strings.Join(m.Entities, ", "))
	}
	fmt.Fprintf(&b, "score: %.4f\n", score)
	fmt.Fprintf(&b, "use_count: %d\n", m.UseCount)
	b.WriteString("---\n\n")
	b.WriteString(m.Content)
	b.WriteString("\n")

	if err := os.WriteFile(filepath.Join(dir, name), []byte(b.String()), 0o644); err != nil {
		return "", fmt.Errorf("write vault note: %w", err)
	}
	v.logger.Info("vault note written",
		zap.String("memory_id", m.ID),
		zap.String("path", relPath))
	return relPath, nil
}

func noteFilename(m *domain.Memory) string {
	short := m.ID
	if len(short) > shortIDLen {
		short = short[:shortIDLen]
	}
	slug := slugify(noteTitle(m.Content))
	if slug == "" {
		return short + ".md"
	}
	return slug + "-" + short + ".md"
}

func noteTitle(content string) string {
	words := strings.Fields(content)
	if len(words) > titleMaxWords {
		words = words[:titleMaxWords]
	}
	return strings.Join(words, " ")
}

func slugify(s string) string {
	var b strings.Builder
	lastDash := true
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastDash = false
		default:
			if !lastDash {
				b.WriteByte('-')
				lastDash = true
			}
		}
		if b.Len() >= slugMaxLen {
			break
		}
	}
	return strings.TrimRight(b.String(), "-")
}
