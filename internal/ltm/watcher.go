package ltm

import (
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher invalidates the index when vault files change on disk. Rebuilds
// are deferred to the next search instead of happening per event, so a
// burst of edits costs one rescan.
type Watcher struct {
	fw     *fsnotify.Watcher
	index  *Index
	logger *zap.Logger
	done   chan struct{}
}

// Watch starts watching the vault tree. Subdirectories existing at start
// are registered; directories created later are picked up on their create
// event.
func Watch(vaultPath string, index *Index, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	err = filepath.WalkDir(vaultPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
	if err != nil {
		_ = fw.Close()
		return nil, err
	}

	w := &Watcher{fw: fw, index: index, logger: logger, done: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			if event.Op.Has(fsnotify.Create) {
				// a new directory needs its own watch
				if !strings.HasSuffix(event.Name, ".md") {
					_ = w.fw.Add(event.Name)
				}
			}
			if strings.HasSuffix(event.Name, ".md") {
				w.logger.Debug("vault change detected", zap.String("path", event.Name))
				w.index.MarkStale()
			}
		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("vault watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) Close() error {
	err := w.fw.Close()
	<-w.done
	return err
}
