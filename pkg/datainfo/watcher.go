package datainfo

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/filekv/filekv/internal/logger"
)

// Watcher observes the store root for files removed outside the store's
// control and signals the GC kick channel so stale records are pruned
// ahead of the periodic schedule. Best-effort: watch failures degrade to
// periodic-only GC, they never fail the store.
type Watcher struct {
	fsw  *fsnotify.Watcher
	kick chan struct{}
	done chan struct{}
}

// NewWatcher watches rootDir and its subdirectories, excluding the
// metadata index directory.
func NewWatcher(rootDir string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:  fsw,
		kick: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	indexDir := filepath.Join(rootDir, DBDirName)
	err = filepath.WalkDir(rootDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, watch what we can
		}
		if !d.IsDir() {
			return nil
		}
		if path == indexDir {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
	if err != nil {
		fsw.Close()
		return nil, err
	}

	go w.run(indexDir)
	return w, nil
}

// Kick returns the channel signalled when an out-of-band removal is seen.
func (w *Watcher) Kick() <-chan struct{} {
	return w.kick
}

func (w *Watcher) run(indexDir string) {
	defer close(w.done)
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if strings.HasPrefix(event.Name, indexDir) {
				continue
			}
			switch {
			case event.Op.Has(fsnotify.Remove) || event.Op.Has(fsnotify.Rename):
				logger.Debug("watcher: out-of-band removal", "path", event.Name)
				select {
				case w.kick <- struct{}{}:
				default: // a sweep is already pending
				}
			case event.Op.Has(fsnotify.Create):
				// New directories must be watched to see removals below them.
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.fsw.Add(event.Name); err == nil {
						logger.Debug("watcher: watching new directory", "path", event.Name)
					}
				}
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			logger.Warn("watcher: error", "error", err)
		}
	}
}

// Close stops the watcher and waits for its goroutine to exit.
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}
