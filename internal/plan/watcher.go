package plan

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/conductor/internal/logging"
)

// DefaultDebounce groups the burst of events an editor save produces.
const DefaultDebounce = 100 * time.Millisecond

// Watcher reloads a store whenever its plan document or metadata record
// changes on disk.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	logger   *logging.Logger
	names    map[string]bool
}

// NewWatcher watches the directories holding the store's files. Directories
// are watched rather than files because atomic writes replace the file.
func NewWatcher(store *Store, debounce time.Duration, logger *logging.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = logging.NopLogger()
	}

	w := &Watcher{
		store:    store,
		watcher:  fw,
		debounce: debounce,
		logger:   logger,
		names:    make(map[string]bool),
	}
	for _, p := range []string{store.PlanPath(), store.MetadataPath()} {
		w.names[filepath.Clean(p)] = true
		if err := fw.Add(filepath.Dir(p)); err != nil {
			_ = fw.Close()
			return nil, err
		}
	}
	return w, nil
}

// Run blocks until ctx is done. After each debounced change it reloads the
// store and calls onChange with the new tree or the load error.
func (w *Watcher) Run(ctx context.Context, onChange func(*Tree, error)) error {
	defer func() { _ = w.watcher.Close() }()

	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !w.names[filepath.Clean(event.Name)] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if pending && !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(w.debounce)
			pending = true

		case <-timer.C:
			pending = false
			tree, err := w.store.Load()
			if err != nil {
				w.logger.Warn("plan reload failed", "plan", w.store.PlanPath(), "error", err)
			}
			onChange(tree, err)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("plan watcher error", "error", err)
		}
	}
}
