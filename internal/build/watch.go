package build

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/assetforge/internal/logging"
	"github.com/conneroisu/assetforge/internal/paths"
	"github.com/conneroisu/assetforge/internal/tasks"
	"github.com/conneroisu/assetforge/internal/watcher"
)

// Watcher re-runs the tasks whose watch globs match a changed file. Runs
// are serialized per category by the task runners.
type Watcher struct {
	orch     *Orchestrator
	fw       *watcher.FileWatcher
	triggers map[paths.Category]*tasks.Debounced
	logger   logging.Logger

	mu  sync.Mutex
	ctx context.Context
}

// NewWatcher creates a watcher over the orchestrator's runners. debounce
// delays each category's trigger until changes stop arriving for that long.
func NewWatcher(orch *Orchestrator, debounce time.Duration, logger logging.Logger) (*Watcher, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	fw, err := watcher.NewFileWatcher(0, logger)
	if err != nil {
		return nil, err
	}
	fw.AddFilter(watcher.NoGitFilter)
	fw.AddFilter(watcher.NoEditorTempFilter)

	triggers := make(map[paths.Category]*tasks.Debounced)
	for _, c := range orch.Categories() {
		r, _ := orch.Runner(c)
		triggers[c] = tasks.NewDebounced(r, debounce)
	}

	w := &Watcher{
		orch:     orch,
		fw:       fw,
		triggers: triggers,
		logger:   logger.WithComponent("watch"),
		ctx:      context.Background(),
	}
	fw.AddHandler(w.handle)
	return w, nil
}

// Start registers the watch roots and begins delivering changes. Roots
// that do not exist yet are covered by watching the source root.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	w.ctx = ctx
	w.mu.Unlock()

	pc := w.orch.Paths()
	fallback := false
	for _, root := range pc.WatchRoots() {
		if _, err := os.Stat(root); err != nil {
			w.logger.Debug(ctx, "Watch root missing", "path", root)
			fallback = true
			continue
		}
		if err := w.fw.AddRecursive(root); err != nil {
			return err
		}
	}
	if fallback {
		if err := w.fw.AddRecursive(pc.SourceRoot); err != nil {
			return err
		}
	}

	w.logger.Info(ctx, "Watching for changes", "directories", len(w.fw.WatchList()))
	return w.fw.Start(ctx)
}

// Watch starts the watcher and blocks until ctx is done.
func (w *Watcher) Watch(ctx context.Context) error {
	if err := w.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return w.Stop()
}

// Stop stops watching and drops triggers that have not fired.
func (w *Watcher) Stop() error {
	for _, d := range w.triggers {
		d.Stop()
	}
	return w.fw.Stop()
}

// Wait blocks until every triggered run has finished.
func (w *Watcher) Wait(ctx context.Context) error {
	for _, c := range w.orch.Categories() {
		r, _ := w.orch.Runner(c)
		if err := r.Wait(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (w *Watcher) handle(events []watcher.ChangeEvent) error {
	w.mu.Lock()
	ctx := w.ctx
	w.mu.Unlock()

	pc := w.orch.Paths()
	affected := make(map[paths.Category]bool)
	for _, e := range events {
		categories := pc.CategoriesFor(e.Path)
		if len(categories) == 0 {
			continue
		}
		w.logger.Debug(ctx, "Change detected", "path", e.Path, "type", e.Type.String(),
			"tasks", strings.Join(paths.Names(categories), ","))
		for _, c := range categories {
			affected[c] = true
		}
	}

	for _, c := range w.orch.Categories() {
		if affected[c] {
			w.triggers[c].Trigger(ctx)
		}
	}
	return nil
}
