// Package watch re-runs scenario analyses when their capture files change.
package watch

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/gridsec/evcorr/internal/config"
)

// Trigger is invoked with the scenario names whose inputs changed.
type Trigger func(scenarios []string)

// Watcher maps capture files back to their scenarios and debounces
// filesystem events into re-analysis triggers. Capture files land in
// chunks, so a quiet period must elapse before a scenario re-runs.
type Watcher struct {
	logger   *slog.Logger
	debounce time.Duration
	trigger  Trigger

	byPath map[string][]string

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer
}

// New builds a watcher for the given scenarios.
func New(logger *slog.Logger, scenarios []config.ScenarioConfig, debounce time.Duration, trigger Trigger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if debounce <= 0 {
		debounce = 2 * time.Second
	}

	byPath := make(map[string][]string)
	for _, scen := range scenarios {
		for _, src := range scen.Layers {
			abs, err := filepath.Abs(src.Path)
			if err != nil {
				continue
			}
			byPath[abs] = append(byPath[abs], scen.Name)
		}
	}

	return &Watcher{
		logger:   logger,
		debounce: debounce,
		trigger:  trigger,
		byPath:   byPath,
		pending:  make(map[string]struct{}),
	}
}

// Run watches the parent directories of every configured capture file
// until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fsWatcher.Close()

	dirs := make(map[string]struct{})
	for path := range w.byPath {
		dirs[filepath.Dir(path)] = struct{}{}
	}
	for dir := range dirs {
		if err := fsWatcher.Add(dir); err != nil {
			w.logger.Warn("cannot watch directory", slog.String("dir", dir), slog.Any("error", err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fsWatcher.Events:
			if !ok {
				return nil
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil {
				continue
			}
			scenarios, ok := w.byPath[abs]
			if !ok {
				continue
			}
			w.schedule(scenarios)
		case err, ok := <-fsWatcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.Any("error", err))
		}
	}
}

func (w *Watcher) schedule(scenarios []string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, name := range scenarios {
		w.pending[name] = struct{}{}
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	w.mu.Lock()
	names := make([]string, 0, len(w.pending))
	for name := range w.pending {
		names = append(names, name)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	if len(names) == 0 || w.trigger == nil {
		return
	}
	w.logger.Info("capture files changed, re-running analyses", slog.Any("scenarios", names))
	w.trigger(names)
}
