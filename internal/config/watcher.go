package config

import (
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// configDebounce collapses the burst of WRITE/CHMOD events a single save
// produces into one reload.
const configDebounce = 250 * time.Millisecond

// Watcher watches a project's configuration files for writes and invokes
// onChange with the freshly reloaded Config after each debounced burst.
// It exists so a long-running `serve` process can pick up RouterConfig
// tool-weight changes without a restart; the core Pattern Store, Router,
// and Indexer packages never depend on it.
type Watcher struct {
	fsw      *fsnotify.Watcher
	dir      string
	onChange func(*Config)
	logger   *slog.Logger
	stop     chan struct{}
}

// NewWatcher watches dir's project config file and the user config file
// for writes, calling onChange with the reloaded Config after each
// debounced burst of filesystem events. Paths that don't exist yet are
// skipped silently; callers must call Stop when done.
func NewWatcher(dir string, onChange func(*Config), logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		dir:      dir,
		onChange: onChange,
		logger:   logger,
		stop:     make(chan struct{}),
	}

	for _, path := range w.watchPaths() {
		if err := fsw.Add(path); err != nil {
			w.logger.Debug("config_watch_path_unavailable",
				slog.String("path", path), slog.String("error", err.Error()))
		}
	}

	go w.run()
	return w, nil
}

// watchPaths returns the project and user config files this watcher
// cares about. fsnotify requires the path to exist at Add time, so a
// config file created after the watcher starts is picked up only once
// `skillmind config init`/`skillmind init` has run and serve restarts.
func (w *Watcher) watchPaths() []string {
	paths := []string{
		filepath.Join(w.dir, ".skillmind.yaml"),
		filepath.Join(w.dir, ".skillmind.yml"),
	}
	if userPath := GetUserConfigPath(); fileExists(userPath) {
		paths = append(paths, userPath)
	}
	return paths
}

func (w *Watcher) run() {
	debounce := time.NewTimer(0)
	if !debounce.Stop() {
		<-debounce.C
	}
	pending := false

	for {
		select {
		case <-w.stop:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if !pending {
				pending = true
				debounce.Reset(configDebounce)
			}

		case <-debounce.C:
			pending = false
			cfg, err := Load(w.dir)
			if err != nil {
				w.logger.Warn("config_reload_failed", slog.String("error", err.Error()))
				continue
			}
			w.onChange(cfg)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config_watch_error", slog.String("error", err.Error()))
		}
	}
}

// Stop releases the underlying fsnotify watcher and ends the watch loop.
func (w *Watcher) Stop() error {
	close(w.stop)
	return w.fsw.Close()
}
