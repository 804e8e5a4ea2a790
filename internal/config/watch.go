package config

import (
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a project's configuration whenever its on-disk YAML
// files change. It watches the project directory (for .kfsearch.yaml or
// .yml) and the user config file's directory, since either can affect the
// merged result.
type Watcher struct {
	fsw     *fsnotify.Watcher
	dir     string
	onLoad  func(*Config, error)
	stopped chan struct{}
}

// WatchProjectConfig starts watching dir and the user config directory for
// changes and invokes onLoad with the result of Load(dir) each time a
// relevant file is created, written, or removed. The caller owns the
// returned Watcher and must call Close when done.
func WatchProjectConfig(dir string, onLoad func(*Config, error)) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := fsw.Add(dir); err != nil {
		fsw.Close()
		return nil, err
	}
	if userDir := GetUserConfigDir(); userDir != "" {
		// Best effort: the user config directory may not exist yet.
		_ = fsw.Add(userDir)
	}

	w := &Watcher{fsw: fsw, dir: dir, onLoad: onLoad, stopped: make(chan struct{})}
	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !isConfigFile(ev.Name) {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			cfg, err := Load(w.dir)
			w.onLoad(cfg, err)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", "error", err)
		case <-w.stopped:
			return
		}
	}
}

func isConfigFile(name string) bool {
	base := filepath.Base(name)
	return base == ".kfsearch.yaml" || base == ".kfsearch.yml" || base == "config.yaml"
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stopped)
	return w.fsw.Close()
}
