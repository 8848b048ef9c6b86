package factory

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the configured plugin search directories for newly
// dropped libraries between runs. It never refreshes mid-run — the kernel
// is single-threaded and a run never pauses for a filesystem event — so
// PluginAdded only ever fires while no Loop is executing; callers
// typically drain it between Coordinator runs. Grounded on
// internal/runtime/runtime.go's HotReloadSystem: same fsnotify watch loop
// and isWatching guard, repointed at plugin directories instead of a
// single config file.
type Watcher struct {
	mu         sync.Mutex
	watcher    *fsnotify.Watcher
	dirs       []string
	isWatching bool

	PluginAdded chan string
	Errors      chan error
}

// NewWatcher constructs a Watcher over the given search directories
// (installation-local first, then user-local, per spec.md §4.5's lookup
// order).
func NewWatcher(dirs ...string) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("factory: create plugin directory watcher: %w", err)
	}
	return &Watcher{watcher: w, dirs: dirs, PluginAdded: make(chan string, 16), Errors: make(chan error, 16)}, nil
}

// Start begins watching every configured directory. Idempotent.
func (w *Watcher) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.isWatching {
		return nil
	}
	for _, dir := range w.dirs {
		if _, err := os.Stat(dir); err != nil {
			continue // optional directory; absence is not fatal
		}
		if err := w.watcher.Add(dir); err != nil {
			return fmt.Errorf("factory: watch plugin dir %s: %w", dir, err)
		}
	}
	w.isWatching = true
	go w.loop()
	return nil
}

func (w *Watcher) loop() {
	for {
		select {
		case e, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 && filepath.Ext(e.Name) == ".so" {
				w.PluginAdded <- e.Name
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.Errors <- err
		}
	}
}

// Stop closes the underlying fsnotify watcher and its channels.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.isWatching {
		return nil
	}
	w.isWatching = false
	err := w.watcher.Close()
	close(w.PluginAdded)
	close(w.Errors)
	return err
}
