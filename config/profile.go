package config

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// substituteEnvVars replaces ${VAR_NAME} patterns with environment variable
// values, left as-is if the variable is unset.
func substituteEnvVars(data []byte) []byte {
	return envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		name := envVarPattern.FindSubmatch(match)[1]
		if val, ok := os.LookupEnv(string(name)); ok {
			return []byte(val)
		}
		return match
	})
}

// LoadProfiles reads a YAML file of named connection profiles, with
// ${VAR} environment substitution applied before parsing.
func LoadProfiles(path string) (Profiles, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading profile file: %w", err)
	}
	data = substituteEnvVars(data)

	profiles := Profiles{}
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parsing profile file: %w", err)
	}
	for name, c := range profiles {
		applyDefaults(&c)
		profiles[name] = c
	}
	return profiles, nil
}

// Watcher watches a profile file for changes and calls the callback with
// the reloaded Profiles, debounced the same way the teacher's
// internal/config.Watcher debounces rapid fsnotify events.
type Watcher struct {
	path     string
	callback func(Profiles)
	watcher  *fsnotify.Watcher
	log      *slog.Logger
	mu       sync.Mutex
	stopCh   chan struct{}
}

// NewWatcher creates a watcher on path, invoking callback on every reload.
func NewWatcher(path string, callback func(Profiles), log *slog.Logger) (*Watcher, error) {
	if log == nil {
		log = slog.Default()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching profile file: %w", err)
	}

	pw := &Watcher{
		path:     path,
		callback: callback,
		watcher:  w,
		log:      log,
		stopCh:   make(chan struct{}),
	}
	go pw.run()
	return pw, nil
}

func (pw *Watcher) run() {
	var debounce *time.Timer
	for {
		select {
		case event, ok := <-pw.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(500*time.Millisecond, pw.reload)
			}
		case err, ok := <-pw.watcher.Errors:
			if !ok {
				return
			}
			pw.log.Warn("profile watcher error", "error", err)
		case <-pw.stopCh:
			return
		}
	}
}

func (pw *Watcher) reload() {
	pw.mu.Lock()
	defer pw.mu.Unlock()

	profiles, err := LoadProfiles(pw.path)
	if err != nil {
		pw.log.Warn("profile hot-reload failed", "path", pw.path, "error", err)
		return
	}
	pw.log.Info("profiles reloaded", "path", pw.path)
	pw.callback(profiles)
}

// Stop stops the watcher.
func (pw *Watcher) Stop() error {
	close(pw.stopCh)
	return pw.watcher.Close()
}
