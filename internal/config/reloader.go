package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadState represents the current state of the config reloader
type ReloadState string

const (
	ReloadStateIdle      ReloadState = "idle"
	ReloadStateReloading ReloadState = "reloading"
	ReloadStateStopped   ReloadState = "stopped"
)

// String returns a string representation of the reload state
func (s ReloadState) String() string {
	return string(s)
}

// ReloadCallback is called with the freshly loaded configuration
type ReloadCallback func(ctx context.Context, newConfig *Config) error

// Reloader reloads the configuration file whenever it changes on disk.
//
// SIGHUP is not used as a trigger: the queue's signal guard treats it as a
// terminating signal and unlinks the FIFO on receipt.
type Reloader struct {
	mu            sync.RWMutex
	configPath    string
	currentConfig *Config
	state         ReloadState
	callbacks     []ReloadCallback
	debounce      time.Duration
	log           *slog.Logger

	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewReloader creates a new config reloader. A nil logger discards output.
func NewReloader(configPath string, initialConfig *Config, log *slog.Logger) *Reloader {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	debounce := DefaultWatchDebounce
	if initialConfig != nil && initialConfig.Peers.WatchDebounce > 0 {
		debounce = initialConfig.Peers.WatchDebounce
	}
	return &Reloader{
		configPath:    configPath,
		currentConfig: initialConfig,
		state:         ReloadStateIdle,
		debounce:      debounce,
		log:           log.With("component", "config_reloader"),
	}
}

// Start watches the directory holding the config file. Editors usually
// replace files by rename, so the directory is watched rather than the file.
func (r *Reloader) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.watcher != nil {
		return nil
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(r.configPath)); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(r.configPath), err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.watcher = w
	r.cancel = cancel
	r.done = make(chan struct{})
	r.state = ReloadStateIdle

	go r.watch(ctx, w, r.done)

	r.log.Info("config reloader started", "config_path", r.configPath)
	return nil
}

// Stop stops watching. It is safe to call more than once.
func (r *Reloader) Stop() {
	r.mu.Lock()
	if r.watcher == nil {
		r.mu.Unlock()
		return
	}
	w, cancel, done := r.watcher, r.cancel, r.done
	r.watcher = nil
	r.state = ReloadStateStopped
	r.mu.Unlock()

	cancel()
	_ = w.Close()
	<-done

	r.log.Info("config reloader stopped")
}

// Reload reloads the configuration from the file and runs the callbacks.
// The new configuration becomes current only if every callback succeeds.
func (r *Reloader) Reload(ctx context.Context) error {
	r.mu.Lock()
	if r.state == ReloadStateReloading {
		r.mu.Unlock()
		r.log.Debug("reload already in progress, skipping")
		return nil
	}
	prev := r.state
	r.state = ReloadStateReloading
	callbacks := make([]ReloadCallback, len(r.callbacks))
	copy(callbacks, r.callbacks)
	r.mu.Unlock()

	defer r.setStateUnlessStopped(prev)

	newConfig, err := Load(r.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	for i, callback := range callbacks {
		if err := callback(ctx, newConfig); err != nil {
			r.log.Warn("reload callback failed", "callback", i, "error", err)
			return fmt.Errorf("reload callbacks failed: %w", err)
		}
	}

	r.mu.Lock()
	r.currentConfig = newConfig
	r.mu.Unlock()

	r.log.Info("configuration reloaded", "config", newConfig.String())
	return nil
}

// AddCallback adds a callback that will be called when config is reloaded
func (r *Reloader) AddCallback(callback ReloadCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, callback)
}

// GetConfig returns the current configuration
func (r *Reloader) GetConfig() *Config {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.currentConfig
}

// State returns the current reload state
func (r *Reloader) State() ReloadState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// String returns a string representation of the reloader
func (r *Reloader) String() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return fmt.Sprintf("Reloader{state: %s, config_path: %s, callbacks: %d}",
		r.state, r.configPath, len(r.callbacks))
}

func (r *Reloader) setStateUnlessStopped(state ReloadState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != ReloadStateStopped {
		r.state = state
	}
}

// watch coalesces bursts of events on the config file into one reload
func (r *Reloader) watch(ctx context.Context, w *fsnotify.Watcher, done chan<- struct{}) {
	defer close(done)

	target := filepath.Clean(r.configPath)
	var (
		timer  *time.Timer
		fire   <-chan time.Time
		events = w.Events
		errs   = w.Errors
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(r.debounce)
			} else {
				timer.Reset(r.debounce)
			}
			fire = timer.C

		case err, ok := <-errs:
			if !ok {
				return
			}
			r.log.Warn("config watcher error", "error", err)

		case <-fire:
			fire = nil
			if err := r.Reload(ctx); err != nil {
				r.log.Error("configuration reload failed", "error", err)
			}
		}
	}
}
