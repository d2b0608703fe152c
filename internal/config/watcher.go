package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads a config file on change and applies the subset of fields
// that are safe to change without a restart: downstream server tag lists
// and routing thresholds. Transport kind, database paths, and listen
// addresses require a restart and are never hot-applied.
type Watcher struct {
	path   string
	logger *slog.Logger

	mu      sync.RWMutex
	current *Config

	watcher  *fsnotify.Watcher
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	debounce time.Duration

	onReload func(*Config)
}

// NewWatcher creates a watcher seeded with the already-loaded config at path.
func NewWatcher(path string, initial *Config, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		logger:   logger.With("component", "config_watcher"),
		current:  initial,
		debounce: 250 * time.Millisecond,
	}
}

// OnReload registers a callback invoked with the newly applied config after
// each successful hot-reload.
func (w *Watcher) OnReload(fn func(*Config)) {
	w.mu.Lock()
	w.onReload = fn
	w.mu.Unlock()
}

// Current returns the most recently applied config.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// Start begins watching the config file for changes until ctx is canceled
// or Close is called.
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		fw.Close()
		return err
	}
	w.watcher = fw

	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.wg.Add(1)
	go w.loop(watchCtx)
	return nil
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	if w.cancel != nil {
		w.cancel()
	}
	var err error
	if w.watcher != nil {
		err = w.watcher.Close()
	}
	w.wg.Wait()
	return err
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, w.reload)
	}

	target := filepath.Clean(w.path)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				scheduleReload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	next, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed, keeping previous config", "error", err)
		return
	}

	w.mu.Lock()
	merged := applyHotReloadable(w.current, next)
	w.current = merged
	onReload := w.onReload
	w.mu.Unlock()

	w.logger.Info("config reloaded")
	if onReload != nil {
		onReload(merged)
	}
}

// applyHotReloadable copies the fields that are safe to change at runtime
// from next onto a shallow copy of prev, leaving everything else (transport
// kind, database paths, listen address) untouched.
func applyHotReloadable(prev, next *Config) *Config {
	if prev == nil {
		return next
	}
	merged := *prev

	merged.Router.MaxTools = next.Router.MaxTools
	merged.Router.MinTools = next.Router.MinTools
	merged.Router.FallbackTools = next.Router.FallbackTools
	merged.Router.MaxPerServer = next.Router.MaxPerServer
	merged.Router.DomainKeywords = next.Router.DomainKeywords
	merged.Router.HybridSemWeight = next.Router.HybridSemWeight
	merged.Router.HybridKwWeight = next.Router.HybridKwWeight

	merged.ToolZoo.TopK = next.ToolZoo.TopK
	merged.ToolZoo.SimilarityThreshold = next.ToolZoo.SimilarityThreshold
	merged.ToolZoo.DomainKeywords = next.ToolZoo.DomainKeywords

	tags := make([]DownstreamServerSettings, 0, len(prev.DownstreamServers))
	tagsByID := make(map[string][]string, len(next.DownstreamServers))
	for _, s := range next.DownstreamServers {
		tagsByID[s.ID] = s.Tags
	}
	for _, s := range prev.DownstreamServers {
		if t, ok := tagsByID[s.ID]; ok {
			s.Tags = t
		}
		tags = append(tags, s)
	}
	merged.DownstreamServers = tags

	return &merged
}
