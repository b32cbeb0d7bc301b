package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 400 * time.Millisecond

// OverrideWatcher reloads the race override table when the config file changes.
type OverrideWatcher struct {
	path     string
	onChange func(map[string]string)
	debounce time.Duration
	logger   *zap.Logger

	mu       sync.Mutex
	timer    *time.Timer
	watcher  *fsnotify.Watcher
	stopOnce sync.Once
	done     chan struct{}
}

// WatcherOption configures an OverrideWatcher.
type WatcherOption func(*OverrideWatcher)

// WithLogger sets a logger for reload events.
func WithLogger(l *zap.Logger) WatcherOption {
	return func(w *OverrideWatcher) { w.logger = l }
}

// WithDebounce sets how long to wait after the last write before reloading.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *OverrideWatcher) { w.debounce = d }
}

// WatchOverrides watches the config file at path and calls onChange with the reloaded
// override table after each debounced change. It runs until ctx is cancelled or Stop is called.
// The parent directory is watched so editors that replace the file by rename are seen.
func WatchOverrides(ctx context.Context, path string, onChange func(map[string]string), opts ...WatcherOption) (*OverrideWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w := &OverrideWatcher{
		path:     abs,
		onChange: onChange,
		debounce: defaultDebounce,
		logger:   zap.NewNop(),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, err
	}
	w.watcher = fw
	go w.run(ctx)
	return w, nil
}

func (w *OverrideWatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("config change", zap.String("op", ev.Op.String()), zap.String("path", ev.Name))
			w.scheduleReload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if err != nil {
				w.logger.Debug("config watcher error", zap.Error(err))
			}
		}
	}
}

func (w *OverrideWatcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *OverrideWatcher) reload() {
	select {
	case <-w.done:
		return
	default:
	}
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed; keeping previous race overrides", zap.String("path", w.path), zap.Error(err))
		return
	}
	w.logger.Info("race overrides reloaded", zap.Int("count", len(cfg.Races.Overrides)))
	if w.onChange != nil {
		w.onChange(cfg.Races.Overrides)
	}
}

// Stop stops watching. Safe to call more than once.
func (w *OverrideWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		w.mu.Lock()
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()
		_ = w.watcher.Close()
	})
}
