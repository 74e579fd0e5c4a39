package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	domainconfig "stackture/domain/config"
)

// Watcher reloads the overlay file into a domain config holder whenever it
// changes on disk. An invalid file is logged and the current rules stay.
type Watcher struct {
	path     string
	base     *domainconfig.DomainConfig
	holder   *domainconfig.Holder
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration

	started  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	done     chan struct{}
}

// NewWatcher watches path. base is the environment-derived config the
// overlay is applied to on every reload.
func NewWatcher(path string, base *domainconfig.DomainConfig, holder *domainconfig.Holder, logger *zap.Logger) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory so atomic saves (write + rename) are seen too.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("failed to watch config directory: %w", err)
	}

	return &Watcher{
		path:     path,
		base:     base,
		holder:   holder,
		watcher:  fw,
		logger:   logger,
		debounce: 100 * time.Millisecond,
		stopCh:   make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching in the background. Later calls are no-ops.
func (w *Watcher) Start() {
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.watchLoop()
	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
}

// Stop ends the watch loop, if it was started, and waits for it to exit
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.watcher.Close()
		if w.started.Load() {
			<-w.done
		}
		w.logger.Info("Configuration watcher stopped")
	})
}

func (w *Watcher) watchLoop() {
	defer close(w.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(w.debounce, w.Reload)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

// Reload reads the file once and swaps the result into the holder
func (w *Watcher) Reload() {
	overlay, err := LoadOverlay(w.path)
	if err != nil {
		w.logger.Error("Failed to reload configuration", zap.Error(err))
		return
	}

	next := overlay.Apply(w.base)
	prev := w.holder.Load()
	if err := w.holder.Store(next); err != nil {
		w.logger.Error("Invalid configuration, keeping current", zap.Error(err))
		return
	}

	w.logger.Info("Configuration reloaded",
		zap.String("cascadePolicy", string(next.CascadePolicy)),
		zap.String("previousCascadePolicy", string(prev.CascadePolicy)),
		zap.String("detachMode", string(next.DetachMode)),
		zap.String("previousDetachMode", string(prev.DetachMode)),
	)
}
