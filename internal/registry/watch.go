package registry

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"genescore/internal"

	"github.com/fsnotify/fsnotify"
)

// SeedWatcher reapplies the seed file when it changes on disk. The parent
// directory is watched so editors that replace the file by rename are seen.
type SeedWatcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback func()
	debounce time.Duration
	logger   *internal.Logger

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
	once  sync.Once
}

// NewSeedWatcher watches path and calls callback after changes settle
func NewSeedWatcher(path string, debounce time.Duration, callback func(), logger *internal.Logger) (*SeedWatcher, error) {
	if debounce <= 0 {
		debounce = 200 * time.Millisecond
	}
	if logger == nil {
		logger = internal.DefaultLogger.With("registry")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve seed path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &SeedWatcher{
		watcher:  watcher,
		path:     abs,
		callback: callback,
		debounce: debounce,
		logger:   logger,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching
func (sw *SeedWatcher) Start() {
	sw.logger.Info("watching seed file %s", sw.path)
	go sw.run()
}

// Stop stops watching
func (sw *SeedWatcher) Stop() {
	sw.once.Do(func() {
		close(sw.done)
		sw.watcher.Close()
		sw.mu.Lock()
		if sw.timer != nil {
			sw.timer.Stop()
		}
		sw.mu.Unlock()
	})
}

func (sw *SeedWatcher) run() {
	for {
		select {
		case <-sw.done:
			return

		case event, ok := <-sw.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != sw.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			sw.schedule()

		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return
			}
			sw.logger.Warn("seed watcher error: %v", err)
		}
	}
}

// schedule fires the callback once no event has arrived for the debounce window
func (sw *SeedWatcher) schedule() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.timer != nil {
		sw.timer.Stop()
	}
	sw.timer = time.AfterFunc(sw.debounce, func() {
		select {
		case <-sw.done:
			return
		default:
		}
		sw.logger.Debug("seed file changed: %s", sw.path)
		sw.callback()
	})
}
