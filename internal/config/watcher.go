package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/cachewarden/cachewarden/pkg/logging"
)

// Watcher reloads the configuration when the file changes on disk, so
// threshold edits take effect without a restart. Each reload passes
// through the threshold guard before it is handed to the callback.
type Watcher struct {
	path     string
	logger   *logging.Logger
	onChange func(*Configuration)

	fsWatcher *fsnotify.Watcher
	stopCh    chan struct{}
}

// NewWatcher creates a watcher for the given config file. onChange is
// invoked with the freshly loaded, normalized configuration.
func NewWatcher(path string, logger *logging.Logger, onChange func(*Configuration)) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("onChange callback is required")
	}
	if logger == nil {
		logger = logging.Discard()
	}

	return &Watcher{
		path:     path,
		logger:   logger.WithComponent("config-watcher"),
		onChange: onChange,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start begins watching. The parent directory is watched rather than
// the file itself: editors and atomic writers replace the inode.
func (w *Watcher) Start() error {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := fsWatcher.Add(dir); err != nil {
		_ = fsWatcher.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	w.fsWatcher = fsWatcher
	go w.loop()

	w.logger.Info("Watching config file", map[string]interface{}{"path": w.path})
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	close(w.stopCh)
	if w.fsWatcher != nil {
		return w.fsWatcher.Close()
	}
	return nil
}

func (w *Watcher) loop() {
	// Editors fire several events per save; coalesce them.
	const debounce = 200 * time.Millisecond
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			timerCh = timer.C
		case <-timerCh:
			timerCh = nil
			w.reload()
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("Config watch error", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		// Load already fell back to usable values; the parse failure
		// is only worth a warning.
		w.logger.Warn("Config reload fell back to defaults", map[string]interface{}{
			"path":  w.path,
			"error": err.Error(),
		})
	}

	w.logger.Info("Config reloaded", map[string]interface{}{
		"start_threshold": cfg.Monitor.StartThreshold,
		"stop_threshold":  cfg.Monitor.StopThreshold,
		"auto_clean":      cfg.Monitor.AutoCleanEnabled,
	})
	w.onChange(cfg)
}
