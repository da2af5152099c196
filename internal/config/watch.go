package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/teemow/rapture-inbox/internal/logging"
)

// DefaultReloadDebounce coalesces the burst of events editors produce when
// saving a file.
const DefaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads the config file whenever it changes on disk.
type Watcher struct {
	Path     string
	Debounce time.Duration
	Logger   *slog.Logger

	// Reload produces the new config; typically a closure over Resolve so
	// environment and flag overrides keep applying.
	Reload func() (*Config, error)

	// OnChange receives every successfully reloaded config.
	OnChange func(*Config)
}

// Run blocks until ctx is done. The parent directory is watched rather than
// the file so atomic replace-by-rename saves are seen. Configs that fail to
// load are logged and skipped; the previous config stays in effect.
func (w *Watcher) Run(ctx context.Context) error {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logging.WithComponent(logger, "config")

	debounce := w.Debounce
	if debounce <= 0 {
		debounce = DefaultReloadDebounce
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer fw.Close()

	target := filepath.Clean(w.Path)
	if err := fw.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", logging.Err(err))

		case <-fire:
			fire = nil
			cfg, err := w.Reload()
			if err != nil {
				logger.Warn("ignoring invalid config change", logging.Path(target), logging.Err(err))
				continue
			}
			logger.Info("config reloaded", logging.Path(target))
			if w.OnChange != nil {
				w.OnChange(cfg)
			}
		}
	}
}
