package config

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads the file at path whenever it is written or replaced and
// passes each valid result to apply. Invalid files are logged and skipped.
// The parent directory is watched so editors that rename over the file
// are still observed. Watch blocks until ctx is done.
func Watch(ctx context.Context, path string, logger *zap.SugaredLogger, apply func(Config)) error {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}
	defer watcher.Close()

	target := filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("config watcher: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				logger.Warnw("ignoring invalid config reload", "path", path, "error", err)
				continue
			}
			logger.Infow("config reloaded", "path", path)
			apply(cfg)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warnw("config watcher error", "error", err)
		}
	}
}
