package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog/log"
)

const debounce = 100 * time.Millisecond

// Watch reloads the file at path whenever it changes and hands every valid
// configuration to onChange. Invalid edits are logged and skipped. It blocks
// until ctx is done.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return eris.Wrap(err, "creating config watcher")
	}
	defer w.Close()
	// editors replace files, so watch the directory
	if err := w.Add(filepath.Dir(path)); err != nil {
		return eris.Wrapf(err, "watching %s", path)
	}
	target := filepath.Clean(path)
	logger := log.With().Str("config", target).Logger()

	// reload once the file has been quiet for the debounce interval
	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(debounce)
		case <-timer.C:
			cfg, err := Load(path)
			if err != nil {
				logger.Warn().Err(err).Msg("ignoring invalid config change")
				continue
			}
			logger.Info().Msg("config reloaded")
			onChange(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("config watcher error")
		}
	}
}
