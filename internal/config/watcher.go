package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch blocks until ctx is cancelled, calling onChange with the freshly
// parsed settings whenever the file at path is written. The parent directory
// is watched so editors that save via rename are still observed. Invalid
// files are logged and ignored; the previous settings stay in effect.
func Watch(ctx context.Context, path string, onChange func(Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%s: %w", ErrWatcherInit, err)
	}
	defer func() { _ = watcher.Close() }()

	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("%s: %w", ErrWatcherInit, err)
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("%s: %w", ErrWatcherInit, err)
	}

	log := slog.With(LogKeyComponent, CompSettings, LogKeyFile, abs)

	// Debounce: a single save produces several events.
	debounce := time.NewTimer(time.Hour)
	debounce.Stop()
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info(MsgWatcherStop)
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != abs {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce.Reset(WatchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Warn(ErrWatcherInit, LogKeyError, err)

		case <-debounce.C:
			log.Info(MsgSettingsReload)
			s, err := Load(abs)
			if err != nil {
				log.Warn(MsgSettingsBad, LogKeyError, err)
				continue
			}
			onChange(s)
		}
	}
}
