package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"reflect"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/raptrack/raptrack/pkg/threshold"
)

// DefaultDebounce is how long Watch waits after the last write before
// reloading. Editors often emit a truncate, a write and a chmod per save.
const DefaultDebounce = 250 * time.Millisecond

// Watch monitors path and calls onChange with the newly loaded Config when
// a settled write changes a setting that can be applied at runtime: the
// threshold overrides, the alert rules and webhooks, or the log level.
// Writes that only touch restart-time settings, or leave the file as it
// was, are logged and ignored. It runs until ctx is cancelled.
//
// If a reload fails (e.g., invalid YAML), the error is logged and the
// previous config remains active; onChange is not called.
func Watch(ctx context.Context, path string, onChange func(*Config)) error {
	return watch(ctx, path, DefaultDebounce, onChange)
}

// live is the part of Config that a running server applies on reload.
type live struct {
	Thresholds map[string]threshold.Entry
	Alerts     AlertsConfig
	LogLevel   string
}

func liveOf(c *Config) live {
	return live{Thresholds: c.Thresholds, Alerts: c.Server.Alerts, LogLevel: c.Server.LogLevel}
}

func watch(ctx context.Context, path string, debounce time.Duration, onChange func(*Config)) error {
	current, err := Load(path)
	if err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the directory: an atomic save replaces the file's inode and a
	// watch on the file itself would go quiet.
	path = filepath.Clean(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	slog.Info("config: watching for changes", "path", path, "debounce", debounce)

	timer := time.NewTimer(debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			timer.Reset(debounce)

		case <-timer.C:
			next, err := Load(path)
			if err != nil {
				slog.Error("config: reload failed, keeping previous config",
					"path", path, "err", err)
				continue
			}
			if reflect.DeepEqual(liveOf(current), liveOf(next)) {
				slog.Debug("config: no runtime settings changed", "path", path)
				current = next
				continue
			}
			current = next
			slog.Info("config: reloaded", "path", path,
				"threshold_overrides", len(next.Thresholds),
				"alert_rules", len(next.Server.Alerts.Rules),
			)
			onChange(next)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			slog.Error("config: watcher error", "err", err)
		}
	}
}
