package main

import (
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/prisminsights/prism/monitor/internal/config"
)

// restarter is the lifecycle half of monitor.Monitor.
type restarter interface {
	Start(interval time.Duration) error
	Stop()
}

// targetSetter is satisfied by webhook.Deliverer.
type targetSetter interface {
	SetTargets(targets []config.WebhookConfig)
}

// reloader applies a hot-reloaded config to the running components.
// Settings it cannot apply live are logged and keep their startup value.
type reloader struct {
	mu      sync.Mutex
	current *config.Config

	mon   restarter
	hooks targetSetter
	level *slog.LevelVar

	// pinnedLevel is set when -log-level overrides the file.
	pinnedLevel bool
}

func (r *reloader) apply(next *config.Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	prev := r.current

	if !reflect.DeepEqual(prev.Webhooks, next.Webhooks) {
		r.hooks.SetTargets(next.Webhooks)
		slog.Info("reload: webhook targets updated", "targets", len(next.Webhooks))
	}

	if !r.pinnedLevel && prev.Log.Level != next.Log.Level {
		r.level.Set(next.Log.SlogLevel())
		slog.Info("reload: log level updated", "level", next.Log.SlogLevel().String())
	}

	if prev.Monitor.PollInterval != next.Monitor.PollInterval {
		// Restarting discards the snapshot, so the next cycle is a baseline.
		r.mon.Stop()
		if err := r.mon.Start(next.Monitor.PollInterval); err != nil {
			slog.Error("reload: restart monitor failed, restoring previous interval",
				"interval", next.Monitor.PollInterval, "err", err)
			if err := r.mon.Start(prev.Monitor.PollInterval); err != nil {
				slog.Error("reload: monitor not running", "err", err)
			}
			next.Monitor.PollInterval = prev.Monitor.PollInterval
		} else {
			slog.Info("reload: poll interval updated",
				"from", prev.Monitor.PollInterval, "to", next.Monitor.PollInterval)
		}
	}

	for _, field := range restartOnly(prev, next) {
		slog.Warn("reload: change requires a restart, ignoring", "field", field)
	}

	r.current = next
}

// restartOnly lists the sections that differ but are only read at startup.
func restartOnly(prev, next *config.Config) []string {
	var out []string
	if !reflect.DeepEqual(prev.Monitor.Collections, next.Monitor.Collections) {
		out = append(out, "monitor.collections")
	}
	if !reflect.DeepEqual(prev.DataSource, next.DataSource) {
		out = append(out, "data_source")
	}
	if prev.Inbox != next.Inbox {
		out = append(out, "inbox")
	}
	if prev.HTTP != next.HTTP {
		out = append(out, "http")
	}
	if prev.GRPC != next.GRPC {
		out = append(out, "grpc")
	}
	return out
}
