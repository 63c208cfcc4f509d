// Package webhook pushes newly stamped alerts to chat and HTTP endpoints.
package webhook

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prisminsights/prism/monitor/internal/config"
	"github.com/prisminsights/prism/pkg/types"
)

const defaultTimeout = 10 * time.Second

// Deliverer fans alerts out to the configured webhook targets. Delivery is
// asynchronous; failures are logged and never reach the caller.
//
// Deliverer is safe for concurrent use.
type Deliverer struct {
	mu      sync.RWMutex
	targets []config.WebhookConfig

	client  *http.Client
	pending sync.WaitGroup
}

// New returns a Deliverer for targets.
func New(targets []config.WebhookConfig) *Deliverer {
	d := &Deliverer{client: &http.Client{Timeout: defaultTimeout}}
	d.SetTargets(targets)
	return d
}

// SetTargets replaces the target list. Used on config hot-reload.
func (d *Deliverer) SetTargets(targets []config.WebhookConfig) {
	cp := make([]config.WebhookConfig, len(targets))
	copy(cp, targets)
	d.mu.Lock()
	d.targets = cp
	d.mu.Unlock()
}

// Targets returns the number of configured targets.
func (d *Deliverer) Targets() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.targets)
}

// Notify schedules delivery of a. It matches inbox.Listener.
func (d *Deliverer) Notify(a types.Alert) {
	d.mu.RLock()
	targets := d.targets
	d.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	d.pending.Add(1)
	go func() {
		defer d.pending.Done()
		d.deliver(targets, a)
	}()
}

// Wait blocks until every scheduled delivery has finished.
func (d *Deliverer) Wait() { d.pending.Wait() }

func (d *Deliverer) deliver(targets []config.WebhookConfig, a types.Alert) {
	for _, wh := range targets {
		if wh.MinSeverity != "" && a.Severity.Level() < types.Severity(wh.MinSeverity).Level() {
			continue
		}
		url := wh.URL()
		if url == "" {
			continue
		}

		var err error
		switch wh.Type {
		case "slack":
			err = d.sendSlack(url, a)
		case "teams":
			err = d.sendTeams(url, a)
		case "http":
			err = d.sendHTTP(url, a)
		default:
			slog.Warn("webhook: unknown type, skipping", "type", wh.Type)
			continue
		}

		if err != nil {
			slog.Error("webhook: delivery failed",
				"type", wh.Type,
				"alert", a.ID,
				"err", err,
			)
		} else {
			slog.Debug("webhook: delivered",
				"type", wh.Type,
				"alert", a.ID,
				"severity", a.Severity,
			)
		}
	}
}

func (d *Deliverer) sendSlack(url string, a types.Alert) error {
	body, _ := json.Marshal(map[string]string{
		"text": fmt.Sprintf("*%s* %s\n%s", severityLabel(a.Severity), a.Title, a.Message),
	})
	return d.post(url, body)
}

func (d *Deliverer) sendTeams(url string, a types.Alert) error {
	payload := map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": severityColor(a.Severity),
		"summary":    a.Title,
		"title":      a.Title,
		"text":       a.Message,
	}
	body, _ := json.Marshal(payload)
	return d.post(url, body)
}

func (d *Deliverer) sendHTTP(url string, a types.Alert) error {
	body, _ := json.Marshal(map[string]interface{}{"alert": a})
	return d.post(url, body)
}

func (d *Deliverer) post(url string, body []byte) error {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

func severityLabel(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "[CRITICAL]"
	case types.SeverityWarning:
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s types.Severity) string {
	switch s {
	case types.SeverityCritical:
		return "E5484D"
	case types.SeverityWarning:
		return "F5A524"
	default:
		return "3E9BF5"
	}
}
