package metrics

import (
	"github.com/prisminsights/prism/pkg/types"
)

// Monitor holds the alert-poller families. It satisfies monitor.Recorder.
type Monitor struct {
	cycles        *Vec
	skipped       *Vec
	fetchFailures *Vec
	alerts        *Vec
	records       *Vec
	lastCycle     *Vec
}

// NewMonitor registers the poller families on r.
func NewMonitor(r *Registry) *Monitor {
	return &Monitor{
		cycles:        r.Counter("prism_monitor_cycles_total", "Completed poll cycles."),
		skipped:       r.Counter("prism_monitor_cycles_skipped_total", "Cycles skipped because every collection still had a fetch in flight."),
		fetchFailures: r.Counter("prism_monitor_fetch_failures_total", "Collection fetches that failed.", "collection"),
		alerts:        r.Counter("prism_monitor_alerts_total", "Alerts emitted by transition rules.", "type", "severity"),
		records:       r.Gauge("prism_monitor_records", "Records in the latest snapshot.", "collection"),
		lastCycle:     r.Gauge("prism_monitor_last_cycle_timestamp_seconds", "Unix time of the last completed cycle."),
	}
}

func (m *Monitor) CycleCompleted(unix float64) {
	m.cycles.Inc()
	m.lastCycle.Set(unix)
}

func (m *Monitor) CycleSkipped() { m.skipped.Inc() }

func (m *Monitor) FetchFailed(c types.Collection) { m.fetchFailures.Inc(string(c)) }

func (m *Monitor) RecordsSeen(c types.Collection, n int) { m.records.Set(float64(n), string(c)) }

func (m *Monitor) AlertEmitted(d types.Draft) {
	m.alerts.Inc(string(d.Kind), string(d.Severity))
}
