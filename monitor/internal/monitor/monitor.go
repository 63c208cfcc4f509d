// Package monitor polls the Prism data collections on a fixed interval,
// diffs every record against the previous snapshot and emits an alert for
// each qualifying field transition.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prisminsights/prism/pkg/types"
)

var (
	// ErrInvalidInterval is returned by Start for a non-positive interval.
	ErrInvalidInterval = errors.New("monitor: poll interval must be positive")
	// ErrAlreadyRunning is returned by Start on a running monitor.
	ErrAlreadyRunning = errors.New("monitor: already running")
)

// DataSource returns the current contents of each monitored collection.
type DataSource interface {
	FetchClients(ctx context.Context) ([]types.Client, error)
	FetchLicenses(ctx context.Context) ([]types.License, error)
	FetchLeads(ctx context.Context) ([]types.Lead, error)
}

// Sink receives emitted alerts. It stamps the ID, timestamp and read flag.
type Sink interface {
	AddAlert(d types.Draft) types.Alert
}

// Recorder receives operational counters. See metrics.Monitor.
type Recorder interface {
	CycleCompleted(unix float64)
	CycleSkipped()
	FetchFailed(c types.Collection)
	RecordsSeen(c types.Collection, n int)
	AlertEmitted(d types.Draft)
}

type nopRecorder struct{}

func (nopRecorder) CycleCompleted(float64)            {}
func (nopRecorder) CycleSkipped()                     {}
func (nopRecorder) FetchFailed(types.Collection)      {}
func (nopRecorder) RecordsSeen(types.Collection, int) {}
func (nopRecorder) AlertEmitted(types.Draft)          {}

// Option configures a Monitor.
type Option func(*Monitor)

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Monitor) {
		if r != nil {
			m.rec = r
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithCollections restricts polling to the given collections. An empty list
// keeps all of them.
func WithCollections(cs ...types.Collection) Option {
	return func(m *Monitor) {
		if len(cs) == 0 {
			return
		}
		m.enabled = make(map[types.Collection]bool, len(cs))
		for _, c := range cs {
			m.enabled[c] = true
		}
	}
}

// Snapshot is the last successfully fetched array of every collection.
// A nil slice means the collection has not been fetched yet.
type Snapshot struct {
	Clients  []types.Client
	Licenses []types.License
	Leads    []types.Lead
}

// CollectionReport is the outcome of one collection within one cycle.
// Skipped is set when the collection's previous fetch was still in flight.
type CollectionReport struct {
	Collection types.Collection
	Records    int
	Alerts     int
	Skipped    bool
	Err        error
}

// CycleReport summarises one call to Poll.
type CycleReport struct {
	StartedAt   time.Time
	Duration    time.Duration
	Skipped     bool
	Collections []CollectionReport
}

// Alerts returns the number of alerts emitted across all collections.
func (r CycleReport) Alerts() int {
	n := 0
	for _, c := range r.Collections {
		n += c.Alerts
	}
	return n
}

// CollectionStatus is the last known state of one collection.
type CollectionStatus struct {
	Records     int       `json:"records"`
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
}

// Status is a point-in-time view of the monitor for the health endpoint.
type Status struct {
	Running      bool                                  `json:"running"`
	Interval     time.Duration                         `json:"interval"`
	Cycles       int                                   `json:"cycles"`
	LastCycle    time.Time                             `json:"last_cycle,omitempty"`
	LastDuration time.Duration                         `json:"last_duration"`
	Collections  map[types.Collection]CollectionStatus `json:"collections"`
}

// Monitor is the alert poller. Construct with New; each instance owns its
// own snapshot.
type Monitor struct {
	src     DataSource
	sink    Sink
	rec     Recorder
	now     func() time.Time
	enabled map[types.Collection]bool

	// flights holds one claim per collection, set while its fetch runs.
	flights map[types.Collection]*atomic.Bool
	emitMu  sync.Mutex

	mu       sync.Mutex
	snap     Snapshot
	status   Status
	cancel   context.CancelFunc
	loopDone chan struct{}
	inflight sync.WaitGroup
}

// New returns a stopped Monitor reading from src and writing to sink.
func New(src DataSource, sink Sink, opts ...Option) *Monitor {
	m := &Monitor{
		src:  src,
		sink: sink,
		rec:  nopRecorder{},
		now:  time.Now,
		status: Status{
			Collections: make(map[types.Collection]CollectionStatus),
		},
		flights: make(map[types.Collection]*atomic.Bool, len(types.Collections)),
	}
	for _, c := range types.Collections {
		m.flights[c] = new(atomic.Bool)
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start performs one poll cycle immediately and then one every interval
// until Stop is called. Every start begins from an empty snapshot.
func (m *Monitor) Start(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.loopDone = make(chan struct{})
	m.snap = Snapshot{}
	m.status.Running = true
	m.status.Interval = interval

	go m.loop(ctx, interval, m.loopDone)

	slog.Info("monitor: started", "interval", interval)
	return nil
}

// Stop cancels the ticker and any in-flight fetch, waits for the running
// cycle to return and discards the snapshot. Calling Stop on a stopped
// monitor is a no-op.
func (m *Monitor) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.loopDone
	m.cancel, m.loopDone = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.inflight.Wait()

	m.mu.Lock()
	m.snap = Snapshot{}
	m.status.Running = false
	m.mu.Unlock()

	slog.Info("monitor: stopped")
}

// Running reports whether the poll loop is active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// loop fires a cycle per tick. Each cycle runs on its own goroutine so that a
// slow fetch cannot delay the timer; per-collection claims reject overlap.
func (m *Monitor) loop(ctx context.Context, interval time.Duration, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.spawn(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.spawn(ctx)
		}
	}
}

func (m *Monitor) spawn(ctx context.Context) {
	m.inflight.Add(1)
	go func() {
		defer m.inflight.Done()
		m.Poll(ctx)
	}()
}

// Poll runs one cycle synchronously. Every enabled collection is fetched on
// its own goroutine and diffed as soon as its fetch settles, so a slow or
// failed collection never holds back the others. Emission is serialized
// across collections. A collection whose previous fetch is still in flight
// is skipped for this cycle; if every collection is, Poll returns a skipped
// report without fetching.
//
// While the monitor is running each fetch is bounded by the poll interval.
// A fetch that outlives its deadline is reported as failed and its late
// result is discarded.
func (m *Monitor) Poll(ctx context.Context) CycleReport {
	started := m.now()
	timeout := m.fetchTimeout()

	var pending []<-chan CollectionReport
	var skipped []CollectionReport
	for _, c := range types.Collections {
		if !m.isEnabled(c) {
			continue
		}
		var ch <-chan CollectionReport
		switch c {
		case types.CollectionClients:
			ch = runCollection(ctx, m, c, timeout, started, m.src.FetchClients, clientRules,
				func(s *Snapshot) *[]types.Client { return &s.Clients })
		case types.CollectionLicenses:
			ch = runCollection(ctx, m, c, timeout, started, m.src.FetchLicenses, licenseRules,
				func(s *Snapshot) *[]types.License { return &s.Licenses })
		case types.CollectionLeads:
			ch = runCollection(ctx, m, c, timeout, started, m.src.FetchLeads, leadRules,
				func(s *Snapshot) *[]types.Lead { return &s.Leads })
		}
		if ch == nil {
			slog.Debug("monitor: previous fetch still in flight, skipping collection", "collection", c)
			skipped = append(skipped, CollectionReport{Collection: c, Skipped: true})
			continue
		}
		pending = append(pending, ch)
	}

	if len(pending) == 0 {
		m.rec.CycleSkipped()
		slog.Debug("monitor: previous cycle still running, skipping tick")
		return CycleReport{StartedAt: started, Skipped: true, Collections: skipped}
	}

	report := CycleReport{StartedAt: started}
	for _, ch := range pending {
		report.Collections = append(report.Collections, <-ch)
	}
	report.Collections = append(report.Collections, skipped...)
	report.Duration = m.now().Sub(started)

	m.mu.Lock()
	m.status.Cycles++
	m.status.LastCycle = started
	m.status.LastDuration = report.Duration
	m.mu.Unlock()
	m.rec.CycleCompleted(float64(started.UnixNano()) / 1e9)

	if n := report.Alerts(); n > 0 {
		slog.Info("monitor: cycle emitted alerts", "alerts", n, "duration", report.Duration)
	} else {
		slog.Debug("monitor: cycle complete", "duration", report.Duration)
	}
	return report
}

// fetchTimeout is the per-fetch deadline: the poll interval while running,
// none otherwise.
func (m *Monitor) fetchTimeout() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancel == nil {
		return 0
	}
	return m.status.Interval
}

// commit applies a collection's outcome: on success the snapshot entry is
// replaced via set; on failure only the status error is recorded.
func (m *Monitor) commit(r CollectionReport, at time.Time, set func(*Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status.Collections[r.Collection]
	if r.Err != nil {
		st.LastError = r.Err.Error()
		m.status.Collections[r.Collection] = st
		return
	}
	set(&m.snap)
	st.Records = r.Records
	st.LastSuccess = at
	st.LastError = ""
	m.status.Collections[r.Collection] = st
}

// Snapshot returns a copy of the current diff baseline.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		Clients:  cloneSlice(m.snap.Clients),
		Licenses: cloneSlice(m.snap.Licenses),
		Leads:    cloneSlice(m.snap.Leads),
	}
}

// Status returns a copy of the monitor's status.
func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status
	st.Running = m.cancel != nil
	st.Collections = make(map[types.Collection]CollectionStatus, len(m.status.Collections))
	for k, v := range m.status.Collections {
		st.Collections[k] = v
	}
	return st
}

func (m *Monitor) isEnabled(c types.Collection) bool {
	return m.enabled == nil || m.enabled[c]
}

// fetched holds the settled result of one fetch.
type fetched[T any] struct {
	records []T
	err     error
}

// runCollection claims collection c and starts its fetch. It returns nil if
// the previous fetch of c has not returned yet. The returned channel yields
// exactly one report: the diff outcome, or a failure once ctx is done or the
// timeout passes, whichever comes first.
func runCollection[T record](
	ctx context.Context,
	m *Monitor,
	c types.Collection,
	timeout time.Duration,
	at time.Time,
	fn func(context.Context) ([]T, error),
	rules func(prev, cur T) []types.Draft,
	entry func(*Snapshot) *[]T,
) <-chan CollectionReport {
	claim := m.flights[c]
	if !claim.CompareAndSwap(false, true) {
		return nil
	}

	var (
		fctx   context.Context
		cancel context.CancelFunc
	)
	if timeout > 0 {
		fctx, cancel = context.WithTimeout(ctx, timeout)
	} else {
		fctx, cancel = context.WithCancel(ctx)
	}

	// settled is won either by the fetch goroutine (result is processed) or
	// by the watcher below (fetch reported as failed, late result dropped).
	var settled atomic.Bool
	result := make(chan CollectionReport, 1)
	out := make(chan CollectionReport, 1)

	go func() {
		res := callFetch(fctx, fn)
		if !settled.CompareAndSwap(false, true) {
			claim.Store(false)
			slog.Debug("monitor: discarding late fetch result", "collection", c)
			return
		}
		if res.err == nil && fctx.Err() != nil {
			res = fetched[T]{err: fctx.Err()}
		}
		r := apply(m, c, at, res, rules, entry)
		// Release before handing over so a follow-up Poll can claim c.
		claim.Store(false)
		result <- r
	}()

	go func() {
		defer cancel()
		select {
		case r := <-result:
			out <- r
		case <-fctx.Done():
			if settled.CompareAndSwap(false, true) {
				out <- apply(m, c, at, fetched[T]{err: fmt.Errorf("fetch abandoned: %w", fctx.Err())}, rules, entry)
				return
			}
			out <- <-result
		}
	}()
	return out
}

// callFetch runs fn, converting a panic into an error so it cannot take the
// poller down.
func callFetch[T any](ctx context.Context, fn func(context.Context) ([]T, error)) (res fetched[T]) {
	defer func() {
		if p := recover(); p != nil {
			res = fetched[T]{err: fmt.Errorf("fetch panicked: %v", p)}
		}
	}()
	res.records, res.err = fn(ctx)
	return res
}

// apply diffs one settled fetch against the snapshot, emits its alerts and
// commits the outcome. Calls are serialized on emitMu so that emission and
// snapshot replacement never interleave across collections.
func apply[T record](m *Monitor, c types.Collection, at time.Time, res fetched[T], rules func(prev, cur T) []types.Draft, entry func(*Snapshot) *[]T) CollectionReport {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	m.mu.Lock()
	prior := *entry(&m.snap)
	m.mu.Unlock()

	next, r := process(m, c, res, prior, rules)
	m.commit(r, at, func(s *Snapshot) { *entry(s) = next })
	return r
}

// process diffs one collection and emits its alerts. It returns the array
// that should replace the snapshot entry (nil on failure) and the report.
func process[T record](m *Monitor, c types.Collection, res fetched[T], prior []T, rules func(prev, cur T) []types.Draft) ([]T, CollectionReport) {
	r := CollectionReport{Collection: c}
	if res.err != nil {
		r.Err = res.err
		m.rec.FetchFailed(c)
		slog.Warn("monitor: fetch failed, keeping previous snapshot",
			"collection", c, "err", res.err)
		return nil, r
	}

	current := res.records
	if current == nil {
		current = []T{}
	}
	r.Records = len(current)
	m.rec.RecordsSeen(c, len(current))

	for _, d := range diff(prior, current, rules) {
		d.Collection = c
		m.sink.AddAlert(d)
		m.rec.AlertEmitted(d)
		r.Alerts++
		slog.Debug("monitor: alert emitted",
			"collection", c, "entity", d.EntityID, "type", d.Kind, "severity", d.Severity)
	}
	return current, r
}

func cloneSlice[T any](s []T) []T {
	if s == nil {
		return nil
	}
	out := make([]T, len(s))
	copy(out, s)
	return out
}
