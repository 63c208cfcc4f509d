// Package metrics keeps the monitor's operational counters and exposes them
// in the Prometheus text exposition format.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

// Registry holds metric families keyed by name. All methods are safe for
// concurrent use.
type Registry struct {
	mu       sync.Mutex
	families map[string]*family
	funcs    map[string]gaugeFunc
}

type family struct {
	name       string
	help       string
	typ        dto.MetricType
	labelNames []string
	series     map[string]*series // key: joined label values
}

type series struct {
	values []string
	value  float64
}

type gaugeFunc struct {
	help string
	fn   func() float64
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		families: make(map[string]*family),
		funcs:    make(map[string]gaugeFunc),
	}
}

// Vec is a handle on one registered family.
type Vec struct {
	r   *Registry
	fam *family
}

// Counter registers a monotonically increasing family.
func (r *Registry) Counter(name, help string, labelNames ...string) *Vec {
	return r.register(name, help, dto.MetricType_COUNTER, labelNames)
}

// Gauge registers a family whose value may go up and down.
func (r *Registry) Gauge(name, help string, labelNames ...string) *Vec {
	return r.register(name, help, dto.MetricType_GAUGE, labelNames)
}

// GaugeFunc registers an unlabelled gauge read from fn at exposition time.
func (r *Registry) GaugeFunc(name, help string, fn func() float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.funcs[name] = gaugeFunc{help: help, fn: fn}
}

func (r *Registry) register(name, help string, typ dto.MetricType, labelNames []string) *Vec {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.families[name]; ok {
		return &Vec{r: r, fam: f}
	}
	f := &family{
		name:       name,
		help:       help,
		typ:        typ,
		labelNames: labelNames,
		series:     make(map[string]*series),
	}
	r.families[name] = f
	return &Vec{r: r, fam: f}
}

// Add increases the series identified by labelValues by delta.
// Missing label values are treated as empty strings.
func (v *Vec) Add(delta float64, labelValues ...string) {
	v.r.mu.Lock()
	defer v.r.mu.Unlock()
	v.seriesFor(labelValues).value += delta
}

// Inc is Add(1, labelValues...).
func (v *Vec) Inc(labelValues ...string) { v.Add(1, labelValues...) }

// Set replaces the value of the series identified by labelValues.
func (v *Vec) Set(value float64, labelValues ...string) {
	v.r.mu.Lock()
	defer v.r.mu.Unlock()
	v.seriesFor(labelValues).value = value
}

// Value returns the current value of a series, or 0 if it was never touched.
func (v *Vec) Value(labelValues ...string) float64 {
	v.r.mu.Lock()
	defer v.r.mu.Unlock()
	if s, ok := v.fam.series[seriesKey(v.fam.labelNames, labelValues)]; ok {
		return s.value
	}
	return 0
}

// seriesFor must be called with the registry lock held.
func (v *Vec) seriesFor(labelValues []string) *series {
	key := seriesKey(v.fam.labelNames, labelValues)
	s, ok := v.fam.series[key]
	if !ok {
		vals := make([]string, len(v.fam.labelNames))
		copy(vals, labelValues)
		s = &series{values: vals}
		v.fam.series[key] = s
	}
	return s
}

func seriesKey(names, values []string) string {
	parts := make([]string, len(names))
	copy(parts, values)
	return strings.Join(parts, "\xff")
}

// Gather snapshots every family as a sorted slice of dto.MetricFamily.
func (r *Registry) Gather() []*dto.MetricFamily {
	r.mu.Lock()
	out := make([]*dto.MetricFamily, 0, len(r.families)+len(r.funcs))
	for _, f := range r.families {
		out = append(out, f.toProto())
	}
	funcs := make(map[string]gaugeFunc, len(r.funcs))
	for name, g := range r.funcs {
		funcs[name] = g
	}
	r.mu.Unlock()

	// Gauge funcs run outside the lock; they may call into other components.
	for name, g := range funcs {
		out = append(out, &dto.MetricFamily{
			Name: proto.String(name),
			Help: proto.String(g.help),
			Type: dto.MetricType_GAUGE.Enum(),
			Metric: []*dto.Metric{{
				Gauge: &dto.Gauge{Value: proto.Float64(g.fn())},
			}},
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].GetName() < out[j].GetName() })
	return out
}

func (f *family) toProto() *dto.MetricFamily {
	mf := &dto.MetricFamily{
		Name: proto.String(f.name),
		Help: proto.String(f.help),
		Type: f.typ.Enum(),
	}
	keys := make([]string, 0, len(f.series))
	for k := range f.series {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		s := f.series[k]
		m := &dto.Metric{}
		for i, name := range f.labelNames {
			m.Label = append(m.Label, &dto.LabelPair{
				Name:  proto.String(name),
				Value: proto.String(s.values[i]),
			})
		}
		switch f.typ {
		case dto.MetricType_COUNTER:
			m.Counter = &dto.Counter{Value: proto.Float64(s.value)}
		default:
			m.Gauge = &dto.Gauge{Value: proto.Float64(s.value)}
		}
		mf.Metric = append(mf.Metric, m)
	}
	return mf
}

// WriteText encodes all families to w in the Prometheus text format.
func (r *Registry) WriteText(w io.Writer) error {
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range r.Gather() {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("metrics: encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}

// Handler serves the registry at GET /metrics.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
		if err := r.WriteText(w); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})
}
