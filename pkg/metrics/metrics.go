// Package metrics implements a small Prometheus text-format registry for
// the pipeline's counters, gauges and histograms. Labels are baked into a
// series name with WithLabels; series sharing a base name render as one
// family. Render emits the exposition format served at /metrics.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// DefaultBuckets covers pipeline stage latencies, from sub-second corpus
// shaping up to multi-minute collection and synthesis calls.
var DefaultBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120}

// Counter is a monotonically increasing value.
type Counter struct{ v atomic.Int64 }

func (c *Counter) Inc()         { c.v.Add(1) }
func (c *Counter) Add(n int64)  { c.v.Add(n) }
func (c *Counter) Value() int64 { return c.v.Load() }

// Gauge is a value that moves both ways, such as runs in flight.
type Gauge struct{ v atomic.Int64 }

func (g *Gauge) Inc()         { g.v.Add(1) }
func (g *Gauge) Dec()         { g.v.Add(-1) }
func (g *Gauge) Set(n int64)  { g.v.Store(n) }
func (g *Gauge) Value() int64 { return g.v.Load() }

// Histogram records a distribution over fixed upper bounds.
type Histogram struct {
	mu     sync.Mutex
	bounds []float64
	counts []uint64 // per bound; Render accumulates cumulatively
	sum    float64
	total  uint64
}

func newHistogram(bounds []float64) *Histogram {
	b := make([]float64, len(bounds))
	copy(b, bounds)
	sort.Float64s(b)
	return &Histogram{bounds: b, counts: make([]uint64, len(b))}
}

// Observe records one value.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.total++
	for i, b := range h.bounds {
		if v <= b {
			h.counts[i]++
			break
		}
	}
}

func (h *Histogram) snapshot() ([]float64, []uint64, float64, uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	counts := make([]uint64, len(h.counts))
	copy(counts, h.counts)
	return h.bounds, counts, h.sum, h.total
}

// family groups every labeled series of one base name under one TYPE line.
type family struct {
	name       string
	typ        string
	help       string
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// Registry holds metric families in registration order.
type Registry struct {
	mu       sync.Mutex
	families []*family
	byName   map[string]*family
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{byName: make(map[string]*family)}
}

// family returns the family for name's base, creating it on first use.
// Callers must hold mu.
func (r *Registry) family(name, typ, help string) *family {
	base := baseName(name)
	f, ok := r.byName[base]
	if !ok {
		f = &family{
			name:       base,
			typ:        typ,
			help:       help,
			counters:   make(map[string]*Counter),
			gauges:     make(map[string]*Gauge),
			histograms: make(map[string]*Histogram),
		}
		r.byName[base] = f
		r.families = append(r.families, f)
	}
	return f
}

// Counter returns (or creates) the counter series for name.
func (r *Registry) Counter(name, help string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.family(name, "counter", help)
	c, ok := f.counters[name]
	if !ok {
		c = &Counter{}
		f.counters[name] = c
	}
	return c
}

// Gauge returns (or creates) the gauge series for name.
func (r *Registry) Gauge(name, help string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.family(name, "gauge", help)
	g, ok := f.gauges[name]
	if !ok {
		g = &Gauge{}
		f.gauges[name] = g
	}
	return g
}

// Histogram returns (or creates) the histogram series for name. A nil
// buckets slice uses DefaultBuckets.
func (r *Registry) Histogram(name, help string, buckets []float64) *Histogram {
	if buckets == nil {
		buckets = DefaultBuckets
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.family(name, "histogram", help)
	h, ok := f.histograms[name]
	if !ok {
		h = newHistogram(buckets)
		f.histograms[name] = h
	}
	return h
}

// WithLabels bakes label pairs into a series name: WithLabels("x", "k", "v")
// yields `x{k="v"}`. An odd pair count returns the name unchanged.
func WithLabels(name string, kvs ...string) string {
	if len(kvs) == 0 || len(kvs)%2 != 0 {
		return name
	}
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i := 0; i < len(kvs); i += 2 {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", kvs[i], kvs[i+1])
	}
	b.WriteByte('}')
	return b.String()
}

// baseName strips the baked-in label block from a series name.
func baseName(name string) string {
	if i := strings.IndexByte(name, '{'); i != -1 {
		return name[:i]
	}
	return name
}

// labelsOf returns the inner label block of a series name, without braces.
func labelsOf(name string) string {
	i := strings.IndexByte(name, '{')
	if i == -1 {
		return ""
	}
	return name[i+1 : len(name)-1]
}

// Render returns the registry in the Prometheus text exposition format.
func (r *Registry) Render() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	var b strings.Builder
	for _, f := range r.families {
		if f.help != "" {
			fmt.Fprintf(&b, "# HELP %s %s\n", f.name, f.help)
		}
		fmt.Fprintf(&b, "# TYPE %s %s\n", f.name, f.typ)

		switch f.typ {
		case "counter":
			for _, n := range sortedKeys(f.counters) {
				fmt.Fprintf(&b, "%s %d\n", n, f.counters[n].Value())
			}
		case "gauge":
			for _, n := range sortedKeys(f.gauges) {
				fmt.Fprintf(&b, "%s %d\n", n, f.gauges[n].Value())
			}
		case "histogram":
			for _, n := range sortedKeys(f.histograms) {
				renderHistogram(&b, f.name, labelsOf(n), f.histograms[n])
			}
		}
	}
	return b.String()
}

func renderHistogram(b *strings.Builder, name, labels string, h *Histogram) {
	bounds, counts, sum, total := h.snapshot()

	extra := ""
	if labels != "" {
		extra = "," + labels
	}
	var cumulative uint64
	for i, bound := range bounds {
		cumulative += counts[i]
		fmt.Fprintf(b, "%s_bucket{le=\"%s\"%s} %d\n",
			name, strconv.FormatFloat(bound, 'g', -1, 64), extra, cumulative)
	}
	fmt.Fprintf(b, "%s_bucket{le=\"+Inf\"%s} %d\n", name, extra, total)

	wrapped := ""
	if labels != "" {
		wrapped = "{" + labels + "}"
	}
	fmt.Fprintf(b, "%s_sum%s %g\n", name, wrapped, sum)
	fmt.Fprintf(b, "%s_count%s %d\n", name, wrapped, total)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Handler serves the rendered registry, for mounting at /metrics.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		io.WriteString(w, r.Render())
	})
}
