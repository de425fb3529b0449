// Package metrics is a small Prometheus-compatible registry for the relay.
// It writes the text exposition format directly instead of pulling in
// prometheus/client_golang.
package metrics

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Default is the process-wide registry served on /metrics.
var Default = NewRegistry()

// Registry holds counters and histograms keyed by name and label set.
type Registry struct {
	mu         sync.Mutex
	counters   map[string]*Counter
	histograms map[string]*Histogram
	startTime  time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		histograms: make(map[string]*Histogram),
		startTime:  time.Now(),
	}
}

// Counter is a monotonically increasing counter.
type Counter struct {
	name   string
	help   string
	labels string
	value  atomic.Int64
}

func (c *Counter) Inc()         { c.value.Add(1) }
func (c *Counter) Value() int64 { return c.value.Load() }

// Histogram tracks the distribution of observed values.
type Histogram struct {
	name    string
	help    string
	labels  string
	mu      sync.Mutex
	count   int64
	sum     float64
	bounds  []float64
	buckets []int64
}

func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	h.sum += v
	for i, le := range h.bounds {
		if v <= le {
			h.buckets[i]++
		}
	}
}

// Since observes the seconds elapsed since start.
func (h *Histogram) Since(start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Count returns the number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Counter returns or creates the counter for name and labels.
// labels is a preformatted label set such as `route="/webhook"`.
func (r *Registry) Counter(name, help, labels string) *Counter {
	key := name + "{" + labels + "}"
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.counters[key]; ok {
		return c
	}
	c := &Counter{name: name, help: help, labels: labels}
	r.counters[key] = c
	return c
}

// Histogram returns or creates the histogram for name and labels.
func (r *Registry) Histogram(name, help, labels string, bounds []float64) *Histogram {
	key := name + "{" + labels + "}"
	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.histograms[key]; ok {
		return h
	}
	sorted := append([]float64(nil), bounds...)
	sort.Float64s(sorted)
	h := &Histogram{name: name, help: help, labels: labels, bounds: sorted, buckets: make([]int64, len(sorted))}
	r.histograms[key] = h
	return h
}

// Render writes all metrics in Prometheus text format, sorted by key.
func (r *Registry) Render() string {
	r.mu.Lock()
	counterKeys := sortedKeys(r.counters)
	histKeys := sortedKeys(r.histograms)
	counters := make([]*Counter, len(counterKeys))
	for i, k := range counterKeys {
		counters[i] = r.counters[k]
	}
	hists := make([]*Histogram, len(histKeys))
	for i, k := range histKeys {
		hists[i] = r.histograms[k]
	}
	r.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "# HELP foodrelay_uptime_seconds Time since start in seconds\n")
	fmt.Fprintf(&sb, "# TYPE foodrelay_uptime_seconds gauge\n")
	fmt.Fprintf(&sb, "foodrelay_uptime_seconds %d\n", int64(time.Since(r.startTime).Seconds()))

	helpWritten := make(map[string]bool)
	for _, c := range counters {
		if !helpWritten[c.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s counter\n", c.name, c.help, c.name)
			helpWritten[c.name] = true
		}
		fmt.Fprintf(&sb, "%s%s %d\n", c.name, wrapLabels(c.labels), c.Value())
	}

	for _, h := range hists {
		h.mu.Lock()
		if !helpWritten[h.name] {
			fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s histogram\n", h.name, h.help, h.name)
			helpWritten[h.name] = true
		}
		prefix := ""
		if h.labels != "" {
			prefix = h.labels + ","
		}
		for i, le := range h.bounds {
			fmt.Fprintf(&sb, "%s_bucket{%sle=\"%s\"} %d\n", h.name, prefix, formatBound(le), h.buckets[i])
		}
		fmt.Fprintf(&sb, "%s_bucket{%sle=\"+Inf\"} %d\n", h.name, prefix, h.count)
		fmt.Fprintf(&sb, "%s_count%s %d\n", h.name, wrapLabels(h.labels), h.count)
		fmt.Fprintf(&sb, "%s_sum%s %f\n", h.name, wrapLabels(h.labels), h.sum)
		h.mu.Unlock()
	}
	return sb.String()
}

// Handler serves Render on GET.
func (r *Registry) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		fmt.Fprint(w, r.Render())
	}
}

func wrapLabels(labels string) string {
	if labels == "" {
		return ""
	}
	return "{" + labels + "}"
}

func formatBound(le float64) string {
	if math.IsInf(le, 1) {
		return "+Inf"
	}
	return fmt.Sprintf("%g", le)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// --- Relay metrics ---

var (
	AnalysesTotal    = Default.Counter("foodrelay_analyses_total", "Analysis service calls", "")
	AnalysesFailed   = Default.Counter("foodrelay_analyses_failed_total", "Analysis service calls that failed", "")
	NoImageReplies   = Default.Counter("foodrelay_no_image_total", "Events answered with the upload prompt", "")
	DispatchFailures = Default.Counter("foodrelay_dispatch_failed_total", "Callback deliveries that failed", "")

	AnalysisLatency = Default.Histogram("foodrelay_analysis_latency_seconds", "Analysis service latency in seconds", "",
		[]float64{0.5, 1, 2, 5, 10, 30, 60})
)

// Requests returns the inbound request counter for route.
func Requests(route string) *Counter {
	return Default.Counter("foodrelay_requests_total", "Inbound webhook requests", fmt.Sprintf("route=%q", route))
}
