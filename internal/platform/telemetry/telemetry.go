// Package telemetry records HTTP and form-operation metrics and serves them
// in the Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
)

var defaultDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10}

// -- Histogram --

// histogram keeps non-cumulative bucket counts; cumulative counts are
// computed at export time.
type histogram struct {
	boundaries   []float64
	bucketCounts []int64
	count        int64
	sum          uint64 // math.Float64bits
	mu           sync.Mutex
}

func newHistogram(boundaries []float64) *histogram {
	return &histogram{
		boundaries:   boundaries,
		bucketCounts: make([]int64, len(boundaries)),
	}
}

func (h *histogram) Observe(v float64) {
	h.mu.Lock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			break
		}
	}
	h.mu.Unlock()

	atomic.AddInt64(&h.count, 1)
	for {
		old := atomic.LoadUint64(&h.sum)
		next := math.Float64bits(math.Float64frombits(old) + v)
		if atomic.CompareAndSwapUint64(&h.sum, old, next) {
			return
		}
	}
}

func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		out[i] = running
	}
	return out
}

// -- Provider --

// Gauge is sampled when metrics are scraped.
type Gauge struct {
	Name  string
	Help  string
	Value func() int64
}

// Provider holds the process metrics. The zero value is not usable; call
// NewProvider.
type Provider struct {
	service string

	mu       sync.RWMutex
	requests map[string]*histogram // method|route|status
	ops      map[string]int64      // operation|outcome

	active int64
}

func NewProvider(service string) *Provider {
	return &Provider{
		service:  service,
		requests: make(map[string]*histogram),
		ops:      make(map[string]int64),
	}
}

// LabelsKey joins label values in a stable order.
func LabelsKey(parts ...string) string {
	return strings.Join(parts, "|")
}

func (p *Provider) requestHistogram(key string) *histogram {
	p.mu.RLock()
	h, ok := p.requests[key]
	p.mu.RUnlock()
	if ok {
		return h
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok = p.requests[key]; !ok {
		h = newHistogram(defaultDurationBuckets)
		p.requests[key] = h
	}
	return h
}

// Operation counts one form operation with its outcome, for example
// ("response.create", "invalid").
func (p *Provider) Operation(name, outcome string) {
	p.mu.Lock()
	p.ops[LabelsKey(name, outcome)]++
	p.mu.Unlock()
}

// OperationCount returns the count recorded for name and outcome.
func (p *Provider) OperationCount(name, outcome string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.ops[LabelsKey(name, outcome)]
}

// RequestCount returns how many requests finished for the route pattern.
func (p *Provider) RequestCount(method, route string, status int) int64 {
	p.mu.RLock()
	h, ok := p.requests[LabelsKey(method, route, fmt.Sprint(status))]
	p.mu.RUnlock()
	if !ok {
		return 0
	}
	return h.Count()
}

// Middleware records request duration by route pattern and tracks requests
// in flight.
func (p *Provider) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			atomic.AddInt64(&p.active, 1)
			defer atomic.AddInt64(&p.active, -1)

			start := time.Now()
			err := next(c)
			if err != nil {
				// resolve the status before reading it
				c.Error(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			key := LabelsKey(c.Request().Method, route, fmt.Sprint(c.Response().Status))
			p.requestHistogram(key).Observe(time.Since(start).Seconds())
			return nil
		}
	}
}

// Handler serves the metrics. gauges are sampled on each scrape.
func (p *Provider) Handler(gauges ...Gauge) echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder
		p.write(&b, gauges)
		return c.Blob(http.StatusOK, "text/plain; version=0.0.4; charset=utf-8", []byte(b.String()))
	}
}

func (p *Provider) write(b *strings.Builder, gauges []Gauge) {
	p.mu.RLock()
	reqKeys := sortedKeys(p.requests)
	hists := make([]*histogram, len(reqKeys))
	for i, k := range reqKeys {
		hists[i] = p.requests[k]
	}
	ops := make(map[string]int64, len(p.ops))
	for k, v := range p.ops {
		ops[k] = v
	}
	p.mu.RUnlock()

	const reqName = "http_server_request_duration_seconds"
	fmt.Fprintf(b, "# HELP %s Duration of HTTP requests in seconds.\n", reqName)
	fmt.Fprintf(b, "# TYPE %s histogram\n", reqName)
	for i, k := range reqKeys {
		parts := strings.SplitN(k, "|", 3)
		labels := fmt.Sprintf("service=%q,method=%q,route=%q,status_code=%q", p.service, parts[0], parts[1], parts[2])
		writeHistogram(b, reqName, labels, hists[i])
	}
	b.WriteByte('\n')

	b.WriteString("# HELP http_server_active_requests Number of HTTP requests in flight.\n")
	b.WriteString("# TYPE http_server_active_requests gauge\n")
	fmt.Fprintf(b, "http_server_active_requests{service=%q} %d\n\n", p.service, atomic.LoadInt64(&p.active))

	b.WriteString("# HELP forms_operations_total Form operations by outcome.\n")
	b.WriteString("# TYPE forms_operations_total counter\n")
	for _, k := range sortedKeys(ops) {
		parts := strings.SplitN(k, "|", 2)
		fmt.Fprintf(b, "forms_operations_total{service=%q,operation=%q,outcome=%q} %d\n", p.service, parts[0], parts[1], ops[k])
	}
	b.WriteByte('\n')

	for _, g := range gauges {
		fmt.Fprintf(b, "# HELP %s %s\n", g.Name, g.Help)
		fmt.Fprintf(b, "# TYPE %s gauge\n", g.Name)
		fmt.Fprintf(b, "%s{service=%q} %d\n\n", g.Name, p.service, g.Value())
	}
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	cum := h.cumulativeBuckets()
	total := h.Count()
	for i, boundary := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%s,le=\"%g\"} %d\n", name, labels, boundary, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%s,le=\"+Inf\"} %d\n", name, labels, total)
	fmt.Fprintf(b, "%s_sum{%s} %g\n", name, labels, h.Sum())
	fmt.Fprintf(b, "%s_count{%s} %d\n", name, labels, total)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
