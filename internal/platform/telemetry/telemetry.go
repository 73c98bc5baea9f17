// Package telemetry records HTTP and domain metrics in memory and serves
// them in the Prometheus text exposition format. It has no dependency on a
// metrics SDK.
package telemetry

import (
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/clinic/booking/internal/platform/apperr"
)

// Config describes the process the metrics belong to.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

func (c *Config) applyDefaults() {
	if c.ServiceName == "" {
		c.ServiceName = "clinic-server"
	}
	if c.ServiceVersion == "" {
		c.ServiceVersion = "0.0.0"
	}
	if c.Environment == "" {
		c.Environment = "development"
	}
}

// defaultDurationBuckets are request latency boundaries in seconds.
var defaultDurationBuckets = []float64{
	0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
}

// histogram keeps non-cumulative bucket counts; export makes them cumulative.
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
	atomic.AddInt64(&h.count, 1)
	atomicAddFloat64(&h.sum, v)

	h.mu.Lock()
	defer h.mu.Unlock()
	for i, b := range h.boundaries {
		if v <= b {
			h.bucketCounts[i]++
			return
		}
	}
}

func (h *histogram) Count() int64 { return atomic.LoadInt64(&h.count) }

func (h *histogram) Sum() float64 { return math.Float64frombits(atomic.LoadUint64(&h.sum)) }

func (h *histogram) cumulativeBuckets() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	cum := make([]int64, len(h.bucketCounts))
	var running int64
	for i, c := range h.bucketCounts {
		running += c
		cum[i] = running
	}
	return cum
}

func atomicAddFloat64(addr *uint64, delta float64) {
	for {
		old := atomic.LoadUint64(addr)
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if atomic.CompareAndSwapUint64(addr, old, next) {
			return
		}
	}
}

// LabelsKey builds the key of a request-duration series.
func LabelsKey(method, route, statusCode string) string {
	return method + "|" + route + "|" + statusCode
}

type gauge struct {
	help string
	fn   func() int64
}

// Provider holds all metric state for one process.
type Provider struct {
	cfg Config

	active atomic.Int64

	mu        sync.RWMutex
	durations map[string]*histogram
	counters  map[string]map[string]*int64
	help      map[string]string
	gauges    map[string]gauge
}

func NewProvider(cfg Config) *Provider {
	cfg.applyDefaults()
	return &Provider{
		cfg:       cfg,
		durations: make(map[string]*histogram),
		counters:  make(map[string]map[string]*int64),
		help:      make(map[string]string),
		gauges:    make(map[string]gauge),
	}
}

// DescribeCounter sets the HELP text of a counter family.
func (p *Provider) DescribeCounter(name, help string) {
	p.mu.Lock()
	p.help[name] = help
	p.mu.Unlock()
}

// Inc adds one to the counter name{outcome=outcome}.
func (p *Provider) Inc(name, outcome string) {
	p.mu.RLock()
	c, ok := p.counters[name][outcome]
	p.mu.RUnlock()
	if !ok {
		p.mu.Lock()
		family, exists := p.counters[name]
		if !exists {
			family = make(map[string]*int64)
			p.counters[name] = family
		}
		if c, ok = family[outcome]; !ok {
			c = new(int64)
			family[outcome] = c
		}
		p.mu.Unlock()
	}
	atomic.AddInt64(c, 1)
}

// Counter returns the current value of name{outcome=outcome}.
func (p *Provider) Counter(name, outcome string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if c, ok := p.counters[name][outcome]; ok {
		return atomic.LoadInt64(c)
	}
	return 0
}

// RegisterGauge exposes fn as a gauge evaluated at scrape time.
func (p *Provider) RegisterGauge(name, help string, fn func() int64) {
	p.mu.Lock()
	p.gauges[name] = gauge{help: help, fn: fn}
	p.mu.Unlock()
}

// RequestDuration returns the observation count and sum of one series.
func (p *Provider) RequestDuration(method, route, statusCode string) (int64, float64) {
	p.mu.RLock()
	h, ok := p.durations[LabelsKey(method, route, statusCode)]
	p.mu.RUnlock()
	if !ok {
		return 0, 0
	}
	return h.Count(), h.Sum()
}

func (p *Provider) durationHistogram(key string) *histogram {
	p.mu.RLock()
	h, ok := p.durations[key]
	p.mu.RUnlock()
	if ok {
		return h
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if h, ok = p.durations[key]; !ok {
		h = newHistogram(defaultDurationBuckets)
		p.durations[key] = h
	}
	return h
}

// MetricsMiddleware records the duration of every request by method, route
// pattern and status code.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			p.active.Add(1)
			start := time.Now()

			err := next(c)

			p.active.Add(-1)
			status := c.Response().Status
			if err != nil {
				status = statusOf(err)
			}

			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			key := LabelsKey(c.Request().Method, route, strconv.Itoa(status))
			p.durationHistogram(key).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves every metric in the Prometheus text format.
func (p *Provider) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		b.WriteString("# HELP clinic_build_info Build and environment of the running server.\n")
		b.WriteString("# TYPE clinic_build_info gauge\n")
		fmt.Fprintf(&b, "clinic_build_info{service=%q,version=%q,environment=%q} 1\n\n",
			p.cfg.ServiceName, p.cfg.ServiceVersion, p.cfg.Environment)

		b.WriteString("# HELP http_server_active_requests Number of in-flight HTTP requests.\n")
		b.WriteString("# TYPE http_server_active_requests gauge\n")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", p.active.Load())

		p.mu.RLock()
		defer p.mu.RUnlock()

		b.WriteString("# HELP http_server_request_duration_seconds Duration of HTTP requests in seconds.\n")
		b.WriteString("# TYPE http_server_request_duration_seconds histogram\n")
		for _, key := range sortedKeys(p.durations) {
			parts := strings.SplitN(key, "|", 3)
			labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
			writeHistogram(&b, "http_server_request_duration_seconds", labels, p.durations[key])
		}
		b.WriteByte('\n')

		for _, name := range sortedKeys(p.counters) {
			if help := p.help[name]; help != "" {
				fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
			}
			fmt.Fprintf(&b, "# TYPE %s counter\n", name)
			family := p.counters[name]
			for _, outcome := range sortedKeys(family) {
				fmt.Fprintf(&b, "%s{outcome=%q} %d\n", name, outcome, atomic.LoadInt64(family[outcome]))
			}
			b.WriteByte('\n')
		}

		for _, name := range sortedKeys(p.gauges) {
			g := p.gauges[name]
			fmt.Fprintf(&b, "# HELP %s %s\n", name, g.help)
			fmt.Fprintf(&b, "# TYPE %s gauge\n", name)
			fmt.Fprintf(&b, "%s %d\n\n", name, g.fn())
		}

		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
		return c.String(http.StatusOK, b.String())
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

// statusOf predicts the status the error handler will write for err.
func statusOf(err error) int {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code
	}
	status, _ := apperr.Status(err)
	return status
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
