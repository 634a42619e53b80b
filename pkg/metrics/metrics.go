// Package metrics records archive run progress as Prometheus metrics.
//
// # Overview
//
// A Collector owns one set of vcutil metrics registered on a caller-supplied
// registerer, so tests and scheduled runs never collide on the global
// registry:
//
//	reg := prometheus.NewRegistry()
//	collector, err := metrics.NewCollector(reg, "events")
//	...
//	collector.WindowDone(metrics.ResultExported, rows, deleted, elapsed, end)
//
// Short-lived runs have nobody to scrape them; Push sends the registry to a
// Pushgateway when the run ends.
//
// # Metric Types
//
// Counter: windows, rows exported and deleted, destinations opened, DST adjustments
// Gauge: rows per second of the last window, end of the last completed window
// Histogram: window wall-clock duration
package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const namespace = "vcutil"

// Window results, used as the result label of vcutil_windows_total.
const (
	ResultExported = "exported"
	ResultEmpty    = "empty"
	ResultFailed   = "failed"
)

// Collector records the metrics of archive runs against one table.
// Safe for concurrent use.
type Collector struct {
	table string

	windows      *prometheus.CounterVec
	rowsExported *prometheus.CounterVec
	rowsDeleted  *prometheus.CounterVec
	destinations *prometheus.CounterVec
	dstAdjusted  *prometheus.CounterVec
	duration     *prometheus.HistogramVec
	lastEnd      *prometheus.GaugeVec
	throughput   *prometheus.GaugeVec
}

// NewCollector registers the vcutil metrics on reg.
func NewCollector(reg prometheus.Registerer, table string) (*Collector, error) {
	c := &Collector{table: table}
	// registered below so a clash is an error rather than a panic
	factory := promauto.With(nil)

	c.windows = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "windows_total",
		Help:      "Windows processed, by result",
	}, []string{"table", "result"})
	c.rowsExported = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_exported_total",
		Help:      "Rows written to destinations",
	}, []string{"table"})
	c.rowsDeleted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rows_deleted_total",
		Help:      "Rows pruned from the table after export",
	}, []string{"table"})
	c.destinations = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "destinations_opened_total",
		Help:      "Destination files opened, by whether they were new",
	}, []string{"table", "created"})
	c.dstAdjusted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dst_adjustments_total",
		Help:      "Window boundaries with a daylight-saving discontinuity, by outcome",
	}, []string{"table", "outcome"})
	c.duration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "window_duration_seconds",
		Help:      "Wall-clock time spent on one window",
		Buckets: []float64{
			0.01, // 10ms - empty windows
			0.1,  // 100ms
			1,    // 1s
			10,   // 10s - large windows
			60,   // 1m
			600,  // 10m - the window is probably too large
		},
	}, []string{"table"})
	c.lastEnd = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "last_window_end",
		Help:      "Exclusive end of the last completed window (unix seconds or integral value)",
	}, []string{"table"})
	c.throughput = factory.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "rows_per_second",
		Help:      "Export throughput of the last non-empty window",
	}, []string{"table"})

	collectors := []prometheus.Collector{c.windows, c.rowsExported, c.rowsDeleted,
		c.destinations, c.dstAdjusted, c.duration, c.lastEnd, c.throughput}
	if reg != nil {
		for _, col := range collectors {
			if err := reg.Register(col); err != nil {
				return nil, err
			}
		}
	}
	return c, nil
}

// WindowDone records a completed window. end is the window's exclusive end
// expressed as a number.
func (c *Collector) WindowDone(result string, rows, deleted int64, elapsed time.Duration, end float64) {
	if c == nil {
		return
	}
	c.windows.WithLabelValues(c.table, result).Inc()
	c.rowsExported.WithLabelValues(c.table).Add(float64(rows))
	c.rowsDeleted.WithLabelValues(c.table).Add(float64(deleted))
	c.duration.WithLabelValues(c.table).Observe(elapsed.Seconds())
	if result != ResultFailed {
		c.lastEnd.WithLabelValues(c.table).Set(end)
	}
	if rows > 0 && elapsed > 0 {
		c.throughput.WithLabelValues(c.table).Set(float64(rows) / elapsed.Seconds())
	}
}

// DestinationOpened records an opened destination.
func (c *Collector) DestinationOpened(created bool) {
	if c == nil {
		return
	}
	label := "false"
	if created {
		label = "true"
	}
	c.destinations.WithLabelValues(c.table, label).Inc()
}

// DSTAdjusted records a boundary where the compensator widened or flagged.
func (c *Collector) DSTAdjusted(outcome string) {
	if c == nil {
		return
	}
	c.dstAdjusted.WithLabelValues(c.table, outcome).Inc()
}

// Timer measures one operation.
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately.
func NewTimer() *Timer { return &Timer{start: time.Now()} }

// Stop returns the time elapsed since the timer started. It may be called
// more than once.
func (t *Timer) Stop() time.Duration { return time.Since(t.start) }

// Pusher sends a registry to a Pushgateway.
type Pusher struct {
	mu     sync.Mutex
	pusher *push.Pusher
}

// NewPusher returns a pusher for gatherer under job, or nil when url is empty.
func NewPusher(url, job string, gatherer prometheus.Gatherer) *Pusher {
	if url == "" {
		return nil
	}
	return &Pusher{pusher: push.New(url, job).Gatherer(gatherer)}
}

// Push replaces the job's metrics on the gateway. A nil Pusher does nothing.
func (p *Pusher) Push(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pusher.PushContext(ctx)
}
