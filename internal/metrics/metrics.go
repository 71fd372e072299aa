// Package metrics collects per-run counters and writes them in the Prometheus
// text format for the node exporter textfile collector.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/vertextoedge/book-cover-fetcher/internal/domain"
)

const metricsNamespace = "book_cover_fetcher"

// Collector is a prometheus.Collector for one fetch run. A nil *Collector
// is valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	assetsResolved   prometheus.Gauge
	assetsSkipped    prometheus.Gauge
	outcomes         *prometheus.CounterVec
	attempts         prometheus.Counter
	retries          prometheus.Counter
	bytesWritten     prometheus.Counter
	downloadDuration prometheus.Histogram
	metadataRequests *prometheus.CounterVec
	lastRunTimestamp prometheus.Gauge
	lastRunExitCode  prometheus.Gauge
}

// NewCollector returns a Collector registered in its own registry.
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		assetsResolved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "assets_resolved",
			Help:      "Number of assets resolved for the collection in the last run.",
		}),
		assetsSkipped: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "assets_skipped",
			Help:      "Number of assets already complete locally in the last run.",
		}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "downloads_total",
			Help:      "Download task outcomes by status.",
		}, []string{"status"}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "download_attempts_total",
			Help:      "Number of image transfer attempts started.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "download_retries_total",
			Help:      "Number of image transfer attempts scheduled after a transient failure.",
		}),
		bytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "downloaded_bytes_total",
			Help:      "Bytes placed in the output directory.",
		}),
		downloadDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "download_duration_seconds",
			Help:      "Time from first attempt to terminal outcome per task.",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),
		metadataRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "metadata_requests_total",
			Help:      "Metadata service calls by operation and result.",
		}, []string{"operation", "result"}),
		lastRunTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastRunExitCode: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_exit_code",
			Help:      "Exit code of the last run.",
		}),
	}
	c.registry.MustRegister(c)
	return c
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.assetsResolved.Describe(ch)
	c.assetsSkipped.Describe(ch)
	c.outcomes.Describe(ch)
	c.attempts.Describe(ch)
	c.retries.Describe(ch)
	c.bytesWritten.Describe(ch)
	c.downloadDuration.Describe(ch)
	c.metadataRequests.Describe(ch)
	c.lastRunTimestamp.Describe(ch)
	c.lastRunExitCode.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.assetsResolved.Collect(ch)
	c.assetsSkipped.Collect(ch)
	c.outcomes.Collect(ch)
	c.attempts.Collect(ch)
	c.retries.Collect(ch)
	c.bytesWritten.Collect(ch)
	c.downloadDuration.Collect(ch)
	c.metadataRequests.Collect(ch)
	c.lastRunTimestamp.Collect(ch)
	c.lastRunExitCode.Collect(ch)
}

// ObserveResolution records the resolved and already-complete asset counts.
func (c *Collector) ObserveResolution(resolved, skipped int) {
	if c == nil {
		return
	}
	c.assetsResolved.Set(float64(resolved))
	c.assetsSkipped.Set(float64(skipped))
}

// MetadataRequest counts one metadata service call.
func (c *Collector) MetadataRequest(operation string, err error) {
	if c == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.metadataRequests.WithLabelValues(operation, result).Inc()
}

// AttemptStarted counts one transfer attempt.
func (c *Collector) AttemptStarted() {
	if c == nil {
		return
	}
	c.attempts.Inc()
}

// RetryScheduled counts one retry after a transient failure.
func (c *Collector) RetryScheduled() {
	if c == nil {
		return
	}
	c.retries.Inc()
}

// ObserveOutcome records a terminal task outcome and how long it took.
func (c *Collector) ObserveOutcome(o domain.TaskOutcome, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.outcomes.WithLabelValues(string(o.Status)).Inc()
	if o.BytesWritten > 0 {
		c.bytesWritten.Add(float64(o.BytesWritten))
	}
	if o.Status != domain.OutcomeCancelled {
		c.downloadDuration.Observe(elapsed.Seconds())
	}
}

// ObserveRunEnd records when the run finished and its exit code.
func (c *Collector) ObserveRunEnd(exitCode int, at time.Time) {
	if c == nil {
		return
	}
	c.lastRunExitCode.Set(float64(exitCode))
	c.lastRunTimestamp.Set(float64(at.Unix()))
}

// WriteTextfile writes all metrics to path atomically.
func (c *Collector) WriteTextfile(path string) error {
	if c == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, c.registry)
}
