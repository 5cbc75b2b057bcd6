package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder implements repository.Metrics using Prometheus.
type Recorder struct {
	messagesSent *prometheus.CounterVec
	errorsTotal  *prometheus.CounterVec
	lastPrice    *prometheus.GaugeVec
	latency      *prometheus.HistogramVec

	jobRuns     *prometheus.CounterVec
	jobSkipped  *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec

	compactedProducts prometheus.Counter
	compactedRaw      prometheus.Counter
	retainedPoints    prometheus.Counter
	aggregatedRows    prometheus.Counter
}

// New creates a recorder registered on the default registry.
func New() *Recorder {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers on reg; tests pass a fresh prometheus.NewRegistry().
func NewWithRegisterer(reg prometheus.Registerer) *Recorder {
	f := promauto.With(reg)
	return &Recorder{
		messagesSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazaarpull_snapshots_sent_total",
				Help: "Snapshots routed to a backend",
			},
			[]string{"backend"},
		),
		errorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazaarpull_errors_total",
				Help: "Errors by kind",
			},
			[]string{"type"},
		),
		lastPrice: f.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "bazaarpull_instant_price",
				Help: "Last instant price per product and side",
			},
			[]string{"product", "side"},
		),
		latency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bazaarpull_operation_duration_seconds",
				Help:    "Duration of operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		jobRuns: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazaarpull_job_runs_total",
				Help: "Periodic task runs by outcome",
			},
			[]string{"task", "status"},
		),
		jobSkipped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "bazaarpull_job_skipped_total",
				Help: "Triggers skipped because the previous run was still active",
			},
			[]string{"task"},
		),
		jobDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "bazaarpull_job_duration_seconds",
				Help:    "Periodic task run duration",
				Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"task"},
		),
		compactedProducts: f.NewCounter(prometheus.CounterOpts{
			Name: "bazaarpull_compaction_products_total",
			Help: "Product-hours compacted into summaries",
		}),
		compactedRaw: f.NewCounter(prometheus.CounterOpts{
			Name: "bazaarpull_compaction_raw_snapshots_total",
			Help: "Raw snapshots read by compaction",
		}),
		retainedPoints: f.NewCounter(prometheus.CounterOpts{
			Name: "bazaarpull_compaction_retained_points_total",
			Help: "Minute points retained by compaction",
		}),
		aggregatedRows: f.NewCounter(prometheus.CounterOpts{
			Name: "bazaarpull_aggregation_rows_total",
			Help: "Metrics window rows written by full recomputes",
		}),
	}
}

func (r *Recorder) RecordMessageSent(backend string, n int) {
	r.messagesSent.WithLabelValues(backend).Add(float64(n))
}

func (r *Recorder) RecordError(kind string) {
	r.errorsTotal.WithLabelValues(kind).Inc()
}

// RecordLastPrice sets the instant price gauge; side is "buy" or "sell".
func (r *Recorder) RecordLastPrice(product, side string, price float64) {
	r.lastPrice.WithLabelValues(product, side).Set(price)
}

func (r *Recorder) RecordLatency(op string, seconds float64) {
	r.latency.WithLabelValues(op).Observe(seconds)
}

func (r *Recorder) RecordJobRun(task, status string, seconds float64) {
	r.jobRuns.WithLabelValues(task, status).Inc()
	r.jobDuration.WithLabelValues(task).Observe(seconds)
}

func (r *Recorder) RecordJobSkipped(task string) {
	r.jobSkipped.WithLabelValues(task).Inc()
}

func (r *Recorder) RecordCompaction(products, raw, retained int) {
	r.compactedProducts.Add(float64(products))
	r.compactedRaw.Add(float64(raw))
	r.retainedPoints.Add(float64(retained))
}

func (r *Recorder) RecordAggregation(rows int) {
	r.aggregatedRows.Add(float64(rows))
}
