// Package metrics exposes Prometheus collectors for proxied calls.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/papercomputeco/switchboard/pkg/calllog"
)

const namespace = "switchboard"

// Recorder observes logged calls into its own registry.
type Recorder struct {
	registry *prometheus.Registry

	calls        *prometheus.CounterVec
	chunks       *prometheus.CounterVec
	ttft         *prometheus.HistogramVec
	tpot         *prometheus.HistogramVec
	latency      *prometheus.HistogramVec
	throughput   *prometheus.HistogramVec
	dropped      prometheus.Counter
	workerErrors *prometheus.CounterVec
}

// NewRecorder creates a recorder with a fresh registry that also carries the
// Go runtime and process collectors.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calls_total",
			Help:      "Total number of proxied calls by outcome.",
		}, []string{"status", "route", "family"}),
		chunks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_chunks_total",
			Help:      "Total number of content chunks forwarded on streamed calls.",
		}, []string{"family"}),
		ttft: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_to_first_token_seconds",
			Help:      "Time from request start to the first content token.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"family", "mode"}),
		tpot: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "time_per_output_token_seconds",
			Help:      "Mean inter-token time on streamed calls.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 10),
		}, []string{"family"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "call_duration_seconds",
			Help:      "Total call latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"family", "mode"}),
		throughput: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "output_tokens_per_second",
			Help:      "Output tokens per second of total latency.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}, []string{"family"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "calllog_dropped_total",
			Help:      "Call records dropped because the worker queue was full.",
		}),
		workerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "worker_errors_total",
			Help:      "Background worker failures by stage.",
		}, []string{"stage"}),
	}

	r.registry.MustRegister(
		r.calls, r.chunks, r.ttft, r.tpot, r.latency, r.throughput, r.dropped, r.workerErrors,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// Registry returns the registry the recorder's collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// Observe records one logged call.
func (r *Recorder) Observe(rec *calllog.Record) {
	family := string(rec.Family)
	r.calls.WithLabelValues(string(rec.Status), rec.Route, family).Inc()

	if rec.Streaming && rec.ChunkCount > 0 {
		r.chunks.WithLabelValues(family).Add(float64(rec.ChunkCount))
	}

	if rec.Sample == nil {
		return
	}
	m := rec.Sample.Metrics
	mode := string(rec.Sample.Mode)
	if m.TTFT != nil {
		r.ttft.WithLabelValues(family, mode).Observe(m.TTFT.Seconds())
	}
	if m.TPOT != nil {
		r.tpot.WithLabelValues(family).Observe(m.TPOT.Seconds())
	}
	if m.TotalLatency != nil {
		r.latency.WithLabelValues(family, mode).Observe(m.TotalLatency.Seconds())
	}
	if m.Throughput != nil {
		r.throughput.WithLabelValues(family).Observe(*m.Throughput)
	}
}

// Dropped counts a record the worker queue could not accept.
func (r *Recorder) Dropped() {
	r.dropped.Inc()
}

// WorkerError counts a background failure at the given stage ("store" or
// "publish").
func (r *Recorder) WorkerError(stage string) {
	r.workerErrors.WithLabelValues(stage).Inc()
}
