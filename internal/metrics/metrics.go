package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder collects service metrics. It satisfies compress.AttemptObserver
// and retention.Observer so it can be handed straight to those components.
type Recorder interface {
	ObserveAttempt(preset string, succeeded bool, duration time.Duration)
	ObserveSweep(deleted, errors int)
	ObserveSearch(status string, presetsTried int)
	ObserveUpload(files int, bytes int64)
	ObserveRequest(method, route string, status int, duration time.Duration)
}

// Noop implements Recorder without emitting anything.
type Noop struct{}

func (Noop) ObserveAttempt(string, bool, time.Duration)        {}
func (Noop) ObserveSweep(int, int)                             {}
func (Noop) ObserveSearch(string, int)                         {}
func (Noop) ObserveUpload(int, int64)                          {}
func (Noop) ObserveRequest(string, string, int, time.Duration) {}

// Prom implements Recorder backed by Prometheus collectors.
type Prom struct {
	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	sweepDeleted    prometheus.Counter
	sweepErrors     prometheus.Counter
	sweeps          prometheus.Counter
	searches        *prometheus.CounterVec
	searchPresets   prometheus.Histogram
	uploadFiles     prometheus.Counter
	uploadBytes     prometheus.Counter
	requests        *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	once            sync.Once
}

func NewProm(namespace string) *Prom {
	p := &Prom{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compression_attempts_total",
			Help:      "Ghostscript runs by preset and result",
		}, []string{"preset", "result"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compression_duration_seconds",
			Help:      "Ghostscript run duration by preset",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"preset"}),
		sweepDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_deleted_total",
			Help:      "Artifacts removed by retention sweeps",
		}),
		sweepErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_errors_total",
			Help:      "Artifacts a retention sweep failed to stat or delete",
		}),
		sweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_runs_total",
			Help:      "Completed retention sweeps",
		}),
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "target_searches_total",
			Help:      "Target-size searches by outcome",
		}, []string{"status"}),
		searchPresets: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "target_search_presets_tried",
			Help:      "Presets tried per target-size search",
			Buckets:   []float64{1, 2, 3, 4},
		}),
		uploadFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_files_total",
			Help:      "Files accepted by the upload endpoint",
		}),
		uploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploaded_bytes_total",
			Help:      "Bytes accepted by the upload endpoint",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method/route/status",
		}, []string{"method", "route", "status"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by method/route",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	p.register()
	return p
}

func (p *Prom) register() {
	p.once.Do(func() {
		prometheus.MustRegister(
			p.attempts, p.attemptDuration,
			p.sweepDeleted, p.sweepErrors, p.sweeps,
			p.searches, p.searchPresets,
			p.uploadFiles, p.uploadBytes,
			p.requests, p.latency,
		)
	})
}

func (p *Prom) ObserveAttempt(preset string, succeeded bool, duration time.Duration) {
	result := "failed"
	if succeeded {
		result = "succeeded"
	}
	p.attempts.WithLabelValues(preset, result).Inc()
	p.attemptDuration.WithLabelValues(preset).Observe(duration.Seconds())
}

func (p *Prom) ObserveSweep(deleted, errors int) {
	p.sweeps.Inc()
	p.sweepDeleted.Add(float64(deleted))
	p.sweepErrors.Add(float64(errors))
}

func (p *Prom) ObserveSearch(status string, presetsTried int) {
	p.searches.WithLabelValues(status).Inc()
	p.searchPresets.Observe(float64(presetsTried))
}

func (p *Prom) ObserveUpload(files int, bytes int64) {
	p.uploadFiles.Add(float64(files))
	p.uploadBytes.Add(float64(bytes))
}

func (p *Prom) ObserveRequest(method, route string, status int, duration time.Duration) {
	p.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	p.latency.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Handler returns an HTTP handler for /metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
