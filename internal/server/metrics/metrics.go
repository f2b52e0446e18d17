// Package metrics exposes the server's Prometheus counters. A nil *Metrics is
// valid and records nothing, so components can be built without one in tests.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "patientvault"

// Metrics owns a private registry and the collectors registered in it.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests        *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	authAttempts        *prometheus.CounterVec
	filesUploaded       prometheus.Counter
	filesDeleted        prometheus.Counter
	archivesExported    *prometheus.CounterVec
	blobCleanupFailures prometheus.Counter
}

// New registers all collectors, plus the Go runtime and process collectors,
// in a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		authAttempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "auth_attempts_total",
				Help:      "Total number of authentication attempts",
			},
			[]string{"method", "status"},
		),
		filesUploaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_uploaded_total",
			Help:      "Total number of stored files",
		}),
		filesDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_deleted_total",
			Help:      "Total number of deleted files",
		}),
		archivesExported: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "archives_exported_total",
				Help:      "Total number of zip archives built",
			},
			[]string{"kind"},
		),
		blobCleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blob_cleanup_failures_total",
			Help:      "Best-effort blob removals that failed",
		}),
	}

	m.registry.MustRegister(
		m.httpRequests,
		m.httpRequestDuration,
		m.authAttempts,
		m.filesUploaded,
		m.filesDeleted,
		m.archivesExported,
		m.blobCleanupFailures,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests and for registering extra collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveHTTPRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// AuthAttempt records a login attempt; method is otp, qr, password or remember.
func (m *Metrics) AuthAttempt(method string, success bool) {
	if m == nil {
		return
	}
	status := "failure"
	if success {
		status = "success"
	}
	m.authAttempts.WithLabelValues(method, status).Inc()
}

func (m *Metrics) FilesUploaded(n int) {
	if m == nil {
		return
	}
	m.filesUploaded.Add(float64(n))
}

func (m *Metrics) FileDeleted() {
	if m == nil {
		return
	}
	m.filesDeleted.Inc()
}

// ArchiveExported records a built archive; kind is group or ungrouped.
func (m *Metrics) ArchiveExported(kind string) {
	if m == nil {
		return
	}
	m.archivesExported.WithLabelValues(kind).Inc()
}

func (m *Metrics) BlobCleanupFailed() {
	if m == nil {
		return
	}
	m.blobCleanupFailures.Inc()
}
