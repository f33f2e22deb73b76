// Package metrics exposes Prometheus collectors for the archiver service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	galleriesTotal             *prometheus.CounterVec
	pagesTotal                 *prometheus.CounterVec
	assetBytesTotal            prometheus.Counter
	dedupHitsTotal             prometheus.Counter
	ingestDurationSeconds      prometheus.Histogram
	activeUploadWorkers        prometheus.Gauge
	votesTotal                 *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		galleriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galarc_galleries_total",
				Help: "Galleries processed, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		pagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galarc_pages_total",
				Help: "Pages processed, labeled by outcome (uploaded, deduped, failed).",
			},
			[]string{"outcome"},
		)

		assetBytesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "galarc_asset_bytes_total",
				Help: "Total asset bytes fetched from the source site.",
			},
		)

		dedupHitsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "galarc_dedup_hits_total",
				Help: "Pages satisfied from previously archived assets.",
			},
		)

		ingestDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "galarc_ingest_duration_seconds",
				Help:    "Histogram of per-gallery ingestion latencies.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		)

		activeUploadWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "galarc_active_upload_workers",
				Help: "Upload workers currently processing a page.",
			},
		)

		votesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "galarc_votes_total",
				Help: "Votes handled, labeled by status.",
			},
			[]string{"status"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveGallery records the outcome of one gallery ingestion.
func ObserveGallery(outcome string, elapsed time.Duration) {
	if galleriesTotal == nil {
		return
	}
	galleriesTotal.WithLabelValues(outcome).Inc()
	ingestDurationSeconds.Observe(elapsed.Seconds())
}

// ObservePage records the outcome of one page.
func ObservePage(outcome string, bytesFetched int) {
	if pagesTotal == nil {
		return
	}
	pagesTotal.WithLabelValues(outcome).Inc()
	if bytesFetched > 0 {
		assetBytesTotal.Add(float64(bytesFetched))
	}
	if outcome == "deduped" {
		dedupHitsTotal.Inc()
	}
}

// WorkerActive tracks an upload worker entering or leaving a page.
func WorkerActive(delta float64) {
	if activeUploadWorkers == nil {
		return
	}
	activeUploadWorkers.Add(delta)
}

// ObserveVote records a vote attempt.
func ObserveVote(status string) {
	if votesTotal == nil {
		return
	}
	votesTotal.WithLabelValues(status).Inc()
}

// ObserveHTTP records one served HTTP request.
func ObserveHTTP(method, code, route string, elapsed time.Duration) {
	if httpRequestsTotal == nil {
		return
	}
	httpRequestsTotal.WithLabelValues(method, code).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(elapsed.Seconds())
}
