// Package metrics provides Prometheus metrics for the file manager server.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flmngr_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "action", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flmngr_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "action"},
	)

	// Preview cache metrics
	previewResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flmngr_preview_results_total",
			Help: "Preview requests by outcome (hit, miss, passthrough, error)",
		},
		[]string{"result"},
	)

	previewRenderDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flmngr_preview_render_duration_seconds",
			Help:    "Time to decode, resize and encode one preview",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	cacheWriteFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flmngr_cache_write_failures_total",
			Help: "Failed writes into the cache tree",
		},
		[]string{"kind"},
	)

	// Listing metrics
	listingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flmngr_listing_duration_seconds",
			Help:    "Time to build one paged directory listing",
			Buckets: prometheus.DefBuckets,
		},
	)

	listingPageSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "flmngr_listing_page_entries",
			Help:    "Number of entries returned per listing page",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
	)

	// Warmer metrics
	warmQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "flmngr_warm_queue_depth",
			Help: "Number of preview warm jobs waiting in the queue",
		},
	)

	warmJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flmngr_warm_jobs_total",
			Help: "Preview warm jobs by outcome (done, failed, dropped)",
		},
		[]string{"result"},
	)

	// Upload metrics
	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "flmngr_upload_bytes_total",
			Help: "Total bytes accepted through uploads",
		},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flmngr_uploads_total",
			Help: "Total number of uploads",
		},
		[]string{"status"},
	)

	// Auth metrics
	authAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flmngr_auth_attempts_total",
			Help: "Total authentication attempts",
		},
		[]string{"result"},
	)

	// S3 metrics
	s3OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "flmngr_s3_operation_duration_seconds",
			Help:    "S3 operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	s3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "flmngr_s3_operations_total",
			Help: "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, action string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, action, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, action).Observe(duration.Seconds())
}

// RecordPreview records the outcome of one preview request.
func RecordPreview(result string) {
	previewResultsTotal.WithLabelValues(result).Inc()
}

// RecordPreviewRender records the time spent producing a fresh preview blob.
func RecordPreviewRender(duration time.Duration) {
	previewRenderDuration.Observe(duration.Seconds())
}

// RecordCacheWriteFailure records a failed record or blob write.
func RecordCacheWriteFailure(kind string) {
	cacheWriteFailuresTotal.WithLabelValues(kind).Inc()
}

// RecordListing records a listing page.
func RecordListing(duration time.Duration, entries int) {
	listingDuration.Observe(duration.Seconds())
	listingPageSize.Observe(float64(entries))
}

// SetWarmQueueDepth sets the number of queued warm jobs.
func SetWarmQueueDepth(n int) {
	warmQueueDepth.Set(float64(n))
}

// RecordWarmJob records a warm job outcome.
func RecordWarmJob(result string) {
	warmJobsTotal.WithLabelValues(result).Inc()
}

// RecordUpload records an upload.
func RecordUpload(bytes int64, success bool) {
	uploadBytesTotal.Add(float64(bytes))
	status := "success"
	if !success {
		status = "error"
	}
	uploadsTotal.WithLabelValues(status).Inc()
}

// RecordAuthAttempt records an authentication attempt.
func RecordAuthAttempt(success bool) {
	result := "success"
	if !success {
		result = "failure"
	}
	authAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordS3Operation records an S3 operation.
func RecordS3Operation(operation string, duration time.Duration, success bool) {
	s3OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	status := "success"
	if !success {
		status = "error"
	}
	s3OperationsTotal.WithLabelValues(operation, status).Inc()
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics, labelled by
// widget action instead of path since every action shares one endpoint.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		action := r.URL.Query().Get("action")
		if action == "" {
			action = r.URL.Path
		}
		RecordHTTPRequest(r.Method, action, rw.statusCode, time.Since(start))
	})
}
