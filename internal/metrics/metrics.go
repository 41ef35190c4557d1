// Package metrics provides Prometheus metrics for the lanshare server.
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
			Name: "lanshare_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lanshare_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Session metrics
	connectedClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanshare_connected_clients",
			Help: "Number of currently connected sessions",
		},
	)

	adminHandoversTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanshare_admin_handovers_total",
			Help: "Total admin role reassignments after a disconnect",
		},
	)

	// Catalog metrics
	catalogEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lanshare_catalog_entries",
			Help: "Number of entries in the shared-file catalog",
		},
	)

	// Transfer metrics
	uploadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanshare_upload_bytes_total",
			Help: "Total bytes received via uploads and folder shares",
		},
	)

	downloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanshare_download_bytes_total",
			Help: "Total bytes streamed to downloaders",
		},
	)

	uploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanshare_uploads_total",
			Help: "Total upload attempts",
		},
		[]string{"status"},
	)

	downloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lanshare_downloads_total",
			Help: "Total download attempts",
		},
		[]string{"status"},
	)

	// Broadcast metrics
	broadcastsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanshare_broadcasts_total",
			Help: "Total state broadcasts (one per mutation round)",
		},
	)

	broadcastDropsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanshare_broadcast_drops_total",
			Help: "Per-recipient deliveries skipped (slow or gone consumer)",
		},
	)

	// Reaper metrics
	reaperSweepsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanshare_reaper_sweeps_total",
			Help: "Total reaper sweep runs",
		},
	)

	reapedEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lanshare_reaped_entries_total",
			Help: "Total orphaned catalog entries removed by the reaper",
		},
	)
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// RecordHTTPRequest records an HTTP request metric.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// SetConnectedClients sets the connected-session gauge.
func SetConnectedClients(count int) {
	connectedClients.Set(float64(count))
}

// RecordAdminHandover records an admin role reassignment.
func RecordAdminHandover() {
	adminHandoversTotal.Inc()
}

// SetCatalogEntries sets the catalog size gauge.
func SetCatalogEntries(count int) {
	catalogEntries.Set(float64(count))
}

// RecordUpload records an upload attempt.
func RecordUpload(bytes int64, success bool) {
	uploadBytesTotal.Add(float64(bytes))
	uploadsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordDownload records a download attempt.
func RecordDownload(bytes int64, success bool) {
	downloadBytesTotal.Add(float64(bytes))
	downloadsTotal.WithLabelValues(statusLabel(success)).Inc()
}

// RecordBroadcast records one broadcast round and its skipped deliveries.
func RecordBroadcast(dropped int) {
	broadcastsTotal.Inc()
	if dropped > 0 {
		broadcastDropsTotal.Add(float64(dropped))
	}
}

// RecordReaperSweep records a sweep run and how many entries it removed.
func RecordReaperSweep(removed int) {
	reaperSweepsTotal.Inc()
	if removed > 0 {
		reapedEntriesTotal.Add(float64(removed))
	}
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
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

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)
		RecordHTTPRequest(r.Method, r.URL.Path, rw.statusCode, time.Since(start))
	})
}
