// Package metrics provides Prometheus metrics for fern runs.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	// WindowsTotal tracks processed windows by outcome
	WindowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "pipeline",
			Name:      "windows_total",
			Help:      "Total number of windows processed by outcome",
		},
		[]string{"outcome"},
	)

	// WindowDuration tracks how long a window takes end to end
	WindowDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "pipeline",
			Name:      "window_duration_seconds",
			Help:      "Duration of window processing in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		},
		[]string{"outcome"},
	)

	// LastSuccessTimestamp is the unix time of the last committed load per window
	LastSuccessTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "fern",
			Subsystem: "pipeline",
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last committed load of a window",
		},
		[]string{"window"},
	)

	// RecordsDecodedTotal tracks records read from source documents
	RecordsDecodedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "decode",
			Name:      "records_total",
			Help:      "Total number of records read from source documents",
		},
		[]string{"status"},
	)

	// RowsTotal tracks rows handed to the loader per table and result
	RowsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "loader",
			Name:      "rows_total",
			Help:      "Total number of rows per table by result (inserted, existing, missing_key, failed)",
		},
		[]string{"table", "result"},
	)

	// TableLoadDuration tracks the duration of one table's insert
	TableLoadDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "loader",
			Name:      "table_duration_seconds",
			Help:      "Duration of a table load in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"table"},
	)

	// HTTPRequestsTotal tracks outbound HTTP requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "requests_total",
			Help:      "Total number of outbound HTTP requests",
		},
		[]string{"method", "status_code"},
	)

	// HTTPRequestDuration tracks outbound HTTP request duration
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "fern",
			Subsystem: "http_client",
			Name:      "request_duration_seconds",
			Help:      "Duration of outbound HTTP requests in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"method"},
	)

	// DownloadBytesTotal tracks bytes written by archive downloads
	DownloadBytesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "acquire",
			Name:      "download_bytes_total",
			Help:      "Total number of archive bytes downloaded",
		},
	)

	// NotificationsTotal tracks summary deliveries by channel and status
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "fern",
			Subsystem: "notify",
			Name:      "notifications_total",
			Help:      "Total number of run summary notifications by channel and status",
		},
		[]string{"channel", "status"},
	)
)

// RecordWindow records a processed window
func RecordWindow(outcome string, durationSeconds float64) {
	WindowsTotal.WithLabelValues(outcome).Inc()
	WindowDuration.WithLabelValues(outcome).Observe(durationSeconds)
}

// RecordWindowSuccess records the time of a committed window load
func RecordWindowSuccess(window string, unixSeconds float64) {
	LastSuccessTimestamp.WithLabelValues(window).Set(unixSeconds)
}

// RecordDecode records decoded and skipped records of one document
func RecordDecode(records, skipped int) {
	RecordsDecodedTotal.WithLabelValues("ok").Add(float64(records))
	RecordsDecodedTotal.WithLabelValues("skipped").Add(float64(skipped))
}

// RecordTableLoad records the outcome of one table's insert
func RecordTableLoad(table string, attempted int, inserted int64, missingKey int, failed bool, durationSeconds float64) {
	RowsTotal.WithLabelValues(table, "missing_key").Add(float64(missingKey))
	if failed {
		RowsTotal.WithLabelValues(table, "failed").Add(float64(attempted))
	} else {
		RowsTotal.WithLabelValues(table, "inserted").Add(float64(inserted))
		RowsTotal.WithLabelValues(table, "existing").Add(float64(int64(attempted) - inserted))
	}
	TableLoadDuration.WithLabelValues(table).Observe(durationSeconds)
}

// RecordHTTPRequest records an outbound HTTP request metric
func RecordHTTPRequest(method, statusCode string, durationSeconds float64) {
	HTTPRequestsTotal.WithLabelValues(method, statusCode).Inc()
	HTTPRequestDuration.WithLabelValues(method).Observe(durationSeconds)
}

// RecordDownload records downloaded archive bytes
func RecordDownload(bytes int64) {
	DownloadBytesTotal.Add(float64(bytes))
}

// RecordNotification records a summary delivery attempt
func RecordNotification(channel, status string) {
	NotificationsTotal.WithLabelValues(channel, status).Inc()
}

// Push sends the default registry to a Prometheus Pushgateway. One shot runs exit
// before a scrape would see them.
func Push(ctx context.Context, url, job string) error {
	return push.New(url, job).
		Gatherer(prometheus.DefaultGatherer).
		PushContext(ctx)
}
