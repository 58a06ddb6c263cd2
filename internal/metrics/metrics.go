package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector holds the service metrics.
type Collector struct {
	UploadsTotal       prometheus.Counter
	UploadErrorsTotal  *prometheus.CounterVec
	StagedBatchesTotal prometheus.Counter
	ConfirmationsTotal *prometheus.CounterVec
	ReportsTotal       prometheus.Counter
	ProcessingDuration *prometheus.HistogramVec
}

func NewCollector(namespace string) *Collector {
	return &Collector{
		UploadsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Total number of processed sensor-export uploads",
			},
		),

		UploadErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upload_errors_total",
				Help:      "Total number of failed uploads by error type",
			},
			[]string{"error_type"},
		),

		StagedBatchesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "staged_batches_total",
				Help:      "Total number of conflicting batches parked for confirmation",
			},
		),

		ConfirmationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "confirmations_total",
				Help:      "Total number of confirm-overwrite decisions by outcome",
			},
			[]string{"overwrite"},
		),

		ReportsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "reports_total",
				Help:      "Total number of generated time-of-day reports",
			},
		),

		ProcessingDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "processing_duration_seconds",
				Help:      "Duration of pipeline operations in seconds",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1.0, 2.0, 5.0, 10.0},
			},
			[]string{"operation"},
		),
	}
}

// RecordUploadError increments the upload error counter.
func (c *Collector) RecordUploadError(errorType string) {
	c.UploadErrorsTotal.WithLabelValues(errorType).Inc()
}
