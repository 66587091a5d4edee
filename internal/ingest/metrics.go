package ingest

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"deptcms/internal/metrics"
)

// Recorder observes ingestion outcomes.
type Recorder interface {
	RecordIngest(bucket string, duration time.Duration, blobs int, err error)
}

type nopRecorder struct{}

func (nopRecorder) RecordIngest(string, time.Duration, int, error) {}

// PrometheusRecorder counts uploads by outcome.
type PrometheusRecorder struct {
	uploads  *prometheus.CounterVec
	blobs    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewPrometheusRecorder(namespace string, reg prometheus.Registerer) (*PrometheusRecorder, error) {
	if namespace == "" {
		namespace = "deptcms_ingest"
	}
	uploads, err := metrics.RegisterCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "uploads_total",
		Help:      "Multipart uploads by bucket and outcome.",
	}, []string{"bucket", "outcome"}))
	if err != nil {
		return nil, err
	}
	blobs, err := metrics.RegisterCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "blobs_total",
		Help:      "Blobs committed by uploads, including orphans of failed uploads.",
	}, []string{"bucket"}))
	if err != nil {
		return nil, err
	}
	duration, err := metrics.RegisterCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "duration_seconds",
		Help:      "Time spent parsing and storing a multipart body.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"bucket"}))
	if err != nil {
		return nil, err
	}
	return &PrometheusRecorder{uploads: uploads, blobs: blobs, duration: duration}, nil
}

func (r *PrometheusRecorder) RecordIngest(bucket string, duration time.Duration, blobs int, err error) {
	if r == nil {
		return
	}
	r.uploads.WithLabelValues(bucket, outcome(err)).Inc()
	r.blobs.WithLabelValues(bucket).Add(float64(blobs))
	r.duration.WithLabelValues(bucket).Observe(duration.Seconds())
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case IsClientError(err):
		return "rejected"
	default:
		return "failed"
	}
}
