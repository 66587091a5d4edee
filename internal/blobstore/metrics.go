package blobstore

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"deptcms/internal/metrics"
)

// Observer captures telemetry for bucket operations.
type Observer interface {
	RecordWrite(bucket string, duration time.Duration, sizeBytes int64, err error)
	RecordRead(bucket string, duration time.Duration, err error)
	RecordDelete(bucket string, duration time.Duration, err error)
}

// PrometheusObserver exports bucket metrics to Prometheus.
type PrometheusObserver struct {
	opDuration   *prometheus.HistogramVec
	opErrors     *prometheus.CounterVec
	writtenBytes *prometheus.CounterVec
}

// NewPrometheusObserver registers write/read/delete metrics. Registering twice
// against one registry reuses the existing collectors.
func NewPrometheusObserver(namespace string, reg prometheus.Registerer) (*PrometheusObserver, error) {
	if namespace == "" {
		namespace = "deptcms_blobstore"
	}
	opDuration, err := metrics.RegisterCollector(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "operation_duration_seconds",
		Help:      "Latency of blob bucket operations.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation", "bucket"}))
	if err != nil {
		return nil, err
	}
	opErrors, err := metrics.RegisterCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "operation_errors_total",
		Help:      "Count of failed blob bucket operations.",
	}, []string{"operation", "bucket"}))
	if err != nil {
		return nil, err
	}
	writtenBytes, err := metrics.RegisterCollector(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "written_bytes_total",
		Help:      "Cumulative size of committed blobs.",
	}, []string{"bucket"}))
	if err != nil {
		return nil, err
	}

	return &PrometheusObserver{opDuration: opDuration, opErrors: opErrors, writtenBytes: writtenBytes}, nil
}

func (o *PrometheusObserver) RecordWrite(bucket string, duration time.Duration, sizeBytes int64, err error) {
	if o == nil {
		return
	}
	o.record("write", bucket, duration, err)
	if err == nil {
		o.writtenBytes.WithLabelValues(bucket).Add(float64(sizeBytes))
	}
}

func (o *PrometheusObserver) RecordRead(bucket string, duration time.Duration, err error) {
	o.record("read", bucket, duration, err)
}

func (o *PrometheusObserver) RecordDelete(bucket string, duration time.Duration, err error) {
	o.record("delete", bucket, duration, err)
}

func (o *PrometheusObserver) record(op, bucket string, duration time.Duration, err error) {
	if o == nil {
		return
	}
	o.opDuration.WithLabelValues(op, bucket).Observe(duration.Seconds())
	if err != nil {
		o.opErrors.WithLabelValues(op, bucket).Inc()
	}
}

type nopObserver struct{}

func (nopObserver) RecordWrite(string, time.Duration, int64, error) {}

func (nopObserver) RecordRead(string, time.Duration, error) {}

func (nopObserver) RecordDelete(string, time.Duration, error) {}

var (
	_ Observer = (*PrometheusObserver)(nil)
	_ Observer = nopObserver{}
)
