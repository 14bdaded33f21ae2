package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is nil-safe: every method on a nil *Metrics is a no-op.
type Metrics struct {
	images        *prometheus.CounterVec
	batches       *prometheus.CounterVec
	batchDuration prometheus.Histogram
	notifications *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		images: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_batch",
			Name:      "images_total",
			Help:      "Images handled by the batch processor, by outcome.",
		}, []string{"outcome"}),
		batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_batch",
			Name:      "batches_total",
			Help:      "Finished batch runs, by terminal status.",
		}, []string{"status"}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "image_batch",
			Name:      "batch_duration_seconds",
			Help:      "Wall time of a batch run.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "image_batch",
			Name:      "webhook_notifications_total",
			Help:      "Webhook deliveries, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.images, m.batches, m.batchDuration, m.notifications)
	return m
}

// Image outcomes.
const (
	ImageOK          = "ok"
	ImageFetchFailed = "fetch_error"
	ImageDecodeError = "decode_error"
	ImageUploadError = "upload_error"
	ImageOtherError  = "error"
)

func (m *Metrics) ImageProcessed(outcome string) {
	if m == nil {
		return
	}
	m.images.WithLabelValues(outcome).Inc()
}

func (m *Metrics) BatchFinished(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(status).Inc()
	m.batchDuration.Observe(took.Seconds())
}

func (m *Metrics) Notified(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.notifications.WithLabelValues(result).Inc()
}
