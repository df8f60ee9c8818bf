package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics records what a batch run did. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Images       *prometheus.CounterVec
	ImageLatency prometheus.Histogram
	TrackFixes   prometheus.Gauge
	LastRun      prometheus.Gauge
}

// NewMetrics registers the batch metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Images: f.NewCounterVec(prometheus.CounterOpts{
			Name: "gpstag_images_total",
			Help: "Images processed, by outcome and skip reason",
		}, []string{"outcome", "reason"}),
		ImageLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "gpstag_image_duration_seconds",
			Help:    "Time to read, tag, copy and write one image",
			Buckets: prometheus.DefBuckets,
		}),
		TrackFixes: f.NewGauge(prometheus.GaugeOpts{
			Name: "gpstag_track_fixes",
			Help: "Fixes in the loaded GPS track",
		}),
		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Name: "gpstag_last_run_timestamp_seconds",
			Help: "Unix time the last batch finished",
		}),
	}
}

// ObserveImage counts one image and the time spent on it since start.
func (m *Metrics) ObserveImage(outcome, reason string, start time.Time) {
	if m == nil {
		return
	}
	m.Images.WithLabelValues(outcome, reason).Inc()
	m.ImageLatency.Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetTrackFixes(n int) {
	if m == nil {
		return
	}
	m.TrackFixes.Set(float64(n))
}

func (m *Metrics) MarkFinished(at time.Time) {
	if m == nil {
		return
	}
	m.LastRun.Set(float64(at.Unix()))
}
