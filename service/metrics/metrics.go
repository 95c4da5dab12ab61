package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Service holds the pipeline counters. Producers bump the atomics from
// their own goroutines; Prometheus reads them lazily on scrape.
type Service struct {
	FramesCaptured  atomic.Uint64
	FramesProcessed atomic.Uint64
	FramesDropped   atomic.Uint64

	ReadErrors   atomic.Uint64
	DetectErrors atomic.Uint64

	AlertsRaised atomic.Uint64
	ActiveTracks atomic.Int64
	PeopleCount  atomic.Int64

	// FPS scaled by 1000 so it fits an atomic integer.
	FPSMilli atomic.Uint64

	registry *prometheus.Registry
}

// New creates a Service with its collectors registered on a private registry.
func New() *Service {
	m := &Service{
		registry: prometheus.NewRegistry(),
	}
	m.registerCollectors()
	return m
}

func (m *Service) registerCollectors() {
	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "aicam_frames_captured_total",
			Help: "Total frames read from the camera",
		},
		func() float64 { return float64(m.FramesCaptured.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "aicam_frames_processed_total",
			Help: "Total frames run through the analysis cycle",
		},
		func() float64 { return float64(m.FramesProcessed.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "aicam_frames_dropped_total",
			Help: "Total frames dropped because the buffer was full",
		},
		func() float64 { return float64(m.FramesDropped.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "aicam_read_errors_total",
			Help: "Total camera read errors",
		},
		func() float64 { return float64(m.ReadErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "aicam_detect_errors_total",
			Help: "Total object detection errors",
		},
		func() float64 { return float64(m.DetectErrors.Load()) },
	))

	m.registry.MustRegister(prometheus.NewCounterFunc(
		prometheus.CounterOpts{
			Name: "aicam_alerts_raised_total",
			Help: "Total alerts raised",
		},
		func() float64 { return float64(m.AlertsRaised.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "aicam_active_tracks",
			Help: "People currently tracked in the scene",
		},
		func() float64 { return float64(m.ActiveTracks.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "aicam_people_count",
			Help: "People detected in the latest frame",
		},
		func() float64 { return float64(m.PeopleCount.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "aicam_fps",
			Help: "Frames per second over the last measurement window",
		},
		func() float64 { return float64(m.FPSMilli.Load()) / 1000 },
	))
}

// SetFPS stores a frames-per-second estimate.
func (m *Service) SetFPS(fps float64) {
	if fps < 0 {
		fps = 0
	}
	m.FPSMilli.Store(uint64(fps * 1000))
}

// Handler returns the Prometheus scrape handler for this registry.
func (m *Service) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
