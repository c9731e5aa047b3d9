package scan

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for scans. Each instance owns its
// registry so tests and repeated runs never collide on registration.
type Metrics struct {
	registry *prometheus.Registry

	MembersTotal  prometheus.Counter
	SkippedTotal  *prometheus.CounterVec
	RecordsTotal  *prometheus.CounterVec
	PhaseDuration *prometheus.HistogramVec
	BytesParsed   prometheus.Counter
	ScansTotal    *prometheus.CounterVec
	Workers       prometheus.Gauge
}

// NewMetrics creates and registers all scan metrics on a fresh registry
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		MembersTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dicomzip_members_total",
				Help: "Archive members classified",
			},
		),

		SkippedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dicomzip_members_skipped_total",
				Help: "Members classified as not DICOM",
			},
			[]string{"reason"},
		),

		RecordsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dicomzip_records_total",
				Help: "Records produced by deep extraction",
			},
			[]string{"status"},
		),

		PhaseDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "dicomzip_phase_duration_seconds",
				Help:    "Wall time of each scan phase",
				Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
			},
			[]string{"phase"},
		),

		BytesParsed: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "dicomzip_bytes_parsed_total",
				Help: "Decompressed bytes consumed by the element parser",
			},
		),

		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dicomzip_scans_total",
				Help: "Scans run",
			},
			[]string{"result"},
		),

		Workers: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "dicomzip_workers",
				Help: "Worker bound of the last scan",
			},
		),
	}
}

// Registry exposes the underlying registry for gathering
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the current values in text exposition format, for the
// node_exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
