package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "maxprecip"

// Scan outcomes recorded on ScansTotal.
const (
	ScanCached  = "cached"
	ScanGridded = "gridded"
	ScanFailed  = "failed"
)

// Metrics holds the Prometheus counters, histograms, and gauges for the accumulation pipeline.
type Metrics struct {
	ScansTotal       *prometheus.CounterVec // labels: result={cached,gridded,failed}
	CacheFilesLoaded prometheus.Counter
	ChunksEvaluated  prometheus.Counter
	ProductsWritten  prometheus.Counter
	PipelineRunning  prometheus.Gauge

	RunDuration prometheus.Histogram
	LastSuccess prometheus.Gauge
	MaxAccum    *prometheus.GaugeVec // labels: site
}

func newMetrics() *Metrics {
	return &Metrics{
		ScansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scans_total",
			Help:      "Radar scans handled by the cache writer, by result.",
		}, []string{"result"}),
		CacheFilesLoaded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_files_loaded_total",
			Help:      "Cached rate rasters opened for reduction.",
		}),
		ChunksEvaluated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_evaluated_total",
			Help:      "Spatial chunks reduced.",
		}),
		ProductsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "products_written_total",
			Help:      "Daily maximum rasters written.",
		}),
		PipelineRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pipeline_running",
			Help:      "1 while a run is in progress, 0 otherwise.",
		}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of a complete daily run.",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run.",
		}),
		MaxAccum: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "max_accumulation_mm",
			Help:      "Largest accumulation in the last product, by site.",
		}, []string{"site"}),
	}
}

// Collectors lists every metric, for registration with a registry or a pusher.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ScansTotal,
		m.CacheFilesLoaded,
		m.ChunksEvaluated,
		m.ProductsWritten,
		m.PipelineRunning,
		m.RunDuration,
		m.LastSuccess,
		m.MaxAccum,
	}
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(m.Collectors()...)
	return m
}

// NewMetricsForTesting creates Metrics without registering them to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
