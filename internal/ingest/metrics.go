package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "purefact"

// Metrics holds the pipeline's Prometheus collectors.
type Metrics struct {
	ScansTotal     prometheus.Counter
	ItemsTotal     *prometheus.CounterVec
	CommittedTotal prometheus.Counter
	DegradedTotal  prometheus.Counter
	ScanDuration   prometheus.Histogram
	SeenIdentities prometheus.Gauge
	LastScanTime   prometheus.Gauge
}

// NewMetrics creates and registers the pipeline metrics on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		ScansTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "scans_total",
			Help:      "Total number of scans run",
		}),
		ItemsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "items_total",
				Help:      "Candidate items by final status and failing stage",
			},
			[]string{"status", "stage"},
		),
		CommittedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "committed_total",
			Help:      "Identities committed to the seen-set",
		}),
		DegradedTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "degraded_articles_total",
			Help:      "Articles delivered with a fallback summary",
		}),
		ScanDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "scan_duration_seconds",
			Help:      "Wall time of a full scan",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}),
		SeenIdentities: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "seen_identities",
			Help:      "Identities in the seen-set",
		}),
		LastScanTime: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_scan_timestamp_seconds",
			Help:      "Unix time the last scan finished",
		}),
	}
}

func (m *Metrics) observeOutcome(o Outcome) {
	if m == nil {
		return
	}
	stage := ""
	if o.Err != nil {
		stage = string(o.Err.Stage)
	}
	m.ItemsTotal.WithLabelValues(string(o.Status), stage).Inc()
	if o.Status == StatusCommitted {
		m.CommittedTotal.Inc()
	}
	if o.Degraded {
		m.DegradedTotal.Inc()
	}
}

func (m *Metrics) observeScan(r Report, seenLen int) {
	if m == nil {
		return
	}
	m.ScansTotal.Inc()
	m.ScanDuration.Observe(r.Finished.Sub(r.Started).Seconds())
	m.SeenIdentities.Set(float64(seenLen))
	m.LastScanTime.Set(float64(r.Finished.Unix()))
}
