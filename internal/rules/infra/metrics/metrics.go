package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hydirect"

const (
	statusOK     = "ok"
	statusFailed = "failed"
)

// Registry collects the metrics of one run in a private prometheus registry
// so it can be exported to a node_exporter textfile.
type Registry struct {
	reg         *prometheus.Registry
	fetchTotal  *prometheus.CounterVec
	fetchTime   prometheus.Histogram
	rulesTotal  prometheus.Gauge
	rulesParsed prometheus.Counter
	lastSuccess prometheus.Gauge
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		fetchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "source_fetch_total",
				Help:      "Rule list fetches by outcome",
			},
			[]string{"status"},
		),
		fetchTime: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "source_fetch_duration_seconds",
				Help:      "Rule list fetch duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
		),
		rulesTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rules_total",
			Help:      "Unique rules in the last written list",
		}),
		rulesParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_parsed_total",
			Help:      "Rules emitted by the parser before deduplication",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful run",
		}),
	}
	// pre-create both series so a clean run still exports failed=0
	r.fetchTotal.WithLabelValues(statusOK)
	r.fetchTotal.WithLabelValues(statusFailed)

	r.reg.MustRegister(r.fetchTotal, r.fetchTime, r.rulesTotal, r.rulesParsed, r.lastSuccess)
	return r
}

// RecordSource counts one fetched source.
func (r *Registry) RecordSource(_ string, ok bool, elapsed time.Duration, parsed int) {
	status := statusOK
	if !ok {
		status = statusFailed
	}
	r.fetchTotal.WithLabelValues(status).Inc()
	r.fetchTime.Observe(elapsed.Seconds())
	r.rulesParsed.Add(float64(parsed))
}

// RecordRun sets the final rule count and success time.
func (r *Registry) RecordRun(total int, at time.Time) {
	r.rulesTotal.Set(float64(total))
	r.lastSuccess.Set(float64(at.Unix()))
}

// Gatherer exposes the underlying registry.
func (r *Registry) Gatherer() prometheus.Gatherer { return r.reg }

// WriteToTextfile atomically writes all metrics in the text exposition format.
func (r *Registry) WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.reg)
}
