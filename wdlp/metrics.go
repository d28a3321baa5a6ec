package wdlp

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the counters of a processing run. They are registered on a
// private registry and written out as a node_exporter textfile; there is no
// HTTP listener.
type Metrics struct {
	registry *prometheus.Registry

	RecordsWritten *prometheus.CounterVec
	Entries        *prometheus.CounterVec
	DataErrors     *prometheus.CounterVec
	EntryDuration  *prometheus.HistogramVec
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RecordsWritten: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wdlp",
				Subsystem: "records",
				Name:      "written_total",
				Help:      "Total number of records written to committed or aborted outputs",
			},
			[]string{"record_type", "format"},
		),

		Entries: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wdlp",
				Subsystem: "entries",
				Name:      "total",
				Help:      "Total number of archive entries by outcome",
			},
			[]string{"record_type", "status"},
		),

		DataErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "wdlp",
				Subsystem: "errors",
				Name:      "total",
				Help:      "Total number of fatal entry errors by kind",
			},
			[]string{"record_type", "kind"},
		),

		EntryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "wdlp",
				Subsystem: "entry",
				Name:      "duration_seconds",
				Help:      "Time spent processing one archive entry",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"record_type"},
		),
	}

	m.registry.MustRegister(m.RecordsWritten, m.Entries, m.DataErrors, m.EntryDuration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes every metric to path in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
