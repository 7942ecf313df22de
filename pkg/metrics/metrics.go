// Package metrics counts what conversions did. The CLI gathers them into a
// private registry and can export them in the node_exporter textfile format.
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/grafana/soedit/pkg/rewrite"
)

type Metrics struct {
	registerer prometheus.Registerer

	conversionsTotal     *prometheus.CounterVec
	conversionDuration   prometheus.Histogram
	stringsEditedTotal   *prometheus.CounterVec
	symbolsRelinkedTotal prometheus.Counter
	stringsSkippedTotal  prometheus.Counter
	bytesWrittenTotal    prometheus.Counter
}

func New(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		registerer: reg,

		conversionsTotal: registerOrGet(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soedit_conversions_total",
			Help: "Total number of conversions by command and outcome.",
		}, []string{"command", "status"})),
		conversionDuration: registerOrGet(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "soedit_conversion_duration_seconds",
			Help:    "Time spent parsing, indexing and rewriting one file.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
		})),
		stringsEditedTotal: registerOrGet(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "soedit_strings_edited_total",
			Help: "Total number of strings rewritten, by table.",
		}, []string{"table"})),
		symbolsRelinkedTotal: registerOrGet(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soedit_symbols_relinked_total",
			Help: "Total number of renamed symbols moved to another hash bucket.",
		})),
		stringsSkippedTotal: registerOrGet(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soedit_rodata_strings_skipped_total",
			Help: "Total number of edited .rodata strings that could not be located.",
		})),
		bytesWrittenTotal: registerOrGet(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "soedit_bytes_written_total",
			Help: "Total number of bytes written by rewrites.",
		})),
	}
}

// ObserveRewrite adds the stats of one rewrite.
func (m *Metrics) ObserveRewrite(st rewrite.Stats) {
	m.stringsEditedTotal.WithLabelValues("dynstr").Add(float64(st.DynStrEdited))
	m.stringsEditedTotal.WithLabelValues("rodata").Add(float64(st.RoDataPatched))
	m.symbolsRelinkedTotal.Add(float64(st.SymbolsRelinked))
	m.stringsSkippedTotal.Add(float64(st.RoDataSkipped))
	m.bytesWrittenTotal.Add(float64(st.BytesWritten))
}

// ObserveConversion records the outcome of a command started at start.
func (m *Metrics) ObserveConversion(command string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "failure"
	}
	m.conversionsTotal.WithLabelValues(command, status).Inc()
	m.conversionDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) Unregister() {
	if m.registerer == nil {
		return
	}
	m.registerer.Unregister(m.conversionsTotal)
	m.registerer.Unregister(m.conversionDuration)
	m.registerer.Unregister(m.stringsEditedTotal)
	m.registerer.Unregister(m.symbolsRelinkedTotal)
	m.registerer.Unregister(m.stringsSkippedTotal)
	m.registerer.Unregister(m.bytesWrittenTotal)
}

// WriteTextfile exports everything g gathers to path, for the textfile
// collector of node_exporter.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	return prometheus.WriteToTextfile(path, g)
}

// registerOrGet registers c with reg, returning the collector already
// registered under the same description if there is one. A nil reg leaves c
// unregistered.
func registerOrGet[T prometheus.Collector](reg prometheus.Registerer, c T) T {
	if reg == nil {
		return c
	}
	err := reg.Register(c)
	if err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			return already.ExistingCollector.(T)
		}
		panic(err)
	}
	return c
}
