package lsm

import (
	"fmt"
	"slices"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const metricsNamespace = "rdb"

// dbStats are per-database counters; each DB owns its registry so several engines can live in
// one process.
type dbStats struct {
	registry *prometheus.Registry

	keyMayExist   prometheus.Counter
	bloomUseful   prometheus.Counter
	bloomPositive prometheus.Counter
	memtableHits  prometheus.Counter
	lookups       prometheus.Counter
	flushes       prometheus.Counter
	compactions   prometheus.Counter
	bytesWritten  prometheus.Counter
	liveTables    prometheus.Gauge
}

func newDBStats() *dbStats {
	counter := func(subsystem, name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	out := &dbStats{
		registry: prometheus.NewRegistry(),

		keyMayExist:   counter("probe", "key_may_exist_total", "Number of existence probes"),
		bloomUseful:   counter("probe", "bloom_filter_useful_total", "Tables skipped by their bloom filter"),
		bloomPositive: counter("probe", "bloom_filter_positive_total", "Tables whose bloom filter matched"),
		memtableHits:  counter("read", "memtable_hit_total", "Reads answered by a memtable"),
		lookups:       counter("read", "lookups_total", "Point lookups"),
		flushes:       counter("write", "flushes_total", "Memtables written to tables"),
		compactions:   counter("write", "compactions_total", "Completed compactions"),
		bytesWritten:  counter("write", "bytes_written_total", "Key and value bytes written"),
		liveTables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "storage",
			Name:      "live_tables",
			Help:      "Tables currently referenced by the database",
		}),
	}

	for _, metric := range []prometheus.Collector{
		out.keyMayExist, out.bloomUseful, out.bloomPositive, out.memtableHits, out.lookups,
		out.flushes, out.compactions, out.bytesWritten, out.liveTables,
	} {
		out.registry.MustRegister(metric)
	}
	return out
}

// render prints one "name value" line per metric, sorted by name.
func (me *dbStats) render() (string, error) {
	families, err := me.registry.Gather()
	if err != nil {
		return "", err
	}
	slices.SortFunc(families, func(a, b *dto.MetricFamily) int {
		return strings.Compare(a.GetName(), b.GetName())
	})

	var out strings.Builder
	for _, family := range families {
		for _, metric := range family.GetMetric() {
			var value float64
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				value = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				value = metric.GetGauge().GetValue()
			default:
				continue
			}
			fmt.Fprintf(&out, "%s %v\n", family.GetName(), value)
		}
	}
	return out.String(), nil
}
