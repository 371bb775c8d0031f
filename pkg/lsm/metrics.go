package lsm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus instrumentation. A nil *Metrics
// (what Engine.Open keeps when it is given a nil registerer) is safe to
// use: every method is a no-op on a nil receiver, so embedders that don't
// want metrics never pay for them.
//
// Grounded on the reference engine's pkg/metrics/init_storage.go: one
// promauto.With(registry) call per metric, named and labeled the same way.
type Metrics struct {
	puts        *prometheus.CounterVec
	gets        *prometheus.CounterVec
	deletes     prometheus.Counter
	flushes     prometheus.Counter
	compactions *prometheus.CounterVec
	flushSecs   prometheus.Histogram
	compactSecs prometheus.Histogram
	sstCount    prometheus.Gauge
	l0Count     prometheus.Gauge
	bloomHits   prometheus.Counter
	bloomMisses prometheus.Counter
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
}

// NewMetrics registers the engine's metrics with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		puts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lsm_put_total",
			Help: "Total Put calls, by result.",
		}, []string{"result"}),
		gets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lsm_get_total",
			Help: "Total Get calls, by result.",
		}, []string{"result"}),
		deletes: f.NewCounter(prometheus.CounterOpts{
			Name: "lsm_delete_total",
			Help: "Total Delete calls.",
		}),
		flushes: f.NewCounter(prometheus.CounterOpts{
			Name: "lsm_flush_total",
			Help: "Total memtable-to-sstable flushes.",
		}),
		compactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lsm_compaction_total",
			Help: "Total compactions run, by controller.",
		}, []string{"controller"}),
		flushSecs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lsm_flush_duration_seconds",
			Help:    "Flush duration in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 5.0},
		}),
		compactSecs: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "lsm_compaction_duration_seconds",
			Help:    "Compaction duration in seconds.",
			Buckets: []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
		}),
		sstCount: f.NewGauge(prometheus.GaugeOpts{
			Name: "lsm_sstable_count",
			Help: "Total number of live SSTables across all levels.",
		}),
		l0Count: f.NewGauge(prometheus.GaugeOpts{
			Name: "lsm_l0_sstable_count",
			Help: "Number of SSTables currently in L0.",
		}),
		bloomHits: f.NewCounter(prometheus.CounterOpts{
			Name: "lsm_bloom_filter_hits_total",
			Help: "MayContain calls that returned true.",
		}),
		bloomMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "lsm_bloom_filter_misses_total",
			Help: "MayContain calls that returned false, avoiding a disk read.",
		}),
		cacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "lsm_block_cache_hits_total",
			Help: "Block cache hits.",
		}),
		cacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "lsm_block_cache_misses_total",
			Help: "Block cache misses.",
		}),
	}
}

func (m *Metrics) observePut(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.puts.WithLabelValues("ok").Inc()
	} else {
		m.puts.WithLabelValues("error").Inc()
	}
}

func (m *Metrics) observeGet(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.gets.WithLabelValues("hit").Inc()
	} else {
		m.gets.WithLabelValues("miss").Inc()
	}
}

func (m *Metrics) observeDelete() {
	if m == nil {
		return
	}
	m.deletes.Inc()
}

func (m *Metrics) observeFlush(seconds float64) {
	if m == nil {
		return
	}
	m.flushes.Inc()
	m.flushSecs.Observe(seconds)
}

func (m *Metrics) observeCompaction(controller string, seconds float64) {
	if m == nil {
		return
	}
	m.compactions.WithLabelValues(controller).Inc()
	m.compactSecs.Observe(seconds)
}

func (m *Metrics) setSSTableCounts(total, l0 int) {
	if m == nil {
		return
	}
	m.sstCount.Set(float64(total))
	m.l0Count.Set(float64(l0))
}

func (m *Metrics) observeBloom(mayContain bool) {
	if m == nil {
		return
	}
	if mayContain {
		m.bloomHits.Inc()
	} else {
		m.bloomMisses.Inc()
	}
}

func (m *Metrics) observeCache(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}
