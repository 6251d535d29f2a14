// Package metrics wires the ORM facade's runtime counters onto an
// injectable prometheus.Registry, following the erigon-lib stack's
// pattern of a small typed wrapper package over
// github.com/prometheus/client_golang rather than scattering raw
// prometheus calls through the facade (see SPEC_FULL.md's AMBIENT
// STACK; no in-pack erigon-lib metrics file accompanied this teacher
// slice, so the counter/gauge construction below follows
// prometheus/client_golang's own documented usage rather than a
// teacher file — noted in DESIGN.md).
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter/gauge the ORM facade updates. All of them
// are safe for concurrent use, same as the underlying prometheus types.
type Metrics struct {
	WritesTotal         prometheus.Counter
	ContradictionsTotal prometheus.Counter
	KeyframesTotal      prometheus.Counter
	CacheHits           prometheus.Counter
	CacheMisses         prometheus.Counter
	LoadedTurns         *prometheus.GaugeVec
}

// New builds a Metrics and registers it on reg. reg may be a fresh
// prometheus.NewRegistry() for tests, or the process's default registry.
func New(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		WritesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "allegedb", Name: "writes_total",
			Help: "Mutating operations committed through the ORM facade.",
		}),
		ContradictionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "allegedb", Name: "plan_contradictions_total",
			Help: "Non-planning writes that invalidated one or more tentative plan entries.",
		}),
		KeyframesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "allegedb", Name: "keyframes_total",
			Help: "Keyframes synthesized or installed, across all graphs and branches.",
		}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "allegedb", Name: "cache_hits_total",
			Help: "Reads answered from the already-loaded historical cache.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "allegedb", Name: "cache_misses_total",
			Help: "Reads that found no value for the requested key at the cursor.",
		}),
		LoadedTurns: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "allegedb", Name: "loaded_turns",
			Help: "Width, in turns, of the currently loaded window per branch.",
		}, []string{"branch"}),
	}
	reg.MustRegister(m.WritesTotal, m.ContradictionsTotal, m.KeyframesTotal, m.CacheHits, m.CacheMisses, m.LoadedTurns)
	return m
}
