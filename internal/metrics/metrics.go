// Package metrics defines the Prometheus collectors recorded by the
// answering pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus collectors for docqa.
type Metrics struct {
	QuestionsTotal       *prometheus.CounterVec
	CacheHitsTotal       prometheus.Counter
	CacheMissesTotal     prometheus.Counter
	IndexBuildsTotal     *prometheus.CounterVec
	IndexBuildDuration   prometheus.Histogram
	GenerationDuration   prometheus.Histogram
	LexicalDegradedTotal prometheus.Counter
	ChunksPerDocument    prometheus.Histogram
}

// New creates the collectors and registers them on reg. A nil reg leaves
// them unregistered, which is what tests usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		QuestionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_questions_total",
				Help: "Questions processed by terminal state (cache_hit, answered, timed_out, failed).",
			},
			[]string{"status"},
		),
		CacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docqa_answer_cache_hits_total",
				Help: "Total number of answer cache hits.",
			},
		),
		CacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docqa_answer_cache_misses_total",
				Help: "Total number of answer cache misses.",
			},
		),
		IndexBuildsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "docqa_index_builds_total",
				Help: "Retrieval index builds by status (ok, error, reused).",
			},
			[]string{"status"},
		),
		IndexBuildDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docqa_index_build_duration_seconds",
				Help:    "Fetch, load, chunk and embed latency in seconds.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
			},
		),
		GenerationDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docqa_generation_duration_seconds",
				Help:    "Per-question generation latency in seconds, timeouts included.",
				Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 30},
			},
		),
		LexicalDegradedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "docqa_lexical_degraded_total",
				Help: "Index builds that fell back to semantic-only retrieval.",
			},
		),
		ChunksPerDocument: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "docqa_chunks_per_document",
				Help:    "Number of chunks produced per ingested document.",
				Buckets: []float64{1, 10, 50, 100, 250, 500, 1000},
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.QuestionsTotal,
			m.CacheHitsTotal,
			m.CacheMissesTotal,
			m.IndexBuildsTotal,
			m.IndexBuildDuration,
			m.GenerationDuration,
			m.LexicalDegradedTotal,
			m.ChunksPerDocument,
		)
	}

	return m
}
