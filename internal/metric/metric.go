// Package metric holds the Prometheus collectors of the merge pipeline.
package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Merge outcomes used as the "result" label.
const (
	ResultOK        = "ok"
	ResultNoSources = "no_sources"
	ResultError     = "error"
)

var (
	mergesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calmerge_merges_total",
		Help: "Merge runs by result",
	}, []string{"result"})

	sourceFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calmerge_source_failures_total",
		Help: "Feeds skipped during a merge because they could not be read or parsed",
	}, []string{"label"})

	mergeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "calmerge_merge_duration_seconds",
		Help:    "Wall time of a merge run",
		Buckets: prometheus.DefBuckets,
	})

	mergedEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calmerge_merged_events",
		Help: "Events in the last published merged calendar",
	})

	mergedSources = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calmerge_merged_sources",
		Help: "Feeds that contributed to the last published merged calendar",
	})

	lastMerge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calmerge_last_merge_timestamp_seconds",
		Help: "Unix time of the last successful merge",
	})
)

// ObserveMerge records one merge run.
func ObserveMerge(result string, took time.Duration) {
	mergesTotal.WithLabelValues(result).Inc()
	mergeDuration.Observe(took.Seconds())
}

// SourceFailed counts a skipped feed.
func SourceFailed(label string) {
	sourceFailuresTotal.WithLabelValues(label).Inc()
}

// SetMerged describes the published calendar.
func SetMerged(events, sources int, at time.Time) {
	mergedEvents.Set(float64(events))
	mergedSources.Set(float64(sources))
	lastMerge.Set(float64(at.Unix()))
}
