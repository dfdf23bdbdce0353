package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Registry *prometheus.Registry

	Cycles          *prometheus.CounterVec
	CycleFailures   *prometheus.CounterVec
	CycleDuration   *prometheus.HistogramVec
	PairFailures    *prometheus.CounterVec
	GamesStarted    prometheus.Counter
	MatchesResolved *prometheus.CounterVec
	LPCacheHits     prometheus.Counter
	LPCacheMisses   prometheus.Counter
	UpstreamRetries *prometheus.CounterVec
	InGamePairs     prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		Cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lptracker_cycles_total",
			Help: "Completed scan cycles per loop",
		}, []string{"loop"}),
		CycleFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lptracker_cycle_failures_total",
			Help: "Cycles that ended with an error or panic",
		}, []string{"loop"}),
		CycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lptracker_cycle_duration_seconds",
			Help:    "Wall time of one full scan",
			Buckets: prometheus.DefBuckets,
		}, []string{"loop"}),
		PairFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lptracker_pair_failures_total",
			Help: "Per-pair failures caught at the pair boundary",
		}, []string{"loop", "phase"}),
		GamesStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "lptracker_games_started_total",
			Help: "Idle to InGame transitions",
		}),
		MatchesResolved: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lptracker_matches_resolved_total",
			Help: "InGame to Idle transitions with an accounted match",
		}, []string{"queue"}),
		LPCacheHits: f.NewCounter(prometheus.CounterOpts{
			Name: "lptracker_lp_cache_hits_total",
			Help: "Match LP lookups served from the cache",
		}),
		LPCacheMisses: f.NewCounter(prometheus.CounterOpts{
			Name: "lptracker_lp_cache_misses_total",
			Help: "Match LP lookups that required a rank fetch",
		}),
		UpstreamRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "lptracker_upstream_retries_total",
			Help: "Retried upstream requests",
		}, []string{"endpoint"}),
		InGamePairs: f.NewGauge(prometheus.GaugeOpts{
			Name: "lptracker_ingame_pairs",
			Help: "Pairs currently tracked as in game",
		}),
	}
}
