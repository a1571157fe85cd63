// Package metrics exposes Prometheus collectors for the monitoring pipeline.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/chainsage-alerts/internal/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pipeline metrics
	PassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsage_passes_total",
			Help: "Total number of pipeline passes",
		},
		[]string{"status"}, // status: success|error
	)

	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "chainsage_pass_duration_seconds",
			Help:    "Pipeline pass duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	LastScore = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsage_last_score",
			Help: "Score of the most recent assessment",
		},
	)

	LastRunTimestamp = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsage_last_run_timestamp",
			Help: "Unix timestamp of the last successful pass",
		},
	)

	PortfolioValue = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chainsage_portfolio_value",
			Help: "Total native value across monitored chains at the last pass",
		},
	)

	// Fetch metrics
	ChainFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsage_chain_fetch_total",
			Help: "Total number of per-chain balance fetches",
		},
		[]string{"chain", "status"}, // status: success|error|circuit_open
	)

	ChainBreakerOpen = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "chainsage_chain_breaker_open",
			Help: "1 while a chain's circuit breaker is open or half-open, 0 when closed",
		},
		[]string{"chain"},
	)

	// API metrics
	LatestCacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chainsage_latest_cache_lookups_total",
			Help: "Latest-assessment cache lookups served by the API",
		},
		[]string{"result"}, // result: hit|miss|error
	)
)

var initOnce sync.Once

// Init registers all collectors with the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(PassesTotal)
		prometheus.MustRegister(PassDuration)
		prometheus.MustRegister(LastScore)
		prometheus.MustRegister(LastRunTimestamp)
		prometheus.MustRegister(PortfolioValue)
		prometheus.MustRegister(ChainFetches)
		prometheus.MustRegister(ChainBreakerOpen)
		prometheus.MustRegister(LatestCacheLookups)
	})
}

// Handler registers the collectors if needed and returns the /metrics handler
func Handler() http.Handler {
	Init()
	return promhttp.Handler()
}

// RecordFetch counts one per-chain fetch
func RecordFetch(chainID types.ChainID, status string) {
	ChainFetches.WithLabelValues(chainLabel(chainID), status).Inc()
}

func chainLabel(chainID types.ChainID) string {
	return strconv.FormatInt(int64(chainID), 10)
}

// RecordBreakerState tracks a chain circuit breaker transition
func RecordBreakerState(chainID types.ChainID, state string) {
	value := 1.0
	if state == "closed" {
		value = 0
	}
	ChainBreakerOpen.WithLabelValues(chainLabel(chainID)).Set(value)
}

// RecordPassSuccess updates pass metrics after a successful pass
func RecordPassSuccess(duration time.Duration, score int, totalValue float64, at time.Time) {
	PassesTotal.WithLabelValues("success").Inc()
	PassDuration.Observe(duration.Seconds())
	LastScore.Set(float64(score))
	PortfolioValue.Set(totalValue)
	LastRunTimestamp.Set(float64(at.Unix()))
}

// RecordPassFailure counts a failed pass
func RecordPassFailure(duration time.Duration) {
	PassesTotal.WithLabelValues("error").Inc()
	PassDuration.Observe(duration.Seconds())
}

// RecordCacheLookup counts one latest-assessment cache lookup
func RecordCacheLookup(result string) {
	LatestCacheLookups.WithLabelValues(result).Inc()
}
