// Package metrics exposes Prometheus counters and histograms for the
// settlement pipeline, scraped from GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_http_requests_total",
		Help: "Total HTTP requests by route and status class.",
	}, []string{"route", "status"})

	OfframpInitializedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_offramp_initialized_total",
		Help: "Offramp transactions initialized, by token.",
	}, []string{"token"})

	OfframpConfirmedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_offramp_confirmed_total",
		Help: "Offramp transactions that reached confirmed status, by token.",
	}, []string{"token"})

	OfframpFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_offramp_failed_total",
		Help: "Offramp transactions that reached failed status, by reason stage.",
	}, []string{"stage"})

	ManualSettlementTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bridge_manual_settlement_total",
		Help: "Transactions flagged for manual settlement or refund.",
	})

	OracleFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_oracle_fetch_duration_seconds",
		Help:    "Latency of upstream price oracle fetches.",
		Buckets: prometheus.DefBuckets,
	})

	OracleCacheResultTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_oracle_cache_result_total",
		Help: "GetCurrent outcomes by how the snapshot was served.",
	}, []string{"result"})

	OracleBackoffActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bridge_oracle_backoff_active",
		Help: "1 while the oracle is in its upstream backoff window, 0 otherwise.",
	})

	IndexerCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bridge_indexer_cycle_duration_seconds",
		Help:    "Duration of one chain indexer poll cycle.",
		Buckets: prometheus.DefBuckets,
	})

	WatcherOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bridge_watcher_outcome_total",
		Help: "Per-transaction watcher terminal outcomes.",
	}, []string{"outcome"})
)
