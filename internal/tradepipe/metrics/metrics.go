package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	BlocksScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradepipe_blocks_scanned_total",
		Help: "Blocks whose transaction lists were fetched",
	})
	BlockFetchErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradepipe_block_fetch_errors_total",
		Help: "Block fetches that failed and were skipped",
	})
	CandidatesEnqueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradepipe_candidates_enqueued_total",
		Help: "Transactions that passed the pre-filter",
	})
	ClassifyOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradepipe_classify_total",
		Help: "Classification attempts by outcome",
	}, []string{"outcome"}) // ok | not_found | error | deduped
	InsertOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tradepipe_inserts_total",
		Help: "Store inserts by outcome",
	}, []string{"outcome"}) // inserted | duplicate | error | dropped
	PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tradepipe_poll_duration_seconds",
		Help:    "End-to-end duration of one poll",
		Buckets: prometheus.DefBuckets,
	})
	PollsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tradepipe_polls_dropped_total",
		Help: "Poll ticks dropped because a previous poll was still running",
	})
)
