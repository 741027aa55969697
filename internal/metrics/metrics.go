package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Pipeline metrics
	SwapsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_swaps_total",
			Help: "Total number of swap pipeline runs by direction and terminal state",
		},
		[]string{"direction", "state"},
	)

	SwapDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trade_engine_swap_duration_seconds",
			Help:    "End-to-end swap pipeline duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"direction"},
	)

	PipelineRestarts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trade_engine_pipeline_restarts_total",
		Help: "Total number of full pipeline restarts from the quote stage",
	})

	// Stage metrics
	QuoteRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_quote_requests_total",
			Help: "Total number of aggregator quote requests",
		},
		[]string{"status"},
	)

	SimulationAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trade_engine_simulation_attempts_total",
		Help: "Total number of compute-unit simulation attempts",
	})

	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_submissions_total",
			Help: "Total number of transaction submissions by strategy and status",
		},
		[]string{"strategy", "status"},
	)

	ConfirmationPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "trade_engine_confirmation_polls_total",
		Help: "Total number of confirmation status polls",
	})

	ConfirmationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_confirmation_outcomes_total",
			Help: "Terminal confirmation outcomes",
		},
		[]string{"state"},
	)

	PriorityFeeMicroLamports = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trade_engine_priority_fee_microlamports",
		Help: "Most recently estimated priority fee in micro-lamports per compute unit",
	})

	// Ledger metrics
	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_reconciliations_total",
			Help: "Ledger reconciliations by result",
		},
		[]string{"result"},
	)

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "trade_engine_active_sessions",
		Help: "Number of live owner sessions",
	})

	// HTTP metrics
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "trade_engine_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "trade_engine_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)
