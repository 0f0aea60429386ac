// Package observability defines the Prometheus metrics exposed by the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adcreative_request_duration_seconds",
			Help:    "Time taken to serve HTTP requests in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120, 180},
		},
		[]string{"endpoint", "status"},
	)

	GenerationCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcreative_generation_calls_total",
			Help: "Generation calls by model and outcome",
		},
		[]string{"model", "outcome"},
	)

	PromptTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcreative_prompt_tokens_total",
			Help: "Total number of prompt tokens used",
		},
		[]string{"model"},
	)

	CompletionTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcreative_completion_tokens_total",
			Help: "Total number of completion tokens used",
		},
		[]string{"model"},
	)

	EstimatedCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcreative_estimated_cost_usd_total",
			Help: "Estimated generation spend in USD",
		},
		[]string{"model"},
	)

	AssetUploads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcreative_asset_uploads_total",
			Help: "Asset uploads by normalized MIME type and outcome",
		},
		[]string{"mime_type", "outcome"},
	)

	ReadinessWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "adcreative_asset_readiness_wait_seconds",
			Help:    "Time spent waiting for uploaded assets to become ACTIVE",
			Buckets: []float64{0, 1, 2, 4, 6, 10, 15, 20, 30, 45, 60},
		},
		[]string{"outcome"},
	)

	PipelineStages = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcreative_pipeline_stages_total",
			Help: "Pipeline stage outcomes",
		},
		[]string{"stage", "outcome"},
	)

	Reoptimizations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcreative_length_reoptimizations_total",
			Help: "Length-constrained outputs that needed a re-optimization call, by final resolution",
		},
		[]string{"stage", "resolution"},
	)

	RateLimitDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcreative_rate_limit_decisions_total",
			Help: "Rate limiter decisions per endpoint",
		},
		[]string{"endpoint", "decision"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "adcreative_upstream_errors_total",
			Help: "Errors returned to clients by upstream and error kind",
		},
		[]string{"upstream", "kind"},
	)

	InflightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "adcreative_inflight_requests",
			Help: "Current in-flight requests",
		},
	)
)
