// Package metrics provides Prometheus metrics for threadgest.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchAttempts counts individual HTTP attempts by outcome.
	FetchAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadgest",
			Name:      "fetch_attempts_total",
			Help:      "Total number of HTTP fetch attempts",
		},
		[]string{"outcome"},
	)

	// FetchDuration measures a fetch from first attempt to final result.
	FetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "threadgest",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of page fetches including retries",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// FetchesInFlight tracks requests currently holding a gate slot.
	FetchesInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "threadgest",
			Name:      "fetches_in_flight",
			Help:      "Number of HTTP requests currently in flight",
		},
	)

	// PagesTotal counts thread pages by outcome.
	PagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadgest",
			Name:      "pages_total",
			Help:      "Total number of thread pages processed",
		},
		[]string{"outcome"},
	)

	// PostsExtracted counts extracted post records.
	PostsExtracted = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "threadgest",
			Name:      "posts_extracted_total",
			Help:      "Total number of post records extracted",
		},
	)

	// LLMCalls counts analysis calls by provider and outcome.
	LLMCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "threadgest",
			Name:      "llm_calls_total",
			Help:      "Total number of LLM analysis calls",
		},
		[]string{"provider", "outcome"},
	)

	// LLMDuration measures LLM call latency.
	LLMDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "threadgest",
			Name:      "llm_duration_seconds",
			Help:      "Duration of LLM analysis calls in seconds",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 80, 160},
		},
		[]string{"provider"},
	)
)

// RecordPage records the outcome of one thread page.
func RecordPage(ok bool, posts int) {
	if !ok {
		PagesTotal.WithLabelValues("failed").Inc()
		return
	}
	PagesTotal.WithLabelValues("ok").Inc()
	PostsExtracted.Add(float64(posts))
}

// RecordLLMCall records one LLM call.
func RecordLLMCall(provider string, err error, seconds float64) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	LLMCalls.WithLabelValues(provider, outcome).Inc()
	LLMDuration.WithLabelValues(provider).Observe(seconds)
}
