package cactus

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cactus",
		Subsystem: "handle",
		Name:      "operations_total",
		Help:      "Total lifecycle operations, by handle kind, operation and status.",
	}, []string{"handle", "op", "status"})

	operationDurationSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cactus",
		Subsystem: "handle",
		Name:      "operation_duration_seconds",
		Help:      "Lifecycle operation duration in seconds.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
	}, []string{"handle", "op"})

	timeToFirstTokenSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cactus",
		Subsystem: "completion",
		Name:      "time_to_first_token_seconds",
		Help:      "Time to first token of completions.",
		Buckets:   prometheus.DefBuckets,
	})

	tokensPerSecond = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "cactus",
		Subsystem: "completion",
		Name:      "tokens_per_second",
		Help:      "Decode throughput of completions.",
		Buckets:   prometheus.LinearBuckets(5, 5, 20),
	})

	tokensTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cactus",
		Subsystem: "completion",
		Name:      "tokens_total",
		Help:      "Total tokens processed, by type (prefill or decode).",
	}, []string{"type"})

	loadedModels = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "cactus",
		Subsystem: "handle",
		Name:      "loaded_models",
		Help:      "Number of models currently loaded, by handle kind.",
	}, []string{"handle"})
)

func observeOp(handle string, op Op, start time.Time, err error) {
	status := "ok"
	switch {
	case err == nil:
	case errors.Is(err, ErrBusy):
		status = "busy"
	case errors.Is(err, ErrUnloaded):
		status = "cancelled"
	default:
		status = "error"
	}
	operationsTotal.WithLabelValues(handle, op.String(), status).Inc()
	operationDurationSeconds.WithLabelValues(handle, op.String()).Observe(time.Since(start).Seconds())
}

func observeCompletion(res *CompletionResult) {
	if res == nil || !res.Success {
		return
	}
	if res.TimeToFirstTokenMs > 0 {
		timeToFirstTokenSeconds.Observe(res.TimeToFirstTokenMs / 1000)
	}
	if res.TokensPerSecond > 0 {
		tokensPerSecond.Observe(res.TokensPerSecond)
	}
	tokensTotal.WithLabelValues("prefill").Add(float64(res.PrefillTokens))
	tokensTotal.WithLabelValues("decode").Add(float64(res.DecodeTokens))
}
