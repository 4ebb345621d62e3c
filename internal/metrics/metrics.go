package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "match_service"

var (
	registerOnce sync.Once

	matchOps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "match_operations_total",
		Help:      "Matching operations by op (rank, similar, explain, pairs) and outcome",
	}, []string{"op", "outcome"})
	matchDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_duration_seconds",
		Help:      "Duration of matching operations by op",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms .. ~8s
	}, []string{"op"})
	candidatesScored = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "candidates_scored_total",
		Help:      "Candidates scored by op",
	}, []string{"op"})

	embedderState = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "embedder_state",
		Help:      "Embedding backend state: 0 uninitialized, 1 ready, 2 unavailable",
	})
	imageNeutral = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "image_similarity_neutral_total",
		Help:      "Image similarities replaced by the neutral score, by reason",
	}, []string{"reason"})

	breakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_state",
		Help:      "Circuit breaker state: 0 closed, 1 half-open, 2 open",
	}, []string{"name"})
	breakerTransitions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "circuit_breaker_transitions_total",
		Help:      "Circuit breaker state transitions",
	}, []string{"name", "from", "to"})
)

// Register adds the collectors to the default registry (idempotent)
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(matchOps, matchDuration, candidatesScored,
			embedderState, imageNeutral, breakerState, breakerTransitions)
	})
}

func ObserveMatch(op, outcome string, d time.Duration) {
	matchOps.WithLabelValues(op, outcome).Inc()
	matchDuration.WithLabelValues(op).Observe(d.Seconds())
}

func AddCandidatesScored(op string, n int) { candidatesScored.WithLabelValues(op).Add(float64(n)) }

func SetEmbedderState(s int)        { embedderState.Set(float64(s)) }
func IncImageNeutral(reason string) { imageNeutral.WithLabelValues(reason).Inc() }

func SetBreakerState(name string, s float64) { breakerState.WithLabelValues(name).Set(s) }
func IncBreakerTransition(name, from, to string) {
	breakerTransitions.WithLabelValues(name, from, to).Inc()
}
