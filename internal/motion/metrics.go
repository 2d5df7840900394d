package motion

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	transitions    *prometheus.CounterVec
	voteRejections *prometheus.CounterVec
	aggregations   *prometheus.CounterVec
	conflicts      prometheus.Counter
}

// newEngineMetrics builds the engine counters. A nil registerer leaves
// them unregistered but usable.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	factory := promauto.With(reg)
	return &engineMetrics{
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "motions_transitions_total",
			Help: "Committed status transitions by requested and committed status",
		}, []string{"requested", "committed"}),
		voteRejections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "motions_vote_rejections_total",
			Help: "Vote entries rejected before any write, by reason",
		}, []string{"reason"}),
		aggregations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "motions_round_aggregations_total",
			Help: "Round aggregations written, by vote type",
		}, []string{"vote_type"}),
		conflicts: factory.NewCounter(prometheus.CounterOpts{
			Name: "motions_conflicts_total",
			Help: "Operations aborted by a concurrent modification",
		}),
	}
}
