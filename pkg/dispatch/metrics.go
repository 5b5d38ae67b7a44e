package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Turn outcomes, used as the "outcome" label.
const (
	OutcomeCommand       = "command"
	OutcomeInactive      = "dropped_inactive"
	OutcomeEmpty         = "dropped_empty"
	OutcomeReplied       = "replied"
	OutcomeProviderError = "provider_error"
	OutcomeUnknownError  = "unknown_error"
)

type dispatchMetrics struct {
	turnsTotal   *prometheus.CounterVec
	turnDuration prometheus.Histogram
}

// newDispatchMetrics registers the dispatcher collectors with reg. A nil reg leaves
// them unregistered.
func newDispatchMetrics(reg prometheus.Registerer, d *Dispatcher) *dispatchMetrics {
	factory := promauto.With(reg)

	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "linechat_active",
			Help: "1 when the bot answers chat messages, 0 when it is silenced",
		},
		func() float64 {
			if d.gate.IsActive() {
				return 1
			}
			return 0
		},
	)
	factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "linechat_sessions",
			Help: "Number of users with a conversation history",
		},
		func() float64 {
			return float64(d.contexts.Store().Len())
		},
	)

	return &dispatchMetrics{
		turnsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "linechat_turns_total",
				Help: "Inbound messages handled, by outcome",
			},
			[]string{"outcome"},
		),
		turnDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "linechat_turn_duration_seconds",
				Help:    "Duration of turns that reached the model, lock wait included",
				Buckets: prometheus.DefBuckets,
			},
		),
	}
}
