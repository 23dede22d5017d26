package observers

import (
	"sync"
	"time"

	"github.com/anggasct/strata"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsObserver exports state machine activity as prometheus metrics
type MetricsObserver struct {
	enters      *prometheus.CounterVec
	exits       *prometheus.CounterVec
	actions     *prometheus.CounterVec
	transitions *prometheus.CounterVec
	faults      prometheus.Counter
	timeInState *prometheus.HistogramVec

	lastStateEntry map[string]time.Time
	mutex          sync.Mutex
	now            func() time.Time
}

// NewMetricsObserver creates the collectors and registers them with reg.
// A nil reg uses prometheus.DefaultRegisterer.
func NewMetricsObserver(reg prometheus.Registerer) *MetricsObserver {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &MetricsObserver{
		enters: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strata_state_enters_total",
			Help: "Number of times a state was entered.",
		}, []string{"state"}),
		exits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strata_state_exits_total",
			Help: "Number of times a state was exited.",
		}, []string{"state"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strata_actions_total",
			Help: "Number of actions delivered to an active state.",
		}, []string{"state"}),
		transitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "strata_transitions_total",
			Help: "Number of transitions taken.",
		}, []string{"from", "to"}),
		faults: factory.NewCounter(prometheus.CounterOpts{
			Name: "strata_faults_total",
			Help: "Number of faults raised by handlers.",
		}),
		timeInState: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "strata_state_duration_seconds",
			Help:    "Time spent in a state between entry and exit.",
			Buckets: prometheus.DefBuckets,
		}, []string{"state"}),
		lastStateEntry: make(map[string]time.Time),
		now:            time.Now,
	}
}

// OnEnter records state entry
func (o *MetricsObserver) OnEnter(state *strata.StateNode, _ *strata.Context) error {
	o.enters.WithLabelValues(state.ID()).Inc()

	o.mutex.Lock()
	defer o.mutex.Unlock()
	o.lastStateEntry[state.ID()] = o.now()
	return nil
}

// OnExit records state exit and the time spent in the state
func (o *MetricsObserver) OnExit(state *strata.StateNode, _ *strata.Context) error {
	o.exits.WithLabelValues(state.ID()).Inc()

	o.mutex.Lock()
	defer o.mutex.Unlock()
	if entryTime, ok := o.lastStateEntry[state.ID()]; ok {
		o.timeInState.WithLabelValues(state.ID()).Observe(o.now().Sub(entryTime).Seconds())
		delete(o.lastStateEntry, state.ID())
	}
	return nil
}

// OnAction records actions
func (o *MetricsObserver) OnAction(state *strata.StateNode, _ *strata.Context) error {
	o.actions.WithLabelValues(state.ID()).Inc()
	return nil
}

// OnTransition records transitions
func (o *MetricsObserver) OnTransition(from, to *strata.StateNode, _ any) {
	o.transitions.WithLabelValues(nodeName(from), nodeName(to)).Inc()
}

// OnError records faults
func (o *MetricsObserver) OnError(error, *strata.StateNode) {
	o.faults.Inc()
}
