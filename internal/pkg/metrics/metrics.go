package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

// Tick results.
const (
	TickOK      = "ok"
	TickAborted = "aborted"
	TickSkipped = "skipped"
)

// Scheduler actions.
const (
	ActionAssigned  = "assigned"
	ActionAdvanced  = "advanced"
	ActionCompleted = "completed"
	ActionReleased  = "released"
	ActionConflict  = "conflict"
	ActionError     = "error"
)

// Dispatch results.
const (
	DispatchPublished = "published"
	DispatchDropped   = "dropped"
	DispatchFailed    = "failed"
	DispatchStale     = "stale"
)

var (
	// SchedulerTicks counts reconciliation passes by outcome.
	SchedulerTicks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amrfleet_scheduler_ticks_total",
			Help: "Total number of reconciliation ticks by result.",
		},
		[]string{"result"}, // ok / aborted / skipped
	)

	// SchedulerTickDuration observes how long a completed tick took.
	SchedulerTickDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "amrfleet_scheduler_tick_duration_seconds",
			Help:    "Duration of reconciliation ticks.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// SchedulerActions counts per-robot decisions taken inside ticks.
	SchedulerActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amrfleet_scheduler_actions_total",
			Help: "Total number of per-robot scheduler actions by kind.",
		},
		[]string{"action"},
	)

	// InstanceTransitions counts applied task instance status changes.
	InstanceTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amrfleet_instance_transitions_total",
			Help: "Total number of task instance transitions by target status.",
		},
		[]string{"to"},
	)

	// Robots is the number of robots per status as of the last tick.
	Robots = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "amrfleet_robots",
			Help: "Number of robots by status, refreshed every tick.",
		},
		[]string{"status"},
	)

	// Dispatch counts outbound notification attempts.
	Dispatch = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amrfleet_dispatch_total",
			Help: "Total number of dispatch notifications by result.",
		},
		[]string{"result"}, // published / dropped / failed / stale
	)
)

// Registered in the controller-runtime registry so they are served by /metrics.
func init() {
	metrics.Registry.MustRegister(
		SchedulerTicks,
		SchedulerTickDuration,
		SchedulerActions,
		InstanceTransitions,
		Robots,
		Dispatch,
	)
}
