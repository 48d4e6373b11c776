package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	"sigs.k8s.io/controller-runtime/pkg/metrics"
)

func TestCollectorsRegistered(t *testing.T) {
	SchedulerTicks.WithLabelValues(TickOK).Inc()
	SchedulerActions.WithLabelValues(ActionAssigned).Inc()
	InstanceTransitions.WithLabelValues("InProgress").Inc()
	Robots.WithLabelValues("Idle").Set(2)
	Dispatch.WithLabelValues(DispatchPublished).Inc()
	SchedulerTickDuration.Observe(0.01)

	families, err := metrics.Registry.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"amrfleet_scheduler_ticks_total",
		"amrfleet_scheduler_tick_duration_seconds",
		"amrfleet_scheduler_actions_total",
		"amrfleet_instance_transitions_total",
		"amrfleet_robots",
		"amrfleet_dispatch_total",
	} {
		require.True(t, names[want], want)
	}

	require.Equal(t, float64(2), testutil.ToFloat64(Robots.WithLabelValues("Idle")))
}
