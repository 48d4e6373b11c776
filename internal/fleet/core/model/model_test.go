package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInstanceStatusPredicates(t *testing.T) {
	terminal := map[InstanceStatus]bool{
		InstanceCompleted: true, InstanceCancelled: true, InstanceStopped: true, InstanceFailed: true,
	}
	for _, s := range AllInstanceStatuses {
		require.True(t, s.Valid())
		require.Equal(t, terminal[s], s.Terminal(), s)
		require.Equal(t, s == InstanceInProgress || s == InstancePaused, s.Assigned(), s)
	}
	require.False(t, InstanceStatus("Running").Valid())
}

func TestTaskInstanceClone(t *testing.T) {
	orig := &TaskInstance{
		ID:       "i-1",
		Actions:  []Action{{Kind: "MOVE", Config: map[string]any{"location": 3}}},
		Sequence: []Command{{"Move to indexed location", 3}},
	}
	c := orig.Clone()
	c.Actions[0].Config["location"] = 9
	c.Sequence[0][1] = 9

	require.Equal(t, 3, orig.Actions[0].Config["location"])
	require.Equal(t, 3, orig.Sequence[0][1])
	require.Equal(t, "Move to indexed location", c.Sequence[0].Name())
}

func TestAtLastAction(t *testing.T) {
	ti := &TaskInstance{Actions: make([]Action, 3)}
	require.False(t, ti.AtLastAction())
	ti.CurrentActionIndex = 2
	require.True(t, ti.AtLastAction())
	require.Equal(t, 3, ti.TotalActions())
}
