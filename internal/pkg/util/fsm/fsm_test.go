package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/looplab/fsm"
	"github.com/stretchr/testify/require"
)

var testEvents = fsm.Events{
	{Name: "start", Src: []string{"idle"}, Dst: "running"},
	{Name: "stop", Src: []string{"idle", "running"}, Dst: "stopped"},
}

func TestWrapEventCancelsTransition(t *testing.T) {
	guard := errors.New("guard rejected")
	m := fsm.NewFSM("idle", testEvents, fsm.Callbacks{
		"before_start": WrapEvent(func(ctx context.Context, e *fsm.Event) error {
			return guard
		}),
	})

	err := m.Event(context.Background(), "start")
	require.ErrorContains(t, err, guard.Error())
	require.Equal(t, "idle", m.Current())

	require.NoError(t, m.Event(context.Background(), "stop"))
	require.Equal(t, "stopped", m.Current())
}

func TestCan(t *testing.T) {
	require.True(t, Can(testEvents, "idle", "start"))
	require.True(t, Can(testEvents, "running", "stop"))
	require.False(t, Can(testEvents, "running", "start"))
	require.False(t, Can(testEvents, "idle", "missing"))
}
