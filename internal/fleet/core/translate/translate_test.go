package translate

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

func TestActionDefaults(t *testing.T) {
	cases := []struct {
		action model.Action
		want   model.Command
	}{
		{model.Action{Kind: KindMove, Config: map[string]any{"location": "A3"}}, model.Command{"Move to indexed location", "A3"}},
		{model.Action{Kind: KindLatch}, model.Command{"Latch", map[string]any{}}},
		{model.Action{Kind: KindUnlatch}, model.Command{"Unlatch", map[string]any{}}},
		{model.Action{Kind: KindWaitForTrigger, Config: map[string]any{"trigger_id": "t1"}}, model.Command{"Wait for specified trigger", "t1"}},
		{model.Action{Kind: KindWait}, model.Command{"Wait for specified time", 0.0}},
		{model.Action{Kind: KindWait, Config: map[string]any{"wait_time": "2.5"}}, model.Command{"Wait for specified time", 2.5}},
		{model.Action{Kind: KindReleaseTrigger, Config: map[string]any{"wait_id": "w"}}, model.Command{"Release trigger", "w", false}},
		{model.Action{Kind: KindHorn, Config: map[string]any{"horn": "short"}}, model.Command{"Horn", "short", 1}},
		{model.Action{Kind: KindAnnounce, Config: map[string]any{"announcement": "hi", "repetitions": "3"}}, model.Command{"Voice announcement", "hi", 3}},
		{model.Action{Kind: KindRotate}, model.Command{"Inplace Rotation", 50.0, 180.0}},
	}

	for _, tc := range cases {
		got, err := Action(tc.action)
		require.NoError(t, err, tc.action.Kind)
		require.Equal(t, tc.want, got, tc.action.Kind)
	}
}

func TestReverse(t *testing.T) {
	got, err := Action(model.Action{Kind: KindReverse, Config: map[string]any{
		"state": "s", "name": "dock", "speed": 12, "hitch": "false",
	}})
	require.NoError(t, err)
	require.Equal(t, model.Command{
		"Reverse", "s", "dock",
		0.02, 0.0, -50.0, -50.0, 0.0, 12.0, 1.5, 99.0, -0.7, 0.7,
		false,
	}, got)

	got, err = Action(model.Action{Kind: KindReverse})
	require.NoError(t, err)
	require.Len(t, got, 14)
	require.Equal(t, true, got[13])
}

func TestInvalidActions(t *testing.T) {
	_, err := Action(model.Action{Kind: "FLY"})
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = Action(model.Action{Kind: KindWait, Config: map[string]any{"wait_time": "soon"}})
	require.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = Sequence([]model.Action{{Kind: KindLatch}, {Kind: "FLY"}})
	require.ErrorIs(t, err, core.ErrInvalidArgument)
	require.Contains(t, err.Error(), "action 1")
}

func TestRepetitionsMustBeInteger(t *testing.T) {
	for _, v := range []any{"2.7", 2.5, math.NaN(), math.Inf(1), "1e300", -1e19} {
		_, err := Action(model.Action{Kind: KindHorn, Config: map[string]any{"repetitions": v}})
		require.ErrorIs(t, err, core.ErrInvalidArgument, "%v", v)
	}

	got, err := Action(model.Action{Kind: KindAnnounce, Config: map[string]any{"announcement": "hi", "repetitions": 2.0}})
	require.NoError(t, err)
	require.Equal(t, model.Command{"Voice announcement", "hi", 2}, got)
}

func TestSequenceKeepsOrder(t *testing.T) {
	seq, err := Sequence([]model.Action{{Kind: KindLatch}, {Kind: KindUnlatch}})
	require.NoError(t, err)
	require.Equal(t, "Latch", seq[0].Name())
	require.Equal(t, "Unlatch", seq[1].Name())

	for _, k := range Kinds() {
		require.True(t, Known(k), k)
	}
}
