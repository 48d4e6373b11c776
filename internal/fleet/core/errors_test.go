package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

func TestTransitionErrorUnwrap(t *testing.T) {
	err := error(&TransitionError{Op: "pause", InstanceID: "i-1", Current: model.InstancePaused, Err: ErrInvalidState})

	require.ErrorIs(t, err, ErrInvalidState)
	require.NotErrorIs(t, err, ErrConflict)
	require.Contains(t, err.Error(), "Paused")

	var te *TransitionError
	require.True(t, errors.As(err, &te))
	require.Equal(t, model.InstancePaused, te.Current)
}

func TestUnavailable(t *testing.T) {
	require.NoError(t, Unavailable("op", nil))
	require.ErrorIs(t, Unavailable("op", ErrConflict), ErrConflict)
	require.NotErrorIs(t, Unavailable("op", ErrConflict), ErrStoreUnavailable)

	err := Unavailable("list robots", errors.New("disk I/O error"))
	require.ErrorIs(t, err, ErrStoreUnavailable)
	require.Contains(t, err.Error(), "disk I/O error")
}
