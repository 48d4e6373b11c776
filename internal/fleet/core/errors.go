package core

import (
	"errors"
	"fmt"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidState means the requested transition is not legal from the
	// current status.
	ErrInvalidState = errors.New("invalid state")

	// ErrConflict means a conditional update lost a race. The caller may retry.
	ErrConflict = errors.New("conflict")

	// ErrStoreUnavailable wraps transient infrastructure failures.
	ErrStoreUnavailable = errors.New("store unavailable")

	// ErrInvalidArgument rejects malformed requests.
	ErrInvalidArgument = errors.New("invalid argument")
)

// TransitionError reports a transition that did not apply.
type TransitionError struct {
	Op         string
	InstanceID string
	// Current is the status observed when the transition was rejected.
	Current model.InstanceStatus
	Err     error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s %s: %v (status %s)", e.Op, e.InstanceID, e.Err, e.Current)
}

func (e *TransitionError) Unwrap() error { return e.Err }

// Unavailable wraps err as ErrStoreUnavailable unless it is already
// classified.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrNotFound, ErrInvalidState, ErrConflict, ErrStoreUnavailable, ErrInvalidArgument} {
		if errors.Is(err, known) {
			return err
		}
	}
	return fmt.Errorf("%s: %w: %v", op, ErrStoreUnavailable, err)
}
