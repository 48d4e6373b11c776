// Package lifecycle defines the legal TaskInstance transitions.
package lifecycle

import (
	"context"
	"errors"
	"fmt"

	"github.com/looplab/fsm"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	fsmutil "github.com/autopeer-io/amrfleet/internal/pkg/util/fsm"
)

// Event names.
const (
	EventAssign   = "assign"
	EventPause    = "pause"
	EventResume   = "resume"
	EventCancel   = "cancel"
	EventStop     = "stop"
	EventFail     = "fail"
	EventComplete = "complete"
)

var nonTerminal = []string{
	string(model.InstanceQueued),
	string(model.InstanceInProgress),
	string(model.InstancePaused),
}

// Events is the transition table of a TaskInstance.
var Events = fsm.Events{
	{Name: EventAssign, Src: []string{string(model.InstanceQueued)}, Dst: string(model.InstanceInProgress)},
	{Name: EventPause, Src: []string{string(model.InstanceInProgress)}, Dst: string(model.InstancePaused)},
	{Name: EventResume, Src: []string{string(model.InstancePaused)}, Dst: string(model.InstanceInProgress)},
	{Name: EventCancel, Src: nonTerminal, Dst: string(model.InstanceCancelled)},
	{Name: EventStop, Src: nonTerminal, Dst: string(model.InstanceStopped)},
	{Name: EventFail, Src: []string{string(model.InstanceInProgress), string(model.InstancePaused)}, Dst: string(model.InstanceFailed)},
	{Name: EventComplete, Src: []string{string(model.InstanceInProgress)}, Dst: string(model.InstanceCompleted)},
}

// Sources returns the statuses event may fire from.
func Sources(event string) []model.InstanceStatus {
	for _, e := range Events {
		if e.Name == event {
			out := make([]model.InstanceStatus, len(e.Src))
			for i, s := range e.Src {
				out[i] = model.InstanceStatus(s)
			}
			return out
		}
	}
	return nil
}

// Target returns the status event leads to, or "" for an unknown event.
func Target(event string) model.InstanceStatus {
	for _, e := range Events {
		if e.Name == event {
			return model.InstanceStatus(e.Dst)
		}
	}
	return ""
}

// Can reports whether event may fire from status, ignoring guards.
func Can(status model.InstanceStatus, event string) bool {
	return fsmutil.Can(Events, string(status), event)
}

var (
	errNotAtLast  = errors.New("instance has not reached its last action")
	errIndexRange = errors.New("action index out of range")
)

// Transition validates firing event against inst and returns the target
// status. inst is not modified. Illegal transitions and failed guards yield a
// *core.TransitionError wrapping core.ErrInvalidState.
func Transition(ctx context.Context, inst *model.TaskInstance, event string) (model.InstanceStatus, error) {
	m := fsm.NewFSM(string(inst.Status), Events, fsm.Callbacks{
		"before_" + EventComplete: fsmutil.WrapEvent(func(_ context.Context, e *fsm.Event) error {
			if !inst.AtLastAction() {
				return errNotAtLast
			}
			return nil
		}),
		"before_" + EventResume: fsmutil.WrapEvent(func(_ context.Context, e *fsm.Event) error {
			if inst.CurrentActionIndex < 0 || inst.CurrentActionIndex >= len(inst.Actions) {
				return errIndexRange
			}
			return nil
		}),
	})

	if err := m.Event(ctx, event); err != nil {
		var unknown fsm.UnknownEventError
		if errors.As(err, &unknown) {
			return "", fmt.Errorf("%w: unknown event %q", core.ErrInvalidArgument, event)
		}
		return "", &core.TransitionError{
			Op:         event,
			InstanceID: inst.ID,
			Current:    inst.Status,
			Err:        fmt.Errorf("%w: %v", core.ErrInvalidState, err),
		}
	}

	return model.InstanceStatus(m.Current()), nil
}
