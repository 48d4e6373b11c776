package fsm

import (
	"context"

	"github.com/looplab/fsm"
)

// WrapEvent adapts an error-returning callback to fsm.Callback. A non-nil
// error is stored on the event, which cancels the transition when used in a
// before_ callback.
func WrapEvent(fn func(ctx context.Context, event *fsm.Event) error) fsm.Callback {
	return func(ctx context.Context, event *fsm.Event) {
		if err := fn(ctx, event); err != nil {
			event.Cancel(err)
		}
	}
}

// Can reports whether event may fire from state under the given transitions,
// without building a machine.
func Can(events fsm.Events, state, event string) bool {
	for _, e := range events {
		if e.Name != event {
			continue
		}
		for _, src := range e.Src {
			if src == state {
				return true
			}
		}
	}
	return false
}
