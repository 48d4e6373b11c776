package core

import (
	"context"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

// Notifier tells the execution surface about applied transitions.
// Implementations must not block the caller on network I/O.
type Notifier interface {
	Notify(ctx context.Context, evt *model.TransitionEvent) error
}

// NopNotifier discards every event.
type NopNotifier struct{}

func (NopNotifier) Notify(context.Context, *model.TransitionEvent) error { return nil }
