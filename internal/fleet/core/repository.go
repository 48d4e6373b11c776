package core

import (
	"context"
	"time"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

// Repository groups the stores of the fleet. Implementations live under
// internal/fleet/store.
type Repository interface {
	Task() TaskRepository
	Instance() TaskInstanceStore
	Robot() FleetRegistry
	Assignment() AssignmentStore

	// Ping checks that the backend answers.
	Ping(ctx context.Context) error

	Close() error
}

// TaskRepository stores task definitions.
type TaskRepository interface {
	Create(ctx context.Context, task *model.TaskDefinition) error
	Get(ctx context.Context, id string) (*model.TaskDefinition, error)
	// List returns definitions ordered by creation time.
	List(ctx context.Context) ([]*model.TaskDefinition, error)
	Delete(ctx context.Context, id string) error
}

// InstanceFilter narrows TaskInstanceStore.List. The zero value matches all.
type InstanceFilter struct {
	ExcludeStatuses []model.InstanceStatus
}

// TaskInstanceStore stores task instances. Every mutating call is a
// conditional update: it returns ErrNotFound when the record is absent and
// ErrConflict when the expected prior state did not match.
type TaskInstanceStore interface {
	Create(ctx context.Context, inst *model.TaskInstance) error
	Get(ctx context.Context, id string) (*model.TaskInstance, error)

	// List returns instances ordered by (createdAt, id).
	List(ctx context.Context, filter InstanceFilter) ([]*model.TaskInstance, error)

	// OldestQueued returns the Queued instance with the earliest createdAt,
	// ties broken by id. ErrNotFound when the queue is empty.
	OldestQueued(ctx context.Context) (*model.TaskInstance, error)

	// UpdateStatus sets the status to `to` if the current status is one of from.
	UpdateStatus(ctx context.Context, id string, from []model.InstanceStatus, to model.InstanceStatus, now time.Time) error

	// Advance increments currentActionIndex by one if the instance is
	// InProgress, its index equals expected and expected is not the last index.
	Advance(ctx context.Context, id string, expected int, now time.Time) error
}

// FleetRegistry stores robots.
type FleetRegistry interface {
	// Create adds an Idle robot. ErrConflict if the name is taken.
	Create(ctx context.Context, robot *model.Robot) error
	Get(ctx context.Context, id string) (*model.Robot, error)

	// List returns robots ordered by name.
	List(ctx context.Context) ([]*model.Robot, error)

	// ByInstance returns the robot referencing instanceID, or ErrNotFound.
	ByInstance(ctx context.Context, instanceID string) (*model.Robot, error)
}

// AssignmentStore performs the transitions that touch a robot and an
// instance together. Each call applies fully or not at all.
type AssignmentStore interface {
	// Assign moves the robot Idle -> Busy referencing instanceID and the
	// instance Queued -> InProgress with index 0.
	Assign(ctx context.Context, robotID, instanceID string, now time.Time) error

	// Complete moves the instance InProgress -> Completed and releases the
	// robot, provided the robot references it.
	Complete(ctx context.Context, robotID, instanceID string, now time.Time) error

	// Release frees the robot if it still references instanceID. Used to
	// repair inconsistent assignments.
	Release(ctx context.Context, robotID, instanceID string) error

	// Terminate moves the instance from one of from to `to` and releases any
	// robot referencing it. The released robot is returned, or nil.
	Terminate(ctx context.Context, instanceID string, from []model.InstanceStatus, to model.InstanceStatus, now time.Time) (*model.Robot, error)
}
