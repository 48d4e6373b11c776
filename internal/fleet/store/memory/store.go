// Package memory is an in-process fleet store. A single mutex guards all
// records so every multi-record transition is atomic.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

var _ core.Repository = (*Store)(nil)

// Store implements core.Repository in memory.
type Store struct {
	mu sync.RWMutex

	tasks     map[string]*model.TaskDefinition
	instances map[string]*model.TaskInstance
	robots    map[string]*model.Robot

	// byInstance indexes robots by the instance they reference.
	byInstance map[string]string
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		tasks:      make(map[string]*model.TaskDefinition),
		instances:  make(map[string]*model.TaskInstance),
		robots:     make(map[string]*model.Robot),
		byInstance: make(map[string]string),
	}
}

func (s *Store) Task() core.TaskRepository        { return (*taskRepo)(s) }
func (s *Store) Instance() core.TaskInstanceStore { return (*instanceRepo)(s) }
func (s *Store) Robot() core.FleetRegistry        { return (*robotRepo)(s) }
func (s *Store) Assignment() core.AssignmentStore { return (*assignmentRepo)(s) }

func (s *Store) Ping(ctx context.Context) error { return ctx.Err() }

func (s *Store) Close() error { return nil }

func notFound(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, core.ErrNotFound)
}

func conflict(op, id string, current model.InstanceStatus) error {
	return &core.TransitionError{Op: op, InstanceID: id, Current: current, Err: core.ErrConflict}
}

type taskRepo Store

func (r *taskRepo) Create(ctx context.Context, task *model.TaskDefinition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[task.ID]; ok {
		return fmt.Errorf("task %q: %w", task.ID, core.ErrConflict)
	}
	c := *task
	c.Actions = model.CloneActions(task.Actions)
	r.tasks[task.ID] = &c
	return nil
}

func (r *taskRepo) Get(ctx context.Context, id string) (*model.TaskDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tasks[id]
	if !ok {
		return nil, notFound("task", id)
	}
	c := *t
	c.Actions = model.CloneActions(t.Actions)
	return &c, nil
}

func (r *taskRepo) List(ctx context.Context) ([]*model.TaskDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.TaskDefinition, 0, len(r.tasks))
	for _, t := range r.tasks {
		c := *t
		c.Actions = model.CloneActions(t.Actions)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *taskRepo) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[id]; !ok {
		return notFound("task", id)
	}
	delete(r.tasks, id)
	return nil
}

type instanceRepo Store

func (r *instanceRepo) Create(ctx context.Context, inst *model.TaskInstance) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.instances[inst.ID]; ok {
		return fmt.Errorf("task instance %q: %w", inst.ID, core.ErrConflict)
	}
	r.instances[inst.ID] = inst.Clone()
	return nil
}

func (r *instanceRepo) Get(ctx context.Context, id string) (*model.TaskInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	inst, ok := r.instances[id]
	if !ok {
		return nil, notFound("task instance", id)
	}
	return inst.Clone(), nil
}

func fifoLess(a, b *model.TaskInstance) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID < b.ID
}

func (r *instanceRepo) List(ctx context.Context, filter core.InstanceFilter) ([]*model.TaskInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.TaskInstance, 0, len(r.instances))
	for _, inst := range r.instances {
		if slices.Contains(filter.ExcludeStatuses, inst.Status) {
			continue
		}
		out = append(out, inst.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return fifoLess(out[i], out[j]) })
	return out, nil
}

func (r *instanceRepo) OldestQueued(ctx context.Context) (*model.TaskInstance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var oldest *model.TaskInstance
	for _, inst := range r.instances {
		if inst.Status != model.InstanceQueued {
			continue
		}
		if oldest == nil || fifoLess(inst, oldest) {
			oldest = inst
		}
	}
	if oldest == nil {
		return nil, fmt.Errorf("queued task instance: %w", core.ErrNotFound)
	}
	return oldest.Clone(), nil
}

func (r *instanceRepo) UpdateStatus(ctx context.Context, id string, from []model.InstanceStatus, to model.InstanceStatus, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return notFound("task instance", id)
	}
	if !slices.Contains(from, inst.Status) {
		return conflict("update status", id, inst.Status)
	}
	inst.Status = to
	inst.UpdatedAt = now
	return nil
}

func (r *instanceRepo) Advance(ctx context.Context, id string, expected int, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[id]
	if !ok {
		return notFound("task instance", id)
	}
	if inst.Status != model.InstanceInProgress || inst.CurrentActionIndex != expected || expected+1 >= len(inst.Actions) {
		return conflict("advance", id, inst.Status)
	}
	inst.CurrentActionIndex++
	inst.UpdatedAt = now
	return nil
}

type robotRepo Store

func (r *robotRepo) Create(ctx context.Context, robot *model.Robot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.robots[robot.ID]; ok {
		return fmt.Errorf("robot %q: %w", robot.ID, core.ErrConflict)
	}
	for _, existing := range r.robots {
		if existing.Name == robot.Name {
			return fmt.Errorf("robot name %q: %w", robot.Name, core.ErrConflict)
		}
	}
	c := robot.Clone()
	if c.Status == "" {
		c.Status = model.RobotIdle
	}
	r.robots[c.ID] = c
	if c.AssignedInstanceID != "" {
		r.byInstance[c.AssignedInstanceID] = c.ID
	}
	return nil
}

func (r *robotRepo) Get(ctx context.Context, id string) (*model.Robot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	robot, ok := r.robots[id]
	if !ok {
		return nil, notFound("robot", id)
	}
	return robot.Clone(), nil
}

func (r *robotRepo) List(ctx context.Context) ([]*model.Robot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*model.Robot, 0, len(r.robots))
	for _, robot := range r.robots {
		out = append(out, robot.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *robotRepo) ByInstance(ctx context.Context, instanceID string) (*model.Robot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byInstance[instanceID]
	if !ok {
		return nil, fmt.Errorf("robot for instance %q: %w", instanceID, core.ErrNotFound)
	}
	return r.robots[id].Clone(), nil
}

type assignmentRepo Store

func (r *assignmentRepo) release(robot *model.Robot) {
	delete(r.byInstance, robot.AssignedInstanceID)
	robot.Status = model.RobotIdle
	robot.AssignedInstanceID = ""
}

func (r *assignmentRepo) Assign(ctx context.Context, robotID, instanceID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	robot, ok := r.robots[robotID]
	if !ok {
		return notFound("robot", robotID)
	}
	inst, ok := r.instances[instanceID]
	if !ok {
		return notFound("task instance", instanceID)
	}
	if robot.Status != model.RobotIdle || inst.Status != model.InstanceQueued {
		return conflict("assign", instanceID, inst.Status)
	}
	if _, taken := r.byInstance[instanceID]; taken {
		return conflict("assign", instanceID, inst.Status)
	}

	inst.Status = model.InstanceInProgress
	inst.CurrentActionIndex = 0
	inst.UpdatedAt = now
	robot.Status = model.RobotBusy
	robot.AssignedInstanceID = instanceID
	r.byInstance[instanceID] = robotID
	return nil
}

func (r *assignmentRepo) Complete(ctx context.Context, robotID, instanceID string, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	robot, ok := r.robots[robotID]
	if !ok {
		return notFound("robot", robotID)
	}
	inst, ok := r.instances[instanceID]
	if !ok {
		return notFound("task instance", instanceID)
	}
	if robot.AssignedInstanceID != instanceID || inst.Status != model.InstanceInProgress {
		return conflict("complete", instanceID, inst.Status)
	}

	inst.Status = model.InstanceCompleted
	inst.UpdatedAt = now
	r.release(robot)
	return nil
}

func (r *assignmentRepo) Release(ctx context.Context, robotID, instanceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	robot, ok := r.robots[robotID]
	if !ok {
		return notFound("robot", robotID)
	}
	if robot.Status != model.RobotBusy || robot.AssignedInstanceID != instanceID {
		return fmt.Errorf("release robot %q from %q: %w", robotID, instanceID, core.ErrConflict)
	}
	r.release(robot)
	return nil
}

func (r *assignmentRepo) Terminate(ctx context.Context, instanceID string, from []model.InstanceStatus, to model.InstanceStatus, now time.Time) (*model.Robot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, ok := r.instances[instanceID]
	if !ok {
		return nil, notFound("task instance", instanceID)
	}
	if !slices.Contains(from, inst.Status) {
		return nil, conflict("terminate", instanceID, inst.Status)
	}

	inst.Status = to
	inst.UpdatedAt = now

	robotID, ok := r.byInstance[instanceID]
	if !ok {
		return nil, nil
	}
	robot := r.robots[robotID]
	r.release(robot)
	return robot.Clone(), nil
}
