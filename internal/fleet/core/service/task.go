package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/translate"
	"github.com/autopeer-io/amrfleet/internal/pkg/metrics"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

// CreateTaskRequest describes a new task definition.
type CreateTaskRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Actions     []model.Action `json:"actions"`
}

// CreateTask validates and stores a task definition.
func (s *Service) CreateTask(ctx context.Context, req *CreateTaskRequest) (*model.TaskDefinition, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, fmt.Errorf("%w: task name is required", core.ErrInvalidArgument)
	}
	if err := validateActions(req.Actions); err != nil {
		return nil, err
	}

	task := &model.TaskDefinition{
		ID:          s.newID(),
		Name:        req.Name,
		Description: req.Description,
		Actions:     model.CloneActions(req.Actions),
		CreatedAt:   s.clock.Now(),
	}
	if err := s.tasks.Create(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	log.FromContext(ctx).Info("Task created", "task", task.ID, "name", task.Name, "actions", len(task.Actions))
	return task, nil
}

func (s *Service) GetTask(ctx context.Context, id string) (*model.TaskDefinition, error) {
	return s.tasks.Get(ctx, id)
}

func (s *Service) ListTasks(ctx context.Context) ([]*model.TaskDefinition, error) {
	return s.tasks.List(ctx)
}

// DeleteTask removes a definition. Instances keep their own copy of the actions.
func (s *Service) DeleteTask(ctx context.Context, id string) error {
	return s.tasks.Delete(ctx, id)
}

// Execute creates a Queued instance of taskID with a copy of its actions and
// their translated command sequence.
func (s *Service) Execute(ctx context.Context, taskID string) (*model.TaskInstance, error) {
	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return nil, err
	}
	if err := validateActions(task.Actions); err != nil {
		return nil, err
	}
	sequence, err := translate.Sequence(task.Actions)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	inst := &model.TaskInstance{
		ID:        s.newID(),
		TaskID:    task.ID,
		TaskName:  task.Name,
		Status:    model.InstanceQueued,
		Actions:   model.CloneActions(task.Actions),
		Sequence:  sequence,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.instances.Create(ctx, inst); err != nil {
		return nil, fmt.Errorf("failed to create task instance: %w", err)
	}

	metrics.InstanceTransitions.WithLabelValues(string(model.InstanceQueued)).Inc()
	log.FromContext(ctx).Info("Task instance queued", "task", task.ID, "instance", inst.ID)

	s.notify(ctx, &model.TransitionEvent{
		InstanceID:   inst.ID,
		TaskID:       inst.TaskID,
		TaskName:     inst.TaskName,
		To:           model.InstanceQueued,
		TotalActions: inst.TotalActions(),
		At:           now,
	})
	return inst, nil
}

// ListInstances returns instances in FIFO order. Completed instances are
// left out unless includeCompleted is set.
func (s *Service) ListInstances(ctx context.Context, includeCompleted bool) ([]*model.TaskInstance, error) {
	var filter core.InstanceFilter
	if !includeCompleted {
		filter.ExcludeStatuses = []model.InstanceStatus{model.InstanceCompleted}
	}
	return s.instances.List(ctx, filter)
}

func validateActions(actions []model.Action) error {
	if len(actions) == 0 {
		return fmt.Errorf("%w: at least one action is required", core.ErrInvalidArgument)
	}
	if _, err := translate.Sequence(actions); err != nil {
		return err
	}
	return nil
}
