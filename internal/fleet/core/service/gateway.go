package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/lifecycle"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/internal/pkg/metrics"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

// Pause moves an InProgress instance to Paused.
func (s *Service) Pause(ctx context.Context, instanceID string) (model.InstanceStatus, error) {
	return s.apply(ctx, instanceID, lifecycle.EventPause, "")
}

// Resume moves a Paused instance back to InProgress.
func (s *Service) Resume(ctx context.Context, instanceID string) (model.InstanceStatus, error) {
	return s.apply(ctx, instanceID, lifecycle.EventResume, "")
}

// Cancel aborts a non-terminal instance and releases its robot. Cancelling
// a terminal instance is InvalidState.
func (s *Service) Cancel(ctx context.Context, instanceID string) (model.InstanceStatus, error) {
	return s.apply(ctx, instanceID, lifecycle.EventCancel, "")
}

// Stop halts a non-terminal instance immediately and releases its robot.
// Stopping a terminal instance succeeds without change.
func (s *Service) Stop(ctx context.Context, instanceID string) (model.InstanceStatus, error) {
	inst, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return "", err
	}
	if inst.Status.Terminal() {
		log.FromContext(ctx).Info("Stop on terminal instance ignored", "instance", instanceID, "status", inst.Status)
		return inst.Status, nil
	}
	return s.applyTo(ctx, inst, lifecycle.EventStop, "")
}

// Fail marks an assigned instance Failed, e.g. after a robot fault report.
func (s *Service) Fail(ctx context.Context, instanceID, reason string) (model.InstanceStatus, error) {
	return s.apply(ctx, instanceID, lifecycle.EventFail, reason)
}

// ReportFault handles a fault raised by robotName. When instanceID is empty
// the robot's current assignment is failed.
func (s *Service) ReportFault(ctx context.Context, robotName, instanceID, reason string) (model.InstanceStatus, error) {
	robot, err := s.robotByName(ctx, robotName)
	if err != nil {
		return "", err
	}
	if instanceID == "" {
		instanceID = robot.AssignedInstanceID
	}
	if instanceID == "" || robot.AssignedInstanceID != instanceID {
		return "", &core.TransitionError{
			Op:         lifecycle.EventFail,
			InstanceID: instanceID,
			Err:        fmt.Errorf("%w: robot %s is not assigned to it", core.ErrInvalidState, robotName),
		}
	}
	return s.Fail(ctx, instanceID, reason)
}

// QueryStatus reports the progress of an instance and the robot holding it.
func (s *Service) QueryStatus(ctx context.Context, instanceID string) (*model.StatusReport, error) {
	inst, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}

	created, updated := inst.CreatedAt, inst.UpdatedAt
	report := &model.StatusReport{
		TaskInstanceID:     inst.ID,
		Status:             inst.Status,
		CurrentActionIndex: inst.CurrentActionIndex,
		TotalActions:       inst.TotalActions(),
		CreatedAt:          &created,
		UpdatedAt:          &updated,
	}

	robot, err := s.robots.ByInstance(ctx, instanceID)
	switch {
	case err == nil:
		report.RobotName = robot.Name
	case !errors.Is(err, core.ErrNotFound):
		return nil, err
	}
	return report, nil
}

func (s *Service) apply(ctx context.Context, instanceID, event, reason string) (model.InstanceStatus, error) {
	inst, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return "", err
	}
	return s.applyTo(ctx, inst, event, reason)
}

// applyTo validates event against the observed instance, then applies it
// with a conditional update keyed on the observed status.
func (s *Service) applyTo(ctx context.Context, inst *model.TaskInstance, event, reason string) (model.InstanceStatus, error) {
	logger := log.FromContext(ctx).WithValues("instance", inst.ID, "op", event)

	to, err := lifecycle.Transition(ctx, inst, event)
	if err != nil {
		logger.Info("Transition rejected", "status", inst.Status, "error", err.Error())
		return "", err
	}

	now := s.clock.Now()
	from := []model.InstanceStatus{inst.Status}
	evt := &model.TransitionEvent{
		InstanceID:         inst.ID,
		TaskID:             inst.TaskID,
		TaskName:           inst.TaskName,
		From:               inst.Status,
		To:                 to,
		CurrentActionIndex: inst.CurrentActionIndex,
		TotalActions:       inst.TotalActions(),
		At:                 now,
	}

	switch event {
	case lifecycle.EventPause, lifecycle.EventResume:
		err = s.instances.UpdateStatus(ctx, inst.ID, from, to, now)
		if err == nil {
			if robot, rerr := s.robots.ByInstance(ctx, inst.ID); rerr == nil {
				evt.RobotName = robot.Name
			}
		}
	default:
		var released *model.Robot
		released, err = s.assignments.Terminate(ctx, inst.ID, from, to, now)
		if released != nil {
			evt.RobotName = released.Name
		}
	}
	if err != nil {
		err = s.raced(event, inst.ID, err)
		logger.Warn("Transition not applied", "error", err.Error())
		return "", err
	}

	metrics.InstanceTransitions.WithLabelValues(string(to)).Inc()
	kv := []any{"from", inst.Status, "to", to}
	if evt.RobotName != "" {
		kv = append(kv, "robot", evt.RobotName)
	}
	if reason != "" {
		kv = append(kv, "reason", reason)
	}
	logger.Info("Transition applied", kv...)

	s.notify(ctx, evt)
	return to, nil
}

// raced rewrites a store conflict into a TransitionError for event.
func (s *Service) raced(event, instanceID string, err error) error {
	var te *core.TransitionError
	if errors.As(err, &te) && errors.Is(err, core.ErrConflict) {
		return &core.TransitionError{Op: event, InstanceID: instanceID, Current: te.Current, Err: core.ErrConflict}
	}
	return err
}
