// Package scheduler reconciles robots and task instances: it pairs idle
// robots with the oldest queued instance and moves busy robots forward by one
// action per tick.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"k8s.io/utils/clock"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/internal/pkg/metrics"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

// ErrTickInProgress is returned by Tick when another tick is still running.
var ErrTickInProgress = errors.New("tick already in progress")

// Config wires a Scheduler.
type Config struct {
	Repo     core.Repository
	Notifier core.Notifier
	Clock    clock.WithTicker
	Log      log.Logger
}

// Scheduler is the reconciliation engine. Ticks never overlap; a tick
// requested while another runs is skipped, not queued.
type Scheduler struct {
	repo     core.Repository
	notifier core.Notifier
	clock    clock.WithTicker
	log      log.Logger

	running *semaphore.Weighted
	wg      sync.WaitGroup
}

// TickResult summarizes one pass.
type TickResult struct {
	Assigned  int
	Advanced  int
	Completed int
	Released  int
	Conflicts int
	Errors    int

	// Aborted is set when the store became unavailable mid-pass.
	Aborted bool
}

// New creates a Scheduler. Nil collaborators get defaults.
func New(cfg Config) *Scheduler {
	s := &Scheduler{
		repo:     cfg.Repo,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		log:      cfg.Log,
		running:  semaphore.NewWeighted(1),
	}
	if s.notifier == nil {
		s.notifier = core.NopNotifier{}
	}
	if s.clock == nil {
		s.clock = clock.RealClock{}
	}
	if s.log == nil {
		s.log = log.WithName("scheduler")
	}
	return s
}

// Run triggers a tick every interval until ctx is cancelled, then waits for
// the running tick to finish.
func (s *Scheduler) Run(ctx context.Context, interval time.Duration) error {
	s.log.Info("Starting reconciliation scheduler", "interval", interval)

	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C():
			s.Trigger(ctx)
		case <-ctx.Done():
			s.wg.Wait()
			s.log.Info("Stopping reconciliation scheduler")
			return nil
		}
	}
}

// Trigger starts a tick in the background. It returns false when a tick is
// already running, in which case nothing is started.
func (s *Scheduler) Trigger(ctx context.Context) bool {
	if !s.running.TryAcquire(1) {
		metrics.SchedulerTicks.WithLabelValues(metrics.TickSkipped).Inc()
		s.log.Info("Previous tick still running, skipping")
		return false
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.running.Release(1)
		_, _ = s.tick(ctx)
	}()
	return true
}

// Wait blocks until ticks started by Trigger have finished.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Tick runs one pass synchronously. It returns ErrTickInProgress without
// doing anything if another tick holds the scheduler.
func (s *Scheduler) Tick(ctx context.Context) (TickResult, error) {
	if !s.running.TryAcquire(1) {
		metrics.SchedulerTicks.WithLabelValues(metrics.TickSkipped).Inc()
		return TickResult{}, ErrTickInProgress
	}
	defer s.running.Release(1)
	return s.tick(ctx)
}

func (s *Scheduler) tick(ctx context.Context) (TickResult, error) {
	var res TickResult
	start := s.clock.Now()

	robots, err := s.repo.Robot().List(ctx)
	if err != nil {
		res.Aborted = true
		metrics.SchedulerTicks.WithLabelValues(metrics.TickAborted).Inc()
		s.log.Error(err, "Failed to snapshot robots, tick aborted")
		return res, err
	}
	observeFleet(robots)

	for _, robot := range robots {
		var err error
		switch robot.Status {
		case model.RobotIdle:
			err = s.assign(ctx, robot, &res)
		case model.RobotBusy:
			err = s.progress(ctx, robot, &res)
		}
		if err == nil {
			continue
		}

		switch {
		case errors.Is(err, core.ErrStoreUnavailable):
			res.Aborted = true
			metrics.SchedulerActions.WithLabelValues(metrics.ActionError).Inc()
			metrics.SchedulerTicks.WithLabelValues(metrics.TickAborted).Inc()
			s.log.Error(err, "Store unavailable, tick aborted", "robot", robot.Name)
			return res, err
		case errors.Is(err, core.ErrConflict):
			res.Conflicts++
			metrics.SchedulerActions.WithLabelValues(metrics.ActionConflict).Inc()
			s.log.Debug("Lost race, retrying next tick", "robot", robot.Name, "error", err.Error())
		default:
			res.Errors++
			metrics.SchedulerActions.WithLabelValues(metrics.ActionError).Inc()
			s.log.Error(err, "Reconciliation failed for robot", "robot", robot.Name, "instance", robot.AssignedInstanceID)
		}
	}

	metrics.SchedulerTicks.WithLabelValues(metrics.TickOK).Inc()
	metrics.SchedulerTickDuration.Observe(s.clock.Since(start).Seconds())
	if res.Assigned+res.Advanced+res.Completed+res.Released > 0 {
		s.log.Info("Tick applied changes",
			"assigned", res.Assigned, "advanced", res.Advanced,
			"completed", res.Completed, "released", res.Released)
	}
	return res, nil
}

// assign pairs an idle robot with the oldest queued instance.
func (s *Scheduler) assign(ctx context.Context, robot *model.Robot, res *TickResult) error {
	inst, err := s.repo.Instance().OldestQueued(ctx)
	if errors.Is(err, core.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	now := s.clock.Now()
	if err := s.repo.Assignment().Assign(ctx, robot.ID, inst.ID, now); err != nil {
		return err
	}

	res.Assigned++
	metrics.SchedulerActions.WithLabelValues(metrics.ActionAssigned).Inc()
	metrics.InstanceTransitions.WithLabelValues(string(model.InstanceInProgress)).Inc()
	s.log.Info("Assigned task instance", "robot", robot.Name, "instance", inst.ID, "op", "assign")

	s.notify(ctx, &model.TransitionEvent{
		InstanceID:   inst.ID,
		TaskID:       inst.TaskID,
		TaskName:     inst.TaskName,
		From:         model.InstanceQueued,
		To:           model.InstanceInProgress,
		TotalActions: inst.TotalActions(),
		RobotName:    robot.Name,
		Sequence:     inst.Sequence,
		At:           now,
	})
	return nil
}

// progress advances or completes the instance held by a busy robot.
func (s *Scheduler) progress(ctx context.Context, robot *model.Robot, res *TickResult) error {
	inst, err := s.repo.Instance().Get(ctx, robot.AssignedInstanceID)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return err
	}

	if inst == nil || !inst.Status.Assigned() {
		return s.repair(ctx, robot, inst, res)
	}

	if inst.Status == model.InstancePaused {
		return nil
	}

	now := s.clock.Now()
	if inst.AtLastAction() {
		if err := s.repo.Assignment().Complete(ctx, robot.ID, inst.ID, now); err != nil {
			return err
		}
		res.Completed++
		metrics.SchedulerActions.WithLabelValues(metrics.ActionCompleted).Inc()
		metrics.InstanceTransitions.WithLabelValues(string(model.InstanceCompleted)).Inc()
		s.log.Info("Completed task instance", "robot", robot.Name, "instance", inst.ID, "op", "complete")

		s.notify(ctx, &model.TransitionEvent{
			InstanceID:         inst.ID,
			TaskID:             inst.TaskID,
			TaskName:           inst.TaskName,
			From:               model.InstanceInProgress,
			To:                 model.InstanceCompleted,
			CurrentActionIndex: inst.CurrentActionIndex,
			TotalActions:       inst.TotalActions(),
			RobotName:          robot.Name,
			At:                 now,
		})
		return nil
	}

	if err := s.repo.Instance().Advance(ctx, inst.ID, inst.CurrentActionIndex, now); err != nil {
		return err
	}
	res.Advanced++
	metrics.SchedulerActions.WithLabelValues(metrics.ActionAdvanced).Inc()
	s.log.Debug("Advanced task instance", "robot", robot.Name, "instance", inst.ID,
		"index", inst.CurrentActionIndex+1, "op", "advance")

	s.notify(ctx, &model.TransitionEvent{
		InstanceID:         inst.ID,
		TaskID:             inst.TaskID,
		TaskName:           inst.TaskName,
		From:               model.InstanceInProgress,
		To:                 model.InstanceInProgress,
		CurrentActionIndex: inst.CurrentActionIndex + 1,
		TotalActions:       inst.TotalActions(),
		RobotName:          robot.Name,
		At:                 now,
	})
	return nil
}

// repair releases a robot whose assignment points at a missing or inactive
// instance.
func (s *Scheduler) repair(ctx context.Context, robot *model.Robot, inst *model.TaskInstance, res *TickResult) error {
	status := "missing"
	if inst != nil {
		status = string(inst.Status)
	}

	if err := s.repo.Assignment().Release(ctx, robot.ID, robot.AssignedInstanceID); err != nil {
		return err
	}
	res.Released++
	metrics.SchedulerActions.WithLabelValues(metrics.ActionReleased).Inc()
	s.log.Warn("Released robot holding an inactive instance",
		"robot", robot.Name, "instance", robot.AssignedInstanceID, "status", status, "op", "repair")
	return nil
}

func (s *Scheduler) notify(ctx context.Context, evt *model.TransitionEvent) {
	if err := s.notifier.Notify(ctx, evt); err != nil {
		s.log.Debug("Transition notification not delivered", "instance", evt.InstanceID, "error", err.Error())
	}
}

func observeFleet(robots []*model.Robot) {
	counts := map[model.RobotStatus]int{model.RobotIdle: 0, model.RobotBusy: 0}
	for _, r := range robots {
		counts[r.Status]++
	}
	for status, n := range counts {
		metrics.Robots.WithLabelValues(string(status)).Set(float64(n))
	}
}
