package scheduler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
	"github.com/autopeer-io/amrfleet/internal/fleet/store/memory"
	"github.com/autopeer-io/amrfleet/internal/fleet/store/sqlite"
	"github.com/autopeer-io/amrfleet/internal/fleet/store/storetest"
	"github.com/autopeer-io/amrfleet/internal/pkg/metrics"
	"github.com/autopeer-io/amrfleet/pkg/log"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	events []*model.TransitionEvent
}

func (r *recorder) Notify(_ context.Context, evt *model.TransitionEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) snapshot() []*model.TransitionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*model.TransitionEvent(nil), r.events...)
}

type fixture struct {
	repo  core.Repository
	clock *clocktesting.FakeClock
	rec   *recorder
	sched *Scheduler
}

func newFixture(t *testing.T, robots ...string) *fixture {
	t.Helper()
	f := &fixture{
		repo:  memory.New(),
		clock: clocktesting.NewFakeClock(t0),
		rec:   &recorder{},
	}
	f.sched = New(Config{Repo: f.repo, Notifier: f.rec, Clock: f.clock, Log: log.NewNopLogger()})
	for _, name := range robots {
		require.NoError(t, f.repo.Robot().Create(context.Background(), &model.Robot{ID: "r-" + name, Name: name, Status: model.RobotIdle}))
	}
	return f
}

func (f *fixture) queue(t *testing.T, id string, at time.Time, actions int) {
	t.Helper()
	require.NoError(t, f.repo.Instance().Create(context.Background(), storetest.NewInstance(id, at, actions)))
}

func (f *fixture) tick(t *testing.T) TickResult {
	t.Helper()
	f.clock.Step(time.Minute)
	res, err := f.sched.Tick(context.Background())
	require.NoError(t, err)
	checkInvariants(t, f.repo)
	return res
}

func (f *fixture) instance(t *testing.T, id string) *model.TaskInstance {
	t.Helper()
	inst, err := f.repo.Instance().Get(context.Background(), id)
	require.NoError(t, err)
	return inst
}

func (f *fixture) robot(t *testing.T, name string) *model.Robot {
	t.Helper()
	r, err := f.repo.Robot().Get(context.Background(), "r-"+name)
	require.NoError(t, err)
	return r
}

// checkInvariants asserts the assignment invariants over the whole store.
func checkInvariants(t *testing.T, repo core.Repository) {
	t.Helper()
	ctx := context.Background()

	robots, err := repo.Robot().List(ctx)
	require.NoError(t, err)
	instances, err := repo.Instance().List(ctx, core.InstanceFilter{})
	require.NoError(t, err)

	holders := map[string]int{}
	for _, r := range robots {
		require.Equal(t, r.Status == model.RobotBusy, r.AssignedInstanceID != "", "robot %s", r.Name)
		if r.AssignedInstanceID != "" {
			holders[r.AssignedInstanceID]++
		}
	}
	for _, inst := range instances {
		if inst.Status.Assigned() {
			require.Equal(t, 1, holders[inst.ID], "instance %s (%s)", inst.ID, inst.Status)
		} else {
			require.Zero(t, holders[inst.ID], "instance %s (%s)", inst.ID, inst.Status)
		}
		require.GreaterOrEqual(t, inst.CurrentActionIndex, 0)
		require.LessOrEqual(t, inst.CurrentActionIndex, len(inst.Actions))
	}
}

func TestProgressCompletesAfterNPlusOneTicks(t *testing.T) {
	const n = 4
	f := newFixture(t, "AMR-001")
	f.queue(t, "i-1", t0, n)

	for i := 0; i < n; i++ {
		f.tick(t)
		inst := f.instance(t, "i-1")
		require.Equal(t, model.InstanceInProgress, inst.Status, "tick %d", i+1)
		require.Equal(t, i, inst.CurrentActionIndex, "tick %d", i+1)
		require.Equal(t, model.RobotBusy, f.robot(t, "AMR-001").Status)
	}

	res := f.tick(t)
	require.Equal(t, 1, res.Completed)

	inst := f.instance(t, "i-1")
	require.Equal(t, model.InstanceCompleted, inst.Status)
	require.Equal(t, n-1, inst.CurrentActionIndex)
	require.True(t, f.clock.Now().Equal(inst.UpdatedAt))

	robot := f.robot(t, "AMR-001")
	require.Equal(t, model.RobotIdle, robot.Status)
	require.Empty(t, robot.AssignedInstanceID)

	// Nothing left to do.
	res = f.tick(t)
	require.Equal(t, TickResult{}, res)
}

func TestSingleActionCompletesOnSecondTick(t *testing.T) {
	f := newFixture(t, "AMR-001")
	f.queue(t, "i-1", t0, 1)

	require.Equal(t, 1, f.tick(t).Assigned)
	require.Equal(t, 1, f.tick(t).Completed)
	require.Equal(t, model.InstanceCompleted, f.instance(t, "i-1").Status)
}

func TestFIFOAssignment(t *testing.T) {
	f := newFixture(t, "AMR-001")
	f.queue(t, "i-late", t0.Add(2*time.Second), 2)
	f.queue(t, "i-early", t0.Add(time.Second), 2)

	f.tick(t)
	require.Equal(t, "i-early", f.robot(t, "AMR-001").AssignedInstanceID)
	require.Equal(t, model.InstanceQueued, f.instance(t, "i-late").Status)
}

func TestFIFOTieBreaksOnID(t *testing.T) {
	f := newFixture(t, "AMR-001", "AMR-002")
	f.queue(t, "i-b", t0, 2)
	f.queue(t, "i-a", t0, 2)
	f.queue(t, "i-c", t0, 2)

	res := f.tick(t)
	require.Equal(t, 2, res.Assigned)
	require.Equal(t, "i-a", f.robot(t, "AMR-001").AssignedInstanceID)
	require.Equal(t, "i-b", f.robot(t, "AMR-002").AssignedInstanceID)
	require.Equal(t, model.InstanceQueued, f.instance(t, "i-c").Status)
}

func TestIdleRobotStaysIdleWithoutWork(t *testing.T) {
	f := newFixture(t, "AMR-001")
	res := f.tick(t)
	require.Zero(t, res.Assigned)
	require.Equal(t, model.RobotIdle, f.robot(t, "AMR-001").Status)
}

func TestPausedInstanceDoesNotAdvance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "AMR-001")
	f.queue(t, "i-1", t0, 5)

	f.tick(t)
	f.tick(t)
	require.Equal(t, 1, f.instance(t, "i-1").CurrentActionIndex)

	require.NoError(t, f.repo.Instance().UpdateStatus(ctx, "i-1",
		[]model.InstanceStatus{model.InstanceInProgress}, model.InstancePaused, f.clock.Now()))

	for i := 0; i < 5; i++ {
		f.tick(t)
		inst := f.instance(t, "i-1")
		require.Equal(t, model.InstancePaused, inst.Status)
		require.Equal(t, 1, inst.CurrentActionIndex)
		require.Equal(t, model.RobotBusy, f.robot(t, "AMR-001").Status)
	}

	require.NoError(t, f.repo.Instance().UpdateStatus(ctx, "i-1",
		[]model.InstanceStatus{model.InstancePaused}, model.InstanceInProgress, f.clock.Now()))
	f.tick(t)
	require.Equal(t, 2, f.instance(t, "i-1").CurrentActionIndex)
}

func TestCancelledInstanceReleasesRobotAndNextIsAssigned(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, "AMR-001")
	f.queue(t, "i-1", t0, 3)
	f.queue(t, "i-2", t0.Add(time.Second), 3)

	f.tick(t)
	released, err := f.repo.Assignment().Terminate(ctx, "i-1",
		[]model.InstanceStatus{model.InstanceQueued, model.InstanceInProgress, model.InstancePaused},
		model.InstanceCancelled, f.clock.Now())
	require.NoError(t, err)
	require.Equal(t, "AMR-001", released.Name)
	checkInvariants(t, f.repo)

	f.tick(t)
	require.Equal(t, model.InstanceCancelled, f.instance(t, "i-1").Status)
	require.Equal(t, "i-2", f.robot(t, "AMR-001").AssignedInstanceID)
}

func TestRepairReleasesRobotWithMissingInstance(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.repo.Robot().Create(context.Background(), &model.Robot{
		ID: "r-AMR-009", Name: "AMR-009", Status: model.RobotBusy, AssignedInstanceID: "ghost",
	}))

	f.clock.Step(time.Minute)
	res, err := f.sched.Tick(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, res.Released)

	robot := f.robot(t, "AMR-009")
	require.Equal(t, model.RobotIdle, robot.Status)
	require.Empty(t, robot.AssignedInstanceID)
}

func TestConcurrentTicksNeverDoubleAssign(t *testing.T) {
	ctx := context.Background()
	backends := map[string]func(t *testing.T) core.Repository{
		"memory": func(t *testing.T) core.Repository { return memory.New() },
		"sqlite": func(t *testing.T) core.Repository {
			s, err := sqlite.OpenMemory(ctx, "scheduler_race")
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		},
	}

	for name, newRepo := range backends {
		t.Run(name, func(t *testing.T) {
			repo := newRepo(t)
			require.NoError(t, repo.Robot().Create(ctx, &model.Robot{ID: "r-1", Name: "AMR-001", Status: model.RobotIdle}))
			require.NoError(t, repo.Instance().Create(ctx, storetest.NewInstance("i-1", t0, 3)))

			// Independent schedulers simulate two processes sharing the store.
			const n = 6
			results := make([]TickResult, n)
			var wg sync.WaitGroup
			for i := 0; i < n; i++ {
				s := New(Config{Repo: repo, Clock: clocktesting.NewFakeClock(t0), Log: log.NewNopLogger()})
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := s.Tick(ctx)
					if err == nil {
						results[i] = res
					}
				}(i)
			}
			wg.Wait()

			assigned := 0
			for _, r := range results {
				assigned += r.Assigned
			}
			require.Equal(t, 1, assigned)
			checkInvariants(t, repo)
		})
	}
}

func TestConcurrentTicksManyRobots(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.Robot().Create(ctx, &model.Robot{ID: fmt.Sprintf("r-%d", i), Name: fmt.Sprintf("AMR-%03d", i)}))
	}
	for i := 0; i < 12; i++ {
		require.NoError(t, repo.Instance().Create(ctx, storetest.NewInstance(fmt.Sprintf("i-%02d", i), t0.Add(time.Duration(i)*time.Second), 2)))
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		s := New(Config{Repo: repo, Log: log.NewNopLogger()})
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				_, _ = s.Tick(ctx)
			}
		}()
	}
	wg.Wait()
	checkInvariants(t, repo)
}

func TestCancelRacingTickStaysCancelled(t *testing.T) {
	ctx := context.Background()
	backends := map[string]struct {
		rounds  int
		newRepo func(t *testing.T, round int) core.Repository
	}{
		"memory": {rounds: 100, newRepo: func(t *testing.T, _ int) core.Repository { return memory.New() }},
		"sqlite": {rounds: 20, newRepo: func(t *testing.T, round int) core.Repository {
			s, err := sqlite.OpenMemory(ctx, fmt.Sprintf("cancel_race_%d", round))
			require.NoError(t, err)
			t.Cleanup(func() { _ = s.Close() })
			return s
		}},
	}

	for name, backend := range backends {
		t.Run(name, func(t *testing.T) {
			for round := 0; round < backend.rounds; round++ {
				repo := backend.newRepo(t, round)
				for i := 1; i <= 2; i++ {
					require.NoError(t, repo.Robot().Create(ctx, &model.Robot{ID: fmt.Sprintf("r-%d", i), Name: fmt.Sprintf("AMR-%03d", i), Status: model.RobotIdle}))
				}
				ids := []string{"i-1", "i-2", "i-3"}
				for i, id := range ids {
					require.NoError(t, repo.Instance().Create(ctx, storetest.NewInstance(id, t0.Add(time.Duration(i)*time.Second), 3)))
				}

				sched := New(Config{Repo: repo, Clock: clocktesting.NewFakeClock(t0), Log: log.NewNopLogger()})
				svc := service.New(repo, nil, nil)

				var (
					wg        sync.WaitGroup
					cancelled []string
				)
				wg.Add(2)
				go func() {
					defer wg.Done()
					for i := 0; i < 5; i++ {
						_, _ = sched.Tick(ctx)
					}
				}()
				go func() {
					defer wg.Done()
					for _, id := range ids {
						_, _ = svc.Pause(ctx, id)
						if _, err := svc.Cancel(ctx, id); err == nil {
							cancelled = append(cancelled, id)
						}
					}
				}()
				wg.Wait()

				checkInvariants(t, repo)
				for _, id := range cancelled {
					inst, err := repo.Instance().Get(ctx, id)
					require.NoError(t, err)
					require.Equal(t, model.InstanceCancelled, inst.Status, "round %d instance %s", round, id)
				}
			}
		})
	}
}

func TestTickSkippedWhileRunning(t *testing.T) {
	f := newFixture(t, "AMR-001")
	f.queue(t, "i-1", t0, 2)

	require.True(t, f.sched.running.TryAcquire(1))

	before := testutil.ToFloat64(metrics.SchedulerTicks.WithLabelValues(metrics.TickSkipped))
	_, err := f.sched.Tick(context.Background())
	require.ErrorIs(t, err, ErrTickInProgress)
	require.False(t, f.sched.Trigger(context.Background()))
	require.Equal(t, before+2, testutil.ToFloat64(metrics.SchedulerTicks.WithLabelValues(metrics.TickSkipped)))

	// Nothing was assigned by the skipped ticks.
	require.Equal(t, model.InstanceQueued, f.instance(t, "i-1").Status)

	f.sched.running.Release(1)
	require.True(t, f.sched.Trigger(context.Background()))
	f.sched.Wait()
	require.Equal(t, model.InstanceInProgress, f.instance(t, "i-1").Status)
}

type flakyInstances struct {
	core.TaskInstanceStore
	failQueued bool
}

func (f *flakyInstances) OldestQueued(ctx context.Context) (*model.TaskInstance, error) {
	if f.failQueued {
		return nil, fmt.Errorf("oldest queued: %w: disk I/O error", core.ErrStoreUnavailable)
	}
	return f.TaskInstanceStore.OldestQueued(ctx)
}

type flakyRepo struct {
	core.Repository
	instances *flakyInstances
}

func (r *flakyRepo) Instance() core.TaskInstanceStore { return r.instances }

func TestStoreUnavailableAbortsTick(t *testing.T) {
	ctx := context.Background()
	mem := memory.New()
	repo := &flakyRepo{Repository: mem, instances: &flakyInstances{TaskInstanceStore: mem.Instance(), failQueued: true}}

	require.NoError(t, mem.Robot().Create(ctx, &model.Robot{ID: "r-1", Name: "AMR-001"}))
	require.NoError(t, mem.Robot().Create(ctx, &model.Robot{ID: "r-2", Name: "AMR-002"}))
	require.NoError(t, mem.Instance().Create(ctx, storetest.NewInstance("i-1", t0, 2)))

	s := New(Config{Repo: repo, Log: log.NewNopLogger()})
	res, err := s.Tick(ctx)
	require.ErrorIs(t, err, core.ErrStoreUnavailable)
	require.True(t, res.Aborted)
	require.Zero(t, res.Assigned)

	// State untouched; the next healthy tick picks the work up.
	repo.instances.failQueued = false
	res, err = s.Tick(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, res.Assigned)
}

func TestNotificationsFollowTransitions(t *testing.T) {
	f := newFixture(t, "AMR-001")
	f.queue(t, "i-1", t0, 2)

	f.tick(t) // assign
	f.tick(t) // advance
	f.tick(t) // complete

	events := f.rec.snapshot()
	require.Len(t, events, 3)

	require.Equal(t, model.InstanceQueued, events[0].From)
	require.Equal(t, model.InstanceInProgress, events[0].To)
	require.Equal(t, "AMR-001", events[0].RobotName)
	require.Len(t, events[0].Sequence, 2)

	require.Equal(t, 1, events[1].CurrentActionIndex)
	require.Equal(t, model.InstanceInProgress, events[1].To)

	require.Equal(t, model.InstanceCompleted, events[2].To)
	require.Equal(t, 2, events[2].TotalActions)
}

func TestRunTicksOnInterval(t *testing.T) {
	f := newFixture(t, "AMR-001")
	f.queue(t, "i-1", t0, 2)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.sched.Run(ctx, time.Minute) }()

	require.Eventually(t, f.clock.HasWaiters, time.Second, 5*time.Millisecond)
	f.clock.Step(time.Minute)

	require.Eventually(t, func() bool {
		inst, err := f.repo.Instance().Get(context.Background(), "i-1")
		return err == nil && inst.Status == model.InstanceInProgress
	}, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
