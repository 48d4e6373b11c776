// Package storetest holds the behaviour every core.Repository implementation
// must satisfy.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

// Factory returns a fresh, empty repository. It is called once per subtest.
type Factory func(t *testing.T) core.Repository

var base = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

// Run executes the conformance suite against newRepo.
func Run(t *testing.T, newRepo Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, repo core.Repository)
	}{
		{"TaskCRUD", testTaskCRUD},
		{"InstanceRoundTrip", testInstanceRoundTrip},
		{"OldestQueuedFIFO", testOldestQueuedFIFO},
		{"ListFilter", testListFilter},
		{"UpdateStatusConditional", testUpdateStatusConditional},
		{"AdvanceConditional", testAdvanceConditional},
		{"RobotRegistry", testRobotRegistry},
		{"AssignAndComplete", testAssignAndComplete},
		{"AssignConflicts", testAssignConflicts},
		{"ConcurrentAssign", testConcurrentAssign},
		{"Terminate", testTerminate},
		{"Release", testRelease},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newRepo(t)
			t.Cleanup(func() { _ = repo.Close() })
			tt.fn(t, repo)
		})
	}
}

// NewInstance builds a Queued instance with n MOVE actions.
func NewInstance(id string, createdAt time.Time, n int) *model.TaskInstance {
	inst := &model.TaskInstance{
		ID:        id,
		TaskID:    "task-1",
		TaskName:  "delivery",
		Status:    model.InstanceQueued,
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	for i := 0; i < n; i++ {
		inst.Actions = append(inst.Actions, model.Action{Kind: "MOVE", Config: map[string]any{"location": fmt.Sprintf("L%d", i)}})
		inst.Sequence = append(inst.Sequence, model.Command{"Move to indexed location", fmt.Sprintf("L%d", i)})
	}
	return inst
}

func seedRobots(t *testing.T, repo core.Repository, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, repo.Robot().Create(context.Background(), &model.Robot{ID: "r-" + n, Name: n, Status: model.RobotIdle}))
	}
}

func testTaskCRUD(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	tasks := repo.Task()

	def := &model.TaskDefinition{
		ID: "t-1", Name: "dock", Description: "go to dock",
		Actions:   []model.Action{{Kind: "LATCH"}, {Kind: "MOVE", Config: map[string]any{"location": "A1"}}},
		CreatedAt: base,
	}
	require.NoError(t, tasks.Create(ctx, def))
	require.ErrorIs(t, tasks.Create(ctx, def), core.ErrConflict)
	require.NoError(t, tasks.Create(ctx, &model.TaskDefinition{ID: "t-0", Name: "later", Actions: []model.Action{{Kind: "LATCH"}}, CreatedAt: base.Add(time.Second)}))

	got, err := tasks.Get(ctx, "t-1")
	require.NoError(t, err)
	require.Equal(t, "dock", got.Name)
	require.Len(t, got.Actions, 2)
	require.Equal(t, "A1", got.Actions[1].Config["location"])

	list, err := tasks.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "t-1", list[0].ID)

	require.NoError(t, tasks.Delete(ctx, "t-1"))
	require.ErrorIs(t, tasks.Delete(ctx, "t-1"), core.ErrNotFound)
	_, err = tasks.Get(ctx, "t-1")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func testInstanceRoundTrip(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	store := repo.Instance()

	inst := NewInstance("i-1", base, 3)
	require.NoError(t, store.Create(ctx, inst))
	require.ErrorIs(t, store.Create(ctx, inst), core.ErrConflict)

	got, err := store.Get(ctx, "i-1")
	require.NoError(t, err)
	require.Equal(t, model.InstanceQueued, got.Status)
	require.Equal(t, 3, got.TotalActions())
	require.Len(t, got.Sequence, 3)
	require.Equal(t, "Move to indexed location", got.Sequence[2].Name())
	require.True(t, base.Equal(got.CreatedAt))

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)
}

func testOldestQueuedFIFO(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	store := repo.Instance()

	_, err := store.OldestQueued(ctx)
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, store.Create(ctx, NewInstance("c", base.Add(2*time.Second), 1)))
	require.NoError(t, store.Create(ctx, NewInstance("b", base.Add(time.Second), 1)))
	require.NoError(t, store.Create(ctx, NewInstance("a", base.Add(time.Second), 1)))

	got, err := store.OldestQueued(ctx)
	require.NoError(t, err)
	require.Equal(t, "a", got.ID)

	require.NoError(t, store.UpdateStatus(ctx, "a", []model.InstanceStatus{model.InstanceQueued}, model.InstanceCancelled, base))
	got, err = store.OldestQueued(ctx)
	require.NoError(t, err)
	require.Equal(t, "b", got.ID)
}

func testListFilter(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	store := repo.Instance()

	require.NoError(t, store.Create(ctx, NewInstance("i-1", base, 1)))
	require.NoError(t, store.Create(ctx, NewInstance("i-2", base.Add(time.Second), 1)))
	require.NoError(t, store.UpdateStatus(ctx, "i-1", []model.InstanceStatus{model.InstanceQueued}, model.InstanceCompleted, base))

	all, err := store.List(ctx, core.InstanceFilter{})
	require.NoError(t, err)
	require.Len(t, all, 2)
	require.Equal(t, "i-1", all[0].ID)

	open, err := store.List(ctx, core.InstanceFilter{ExcludeStatuses: []model.InstanceStatus{model.InstanceCompleted}})
	require.NoError(t, err)
	require.Len(t, open, 1)
	require.Equal(t, "i-2", open[0].ID)
}

func testUpdateStatusConditional(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	store := repo.Instance()
	require.NoError(t, store.Create(ctx, NewInstance("i-1", base, 2)))

	err := store.UpdateStatus(ctx, "i-1", []model.InstanceStatus{model.InstanceInProgress}, model.InstancePaused, base)
	require.ErrorIs(t, err, core.ErrConflict)
	var te *core.TransitionError
	require.ErrorAs(t, err, &te)
	require.Equal(t, model.InstanceQueued, te.Current)

	later := base.Add(time.Minute)
	require.NoError(t, store.UpdateStatus(ctx, "i-1", []model.InstanceStatus{model.InstanceQueued, model.InstancePaused}, model.InstanceCancelled, later))
	got, err := store.Get(ctx, "i-1")
	require.NoError(t, err)
	require.Equal(t, model.InstanceCancelled, got.Status)
	require.True(t, later.Equal(got.UpdatedAt))

	require.ErrorIs(t, store.UpdateStatus(ctx, "nope", []model.InstanceStatus{model.InstanceQueued}, model.InstanceCancelled, later), core.ErrNotFound)
}

func testAdvanceConditional(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seedRobots(t, repo, "AMR-001")
	require.NoError(t, repo.Instance().Create(ctx, NewInstance("i-1", base, 3)))

	// Not InProgress yet.
	require.ErrorIs(t, repo.Instance().Advance(ctx, "i-1", 0, base), core.ErrConflict)

	require.NoError(t, repo.Assignment().Assign(ctx, "r-AMR-001", "i-1", base))
	require.NoError(t, repo.Instance().Advance(ctx, "i-1", 0, base.Add(time.Second)))

	// Stale expectation.
	require.ErrorIs(t, repo.Instance().Advance(ctx, "i-1", 0, base), core.ErrConflict)

	require.NoError(t, repo.Instance().Advance(ctx, "i-1", 1, base.Add(2*time.Second)))

	// Last index reached: never advances past it.
	require.ErrorIs(t, repo.Instance().Advance(ctx, "i-1", 2, base), core.ErrConflict)

	got, err := repo.Instance().Get(ctx, "i-1")
	require.NoError(t, err)
	require.Equal(t, 2, got.CurrentActionIndex)
	require.True(t, base.Add(2*time.Second).Equal(got.UpdatedAt))

	require.ErrorIs(t, repo.Instance().Advance(ctx, "nope", 0, base), core.ErrNotFound)
}

func testRobotRegistry(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seedRobots(t, repo, "AMR-002", "AMR-001")

	err := repo.Robot().Create(ctx, &model.Robot{ID: "other", Name: "AMR-001", Status: model.RobotIdle})
	require.ErrorIs(t, err, core.ErrConflict)

	list, err := repo.Robot().List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, "AMR-001", list[0].Name)
	require.Equal(t, model.RobotIdle, list[0].Status)
	require.Empty(t, list[0].AssignedInstanceID)

	got, err := repo.Robot().Get(ctx, "r-AMR-002")
	require.NoError(t, err)
	require.Equal(t, "AMR-002", got.Name)

	_, err = repo.Robot().Get(ctx, "missing")
	require.ErrorIs(t, err, core.ErrNotFound)

	_, err = repo.Robot().ByInstance(ctx, "i-1")
	require.ErrorIs(t, err, core.ErrNotFound)

	require.NoError(t, repo.Ping(ctx))
}

func testAssignAndComplete(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seedRobots(t, repo, "AMR-001")
	require.NoError(t, repo.Instance().Create(ctx, NewInstance("i-1", base, 1)))

	require.NoError(t, repo.Assignment().Assign(ctx, "r-AMR-001", "i-1", base.Add(time.Second)))

	robot, err := repo.Robot().ByInstance(ctx, "i-1")
	require.NoError(t, err)
	require.Equal(t, "AMR-001", robot.Name)
	require.Equal(t, model.RobotBusy, robot.Status)
	require.Equal(t, "i-1", robot.AssignedInstanceID)

	inst, err := repo.Instance().Get(ctx, "i-1")
	require.NoError(t, err)
	require.Equal(t, model.InstanceInProgress, inst.Status)
	require.Equal(t, 0, inst.CurrentActionIndex)

	require.NoError(t, repo.Assignment().Complete(ctx, "r-AMR-001", "i-1", base.Add(2*time.Second)))
	require.ErrorIs(t, repo.Assignment().Complete(ctx, "r-AMR-001", "i-1", base), core.ErrConflict)

	robot, err = repo.Robot().Get(ctx, "r-AMR-001")
	require.NoError(t, err)
	require.Equal(t, model.RobotIdle, robot.Status)
	require.Empty(t, robot.AssignedInstanceID)

	inst, err = repo.Instance().Get(ctx, "i-1")
	require.NoError(t, err)
	require.Equal(t, model.InstanceCompleted, inst.Status)
	require.Equal(t, 0, inst.CurrentActionIndex)
}

func testAssignConflicts(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seedRobots(t, repo, "AMR-001", "AMR-002")
	require.NoError(t, repo.Instance().Create(ctx, NewInstance("i-1", base, 2)))
	require.NoError(t, repo.Instance().Create(ctx, NewInstance("i-2", base.Add(time.Second), 2)))

	require.NoError(t, repo.Assignment().Assign(ctx, "r-AMR-001", "i-1", base))

	// Instance already claimed.
	require.ErrorIs(t, repo.Assignment().Assign(ctx, "r-AMR-002", "i-1", base), core.ErrConflict)
	// Robot already busy.
	require.ErrorIs(t, repo.Assignment().Assign(ctx, "r-AMR-001", "i-2", base), core.ErrConflict)

	require.ErrorIs(t, repo.Assignment().Assign(ctx, "missing", "i-2", base), core.ErrNotFound)
	require.ErrorIs(t, repo.Assignment().Assign(ctx, "r-AMR-002", "missing", base), core.ErrNotFound)

	// The failed attempts left nothing behind.
	r2, err := repo.Robot().Get(ctx, "r-AMR-002")
	require.NoError(t, err)
	require.Equal(t, model.RobotIdle, r2.Status)
	i2, err := repo.Instance().Get(ctx, "i-2")
	require.NoError(t, err)
	require.Equal(t, model.InstanceQueued, i2.Status)
}

func testConcurrentAssign(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	const robots = 8
	names := make([]string, robots)
	for i := range names {
		names[i] = fmt.Sprintf("AMR-%03d", i)
	}
	seedRobots(t, repo, names...)
	require.NoError(t, repo.Instance().Create(ctx, NewInstance("i-1", base, 2)))

	var wg sync.WaitGroup
	errs := make([]error, len(names))
	for i, n := range names {
		wg.Add(1)
		go func(i int, robotID string) {
			defer wg.Done()
			errs[i] = repo.Assignment().Assign(ctx, robotID, "i-1", base)
		}(i, "r-"+n)
	}
	wg.Wait()

	winners := 0
	for _, err := range errs {
		if err == nil {
			winners++
			continue
		}
		require.ErrorIs(t, err, core.ErrConflict)
	}
	require.Equal(t, 1, winners)

	list, err := repo.Robot().List(ctx)
	require.NoError(t, err)
	busy := 0
	for _, r := range list {
		if r.Status == model.RobotBusy {
			busy++
			require.Equal(t, "i-1", r.AssignedInstanceID)
		}
	}
	require.Equal(t, 1, busy)
}

func testTerminate(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seedRobots(t, repo, "AMR-001")
	require.NoError(t, repo.Instance().Create(ctx, NewInstance("i-1", base, 2)))
	require.NoError(t, repo.Instance().Create(ctx, NewInstance("i-2", base, 2)))
	require.NoError(t, repo.Assignment().Assign(ctx, "r-AMR-001", "i-1", base))

	active := []model.InstanceStatus{model.InstanceQueued, model.InstanceInProgress, model.InstancePaused}

	released, err := repo.Assignment().Terminate(ctx, "i-1", active, model.InstanceCancelled, base.Add(time.Second))
	require.NoError(t, err)
	require.NotNil(t, released)
	require.Equal(t, "AMR-001", released.Name)
	require.Equal(t, model.RobotIdle, released.Status)

	robot, err := repo.Robot().Get(ctx, "r-AMR-001")
	require.NoError(t, err)
	require.Equal(t, model.RobotIdle, robot.Status)
	require.Empty(t, robot.AssignedInstanceID)

	// Already terminal.
	_, err = repo.Assignment().Terminate(ctx, "i-1", active, model.InstanceCancelled, base)
	require.ErrorIs(t, err, core.ErrConflict)

	// Unassigned instance: nothing to release.
	released, err = repo.Assignment().Terminate(ctx, "i-2", active, model.InstanceStopped, base)
	require.NoError(t, err)
	require.Nil(t, released)

	_, err = repo.Assignment().Terminate(ctx, "missing", active, model.InstanceStopped, base)
	require.ErrorIs(t, err, core.ErrNotFound)
}

func testRelease(t *testing.T, repo core.Repository) {
	ctx := context.Background()
	seedRobots(t, repo, "AMR-001")
	require.NoError(t, repo.Instance().Create(ctx, NewInstance("i-1", base, 2)))
	require.NoError(t, repo.Assignment().Assign(ctx, "r-AMR-001", "i-1", base))

	require.ErrorIs(t, repo.Assignment().Release(ctx, "r-AMR-001", "other"), core.ErrConflict)
	require.NoError(t, repo.Assignment().Release(ctx, "r-AMR-001", "i-1"))
	require.ErrorIs(t, repo.Assignment().Release(ctx, "r-AMR-001", "i-1"), core.ErrConflict)
	require.ErrorIs(t, repo.Assignment().Release(ctx, "missing", "i-1"), core.ErrNotFound)

	_, err := repo.Robot().ByInstance(ctx, "i-1")
	require.ErrorIs(t, err, core.ErrNotFound)
}
