package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
	fleetgrpc "github.com/autopeer-io/amrfleet/internal/fleet/server/grpc"
	fleethttp "github.com/autopeer-io/amrfleet/internal/fleet/server/http"
	"github.com/autopeer-io/amrfleet/internal/fleet/store/memory"
	"github.com/autopeer-io/amrfleet/pkg/options"
)

type fixture struct {
	svc *service.Service
	srv *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	svc := service.New(memory.New(), nil, clocktesting.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)))
	_, err := svc.EnsureRobots(context.Background(), []string{"AMR-001"})
	require.NoError(t, err)

	srv := httptest.NewServer(fleethttp.NewHandler(svc, nil))
	t.Cleanup(srv.Close)
	return &fixture{svc: svc, srv: srv}
}

func (f *fixture) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(&out)
	cmd.SetArgs(append([]string{"--server", f.srv.URL}, args...))
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	return out.String(), err
}

func (f *fixture) task(t *testing.T) string {
	t.Helper()
	task, err := f.svc.CreateTask(context.Background(), &service.CreateTaskRequest{
		Name:    "delivery",
		Actions: []model.Action{{Kind: "MOVE", Config: map[string]any{"location": "A1"}}},
	})
	require.NoError(t, err)
	return task.ID
}

func TestRunAndList(t *testing.T) {
	f := newFixture(t)
	taskID := f.task(t)

	out, err := f.run(t, "run", taskID, "-o", "json")
	require.NoError(t, err)
	var res map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	require.Equal(t, string(model.InstanceQueued), res["status"])
	require.NotEmpty(t, res["taskInstanceId"])

	out, err = f.run(t, "instances")
	require.NoError(t, err)
	require.Contains(t, out, res["taskInstanceId"])
	require.Contains(t, out, "delivery")
	require.Contains(t, out, "Queued")

	out, err = f.run(t, "tasks")
	require.NoError(t, err)
	require.Contains(t, out, taskID)

	out, err = f.run(t, "robots")
	require.NoError(t, err)
	require.Contains(t, out, "AMR-001")
	require.Contains(t, out, "Idle")
}

func TestStatusAndCommands(t *testing.T) {
	f := newFixture(t)
	ti, err := f.svc.Execute(context.Background(), f.task(t))
	require.NoError(t, err)

	out, err := f.run(t, "status", ti.ID)
	require.NoError(t, err)
	require.Contains(t, out, "Queued")
	require.Contains(t, out, "1/1")

	_, err = f.run(t, "pause", ti.ID)
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusConflict, apiErr.Code)

	out, err = f.run(t, "cancel", ti.ID)
	require.NoError(t, err)
	require.Contains(t, out, "Cancelled")

	_, err = f.run(t, "status", "missing")
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusNotFound, apiErr.Code)
}

func TestReconcileUnavailable(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "reconcile")
	var apiErr *apiError
	require.True(t, errors.As(err, &apiErr))
	require.Equal(t, http.StatusServiceUnavailable, apiErr.Code)
}

func TestOutputFormatValidated(t *testing.T) {
	f := newFixture(t)
	_, err := f.run(t, "robots", "-o", "yaml")
	require.ErrorContains(t, err, "unsupported output format")
}

func TestServerFromEnv(t *testing.T) {
	f := newFixture(t)
	t.Setenv("AMRFLEETCTL_SERVER", f.srv.URL)

	var out bytes.Buffer
	cmd := NewRootCommand(&out)
	cmd.SetArgs([]string{"robots"})
	require.NoError(t, cmd.Execute())
	require.Contains(t, out.String(), "AMR-001")
}

func TestCommandsOverGRPC(t *testing.T) {
	f := newFixture(t)
	ti, err := f.svc.Execute(context.Background(), f.task(t))
	require.NoError(t, err)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = fleetgrpc.NewServer(options.NewGrpcOptions(), f.svc).Serve(ctx, lis)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	out, err := f.run(t, "--grpc-addr", lis.Addr().String(), "status", ti.ID, "-o", "json")
	require.NoError(t, err)
	var report model.StatusReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	require.Equal(t, model.InstanceQueued, report.Status)
	require.Equal(t, 1, report.TotalActions)

	out, err = f.run(t, "--grpc-addr", lis.Addr().String(), "stop", ti.ID)
	require.NoError(t, err)
	require.Contains(t, out, "Stopped")
}

func TestProgress(t *testing.T) {
	require.Equal(t, "0/0", progress(0, 0))
	require.Equal(t, "2/3", progress(1, 3))
}
