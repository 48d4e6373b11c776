package mqtt

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	clocktesting "k8s.io/utils/clock/testing"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
	"github.com/autopeer-io/amrfleet/internal/fleet/store/memory"
	pkgmqtt "github.com/autopeer-io/amrfleet/pkg/mqtt"
	"github.com/autopeer-io/amrfleet/pkg/mqtt/topic"
)

type fakeClient struct {
	mu        sync.Mutex
	handlers  map[string]pkgmqtt.MessageHandler
	published map[string][]byte
	subbed    chan struct{}

	disconnected bool
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		handlers:  map[string]pkgmqtt.MessageHandler{},
		published: map[string][]byte{},
		subbed:    make(chan struct{}),
	}
}

func (c *fakeClient) Start(context.Context) error           { return nil }
func (c *fakeClient) AwaitConnection(context.Context) error { return nil }
func (c *fakeClient) IsConnected() bool                     { return true }

func (c *fakeClient) Disconnect(context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func (c *fakeClient) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *fakeClient) Publish(_ context.Context, t string, _ int, _ bool, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[t] = payload
	return nil
}

func (c *fakeClient) Subscribe(_ context.Context, t string, _ int, h pkgmqtt.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[t] = h
	close(c.subbed)
	return nil
}

func (c *fakeClient) Unsubscribe(_ context.Context, t string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.handlers, t)
	return nil
}

func (c *fakeClient) handler(t string) pkgmqtt.MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers[t]
}

type fixture struct {
	repo   *memory.Store
	svc    *service.Service
	topics *topic.TopicBuilder
	server *Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := memory.New()
	svc := service.New(repo, nil, clocktesting.NewFakeClock(time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)))
	_, err := svc.EnsureRobots(context.Background(), []string{"AMR-001"})
	require.NoError(t, err)
	topics := topic.NewTopicBuilder("amr/v1")
	return &fixture{repo: repo, svc: svc, topics: topics, server: NewServer(newFakeClient(), topics, svc, 1)}
}

func (f *fixture) running(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	task, err := f.svc.CreateTask(ctx, &service.CreateTaskRequest{Name: "t", Actions: []model.Action{{Kind: "LATCH"}}})
	require.NoError(t, err)
	inst, err := f.svc.Execute(ctx, task.ID)
	require.NoError(t, err)
	robots, err := f.svc.ListRobots(ctx)
	require.NoError(t, err)
	require.NoError(t, f.repo.Assignment().Assign(ctx, robots[0].ID, inst.ID, time.Now()))
	return inst.ID
}

func TestStartSubscribesAndAnnounces(t *testing.T) {
	f := newFixture(t)
	client := f.server.client.(*fakeClient)
	id := f.running(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Start(ctx) }()

	select {
	case <-client.subbed:
	case <-time.After(time.Second):
		t.Fatal("fault topic was not subscribed")
	}

	client.mu.Lock()
	require.Equal(t, "online", string(client.published["amr/v1/fleetd/presence"]))
	client.mu.Unlock()

	h := client.handler("amr/v1/robot/+/fault")
	require.NotNil(t, h)
	h(context.Background(), "amr/v1/robot/AMR-001/fault", []byte(`{"taskInstanceId":"`+id+`","reason":"bumper"}`))

	inst, err := f.repo.Instance().Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, model.InstanceFailed, inst.Status)

	cancel()
	require.NoError(t, <-done)
}

func TestHandleFault(t *testing.T) {
	f := newFixture(t)
	id := f.running(t)
	handler := ProtoAdapter(f.server.handleFault)
	ctx := context.Background()

	err := handler(ctx, "amr/v1/robot/AMR-001/fault", []byte(`not json`))
	require.ErrorContains(t, err, "unmarshal")

	err = handler(ctx, "amr/v1/robot/AMR-001/status", []byte(`{}`))
	require.Error(t, err)

	err = handler(ctx, "amr/v1/robot/AMR-404/fault", []byte(`{"reason":"lost"}`))
	require.ErrorIs(t, err, core.ErrNotFound)

	// No instance named: the robot's current assignment fails.
	require.NoError(t, handler(ctx, "amr/v1/robot/AMR-001/fault", []byte(`{"reason":"e-stop","extra":1}`)))
	inst, err := f.repo.Instance().Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.InstanceFailed, inst.Status)

	err = handler(ctx, "amr/v1/robot/AMR-001/fault", []byte(`{"taskInstanceId":"`+id+`"}`))
	require.ErrorIs(t, err, core.ErrInvalidState)
}

func TestDisconnectWaitsForDispatcherDrain(t *testing.T) {
	f := newFixture(t)
	client := f.server.client.(*fakeClient)
	drained := make(chan struct{})
	f.server.DisconnectAfter(drained)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Start(ctx) }()
	<-client.subbed

	cancel()
	select {
	case <-done:
		t.Fatal("server stopped before the dispatcher drained")
	case <-time.After(50 * time.Millisecond):
	}
	require.False(t, client.isDisconnected())

	close(drained)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server did not stop after drain")
	}
	require.True(t, client.isDisconnected())
}

func TestDisconnectWaitIsBounded(t *testing.T) {
	f := newFixture(t)
	client := f.server.client.(*fakeClient)
	f.server.DisconnectAfter(make(chan struct{}))
	f.server.disconnectWait = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.server.Start(ctx) }()
	<-client.subbed
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("server waited past the disconnect bound")
	}
	require.True(t, client.isDisconnected())
}
