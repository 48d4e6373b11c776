package fleet

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autopeer-io/amrfleet/pkg/options"
)

func testConfig() *Config {
	cfg := &Config{
		HttpOptions:      options.NewHttpOptions(),
		GrpcOptions:      options.NewGrpcOptions(),
		MqttOptions:      options.NewMqttOptions(),
		S3Options:        options.NewS3Options(),
		SchedulerOptions: options.NewSchedulerOptions(),
		StoreOptions:     options.NewStoreOptions(),
		FleetOptions:     options.NewFleetOptions(),
		ArchiveOptions:   options.NewArchiveOptions(),
	}
	cfg.HttpOptions.Addr = "127.0.0.1:0"
	cfg.GrpcOptions.Addr = "127.0.0.1:0"
	cfg.SchedulerOptions.Interval = time.Hour
	return cfg
}

func TestFleetServerRun(t *testing.T) {
	fs, err := testConfig().NewFleetServer(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- fs.Run(ctx) }()

	require.Eventually(t, func() bool {
		robots, err := fs.svc.ListRobots(context.Background())
		return err == nil && len(robots) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("fleet server did not stop")
	}
}

func TestInitializeStore(t *testing.T) {
	ctx := context.Background()

	repo, err := InitializeStore(ctx, &options.StoreOptions{Driver: options.StoreDriverMemory})
	require.NoError(t, err)
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())

	repo, err = InitializeStore(ctx, &options.StoreOptions{
		Driver: options.StoreDriverSQLite,
		Path:   filepath.Join(t.TempDir(), "fleet.db"),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Ping(ctx))
	require.NoError(t, repo.Close())

	_, err = InitializeStore(ctx, &options.StoreOptions{Driver: "etcd"})
	require.ErrorContains(t, err, "unknown store driver")
}
