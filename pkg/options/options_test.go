package options

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	require.NoError(t, ValidateAddress("0.0.0.0:5050"))
	require.NoError(t, ValidateAddress(":8091"))
	require.Error(t, ValidateAddress("5050"))
	require.Error(t, ValidateAddress("127.0.0.1:http"))
	require.Error(t, ValidateAddress("127.0.0.1:70000"))
}

func TestDefaultsValidate(t *testing.T) {
	all := []IOptions{
		NewHttpOptions(),
		NewGrpcOptions(),
		NewMqttOptions(),
		NewS3Options(),
		NewSchedulerOptions(),
		NewStoreOptions(),
		NewFleetOptions(),
		NewArchiveOptions(),
	}
	for _, o := range all {
		require.Empty(t, o.Validate(), "%T", o)
	}
}

func TestFlagsOverrideDefaults(t *testing.T) {
	sched := NewSchedulerOptions()
	store := NewStoreOptions()
	fleet := NewFleetOptions()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	sched.AddFlags(fs)
	store.AddFlags(fs)
	fleet.AddFlags(fs)

	require.NoError(t, fs.Parse([]string{
		"--scheduler.interval=5s",
		"--store.driver=sqlite",
		"--store.path=/tmp/fleet.db",
		"--fleet.robots=AMR-010,AMR-011,AMR-012",
	}))

	require.Equal(t, 5*time.Second, sched.Interval)
	require.Equal(t, StoreDriverSQLite, store.Driver)
	require.Equal(t, "/tmp/fleet.db", store.Path)
	require.Equal(t, []string{"AMR-010", "AMR-011", "AMR-012"}, fleet.Robots)
}

func TestValidateRejects(t *testing.T) {
	require.NotEmpty(t, (&SchedulerOptions{Interval: 0}).Validate())
	require.NotEmpty(t, (&StoreOptions{Driver: "postgres"}).Validate())
	require.NotEmpty(t, (&StoreOptions{Driver: StoreDriverSQLite}).Validate())
	require.Len(t, (&FleetOptions{Robots: []string{"A", "", "A"}}).Validate(), 2)
	require.NotEmpty(t, (&ArchiveOptions{Enabled: true, Interval: time.Millisecond}).Validate())

	m := NewMqttOptions()
	m.Enabled = true
	m.QoS = 3
	m.Broker = "ftp://broker"
	require.Len(t, m.Validate(), 2)

	g := NewGrpcOptions()
	g.Addr = "nope"
	require.NotEmpty(t, g.Validate())
	g.Enabled = false
	require.Empty(t, g.Validate())
}

func TestMqttClientConfigCarriesWill(t *testing.T) {
	o := NewMqttOptions()
	o.TopicRoot = "plant/amr"
	cfg := o.ToClientConfig()
	require.Equal(t, "plant/amr/fleetd/presence", cfg.WillTopic)
	require.True(t, cfg.WillRetain)
	require.EqualValues(t, 60, cfg.KeepAlive)
}
