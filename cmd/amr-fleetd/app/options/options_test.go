package options

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, args ...string) *FleetdOptions {
	t.Helper()
	o := NewFleetdOptions()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	for _, f := range o.Flags().FlagSets {
		fs.AddFlagSet(f)
	}
	require.NoError(t, fs.Parse(args))
	return o
}

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, NewFleetdOptions().Validate())
}

func TestValidateAggregatesErrors(t *testing.T) {
	o := parse(t, "--store.driver=etcd", "--scheduler.interval=0s")
	err := o.Validate()
	require.ErrorContains(t, err, "--store.driver")
	require.ErrorContains(t, err, "--scheduler.interval")
}

func TestS3CheckedOnlyWithArchive(t *testing.T) {
	require.NoError(t, parse(t, "--s3.bucket-name=").Validate())
	require.ErrorContains(t, parse(t, "--s3.bucket-name=", "--archive.enabled").Validate(), "--s3.bucket-name")
}

func TestConfig(t *testing.T) {
	o := parse(t, "--fleet.robots=R1,R2,R3", "--store.driver=sqlite", "--store.path=/tmp/fleet.db")
	cfg, err := o.Config()
	require.NoError(t, err)
	require.Equal(t, []string{"R1", "R2", "R3"}, cfg.FleetOptions.Robots)
	require.Equal(t, "sqlite", cfg.StoreOptions.Driver)
	require.Same(t, o.HttpOptions, cfg.HttpOptions)
}
