package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
	cliflag "k8s.io/component-base/cli/flag"
)

type serverOptions struct {
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type testOptions struct {
	Server *serverOptions `mapstructure:"server"`
	Names  []string       `mapstructure:"names"`

	completed bool
}

func newTestOptions() *testOptions {
	return &testOptions{Server: &serverOptions{Addr: ":80", Timeout: time.Second}, Names: []string{"a"}}
}

func (o *testOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	fs := fss.FlagSet("server")
	fs.StringVar(&o.Server.Addr, "server.addr", o.Server.Addr, "address")
	fs.DurationVar(&o.Server.Timeout, "server.timeout", o.Server.Timeout, "timeout")
	fss.FlagSet("misc").StringSliceVar(&o.Names, "names", o.Names, "names")
	return fss
}

func (o *testOptions) Complete() error {
	o.completed = true
	return nil
}

func (o *testOptions) Validate() error {
	if o.Server.Addr == "" {
		return errors.New("--server.addr must not be empty")
	}
	return nil
}

func run(t *testing.T, opts *testOptions, args ...string) error {
	t.Helper()
	ran := false
	a := NewApp("test-app", "test", WithOptions(opts), WithDefaultValidArgs(), WithRunFunc(func() error {
		ran = true
		return nil
	}))
	a.Command().SetArgs(args)
	err := a.Command().Execute()
	if err == nil {
		require.True(t, ran)
	}
	return err
}

func TestDefaults(t *testing.T) {
	opts := newTestOptions()
	require.NoError(t, run(t, opts))
	require.Equal(t, ":80", opts.Server.Addr)
	require.Equal(t, time.Second, opts.Server.Timeout)
	require.True(t, opts.completed)
}

func TestFlagsWin(t *testing.T) {
	opts := newTestOptions()
	require.NoError(t, run(t, opts, "--server.addr=:8080", "--server.timeout=5s", "--names=x,y"))
	require.Equal(t, ":8080", opts.Server.Addr)
	require.Equal(t, 5*time.Second, opts.Server.Timeout)
	require.Equal(t, []string{"x", "y"}, opts.Names)
}

func TestConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n  timeout: 3s\n"), 0o600))
	t.Setenv("TEST_APP_SERVER_TIMEOUT", "7s")

	opts := newTestOptions()
	require.NoError(t, run(t, opts, "--config", path))
	require.Equal(t, ":9090", opts.Server.Addr)
	require.Equal(t, 7*time.Second, opts.Server.Timeout)
}

func TestValidationAndArgs(t *testing.T) {
	require.ErrorContains(t, run(t, newTestOptions(), "--server.addr="), "must not be empty")
	require.ErrorContains(t, run(t, newTestOptions(), "extra"), "does not take any arguments")
}

func TestMissingConfigFile(t *testing.T) {
	require.ErrorContains(t, run(t, newTestOptions(), "--config", filepath.Join(t.TempDir(), "nope.yaml")), "failed to read")
}

func TestConfigReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \":9090\"\n"), 0o600))

	reloaded := make(chan string, 4)
	opts := newTestOptions()
	a := NewApp("test-app", "test",
		WithOptions(opts),
		WithConfigReload(func(v *viper.Viper) {
			select {
			case reloaded <- v.GetString("server.addr"):
			default:
			}
		}),
		WithRunFunc(func() error {
			if err := os.WriteFile(path, []byte("server:\n  addr: \":9191\"\n"), 0o600); err != nil {
				return err
			}
			timeout := time.After(5 * time.Second)
			for {
				select {
				case addr := <-reloaded:
					if addr == ":9191" {
						return nil
					}
				case <-timeout:
					return errors.New("configuration change not observed")
				}
			}
		}),
	)
	a.Command().SetArgs([]string{"--config", path})
	require.NoError(t, a.Command().Execute())
	require.Equal(t, ":9090", opts.Server.Addr)
}
