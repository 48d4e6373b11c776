package options

import (
	"fmt"

	"github.com/spf13/pflag"
)

var _ IOptions = (*StoreOptions)(nil)

const (
	StoreDriverMemory = "memory"
	StoreDriverSQLite = "sqlite"
)

// StoreOptions selects the fleet state backend.
type StoreOptions struct {
	// Driver is either "memory" or "sqlite".
	Driver string `json:"driver" mapstructure:"driver"`

	// Path of the SQLite database file. Ignored by the memory driver.
	Path string `json:"path" mapstructure:"path"`
}

func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Driver: StoreDriverMemory,
		Path:   "amrfleet.db",
	}
}

func (o *StoreOptions) Validate() []error {
	var errs []error

	switch o.Driver {
	case StoreDriverMemory:
	case StoreDriverSQLite:
		if o.Path == "" {
			errs = append(errs, fmt.Errorf("--store.path is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("--store.driver must be %q or %q, got %q", StoreDriverMemory, StoreDriverSQLite, o.Driver))
	}

	return errs
}

func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, "store.driver", o.Driver, "Fleet state backend: memory or sqlite.")
	fs.StringVar(&o.Path, "store.path", o.Path, "SQLite database file.")
}
