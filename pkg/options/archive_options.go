package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*ArchiveOptions)(nil)

// ArchiveOptions controls periodic fleet snapshot exports to S3.
type ArchiveOptions struct {
	Enabled  bool          `json:"enabled" mapstructure:"enabled"`
	Interval time.Duration `json:"interval" mapstructure:"interval"`
	Prefix   string        `json:"prefix" mapstructure:"prefix"`
}

func NewArchiveOptions() *ArchiveOptions {
	return &ArchiveOptions{
		Enabled:  false,
		Interval: 15 * time.Minute,
		Prefix:   "snapshots",
	}
}

func (o *ArchiveOptions) Validate() []error {
	if !o.Enabled {
		return nil
	}

	var errs []error
	if o.Interval < time.Second {
		errs = append(errs, fmt.Errorf("--archive.interval must be at least 1s, got %s", o.Interval))
	}
	return errs
}

func (o *ArchiveOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "archive.enabled", o.Enabled, "Export periodic fleet snapshots to S3.")
	fs.DurationVar(&o.Interval, "archive.interval", o.Interval, "Interval between snapshot exports.")
	fs.StringVar(&o.Prefix, "archive.prefix", o.Prefix, "Object key prefix for snapshots.")
}
