package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*SchedulerOptions)(nil)

// SchedulerOptions controls the periodic reconciliation tick.
type SchedulerOptions struct {
	// Enabled starts the periodic trigger. Ticks can still be requested on
	// demand when disabled.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	// Interval between two periodic ticks.
	Interval time.Duration `json:"interval" mapstructure:"interval"`
}

func NewSchedulerOptions() *SchedulerOptions {
	return &SchedulerOptions{
		Enabled:  true,
		Interval: time.Minute,
	}
}

func (o *SchedulerOptions) Validate() []error {
	var errs []error
	if o.Interval <= 0 {
		errs = append(errs, fmt.Errorf("--scheduler.interval must be positive, got %s", o.Interval))
	}
	return errs
}

func (o *SchedulerOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "scheduler.enabled", o.Enabled, "Run the periodic reconciliation tick.")
	fs.DurationVar(&o.Interval, "scheduler.interval", o.Interval, "Interval between reconciliation ticks.")
}
