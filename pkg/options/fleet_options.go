package options

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
)

var _ IOptions = (*FleetOptions)(nil)

// FleetOptions lists the robots registered at startup.
type FleetOptions struct {
	Robots []string `json:"robots" mapstructure:"robots"`
}

func NewFleetOptions() *FleetOptions {
	return &FleetOptions{
		Robots: []string{"AMR-001", "AMR-002"},
	}
}

func (o *FleetOptions) Validate() []error {
	var errs []error

	seen := make(map[string]struct{}, len(o.Robots))
	for _, name := range o.Robots {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, fmt.Errorf("--fleet.robots contains an empty name"))
			continue
		}
		if _, dup := seen[name]; dup {
			errs = append(errs, fmt.Errorf("--fleet.robots contains %q twice", name))
		}
		seen[name] = struct{}{}
	}

	return errs
}

func (o *FleetOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringSliceVar(&o.Robots, "fleet.robots", o.Robots, "Robots created Idle at startup when absent.")
}
