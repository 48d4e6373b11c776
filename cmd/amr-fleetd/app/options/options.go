package options

import (
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	cliflag "k8s.io/component-base/cli/flag"

	"github.com/autopeer-io/amrfleet/internal/fleet"
	"github.com/autopeer-io/amrfleet/pkg/app"
	"github.com/autopeer-io/amrfleet/pkg/log"
	"github.com/autopeer-io/amrfleet/pkg/options"
)

type FleetdOptions struct {
	HttpOptions      *options.HttpOptions      `json:"http" mapstructure:"http"`
	GrpcOptions      *options.GrpcOptions      `json:"grpc" mapstructure:"grpc"`
	MqttOptions      *options.MqttOptions      `json:"mqtt" mapstructure:"mqtt"`
	S3Options        *options.S3Options        `json:"s3" mapstructure:"s3"`
	SchedulerOptions *options.SchedulerOptions `json:"scheduler" mapstructure:"scheduler"`
	StoreOptions     *options.StoreOptions     `json:"store" mapstructure:"store"`
	FleetOptions     *options.FleetOptions     `json:"fleet" mapstructure:"fleet"`
	ArchiveOptions   *options.ArchiveOptions   `json:"archive" mapstructure:"archive"`
	Log              *log.Options              `json:"log" mapstructure:"log"`
}

var _ app.NamedFlagSetOptions = (*FleetdOptions)(nil)

func NewFleetdOptions() *FleetdOptions {
	return &FleetdOptions{
		HttpOptions:      options.NewHttpOptions(),
		GrpcOptions:      options.NewGrpcOptions(),
		MqttOptions:      options.NewMqttOptions(),
		S3Options:        options.NewS3Options(),
		SchedulerOptions: options.NewSchedulerOptions(),
		StoreOptions:     options.NewStoreOptions(),
		FleetOptions:     options.NewFleetOptions(),
		ArchiveOptions:   options.NewArchiveOptions(),
		Log:              log.NewOptions(),
	}
}

func (o *FleetdOptions) Flags() cliflag.NamedFlagSets {
	fss := cliflag.NamedFlagSets{}
	o.HttpOptions.AddFlags(fss.FlagSet("http"))
	o.GrpcOptions.AddFlags(fss.FlagSet("grpc"))
	o.MqttOptions.AddFlags(fss.FlagSet("mqtt"))
	o.SchedulerOptions.AddFlags(fss.FlagSet("scheduler"))
	o.StoreOptions.AddFlags(fss.FlagSet("store"))
	o.FleetOptions.AddFlags(fss.FlagSet("fleet"))
	o.ArchiveOptions.AddFlags(fss.FlagSet("archive"))
	o.S3Options.AddFlags(fss.FlagSet("s3"))
	o.Log.AddFlags(fss.FlagSet("log"))
	return fss
}

func (o *FleetdOptions) Complete() error {
	return nil
}

func (o *FleetdOptions) Validate() error {
	errs := []error{}
	errs = append(errs, o.HttpOptions.Validate()...)
	errs = append(errs, o.GrpcOptions.Validate()...)
	errs = append(errs, o.MqttOptions.Validate()...)
	errs = append(errs, o.SchedulerOptions.Validate()...)
	errs = append(errs, o.StoreOptions.Validate()...)
	errs = append(errs, o.FleetOptions.Validate()...)
	errs = append(errs, o.ArchiveOptions.Validate()...)
	if o.ArchiveOptions.Enabled {
		errs = append(errs, o.S3Options.Validate()...)
	}
	errs = append(errs, o.Log.Validate()...)
	return utilerrors.NewAggregate(errs)
}

func (o *FleetdOptions) Config() (*fleet.Config, error) {
	return &fleet.Config{
		HttpOptions:      o.HttpOptions,
		GrpcOptions:      o.GrpcOptions,
		MqttOptions:      o.MqttOptions,
		S3Options:        o.S3Options,
		SchedulerOptions: o.SchedulerOptions,
		StoreOptions:     o.StoreOptions,
		FleetOptions:     o.FleetOptions,
		ArchiveOptions:   o.ArchiveOptions,
	}, nil
}
