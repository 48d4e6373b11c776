package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"

	"github.com/autopeer-io/amrfleet/pkg/mqtt"
	"github.com/autopeer-io/amrfleet/pkg/mqtt/topic"
)

var _ IOptions = (*MqttOptions)(nil)

// MqttOptions configures the broker connection used for dispatch and fault ingress.
type MqttOptions struct {
	// Enabled turns on dispatch publishing and fault ingress. When false a
	// no-op notifier is used.
	Enabled bool `json:"enabled" mapstructure:"enabled"`

	Broker   string `json:"broker" mapstructure:"broker"`
	Username string `json:"username" mapstructure:"username"`
	Password string `json:"password" mapstructure:"password"`
	ClientID string `json:"client-id" mapstructure:"client-id"`

	KeepAlive      time.Duration `json:"keep-alive" mapstructure:"keep-alive"`
	ConnectTimeout time.Duration `json:"connect-timeout" mapstructure:"connect-timeout"`
	SessionExpiry  uint32        `json:"session-expiry" mapstructure:"session-expiry"`
	CleanStart     bool          `json:"clean-start" mapstructure:"clean-start"`

	// InsecureSkipVerify skips broker certificate verification. Testing only.
	InsecureSkipVerify bool `json:"insecure-skip-verify" mapstructure:"insecure-skip-verify"`

	// QoS used for dispatch publishes and the fault subscription.
	QoS int `json:"qos" mapstructure:"qos"`

	// TopicRoot prefixes every fleet topic: {TopicRoot}/robot/..., {TopicRoot}/instance/...
	TopicRoot string `json:"topic-root" mapstructure:"topic-root"`
}

// NewMqttOptions creates a new MqttOptions with default values.
func NewMqttOptions() *MqttOptions {
	return &MqttOptions{
		Enabled:        false,
		Broker:         "tcp://localhost:1883",
		ClientID:       "amr-fleetd",
		KeepAlive:      60 * time.Second,
		ConnectTimeout: 5 * time.Second,
		SessionExpiry:  60,
		CleanStart:     true,
		QoS:            1,
		TopicRoot:      "amr/v1",
	}
}

// Validate is used to parse and validate the parameters entered by the user at
// the command line when the program starts.
func (o *MqttOptions) Validate() []error {
	if o == nil || !o.Enabled {
		return nil
	}

	errors := []error{}

	if err := o.ToClientConfig().Validate(); err != nil {
		errors = append(errors, fmt.Errorf("--mqtt.broker: %w", err))
	}
	if o.QoS < 0 || o.QoS > 2 {
		errors = append(errors, fmt.Errorf("--mqtt.qos must be 0, 1 or 2, got %d", o.QoS))
	}
	if o.TopicRoot == "" {
		errors = append(errors, fmt.Errorf("--mqtt.topic-root must not be empty"))
	}

	return errors
}

// AddFlags adds flags for MqttOptions to the specified FlagSet.
func (o *MqttOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.BoolVar(&o.Enabled, "mqtt.enabled", o.Enabled, "Publish dispatch notifications and accept robot fault reports over MQTT.")
	fs.StringVar(&o.Broker, "mqtt.broker", o.Broker, "The URL of the MQTT broker.")
	fs.StringVar(&o.Username, "mqtt.username", o.Username, "The username for MQTT authentication.")
	fs.StringVar(&o.Password, "mqtt.password", o.Password, "The password for MQTT authentication.")
	fs.StringVar(&o.ClientID, "mqtt.client-id", o.ClientID, "MQTT client identifier.")

	fs.DurationVar(&o.KeepAlive, "mqtt.keep-alive", o.KeepAlive, "MQTT keep alive interval.")
	fs.DurationVar(&o.ConnectTimeout, "mqtt.connect-timeout", o.ConnectTimeout, "Timeout for establishing the MQTT connection.")
	fs.Uint32Var(&o.SessionExpiry, "mqtt.session-expiry", o.SessionExpiry, "MQTT session expiry interval in seconds.")
	fs.BoolVar(&o.CleanStart, "mqtt.clean-start", o.CleanStart, "Start a clean MQTT session on the first connection.")
	fs.BoolVar(&o.InsecureSkipVerify, "mqtt.insecure-skip-verify", o.InsecureSkipVerify, "If true, skips the TLS certificate verification.")
	fs.IntVar(&o.QoS, "mqtt.qos", o.QoS, "QoS for dispatch publishes and fault subscriptions.")

	fs.StringVar(&o.TopicRoot, "mqtt.topic-root", o.TopicRoot, "Root namespace of all fleet topics.")
}

// ToClientConfig converts the options into a client configuration. The
// daemon's presence topic doubles as the will topic.
func (o *MqttOptions) ToClientConfig() *mqtt.ClientConfig {
	return &mqtt.ClientConfig{
		BrokerURL:          o.Broker,
		Username:           o.Username,
		Password:           o.Password,
		ClientID:           o.ClientID,
		KeepAlive:          uint16(o.KeepAlive.Seconds()),
		SessionExpiry:      o.SessionExpiry,
		ConnectTimeout:     o.ConnectTimeout,
		CleanStart:         o.CleanStart,
		InsecureSkipVerify: o.InsecureSkipVerify,
		WillTopic:          topic.NewTopicBuilder(o.TopicRoot).Presence(),
		WillPayload:        []byte("offline"),
		WillQoS:            1,
		WillRetain:         true,
	}
}
