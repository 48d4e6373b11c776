package server

import (
	pkgmqtt "github.com/autopeer-io/amrfleet/pkg/mqtt"
	"github.com/autopeer-io/amrfleet/pkg/mqtt/topic"
	"github.com/autopeer-io/amrfleet/pkg/options"
)

type Config struct {
	HttpOptions *options.HttpOptions
	GrpcOptions *options.GrpcOptions
	MqttOptions *options.MqttOptions

	// MQTTClient is nil when MQTT is disabled; no ingress is started then.
	MQTTClient pkgmqtt.Client
	Topics     *topic.TopicBuilder

	// DispatchDone, when set, is closed after the dispatcher has flushed.
	// The MQTT server keeps the shared connection open until then.
	DispatchDone <-chan struct{}
}
