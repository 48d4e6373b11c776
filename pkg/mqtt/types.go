package mqtt

import (
	"context"
)

// MessageHandler processes a message received on a subscribed topic.
type MessageHandler func(ctx context.Context, topic string, payload []byte)

// Publisher is the publish half of Client. Components that only emit
// messages depend on this.
type Publisher interface {
	// Publish sends a message to the specified topic.
	Publish(ctx context.Context, topic string, qos int, retain bool, payload []byte) error
}

// Subscriber is the subscribe half of Client.
type Subscriber interface {
	// Subscribe registers a handler for a topic filter. Subscriptions are
	// restored automatically after a reconnect.
	Subscribe(ctx context.Context, topic string, qos int, handler MessageHandler) error

	// Unsubscribe removes the handler and sends an UNSUBSCRIBE packet.
	Unsubscribe(ctx context.Context, topic string) error
}

// Client defines the interface for a generic MQTT client.
type Client interface {
	Publisher
	Subscriber

	// Start initiates the connection to the broker.
	// It is non-blocking and returns immediately. Use AwaitConnection to wait.
	Start(ctx context.Context) error

	// Disconnect cleanly closes the connection.
	Disconnect(ctx context.Context)

	// AwaitConnection blocks until the client is connected to the broker.
	AwaitConnection(ctx context.Context) error

	// IsConnected returns true if the client is currently connected.
	IsConnected() bool
}
