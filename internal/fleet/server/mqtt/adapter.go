package mqtt

import (
	"context"
	"fmt"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// HandlerFunc handles a raw MQTT message.
type HandlerFunc func(ctx context.Context, topic string, payload []byte) error

// TypedHandlerFunc handles a decoded message.
type TypedHandlerFunc[T any, P interface {
	*T
	proto.Message
}] func(ctx context.Context, topic string, msg P) error

// ProtoAdapter decodes protojson payloads into P before calling handler.
// Unknown fields are ignored so robots can add fields without breaking us.
func ProtoAdapter[T any, P interface {
	*T
	proto.Message
}](handler TypedHandlerFunc[T, P]) HandlerFunc {
	return func(ctx context.Context, topic string, payload []byte) error {
		var msg P = new(T)

		unmarshaler := protojson.UnmarshalOptions{DiscardUnknown: true}
		if err := unmarshaler.Unmarshal(payload, msg); err != nil {
			return fmt.Errorf("proto unmarshal failed: %w", err)
		}

		return handler(ctx, topic, msg)
	}
}
