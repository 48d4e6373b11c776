package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name of the gateway. The
// contract is api/proto/amrfleet/v1/gateway.proto; the descriptor below is
// kept in step with it by hand.
const ServiceName = "amrfleet.v1.CommandGateway"

// CommandGatewayServer is the server API of the gateway. Requests and
// responses are google.protobuf.Struct documents keyed like the HTTP API.
type CommandGatewayServer interface {
	Pause(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Resume(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Cancel(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Stop(context.Context, *structpb.Struct) (*structpb.Struct, error)
	QueryStatus(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(CommandGatewayServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call unaryCall) grpc.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + method
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CommandGatewayServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CommandGatewayServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var commandGatewayDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CommandGatewayServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Pause", CommandGatewayServer.Pause),
		unary("Resume", CommandGatewayServer.Resume),
		unary("Cancel", CommandGatewayServer.Cancel),
		unary("Stop", CommandGatewayServer.Stop),
		unary("QueryStatus", CommandGatewayServer.QueryStatus),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "amrfleet/v1/gateway.proto",
}

// RegisterCommandGatewayServer registers srv on s.
func RegisterCommandGatewayServer(s grpc.ServiceRegistrar, srv CommandGatewayServer) {
	s.RegisterService(&commandGatewayDesc, srv)
}

// Client calls the gateway over an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) Pause(ctx context.Context, instanceID string) (*structpb.Struct, error) {
	return c.invoke(ctx, "Pause", instanceID)
}

func (c *Client) Resume(ctx context.Context, instanceID string) (*structpb.Struct, error) {
	return c.invoke(ctx, "Resume", instanceID)
}

func (c *Client) Cancel(ctx context.Context, instanceID string) (*structpb.Struct, error) {
	return c.invoke(ctx, "Cancel", instanceID)
}

func (c *Client) Stop(ctx context.Context, instanceID string) (*structpb.Struct, error) {
	return c.invoke(ctx, "Stop", instanceID)
}

func (c *Client) QueryStatus(ctx context.Context, instanceID string) (*structpb.Struct, error) {
	return c.invoke(ctx, "QueryStatus", instanceID)
}

func (c *Client) invoke(ctx context.Context, method, instanceID string) (*structpb.Struct, error) {
	in := &structpb.Struct{Fields: map[string]*structpb.Value{
		fieldInstanceID: structpb.NewStringValue(instanceID),
	}}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
