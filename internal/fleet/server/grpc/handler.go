package grpc

import (
	"context"
	"errors"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/amrfleet/internal/fleet/core"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/internal/fleet/core/service"
)

const fieldInstanceID = "taskInstanceId"

type gatewayServer struct {
	svc *service.Service
}

var _ CommandGatewayServer = (*gatewayServer)(nil)

func (g *gatewayServer) Pause(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return g.command(ctx, in, g.svc.Pause)
}

func (g *gatewayServer) Resume(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return g.command(ctx, in, g.svc.Resume)
}

func (g *gatewayServer) Cancel(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return g.command(ctx, in, g.svc.Cancel)
}

func (g *gatewayServer) Stop(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	return g.command(ctx, in, g.svc.Stop)
}

func (g *gatewayServer) QueryStatus(ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
	id, err := instanceID(in)
	if err != nil {
		return nil, err
	}
	report, err := g.svc.QueryStatus(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}

	fields := map[string]any{
		fieldInstanceID:      report.TaskInstanceID,
		"status":             string(report.Status),
		"currentActionIndex": report.CurrentActionIndex,
		"totalActions":       report.TotalActions,
	}
	if report.CreatedAt != nil {
		fields["createdAt"] = report.CreatedAt.UTC().Format(time.RFC3339Nano)
	}
	if report.UpdatedAt != nil {
		fields["updatedAt"] = report.UpdatedAt.UTC().Format(time.RFC3339Nano)
	}
	if report.RobotName != "" {
		fields["robotName"] = report.RobotName
	}
	return newStruct(fields)
}

func (g *gatewayServer) command(ctx context.Context, in *structpb.Struct, op func(context.Context, string) (model.InstanceStatus, error)) (*structpb.Struct, error) {
	id, err := instanceID(in)
	if err != nil {
		return nil, err
	}
	st, err := op(ctx, id)
	if err != nil {
		return nil, toStatus(err)
	}
	return newStruct(map[string]any{fieldInstanceID: id, "status": string(st)})
}

func instanceID(in *structpb.Struct) (string, error) {
	v, ok := in.GetFields()[fieldInstanceID]
	if !ok || v.GetStringValue() == "" {
		return "", status.Errorf(codes.InvalidArgument, "%s is required", fieldInstanceID)
	}
	return v.GetStringValue(), nil
}

func newStruct(fields map[string]any) (*structpb.Struct, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	return s, nil
}

// toStatus maps a fleet error to a gRPC status.
func toStatus(err error) error {
	code := codes.Internal
	switch {
	case errors.Is(err, core.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, core.ErrInvalidArgument):
		code = codes.InvalidArgument
	case errors.Is(err, core.ErrInvalidState):
		code = codes.FailedPrecondition
	case errors.Is(err, core.ErrConflict):
		code = codes.Aborted
	case errors.Is(err, core.ErrStoreUnavailable):
		code = codes.Unavailable
	}
	return status.Error(code, err.Error())
}
