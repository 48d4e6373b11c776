package app

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	grpcgw "github.com/autopeer-io/amrfleet/internal/fleet/server/grpc"
	grpcmw "github.com/autopeer-io/amrfleet/internal/pkg/middleware/grpc"
)

type grpcClient struct {
	conn   *grpc.ClientConn
	client *grpcgw.Client
}

var _ gateway = (*grpcClient)(nil)

func dialGRPC(addr string) (*grpcClient, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(grpcmw.UnaryTimeoutInterceptor),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	return &grpcClient{conn: conn, client: grpcgw.NewClient(conn)}, nil
}

func (c *grpcClient) Close() error { return c.conn.Close() }

func (c *grpcClient) Command(ctx context.Context, op, instanceID string) (model.InstanceStatus, error) {
	calls := map[string]func(context.Context, string) (*structpb.Struct, error){
		"pause":  c.client.Pause,
		"resume": c.client.Resume,
		"cancel": c.client.Cancel,
		"stop":   c.client.Stop,
	}
	call, ok := calls[op]
	if !ok {
		return "", fmt.Errorf("unknown command %q", op)
	}
	out, err := call(ctx, instanceID)
	if err != nil {
		return "", err
	}
	return model.InstanceStatus(out.GetFields()["status"].GetStringValue()), nil
}

func (c *grpcClient) Status(ctx context.Context, instanceID string) (*model.StatusReport, error) {
	out, err := c.client.QueryStatus(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	f := out.GetFields()
	report := &model.StatusReport{
		TaskInstanceID:     f["taskInstanceId"].GetStringValue(),
		Status:             model.InstanceStatus(f["status"].GetStringValue()),
		CurrentActionIndex: int(f["currentActionIndex"].GetNumberValue()),
		TotalActions:       int(f["totalActions"].GetNumberValue()),
		RobotName:          f["robotName"].GetStringValue(),
	}
	for key, dst := range map[string]**time.Time{"createdAt": &report.CreatedAt, "updatedAt": &report.UpdatedAt} {
		if t, err := time.Parse(time.RFC3339Nano, f[key].GetStringValue()); err == nil {
			*dst = &t
		}
	}
	return report, nil
}
