package mqtt

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
	"github.com/autopeer-io/amrfleet/pkg/log"
	pkgmqtt "github.com/autopeer-io/amrfleet/pkg/mqtt"
	"github.com/autopeer-io/amrfleet/pkg/mqtt/topic"
)

const (
	presenceOnline = "online"

	// defaultDisconnectWait bounds how long Start waits for the dispatcher
	// to drain before disconnecting.
	defaultDisconnectWait = 10 * time.Second

	fieldInstanceID = "taskInstanceId"
	fieldReason     = "reason"
)

// FaultReporter fails the instance a robot reports a fault for.
type FaultReporter interface {
	ReportFault(ctx context.Context, robotName, instanceID, reason string) (model.InstanceStatus, error)
}

// Server implements the MQTT ingress layer. It owns the connection shared
// with the dispatcher.
type Server struct {
	client pkgmqtt.Client
	topics *topic.TopicBuilder
	svc    FaultReporter
	qos    int

	// drained is closed once the last publisher sharing client is done.
	drained        <-chan struct{}
	disconnectWait time.Duration
}

// NewServer creates a new MQTT server (client).
func NewServer(client pkgmqtt.Client, builder *topic.TopicBuilder, svc FaultReporter, qos int) *Server {
	return &Server{
		client:         client,
		topics:         builder,
		svc:            svc,
		qos:            qos,
		disconnectWait: defaultDisconnectWait,
	}
}

// DisconnectAfter delays the final disconnect until done is closed, so
// publishers sharing the connection can flush on shutdown.
func (s *Server) DisconnectAfter(done <-chan struct{}) {
	s.drained = done
}

// Start connects to the broker, announces presence and subscribes to robot
// fault reports.
func (s *Server) Start(ctx context.Context) error {
	if err := s.client.Start(ctx); err != nil {
		return err
	}

	defer func() {
		s.awaitDrain()
		log.Info("Disconnecting MQTT client")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.client.Disconnect(shutdownCtx)
		log.Info("MQTT client disconnected")
	}()

	log.Info("Waiting for MQTT connection")
	if err := s.client.AwaitConnection(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	log.Info("MQTT connected")

	if err := s.client.Publish(ctx, s.topics.Presence(), 1, true, []byte(presenceOnline)); err != nil {
		log.Warn("Failed to announce presence", "error", err.Error())
	}

	if err := s.subscribe(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	return nil
}

func (s *Server) awaitDrain() {
	if s.drained == nil {
		return
	}
	timer := time.NewTimer(s.disconnectWait)
	defer timer.Stop()
	select {
	case <-s.drained:
	case <-timer.C:
		log.Warn("Publishers still draining, disconnecting anyway", "waited", s.disconnectWait)
	}
}

func (s *Server) subscribe(ctx context.Context) error {
	subscriptions := map[string]HandlerFunc{
		s.topics.RobotFaultWildcard(): ProtoAdapter(s.handleFault),
	}

	for filter, handler := range subscriptions {
		if err := s.client.Subscribe(ctx, filter, s.qos, func(c context.Context, t string, p []byte) {
			if err := handler(c, t, p); err != nil {
				log.Error(err, "Handler execution failed", "topic", t)
			}
		}); err != nil {
			return fmt.Errorf("failed to subscribe to topic: %s, err: %w", filter, err)
		}
	}
	return nil
}

// handleFault fails the instance named in the report, or the robot's
// current assignment when the report names none.
func (s *Server) handleFault(ctx context.Context, t string, msg *structpb.Struct) error {
	robot, err := s.topics.RobotFromFault(t)
	if err != nil {
		return err
	}
	fields := msg.GetFields()
	instanceID := fields[fieldInstanceID].GetStringValue()
	reason := fields[fieldReason].GetStringValue()

	status, err := s.svc.ReportFault(ctx, robot, instanceID, reason)
	if err != nil {
		return fmt.Errorf("fault from %s not applied: %w", robot, err)
	}
	log.Info("Robot fault applied", "robot", robot, "status", status, "reason", reason)
	return nil
}
