package notifier

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/autopeer-io/amrfleet/internal/fleet/core/model"
)

// Dispatch payload constants expected by the robots.
const (
	timeDependant   = "0"
	sequenceVersion = "1"
)

// StatusPayload encodes the status message published for every transition.
func StatusPayload(evt *model.TransitionEvent) ([]byte, error) {
	fields := map[string]any{
		"taskInstanceId":     evt.InstanceID,
		"status":             string(evt.To),
		"currentActionIndex": evt.CurrentActionIndex,
		"totalActions":       evt.TotalActions,
		"at":                 evt.At.UTC().Format(time.RFC3339Nano),
	}
	if evt.RobotName != "" {
		fields["robotName"] = evt.RobotName
	}
	return encode(fields)
}

// SequencePayload encodes the command sequence sent to a robot on assignment.
func SequencePayload(evt *model.TransitionEvent) ([]byte, error) {
	sequence := make([]any, 0, len(evt.Sequence))
	for _, cmd := range evt.Sequence {
		sequence = append(sequence, []any(cmd))
	}
	return encode(map[string]any{
		"sequence":           sequence,
		"task_instance_id":   evt.InstanceID,
		"task_id":            evt.TaskID,
		"task_name":          evt.TaskName,
		"time_of_assignment": evt.At.UTC().Format(time.RFC3339),
		"time_dependant":     timeDependant,
		"version":            sequenceVersion,
	})
}

func encode(fields map[string]any) ([]byte, error) {
	s, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("failed to build payload: %w", err)
	}
	return protojson.Marshal(s)
}
