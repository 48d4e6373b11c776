package model

import "time"

// InstanceStatus is the lifecycle phase of a TaskInstance.
type InstanceStatus string

const (
	InstanceQueued     InstanceStatus = "Queued"
	InstanceInProgress InstanceStatus = "InProgress"
	InstancePaused     InstanceStatus = "Paused"
	InstanceCompleted  InstanceStatus = "Completed"
	InstanceCancelled  InstanceStatus = "Cancelled"
	InstanceStopped    InstanceStatus = "Stopped"
	InstanceFailed     InstanceStatus = "Failed"
)

// AllInstanceStatuses lists every status in lifecycle order.
var AllInstanceStatuses = []InstanceStatus{
	InstanceQueued, InstanceInProgress, InstancePaused,
	InstanceCompleted, InstanceCancelled, InstanceStopped, InstanceFailed,
}

// Terminal reports whether no further transition is possible.
func (s InstanceStatus) Terminal() bool {
	switch s {
	case InstanceCompleted, InstanceCancelled, InstanceStopped, InstanceFailed:
		return true
	}
	return false
}

// Assigned reports whether an instance in this status holds a robot.
func (s InstanceStatus) Assigned() bool {
	return s == InstanceInProgress || s == InstancePaused
}

// Valid reports whether s is a known status.
func (s InstanceStatus) Valid() bool {
	for _, v := range AllInstanceStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Command is one translated, fixed-shape record of the execution surface:
// the command name followed by its positional arguments.
type Command []any

// Name returns the command name, or "" for an empty record.
func (c Command) Name() string {
	if len(c) == 0 {
		return ""
	}
	name, _ := c[0].(string)
	return name
}

// TaskInstance is one runnable execution of a TaskDefinition.
type TaskInstance struct {
	ID       string `json:"id"`
	TaskID   string `json:"taskId"`
	TaskName string `json:"taskName"`

	Status InstanceStatus `json:"status"`

	// CurrentActionIndex is zero-based and never decreases.
	CurrentActionIndex int `json:"currentActionIndex"`

	// Actions is a copy of the definition's actions taken at creation time.
	Actions []Action `json:"actions"`

	// Sequence is the translated command list, one entry per action.
	Sequence []Command `json:"sequence"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TotalActions returns len(Actions).
func (t *TaskInstance) TotalActions() int { return len(t.Actions) }

// AtLastAction reports whether the current index has reached the final action.
func (t *TaskInstance) AtLastAction() bool {
	return t.CurrentActionIndex >= len(t.Actions)-1
}

// Clone returns a copy that shares nothing mutable with t.
func (t *TaskInstance) Clone() *TaskInstance {
	if t == nil {
		return nil
	}
	c := *t
	c.Actions = CloneActions(t.Actions)
	if t.Sequence != nil {
		c.Sequence = make([]Command, len(t.Sequence))
		for i, cmd := range t.Sequence {
			c.Sequence[i] = append(Command(nil), cmd...)
		}
	}
	return &c
}

// StatusReport is the answer to a status query.
type StatusReport struct {
	TaskInstanceID     string         `json:"taskInstanceId"`
	Status             InstanceStatus `json:"status"`
	CurrentActionIndex int            `json:"currentActionIndex"`
	TotalActions       int            `json:"totalActions"`
	CreatedAt          *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt          *time.Time     `json:"updatedAt,omitempty"`
	RobotName          string         `json:"robotName,omitempty"`
}
