package model

// RobotStatus is the availability of a robot.
type RobotStatus string

const (
	RobotIdle RobotStatus = "Idle"
	RobotBusy RobotStatus = "Busy"
)

// Robot is one AMR of the fleet. AssignedInstanceID is set iff Status is Busy.
type Robot struct {
	ID                 string      `json:"id"`
	Name               string      `json:"name"`
	Status             RobotStatus `json:"status"`
	AssignedInstanceID string      `json:"assignedInstanceId,omitempty"`
}

// Clone returns a copy of r.
func (r *Robot) Clone() *Robot {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}
