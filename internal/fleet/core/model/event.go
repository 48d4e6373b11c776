package model

import "time"

// TransitionEvent describes one applied TaskInstance status change. It is
// emitted after the store accepted the change.
type TransitionEvent struct {
	InstanceID         string
	TaskID             string
	TaskName           string
	From               InstanceStatus
	To                 InstanceStatus
	CurrentActionIndex int
	TotalActions       int

	// RobotName is the robot holding the instance, or the robot that was
	// released by this transition.
	RobotName string

	// Sequence is set on assignment so the robot can be given its commands.
	Sequence []Command

	At time.Time
}
