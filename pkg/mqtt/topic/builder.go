package topic

import (
	"fmt"
	"strings"
)

// Topic segments shared by the fleet daemon and the robots.
// Changing these values breaks compatibility with deployed robots.
const (
	// SegmentRobot groups per-robot topics: {root}/robot/{robotName}/...
	SegmentRobot = "robot"

	// SegmentInstance groups per-instance topics: {root}/instance/{instanceID}/...
	SegmentInstance = "instance"

	// SuffixSequence carries a dispatched command sequence (daemon -> robot).
	SuffixSequence = "sequence"

	// SuffixFault carries a fault report (robot -> daemon).
	SuffixFault = "fault"

	// SuffixStatus carries an instance status change (daemon -> observers).
	SuffixStatus = "status"

	// SuffixPresence carries the daemon online/offline state; used as the will topic.
	SuffixPresence = "fleetd/presence"
)

// TopicBuilder constructs MQTT topic strings under a common root.
type TopicBuilder struct {
	// root is the base namespace for all topics, e.g. "amr/v1".
	root string
}

// NewTopicBuilder creates a TopicBuilder for the given root namespace.
func NewTopicBuilder(root string) *TopicBuilder {
	return &TopicBuilder{root: strings.TrimSuffix(root, "/")}
}

// Root returns the namespace the builder was created with.
func (b *TopicBuilder) Root() string { return b.root }

// RobotSequence is where the command sequence for robotName is published.
func (b *TopicBuilder) RobotSequence(robotName string) string {
	return b.join(SegmentRobot, robotName, SuffixSequence)
}

// RobotFault is where robotName reports faults.
func (b *TopicBuilder) RobotFault(robotName string) string {
	return b.join(SegmentRobot, robotName, SuffixFault)
}

// RobotFaultWildcard subscribes to fault reports from every robot.
// Result: {root}/robot/+/fault
func (b *TopicBuilder) RobotFaultWildcard() string {
	return b.RobotFault(Wildcard)
}

// InstanceStatus is where status changes of an instance are published.
func (b *TopicBuilder) InstanceStatus(instanceID string) string {
	return b.join(SegmentInstance, instanceID, SuffixStatus)
}

// Presence is the retained daemon presence topic.
func (b *TopicBuilder) Presence() string {
	return b.join(SuffixPresence)
}

// RobotFromFault extracts the robot name from a concrete fault topic.
func (b *TopicBuilder) RobotFromFault(topic string) (string, error) {
	prefix := b.join(SegmentRobot) + "/"
	suffix := "/" + SuffixFault
	if !strings.HasPrefix(topic, prefix) || !strings.HasSuffix(topic, suffix) {
		return "", fmt.Errorf("topic %q is not a fault topic", topic)
	}
	name := strings.TrimSuffix(strings.TrimPrefix(topic, prefix), suffix)
	if name == "" || strings.Contains(name, "/") {
		return "", fmt.Errorf("topic %q has no robot segment", topic)
	}
	return name, nil
}

func (b *TopicBuilder) join(parts ...string) string {
	return b.root + "/" + strings.Join(parts, "/")
}
