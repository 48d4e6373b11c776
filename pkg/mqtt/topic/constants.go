package topic

// MQTT filter tokens.
const (
	// Wildcard matches exactly one level, e.g. "amr/v1/robot/+/fault".
	Wildcard = "+"

	// MultiWildcard matches the parent level and everything below it. It is
	// only valid as the last level of a filter, e.g. "amr/v1/#".
	MultiWildcard = "#"

	// SharePrefix marks a shared subscription: $share/<group>/<filter>.
	SharePrefix = "$share/"
)
