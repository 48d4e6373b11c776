package model

import "time"

// Action is one abstract step of a task: a kind tag plus named parameters.
type Action struct {
	// Kind is the action tag, e.g. "MOVE", "LATCH", "WAIT FOR TRIGGER".
	Kind string `json:"type"`

	// Config holds the named parameters of the action.
	Config map[string]any `json:"config,omitempty"`
}

// TaskDefinition is the reusable, ordered list of actions an instance is
// derived from.
type TaskDefinition struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Actions     []Action  `json:"actions"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CloneActions returns a deep copy of actions so instances are not affected
// by later edits to a definition.
func CloneActions(actions []Action) []Action {
	if actions == nil {
		return nil
	}
	out := make([]Action, len(actions))
	for i, a := range actions {
		out[i] = Action{Kind: a.Kind}
		if a.Config != nil {
			out[i].Config = make(map[string]any, len(a.Config))
			for k, v := range a.Config {
				out[i].Config[k] = v
			}
		}
	}
	return out
}
