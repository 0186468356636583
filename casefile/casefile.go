// Package casefile provides the rule documents ("case files") that map
// event names to actions, along with the operator-managed mute list.
//
// Case files are owned and edited by operators through the external
// store; the engine treats them as immutable input.
package casefile

import "strings"

// ActionType is the closed set of action variants the dispatcher knows.
// Rule documents name action types as free-form strings; ParseActionType
// maps unknown names to ActionUnsupported rather than failing, since an
// unrecognized name in operator-owned data is an error path of the
// dispatch itself, not a lookup failure.
type ActionType string

const (
	// ActionBackendCall publishes a command frame to an arbitrary
	// backend queue named on the event.
	ActionBackendCall ActionType = "backend_call"

	// ActionNotification sends a formatted message through a named
	// notification transport.
	ActionNotification ActionType = "notification"

	// ActionStartWorkflow starts a new workflow job from a template.
	ActionStartWorkflow ActionType = "start_workflow"

	// ActionRestartWorkflow resumes an existing workflow job.
	ActionRestartWorkflow ActionType = "restart_workflow"

	// ActionStopWorkflow terminates an existing workflow job.
	ActionStopWorkflow ActionType = "stop_workflow"

	// ActionUnsupported is the catch-all for unrecognized names.
	ActionUnsupported ActionType = "unsupported"
)

// ParseActionType maps a rule's action type name to the closed variant
// set. Unknown names map to ActionUnsupported.
func ParseActionType(name string) ActionType {
	switch ActionType(name) {
	case ActionBackendCall, ActionNotification, ActionStartWorkflow,
		ActionRestartWorkflow, ActionStopWorkflow:
		return ActionType(name)
	default:
		return ActionUnsupported
	}
}

// ModeRestart marks rules whose resume should re-enter the prior worker
// stage instead of advancing (the most recent log entry is popped).
const ModeRestart = "restart"

// PathMatch pairs a dotted document path with an expected value for
// condition checks. Paths use "->" as separator, e.g. "data->result->code".
type PathMatch struct {
	Path  string `json:"path" yaml:"path"`
	Value string `json:"value" yaml:"value"`
}

// Conditions guards workflow restart/stop actions. Conditions are
// evaluated in declaration order (log, workflow, status, not_present)
// and short-circuit on the first failure.
type Conditions struct {
	// Log requires the last entry of the job's worker-visit log to
	// equal this value exactly.
	Log string `json:"log,omitempty" yaml:"log,omitempty"`

	// Workflow requires the job's workflow name to match this value
	// as a case-insensitive prefix.
	Workflow string `json:"workflow,omitempty" yaml:"workflow,omitempty"`

	// Status requires the value at Path to case-insensitively
	// prefix-match Value.
	Status *PathMatch `json:"status,omitempty" yaml:"status,omitempty"`

	// NotPresent fails when the value at Path equals Value exactly.
	NotPresent *PathMatch `json:"not_present,omitempty" yaml:"not_present,omitempty"`
}

// Empty reports whether no conditions are configured.
func (c *Conditions) Empty() bool {
	return c == nil || (c.Log == "" && c.Workflow == "" && c.Status == nil && c.NotPresent == nil)
}

// Action is the action definition of a case file.
type Action struct {
	// Type names the action variant to invoke. See ParseActionType.
	Type string `json:"action_type" yaml:"action_type"`

	// FallbackType, if set, names the action invoked when the primary
	// returns not-processed.
	FallbackType string `json:"fallback_action_type,omitempty" yaml:"fallback_action_type,omitempty"`

	// Workflow names the workflow template for start_workflow.
	Workflow string `json:"workflow,omitempty" yaml:"workflow,omitempty"`

	// Transport names the notification transport (only "hipchat" is
	// supported).
	Transport string `json:"transport,omitempty" yaml:"transport,omitempty"`

	// Room and Severity parameterize notifications.
	Room     string `json:"room,omitempty" yaml:"room,omitempty"`
	Severity string `json:"severity,omitempty" yaml:"severity,omitempty"`

	// View and Key configure indexed job lookup for restart/stop:
	// the job is found via the View index under the value of the
	// event field named by Key.
	View string `json:"view,omitempty" yaml:"view,omitempty"`
	Key  string `json:"key,omitempty" yaml:"key,omitempty"`

	// Mode alters restart behavior; see ModeRestart.
	Mode string `json:"mode,omitempty" yaml:"mode,omitempty"`

	// Reopen allows restarting a job that is already done.
	Reopen bool `json:"reopen,omitempty" yaml:"reopen,omitempty"`

	// Conditions guard restart/stop; nil means unconditional.
	Conditions *Conditions `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Rule maps an event name to an action definition.
type Rule struct {
	// EventName is the rule key: backend_object_action_status.
	EventName string `json:"event_name" yaml:"event_name"`

	// Action is the configured action.
	Action Action `json:"action" yaml:"action"`
}

// MuteList is the single operator-owned document enumerating event names
// currently suppressed. The engine only reads it.
type MuteList struct {
	EventList []string `json:"event_list" yaml:"event_list"`
}

// Muted reports whether the given event name is suppressed.
// A nil mute list mutes nothing.
func (m *MuteList) Muted(name string) bool {
	if m == nil {
		return false
	}
	for _, n := range m.EventList {
		if strings.EqualFold(n, name) {
			return true
		}
	}
	return false
}
