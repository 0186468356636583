package casefile

import (
	"context"
	"errors"
)

// ErrRuleNotFound indicates no case file exists for an event name.
// An undefined rule is a terminal failure for the event, not retried.
var ErrRuleNotFound = errors.New("no case file for event")

// Store defines read access to case files and the mute list.
// Both are operator-owned; implementations must be safe for concurrent
// use but need no write coordination from the engine's perspective.
type Store interface {
	// GetRule retrieves the case file keyed by event name
	// (backend_object_action_status).
	// Returns ErrRuleNotFound if none is defined.
	GetRule(ctx context.Context, eventName string) (*Rule, error)

	// MuteList retrieves the mute list document.
	// An absent document yields an empty mute list, not an error.
	MuteList(ctx context.Context) (*MuteList, error)
}
