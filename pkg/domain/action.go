package domain

import "fmt"

// Action is one of the closed set of state-changing passport operations.
// Each action has its own typed-data struct; nonce-bearing actions are the
// ones whose effects are not naturally idempotent by content hash.
type Action string

const (
	ActionMaterialComposition Action = "material_composition"
	ActionDueDiligence        Action = "due_diligence"
	ActionLifecycleStatus     Action = "lifecycle_status"
	ActionOwnershipTransfer   Action = "ownership_transfer"
	ActionStatusChange        Action = "status_change"
	ActionDiscrepancyReport   Action = "discrepancy_report"
)

// AllActions lists every member of the closed action set.
var AllActions = []Action{
	ActionMaterialComposition,
	ActionDueDiligence,
	ActionLifecycleStatus,
	ActionOwnershipTransfer,
	ActionStatusChange,
	ActionDiscrepancyReport,
}

// ParseAction validates an action tag against the closed set.
func ParseAction(s string) (Action, error) {
	for _, a := range AllActions {
		if Action(s) == a {
			return a, nil
		}
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// UsesNonce reports whether the action's authorization struct carries a
// freshly-read on-chain nonce to prevent replay. Hash-bearing actions are
// naturally idempotent and omit it.
func (a Action) UsesNonce() bool {
	return a == ActionOwnershipTransfer || a == ActionLifecycleStatus
}

// Valid reports membership in the closed action set.
func (a Action) Valid() bool {
	for _, known := range AllActions {
		if a == known {
			return true
		}
	}
	return false
}
