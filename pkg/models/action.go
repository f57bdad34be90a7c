package models

import "strings"

// Action is the operation class inferred from a user utterance.
type Action string

const (
	ActionAdd    Action = "add"
	ActionView   Action = "view"
	ActionUpdate Action = "update"
)

// Actions lists every action in display order.
var Actions = []Action{ActionAdd, ActionView, ActionUpdate}

// ParseAction returns the action named by s and whether s named one exactly.
// Surrounding whitespace and case are ignored.
func ParseAction(s string) (Action, bool) {
	switch a := Action(strings.ToLower(strings.TrimSpace(s))); a {
	case ActionAdd, ActionView, ActionUpdate:
		return a, true
	}
	return ActionView, false
}

// Verb is the leading SQL keyword a statement for this action must carry.
func (a Action) Verb() string {
	switch a {
	case ActionAdd:
		return "INSERT"
	case ActionUpdate:
		return "UPDATE"
	default:
		return "SELECT"
	}
}

// Writes reports whether the action mutates data.
func (a Action) Writes() bool {
	return a == ActionAdd || a == ActionUpdate
}
