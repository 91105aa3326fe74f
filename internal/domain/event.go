package domain

import (
	"strconv"
	"unicode/utf8"
)

// Action discriminates the lifecycle phase of an event.
type Action string

const (
	ActionStart    Action = "start"
	ActionFinished Action = "finished"
	ActionError    Action = "error"
)

// Valid reports whether a is one of the known lifecycle phases.
func (a Action) Valid() bool {
	switch a {
	case ActionStart, ActionFinished, ActionError:
		return true
	}
	return false
}

// Terminal reports whether a closes an action.
func (a Action) Terminal() bool {
	return a == ActionFinished || a == ActionError
}

// AnonymousSession is the display label for events without a session.
const AnonymousSession = "Anonymous"

// LifecycleEvent describes one phase of a tracked operation. Values are never
// mutated after decoding; StatusCode is shared between copies and must be treated
// as read-only.
type LifecycleEvent struct {
	Action     Action  `json:"action"`
	ActionID   string  `json:"actionId"`
	UserID     string  `json:"userId"`
	Session    string  `json:"session"`
	Method     string  `json:"method"`
	IP         string  `json:"ip,omitempty"`
	Route      string  `json:"route,omitempty"`
	StatusCode *int    `json:"statusCode,omitempty"`
	Duration   float64 `json:"duration"`
	Time       string  `json:"time,omitempty"`
}

// HasStatus reports whether the event carries a non-zero status code.
func (e LifecycleEvent) HasStatus() bool {
	return e.StatusCode != nil && *e.StatusCode != 0
}

// StatusLabel renders the status code for display, or "N/A".
func (e LifecycleEvent) StatusLabel() string {
	if !e.HasStatus() {
		return "N/A"
	}
	return strconv.Itoa(*e.StatusCode)
}

// DisplaySession returns the session or the anonymous label.
func (e LifecycleEvent) DisplaySession() string {
	if e.Session == "" {
		return AnonymousSession
	}
	return e.Session
}

// ShortID returns the trailing 12 characters of the action id.
func (e LifecycleEvent) ShortID() string {
	const n = 12
	if utf8.RuneCountInString(e.ActionID) <= n {
		return e.ActionID
	}
	runes := []rune(e.ActionID)
	return string(runes[len(runes)-n:])
}
