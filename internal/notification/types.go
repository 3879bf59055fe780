// Package notification holds the engine's data model: the normalized intent,
// the per-tag presentation record and the decisions/transitions the dedup store
// reports about them.
package notification

import (
	"maps"
	"time"
)

// Reserved data keys. The engine always sets them; vendor data may override.
const (
	DataTimestamp = "timestamp"
	DataTargetURL = "targetUrl"
)

// Intent is the normalized unit of work produced from a raw push payload.
type Intent struct {
	Tag   string
	Title string
	Body  string
	// Icon overrides the configured icon for this notification only.
	Icon       string
	Data       map[string]string
	ReceivedAt time.Time
}

// TargetURL returns the navigation target carried in Data ("/" if unset).
func (in Intent) TargetURL() string {
	if u := in.Data[DataTargetURL]; u != "" {
		return u
	}
	return "/"
}

// Clone returns a deep copy (Data is not shared).
func (in Intent) Clone() Intent {
	cp := in
	cp.Data = maps.Clone(in.Data)
	return cp
}

type State int

const (
	StatePending State = iota
	StateShown
	StateDismissed
	StateClicked
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateShown:
		return "shown"
	case StateDismissed:
		return "dismissed"
	case StateClicked:
		return "clicked"
	default:
		return "unknown"
	}
}

// Terminal reports whether a record in this state is eligible for removal.
func (s State) Terminal() bool { return s == StateDismissed || s == StateClicked }

// ParseState is the inverse of State.String. Unknown values map to pending.
func ParseState(s string) State {
	switch s {
	case "shown":
		return StateShown
	case "dismissed":
		return StateDismissed
	case "clicked":
		return StateClicked
	default:
		return StatePending
	}
}

// Decision is the dedup store's verdict for an incoming intent.
type Decision int

const (
	DecisionInsert Decision = iota
	DecisionReplace
	DecisionDrop
)

func (d Decision) String() string {
	switch d {
	case DecisionInsert:
		return "insert"
	case DecisionReplace:
		return "replace"
	case DecisionDrop:
		return "drop"
	default:
		return "unknown"
	}
}

// Presentable reports whether the decision must reach the platform display.
func (d Decision) Presentable() bool { return d == DecisionInsert || d == DecisionReplace }

// Record is the store's state for one active tag.
//
// ID stays stable across Replace; Generation increments on each Replace.
// A zero ShownAt means the current cycle was never displayed.
type Record struct {
	ID         string
	Intent     Intent
	State      State
	ShownAt    time.Time
	UpdatedAt  time.Time
	Generation uint64
}

func (r Record) Tag() string { return r.Intent.Tag }

// Clone returns a copy that shares no mutable state with r.
func (r Record) Clone() Record {
	cp := r
	cp.Intent = r.Intent.Clone()
	return cp
}

// Transition describes the effect of a store mutation.
//
//   - Found:   a record existed for the tag when the call was made
//   - Changed: the call mutated or removed the record
//   - Removed: the record no longer exists after the call
//
// Record is the state after the call, or the last state before removal.
type Transition struct {
	Record  Record
	Found   bool
	Changed bool
	Removed bool
}
