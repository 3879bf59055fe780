package eventbus

import "time"

// Event types published by the engine.
const (
	TypeAdmitted       = "notification.admitted"
	TypeDropped        = "notification.dropped"
	TypeShown          = "presentation.shown"
	TypeDisplayFailed  = "presentation.failed"
	TypeClicked        = "interaction.clicked"
	TypeClosed         = "interaction.closed"
	TypeRouted         = "interaction.routed"
	TypeRoutingFailed  = "interaction.routing_failed"
	TypeSessionState   = "session.state"
	TypeSessionFatal   = "session.fatal"
	TypeRecordsExpired = "maintenance.expired"
)

// NotificationEvent is the payload for notification.*, presentation.* and
// interaction.* events. Keep it small; subscribers may log/serialize it.
type NotificationEvent struct {
	Tag        string    `json:"tag"`
	RecordID   string    `json:"record_id,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
	Decision   string    `json:"decision,omitempty"`
	State      string    `json:"state,omitempty"`
	Outcome    string    `json:"outcome,omitempty"`
	TargetURL  string    `json:"target_url,omitempty"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}

// SessionEvent is the payload for session.* events.
type SessionEvent struct {
	SessionID  string    `json:"session_id"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	RetryCount int       `json:"retry_count"`
	At         time.Time `json:"at"`
	Error      string    `json:"error,omitempty"`
}

// MaintenanceEvent is the payload for maintenance.* events.
type MaintenanceEvent struct {
	Expired   int       `json:"expired"`
	Compacted bool      `json:"compacted"`
	At        time.Time `json:"at"`
	Error     string    `json:"error,omitempty"`
}
