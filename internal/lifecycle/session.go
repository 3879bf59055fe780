package lifecycle

import "time"

type Status int

const (
	StatusUninitialized Status = iota
	StatusConnecting
	StatusActive
	StatusDegraded
	StatusClosed
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "uninitialized"
	case StatusConnecting:
		return "connecting"
	case StatusActive:
		return "active"
	case StatusDegraded:
		return "degraded"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Accepting reports whether transport messages are processed in this status.
func (s Status) Accepting() bool { return s != StatusUninitialized && s != StatusClosed }

// Session is a snapshot of the process-wide delivery session.
type Session struct {
	ID         string
	Endpoint   string
	Transport  string
	Status     Status
	RetryCount int
	LastError  string
	ChangedAt  time.Time
}
