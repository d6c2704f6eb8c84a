package domain

import (
	"time"

	"github.com/google/uuid"
)

type SessionEventType string

const (
	SessionJoined   SessionEventType = "joined"
	SessionLeft     SessionEventType = "left"
	SessionRejected SessionEventType = "rejected"
)

// SessionEvent is an audit record of a connection lifecycle step.
// It never carries message payloads.
type SessionEvent struct {
	ID         uuid.UUID
	Type       SessionEventType
	ConnID     string
	Username   Username
	Identity   string
	RemoteAddr string
	Reason     string
	At         time.Time
}
