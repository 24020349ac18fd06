package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Daemon event kinds.
const (
	EventStart   = "start"
	EventStop    = "stop"
	EventRestart = "restart"
	EventRecover = "recover"
)

// Import statuses.
const (
	ImportApplied  = "applied"
	ImportRejected = "rejected"
)

// DaemonEvent is one lifecycle operation attempted on the hook daemon.
type DaemonEvent struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Kind      string    `json:"kind"`
	OK        bool      `json:"ok"`
	Message   string    `json:"message"`
}

// ImportRecord is one settings backup import attempt.
type ImportRecord struct {
	ID         string    `json:"id"`
	CreatedAt  time.Time `json:"created_at"`
	Source     string    `json:"source"`
	FieldCount int       `json:"field_count"`
	Status     string    `json:"status"` // "applied", "rejected"
	Error      string    `json:"error,omitempty"`
}
