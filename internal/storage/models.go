package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Session statuses.
const (
	StatusQueued     = "queued"
	StatusGenerating = "generating"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Session is one website generation run. The session id doubles as the
// directory name in the artifact store.
type Session struct {
	ID            string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	RequestJSON   string
	PlanJSON      string // JSON array of component ids
	Reasoning     string
	PlanSource    string
	ExpectedCount int
	Status        string
	SummaryJSON   string
}

// ComponentEvent records the outcome of generating and saving one component.
type ComponentEvent struct {
	ID          int64
	SessionID   string
	ComponentID string
	Source      string // "model", "fallback" or "chat"
	Attempts    int
	SaveError   string
	Error       string
	CreatedAt   time.Time
}

type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
