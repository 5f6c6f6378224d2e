package model

import "time"

// JobStatus is the lifecycle state of a background job.
type JobStatus string

// Job states.
const (
	JobQueued    JobStatus = "queued"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s JobStatus) IsTerminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is the persisted record of a background job.
type Job struct {
	StartedAt  time.Time
	FinishedAt *time.Time
	ID         string
	Kind       string
	Status     JobStatus
	LastError  string
	Progress   int // 0..100, never decreasing
}

// CategorizerMode is the operating mode of the categorization gateway.
type CategorizerMode string

// Categorizer modes.
const (
	ModeUnknown          CategorizerMode = "unknown"
	ModePrimary          CategorizerMode = "primary"
	ModeDegradedFallback CategorizerMode = "degraded-fallback"
	ModeFailsafe         CategorizerMode = "failsafe"
)

// CategorizerStatus is a snapshot of the gateway health.
type CategorizerStatus struct {
	CheckedAt   time.Time
	LastSuccess *time.Time
	LastFailure *time.Time
	Mode        CategorizerMode
	RemoteMode  string
	LastError   string
	Reachable   bool
}
