package domain

import "time"

// JobStatus enumerates batch job lifecycle states.
type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

// Terminal reports whether the status ends the job lifecycle.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether a write moving the job from s to next is
// legal. Rewriting the same status is always allowed so repeated polls stay
// idempotent.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	if s == next {
		return true
	}
	switch s {
	case JobStatusPending:
		return next == JobStatusRunning || next.Terminal()
	case JobStatusRunning:
		return next.Terminal()
	}
	return false
}

// ValidateJobTransition rejects illegal job status writes.
func ValidateJobTransition(from, to JobStatus) error {
	if !from.CanTransitionTo(to) {
		return ErrInvalidTransition
	}
	return nil
}

// Job is one remote batch generation submission covering multiple items.
// JobName is the provider-side reference and is immutable once set.
type Job struct {
	ID                string
	JobName           string
	SourceAssetNames  []string
	ManifestAssetName string
	OriginalPaths     []string
	Model             string
	Status            JobStatus
	ErrorMessage      string
	CreatedAt         time.Time
	CompletedAt       *time.Time
}
