package model

import "time"

// JobType enumerates the kinds of jobs the planner can produce.
type JobType string

const (
	JobTypeAudioTranscription JobType = "audio-transcription"
	JobTypeImageDescription   JobType = "image-description"
	JobTypeShapesImport       JobType = "shapes-import"
	JobTypeLLMGeneration      JobType = "llm-generation"
)

// JobState is the lifecycle state of a job. Transitions only ever move
// forward: queued -> active -> {completed|failed} -> delivered?.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateDelivered JobState = "delivered"
)

// CanTransitionTo reports whether moving from s to next is a legal,
// forward-only state transition.
func (s JobState) CanTransitionTo(next JobState) bool {
	switch s {
	case JobStateQueued:
		return next == JobStateActive
	case JobStateActive:
		return next == JobStateCompleted || next == JobStateFailed
	case JobStateCompleted, JobStateFailed:
		return next == JobStateDelivered
	default:
		return false
	}
}

// JobDependency points at another job whose result must be fetched before
// this job can execute.
type JobDependency struct {
	JobID     string
	ResultKey string
	Type      JobType
}

// Job is a unit of work in the request's dependency graph.
type Job struct {
	CreatedAt    time.Time
	ID           string
	RequestID    string
	Type         JobType
	Data         map[string]any
	Dependencies []JobDependency
	State        JobState
}

// JobRecord is the persisted lifecycle row backing stuck-job recovery: a
// job's Data carries live Go objects in-process and is never itself
// persisted, but its id/type/state/updated_at are tracked so a sweeper
// can find jobs that started and never finished, even across a worker
// restart.
type JobRecord struct {
	UpdatedAt time.Time
	ID        string
	RequestID string
	Type      JobType
	State     JobState
}

// JobResultStatus tracks whether a job's result has been handed back to
// the caller.
type JobResultStatus string

const (
	JobResultPendingDelivery JobResultStatus = "PENDING_DELIVERY"
	JobResultDelivered       JobResultStatus = "DELIVERED"
)

// JobResult is the stored outcome of a completed job, keyed by JobID.
type JobResult struct {
	DeliveredAt *time.Time
	JobID       string
	Status      JobResultStatus
	Body        any
}

// LLMGenerationResult is the payload published on the result stream
// (job-result:<jobId>) once a generation job completes.
type LLMGenerationResult struct {
	Metadata                      map[string]any
	RequestID                     string
	Content                       string
	AttachmentDescriptions        string
	ReferencedMessagesDescriptions string
	Success                       bool
	Error                         string
}

// ImportJob tracks a long-running external import (e.g. shapes-import)
// through the same queued -> in_progress -> completed|failed lifecycle.
type ImportJob struct {
	CreatedAt time.Time
	UpdatedAt time.Time
	ID        string
	State     string
	Error     string
}
