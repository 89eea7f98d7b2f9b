// Package jobstore wraps the job_result / import_job persistence
// internal/store/postgres provides with the lifecycle rules spec.md §4.8
// and §6 describe: PENDING_DELIVERY -> DELIVERED confirmation
// (idempotent), and the grace-period sweep that lets stale
// PENDING_DELIVERY rows be reclaimed. The same table also backs the
// generation worker's dependency-result reads: a preprocessing job
// writes its result under its own resultKey, already DELIVERED since
// nothing external ever confirms a preprocessing job's delivery.
package jobstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/divinesense/internal/model"
)

// ErrNotFound is returned when a job result or import job does not exist.
var ErrNotFound = errors.New("jobstore: not found")

// Store is the subset of internal/store/postgres's job operations
// jobstore needs.
type Store interface {
	PutJobResult(ctx context.Context, jr *model.JobResult) error
	GetJobResult(ctx context.Context, jobID string) (*model.JobResult, error)
	MarkJobResultDelivered(ctx context.Context, jobID string) error
	DeleteStaleJobResults(ctx context.Context, olderThan sql.NullTime) (int64, error)
	InsertImportJob(ctx context.Context, ij *model.ImportJob) error
	UpdateImportJobState(ctx context.Context, id, state, errMsg string) error
	GetImportJob(ctx context.Context, id string) (*model.ImportJob, error)
	TrackJobState(ctx context.Context, rec model.JobRecord) error
	FindStuckJobs(ctx context.Context, olderThan time.Time, limit int) ([]model.JobRecord, error)
}

// defaultGracePeriod is how long a PENDING_DELIVERY row may sit
// unconfirmed before SweepStale reclaims it.
const defaultGracePeriod = 24 * time.Hour

// JobStore is the jobstore component.
type JobStore struct {
	store       Store
	gracePeriod time.Duration
}

// New builds a JobStore. gracePeriod <= 0 uses defaultGracePeriod.
func New(store Store, gracePeriod time.Duration) *JobStore {
	if gracePeriod <= 0 {
		gracePeriod = defaultGracePeriod
	}
	return &JobStore{store: store, gracePeriod: gracePeriod}
}

// WriteResult stores body under jobID with PENDING_DELIVERY status, per
// spec.md §4.8 step 9.
func (j *JobStore) WriteResult(ctx context.Context, jobID string, body any) error {
	return j.store.PutJobResult(ctx, &model.JobResult{
		JobID:  jobID,
		Status: model.JobResultPendingDelivery,
		Body:   body,
	})
}

// WriteDeliveredResult stores body under resultKey already marked
// DELIVERED — used for preprocessing job results, which the generation
// worker's dependency-wait step reads but which no external caller ever
// confirms.
func (j *JobStore) WriteDeliveredResult(ctx context.Context, resultKey string, body any) error {
	if err := j.store.PutJobResult(ctx, &model.JobResult{
		JobID:  resultKey,
		Status: model.JobResultPendingDelivery,
		Body:   body,
	}); err != nil {
		return err
	}
	return j.store.MarkJobResultDelivered(ctx, resultKey)
}

// GetResult fetches the stored result for jobID or resultKey, returning
// ErrNotFound if absent.
func (j *JobStore) GetResult(ctx context.Context, jobID string) (*model.JobResult, error) {
	jr, err := j.store.GetJobResult(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if jr == nil {
		return nil, ErrNotFound
	}
	return jr, nil
}

// ConfirmDelivery transitions jobID's result PENDING_DELIVERY ->
// DELIVERED, per spec.md §4.8's delivery-confirmation contract.
// Idempotent: a second confirmation on an already-DELIVERED row is a
// no-op. An unknown jobID is ErrNotFound.
func (j *JobStore) ConfirmDelivery(ctx context.Context, jobID string) error {
	jr, err := j.store.GetJobResult(ctx, jobID)
	if err != nil {
		return err
	}
	if jr == nil {
		return ErrNotFound
	}
	if jr.Status == model.JobResultDelivered {
		return nil
	}
	return j.store.MarkJobResultDelivered(ctx, jobID)
}

// SweepStale deletes PENDING_DELIVERY rows older than gracePeriod,
// returning how many were removed.
func (j *JobStore) SweepStale(ctx context.Context) (int64, error) {
	cutoff := sql.NullTime{Time: time.Now().Add(-j.gracePeriod), Valid: true}
	return j.store.DeleteStaleJobResults(ctx, cutoff)
}

// StartImport records a new import job in the queued state, per spec.md
// §6's shapes-import lifecycle (queued -> in_progress -> completed|failed).
func (j *JobStore) StartImport(ctx context.Context, id string) error {
	return j.store.InsertImportJob(ctx, &model.ImportJob{
		ID:        id,
		State:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	})
}

// AdvanceImport transitions an import job to state, recording errMsg on a
// failure transition.
func (j *JobStore) AdvanceImport(ctx context.Context, id, state, errMsg string) error {
	return j.store.UpdateImportJobState(ctx, id, state, errMsg)
}

// GetImport fetches an import job by id.
func (j *JobStore) GetImport(ctx context.Context, id string) (*model.ImportJob, error) {
	ij, err := j.store.GetImportJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if ij == nil {
		return nil, ErrNotFound
	}
	return ij, nil
}

// TrackActive records that a job has started running, per spec.md §7's
// stuck-job recovery contract.
func (j *JobStore) TrackActive(ctx context.Context, jobID, requestID string, jobType model.JobType) error {
	return j.store.TrackJobState(ctx, model.JobRecord{
		ID:        jobID,
		RequestID: requestID,
		Type:      jobType,
		State:     model.JobStateActive,
	})
}

// TrackTerminal records that a job reached a terminal state.
func (j *JobStore) TrackTerminal(ctx context.Context, jobID, requestID string, jobType model.JobType, state model.JobState) error {
	return j.store.TrackJobState(ctx, model.JobRecord{
		ID:        jobID,
		RequestID: requestID,
		Type:      jobType,
		State:     state,
	})
}

// FindStuck returns jobs still active past olderThan, per spec.md §7's
// "500 at a time" sweep batching.
func (j *JobStore) FindStuck(ctx context.Context, olderThan time.Time, limit int) ([]model.JobRecord, error) {
	return j.store.FindStuckJobs(ctx, olderThan, limit)
}
