package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/divinesense/internal/model"
)

// PutJobResult upserts the stored outcome of a completed job, keyed by
// job id, per spec.md §4.9's job-result contract.
func (d *DB) PutJobResult(ctx context.Context, jr *model.JobResult) error {
	body, err := json.Marshal(jr.Body)
	if err != nil {
		return errors.Wrap(err, "failed to marshal job result body")
	}

	stmt := `
		INSERT INTO job_result (job_id, status, body, delivered_at)
		VALUES (` + placeholders(4) + `)
		ON CONFLICT (job_id) DO UPDATE SET status = EXCLUDED.status, body = EXCLUDED.body, delivered_at = EXCLUDED.delivered_at
	`
	_, err = d.db.ExecContext(ctx, stmt, jr.JobID, string(jr.Status), body, jr.DeliveredAt)
	if err != nil {
		return errors.Wrap(err, "failed to upsert job result")
	}
	return nil
}

// GetJobResult fetches a job result by id. Returns (nil, nil) if absent.
func (d *DB) GetJobResult(ctx context.Context, jobID string) (*model.JobResult, error) {
	var status string
	var body []byte
	var deliveredAt sql.NullTime

	err := d.db.QueryRowContext(ctx,
		`SELECT status, body, delivered_at FROM job_result WHERE job_id = `+placeholder(1),
		jobID,
	).Scan(&status, &body, &deliveredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job result")
	}

	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal job result body")
	}

	jr := &model.JobResult{
		JobID:  jobID,
		Status: model.JobResultStatus(status),
		Body:   payload,
	}
	if deliveredAt.Valid {
		jr.DeliveredAt = &deliveredAt.Time
	}
	return jr, nil
}

// MarkJobResultDelivered stamps delivered_at and flips the status once the
// caller has confirmed receipt via POST /ai/job/{jobId}/confirm-delivery.
func (d *DB) MarkJobResultDelivered(ctx context.Context, jobID string) error {
	res, err := d.db.ExecContext(ctx,
		`UPDATE job_result SET status = `+placeholder(2)+`, delivered_at = now() WHERE job_id = `+placeholder(1),
		jobID, string(model.JobResultDelivered),
	)
	if err != nil {
		return errors.Wrap(err, "failed to mark job result delivered")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.Errorf("job result %s not found", jobID)
	}
	return nil
}

// DeleteStaleJobResults removes PENDING_DELIVERY rows older than the grace
// period, per spec.md §4.9's retention rule: unconfirmed results are kept
// around only long enough for a slow client to still ask for them.
func (d *DB) DeleteStaleJobResults(ctx context.Context, olderThan sql.NullTime) (int64, error) {
	res, err := d.db.ExecContext(ctx,
		`DELETE FROM job_result WHERE status = `+placeholder(1)+` AND created_at < `+placeholder(2),
		string(model.JobResultPendingDelivery), olderThan,
	)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete stale job results")
	}
	return res.RowsAffected()
}

// TrackJobState upserts rec's lifecycle row, per spec.md §7's stuck-job
// recovery contract: the generation worker calls this on entry (state
// active) and on exit (state completed/failed) so a sweeper can later
// find rows stuck in active past a deadline.
func (d *DB) TrackJobState(ctx context.Context, rec model.JobRecord) error {
	stmt := `
		INSERT INTO job (id, request_id, job_type, state, updated_at)
		VALUES (` + placeholder(1) + `, ` + placeholder(2) + `, ` + placeholder(3) + `, ` + placeholder(4) + `, now())
		ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()
	`
	_, err := d.db.ExecContext(ctx, stmt, rec.ID, rec.RequestID, string(rec.Type), string(rec.State))
	if err != nil {
		return errors.Wrap(err, "failed to track job state")
	}
	return nil
}

// FindStuckJobs returns up to limit jobs in JobStateActive whose
// updated_at is older than olderThan, per spec.md §7's "500 at a time"
// sweep batching.
func (d *DB) FindStuckJobs(ctx context.Context, olderThan time.Time, limit int) ([]model.JobRecord, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT id, request_id, job_type, state, updated_at FROM job
		 WHERE state = `+placeholder(1)+` AND updated_at < `+placeholder(2)+`
		 ORDER BY updated_at ASC LIMIT `+placeholder(3),
		string(model.JobStateActive), olderThan, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query stuck jobs")
	}
	defer rows.Close()

	var out []model.JobRecord
	for rows.Next() {
		var rec model.JobRecord
		var jobType, state string
		if err := rows.Scan(&rec.ID, &rec.RequestID, &jobType, &state, &rec.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan stuck job row")
		}
		rec.Type = model.JobType(jobType)
		rec.State = model.JobState(state)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// InsertImportJob creates a new import job row in the queued state.
func (d *DB) InsertImportJob(ctx context.Context, ij *model.ImportJob) error {
	stmt := `
		INSERT INTO import_job (id, state, error)
		VALUES (` + placeholders(3) + `)
	`
	_, err := d.db.ExecContext(ctx, stmt, ij.ID, ij.State, ij.Error)
	if err != nil {
		return errors.Wrap(err, "failed to insert import job")
	}
	return nil
}

// UpdateImportJobState transitions an import job's state and optional
// error message, bumping updated_at.
func (d *DB) UpdateImportJobState(ctx context.Context, id, state, errMsg string) error {
	stmt := `
		UPDATE import_job SET state = ` + placeholder(2) + `, error = ` + placeholder(3) + `, updated_at = now()
		WHERE id = ` + placeholder(1)
	res, err := d.db.ExecContext(ctx, stmt, id, state, errMsg)
	if err != nil {
		return errors.Wrap(err, "failed to update import job state")
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return errors.Errorf("import job %s not found", id)
	}
	return nil
}

// GetImportJob fetches an import job by id. Returns (nil, nil) if absent.
func (d *DB) GetImportJob(ctx context.Context, id string) (*model.ImportJob, error) {
	var ij model.ImportJob
	var errMsg sql.NullString
	ij.ID = id

	err := d.db.QueryRowContext(ctx,
		`SELECT state, error, created_at, updated_at FROM import_job WHERE id = `+placeholder(1),
		id,
	).Scan(&ij.State, &errMsg, &ij.CreatedAt, &ij.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get import job")
	}
	if errMsg.Valid {
		ij.Error = errMsg.String
	}
	return &ij, nil
}
