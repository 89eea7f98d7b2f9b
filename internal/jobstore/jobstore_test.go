package jobstore

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/model"
)

type fakeStore struct {
	results     map[string]*model.JobResult
	imports     map[string]*model.ImportJob
	jobs        map[string]model.JobRecord
	deleteCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		results: map[string]*model.JobResult{},
		imports: map[string]*model.ImportJob{},
		jobs:    map[string]model.JobRecord{},
	}
}

func (s *fakeStore) TrackJobState(_ context.Context, rec model.JobRecord) error {
	s.jobs[rec.ID] = rec
	return nil
}

func (s *fakeStore) FindStuckJobs(_ context.Context, olderThan time.Time, limit int) ([]model.JobRecord, error) {
	var out []model.JobRecord
	for _, rec := range s.jobs {
		if rec.State == model.JobStateActive && rec.UpdatedAt.Before(olderThan) {
			out = append(out, rec)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeStore) PutJobResult(_ context.Context, jr *model.JobResult) error {
	cp := *jr
	s.results[jr.JobID] = &cp
	return nil
}

func (s *fakeStore) GetJobResult(_ context.Context, jobID string) (*model.JobResult, error) {
	jr, ok := s.results[jobID]
	if !ok {
		return nil, nil
	}
	return jr, nil
}

func (s *fakeStore) MarkJobResultDelivered(_ context.Context, jobID string) error {
	jr, ok := s.results[jobID]
	if !ok {
		return assert.AnError
	}
	jr.Status = model.JobResultDelivered
	now := time.Now()
	jr.DeliveredAt = &now
	return nil
}

func (s *fakeStore) DeleteStaleJobResults(_ context.Context, _ sql.NullTime) (int64, error) {
	s.deleteCalls++
	var n int64
	for k, v := range s.results {
		if v.Status == model.JobResultPendingDelivery {
			delete(s.results, k)
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) InsertImportJob(_ context.Context, ij *model.ImportJob) error {
	cp := *ij
	s.imports[ij.ID] = &cp
	return nil
}

func (s *fakeStore) UpdateImportJobState(_ context.Context, id, state, errMsg string) error {
	ij, ok := s.imports[id]
	if !ok {
		return assert.AnError
	}
	ij.State = state
	ij.Error = errMsg
	return nil
}

func (s *fakeStore) GetImportJob(_ context.Context, id string) (*model.ImportJob, error) {
	ij, ok := s.imports[id]
	if !ok {
		return nil, nil
	}
	return ij, nil
}

func TestWriteResultAndConfirmDelivery(t *testing.T) {
	store := newFakeStore()
	js := New(store, time.Hour)

	require.NoError(t, js.WriteResult(context.Background(), "job-1", model.LLMGenerationResult{Content: "hi"}))

	jr, err := js.GetResult(context.Background(), "job-1")
	require.NoError(t, err)
	assert.Equal(t, model.JobResultPendingDelivery, jr.Status)

	require.NoError(t, js.ConfirmDelivery(context.Background(), "job-1"))
	jr, _ = js.GetResult(context.Background(), "job-1")
	assert.Equal(t, model.JobResultDelivered, jr.Status)

	// Idempotent second confirmation.
	require.NoError(t, js.ConfirmDelivery(context.Background(), "job-1"))
}

func TestConfirmDelivery_UnknownJobIsNotFound(t *testing.T) {
	store := newFakeStore()
	js := New(store, time.Hour)

	err := js.ConfirmDelivery(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestWriteDeliveredResult_PreprocessingResultIsImmediatelyDelivered(t *testing.T) {
	store := newFakeStore()
	js := New(store, time.Hour)

	require.NoError(t, js.WriteDeliveredResult(context.Background(), "req-1:audio-transcription:0", "hello"))

	jr, err := js.GetResult(context.Background(), "req-1:audio-transcription:0")
	require.NoError(t, err)
	assert.Equal(t, model.JobResultDelivered, jr.Status)
}

func TestSweepStale_DeletesOnlyPending(t *testing.T) {
	store := newFakeStore()
	js := New(store, time.Hour)
	store.results["a"] = &model.JobResult{JobID: "a", Status: model.JobResultPendingDelivery}
	store.results["b"] = &model.JobResult{JobID: "b", Status: model.JobResultDelivered}

	n, err := js.SweepStale(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestImportJobLifecycle(t *testing.T) {
	store := newFakeStore()
	js := New(store, time.Hour)

	require.NoError(t, js.StartImport(context.Background(), "import-1"))
	require.NoError(t, js.AdvanceImport(context.Background(), "import-1", "in_progress", ""))

	ij, err := js.GetImport(context.Background(), "import-1")
	require.NoError(t, err)
	assert.Equal(t, "in_progress", ij.State)
}

func TestFindStuck_ReturnsOnlyStaleActiveJobs(t *testing.T) {
	store := newFakeStore()
	js := New(store, time.Hour)

	require.NoError(t, js.TrackActive(context.Background(), "job-old", "req-1", model.JobTypeLLMGeneration))
	stale := store.jobs["job-old"]
	stale.UpdatedAt = time.Now().Add(-2 * time.Hour)
	store.jobs["job-old"] = stale

	require.NoError(t, js.TrackActive(context.Background(), "job-fresh", "req-2", model.JobTypeLLMGeneration))
	fresh := store.jobs["job-fresh"]
	fresh.UpdatedAt = time.Now()
	store.jobs["job-fresh"] = fresh

	stuck, err := js.FindStuck(context.Background(), time.Now().Add(-time.Hour), 500)
	require.NoError(t, err)
	require.Len(t, stuck, 1)
	assert.Equal(t, "job-old", stuck[0].ID)
}

func TestGetImport_UnknownIsNotFound(t *testing.T) {
	store := newFakeStore()
	js := New(store, time.Hour)

	_, err := js.GetImport(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
