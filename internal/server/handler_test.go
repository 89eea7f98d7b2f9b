package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/dedup"
	"github.com/hrygo/divinesense/internal/jobplan"
	"github.com/hrygo/divinesense/internal/jobstore"
)

type fakeRunner struct {
	ran chan *jobplan.Plan
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{ran: make(chan *jobplan.Plan, 1)}
}

func (f *fakeRunner) Run(_ context.Context, plan *jobplan.Plan) error {
	f.ran <- plan
	return nil
}

type fakeConfirmer struct {
	confirmed []string
	err       error
}

func (f *fakeConfirmer) ConfirmDelivery(_ context.Context, jobID string) error {
	if f.err != nil {
		return f.err
	}
	f.confirmed = append(f.confirmed, jobID)
	return nil
}

func newTestHandler(runner PlanRunner, confirmer DeliveryConfirmer) (*Handler, *echo.Echo) {
	h := NewHandler(context.Background(), dedup.New(), confirmer, runner)
	e := echo.New()
	h.Register(e)
	return h, e
}

func TestHandleGenerate_ValidRequestReturns202AndSchedulesPlan(t *testing.T) {
	runner := newFakeRunner()
	_, e := newTestHandler(runner, &fakeConfirmer{})

	body := `{
		"personality": {"name": "Aria", "contextWindowTokens": 4096},
		"message": {"text": "hello there"},
		"context": {"userId": "u1", "channelId": "c1"},
		"responseDestination": "c1"
	}`
	req := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp generateResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "queued", resp.Status)
	assert.NotEmpty(t, resp.JobID)
	assert.NotEmpty(t, resp.RequestID)

	plan := <-runner.ran
	assert.Equal(t, resp.JobID, plan.GenerationJob.ID)
}

func TestHandleGenerate_MissingPersonalityIsBadRequest(t *testing.T) {
	runner := newFakeRunner()
	_, e := newTestHandler(runner, &fakeConfirmer{})

	body := `{"message": {"text": "hi"}, "context": {"userId": "u1"}, "responseDestination": "c1"}`
	req := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewBufferString(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGenerate_DuplicateSubmissionReturnsCachedJobWithoutRerunning(t *testing.T) {
	runner := newFakeRunner()
	_, e := newTestHandler(runner, &fakeConfirmer{})

	body := `{
		"personality": {"name": "Aria", "contextWindowTokens": 4096},
		"message": {"text": "hello there"},
		"context": {"userId": "u1", "channelId": "c1"},
		"responseDestination": "c1"
	}`

	req1 := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewBufferString(body))
	req1.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec1 := httptest.NewRecorder()
	e.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusAccepted, rec1.Code)
	var first generateResponseBody
	require.NoError(t, json.Unmarshal(rec1.Body.Bytes(), &first))
	<-runner.ran

	req2 := httptest.NewRequest(http.MethodPost, "/generate", bytes.NewBufferString(body))
	req2.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec2 := httptest.NewRecorder()
	e.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusAccepted, rec2.Code)
	var second generateResponseBody
	require.NoError(t, json.Unmarshal(rec2.Body.Bytes(), &second))

	assert.Equal(t, first.JobID, second.JobID)
	assert.Equal(t, first.RequestID, second.RequestID)

	select {
	case <-runner.ran:
		t.Fatal("duplicate submission should not have re-run the plan")
	default:
	}
}

func TestHandleConfirmDelivery_UnknownJobIDIs404(t *testing.T) {
	confirmer := &fakeConfirmer{err: jobstore.ErrNotFound}
	_, e := newTestHandler(newFakeRunner(), confirmer)

	req := httptest.NewRequest(http.MethodPost, "/ai/job/missing-job/confirm-delivery", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleConfirmDelivery_KnownJobReturns200(t *testing.T) {
	confirmer := &fakeConfirmer{}
	_, e := newTestHandler(newFakeRunner(), confirmer)

	req := httptest.NewRequest(http.MethodPost, "/ai/job/job-1/confirm-delivery", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp confirmDeliveryResponseBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "job-1", resp.JobID)
	assert.Equal(t, "DELIVERED", resp.Status)
	assert.Equal(t, []string{"job-1"}, confirmer.confirmed)
}
