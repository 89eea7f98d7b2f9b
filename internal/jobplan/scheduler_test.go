package jobplan

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/model"
)

type recordingExecutor struct {
	mu      sync.Mutex
	order   []string
	failIDs map[string]bool
}

func (e *recordingExecutor) Execute(_ context.Context, jobID string) error {
	e.mu.Lock()
	e.order = append(e.order, jobID)
	fail := e.failIDs[jobID]
	e.mu.Unlock()

	if fail {
		return fmt.Errorf("job %s: simulated failure", jobID)
	}
	return nil
}

func TestScheduler_RunsGenerationAfterPreprocessing(t *testing.T) {
	req := validRequest()
	req.Attachments = []model.Attachment{
		{Name: "a.mp3", ContentType: "audio/mpeg"},
		{Name: "b.png", ContentType: "image/png"},
	}
	plan, err := Build(req)
	require.NoError(t, err)

	exec := &recordingExecutor{}
	s := NewScheduler(plan, exec)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	require.Len(t, exec.order, 3)
	assert.Equal(t, plan.GenerationJob.ID, exec.order[len(exec.order)-1], "generation job must run last")
}

func TestScheduler_FailurePropagatesButDoesNotDeadlock(t *testing.T) {
	req := validRequest()
	req.Attachments = []model.Attachment{{Name: "a.mp3", ContentType: "audio/mpeg"}}
	plan, err := Build(req)
	require.NoError(t, err)

	exec := &recordingExecutor{failIDs: map[string]bool{plan.PreprocessingJobs[0].ID: true}}
	s := NewScheduler(plan, exec)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	s.mu.Lock()
	genState := s.states[plan.GenerationJob.ID]
	s.mu.Unlock()
	assert.Equal(t, stateSkipped, genState, "generation job should be skipped after its only dependency fails")
}
