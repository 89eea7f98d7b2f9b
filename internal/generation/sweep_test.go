package generation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/model"
)

type fakeStuckFinder struct {
	stuck []model.JobRecord
}

func (f *fakeStuckFinder) FindStuck(_ context.Context, _ time.Time, limit int) ([]model.JobRecord, error) {
	if len(f.stuck) > limit {
		return f.stuck[:limit], nil
	}
	return f.stuck, nil
}

func TestSweepOnce_MarksStuckJobsFailedWithReplayableMessage(t *testing.T) {
	finder := &fakeStuckFinder{stuck: []model.JobRecord{
		{ID: "llm-req-1", RequestID: "req-1", Type: model.JobTypeLLMGeneration, State: model.JobStateActive},
		{ID: "llm-req-2", RequestID: "req-2", Type: model.JobTypeLLMGeneration, State: model.JobStateActive},
	}}
	tracker := newFakeTracker()
	results := newFakeResultStore()

	s := NewSweeper(finder, tracker, results)

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{"llm-req-1", "llm-req-2"} {
		written, ok := results.written[id].(model.LLMGenerationResult)
		require.True(t, ok)
		assert.False(t, written.Success)
		assert.Equal(t, stuckJobMessage, written.Error)
		assert.Equal(t, model.JobStateFailed, tracker.terminalCalls[id])
	}
}

func TestSweepOnce_NoStuckJobsIsNoop(t *testing.T) {
	finder := &fakeStuckFinder{}
	tracker := newFakeTracker()
	results := newFakeResultStore()

	s := NewSweeper(finder, tracker, results)

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Empty(t, results.written)
}
