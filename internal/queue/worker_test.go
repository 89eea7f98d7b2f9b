package queue

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConsumer struct {
	mu      sync.Mutex
	pending []Message
	acked   []string
	failIDs map[string]bool
}

func (f *fakeConsumer) Consume(_ context.Context, _ string, _ time.Duration) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.pending) == 0 {
		return nil, nil
	}
	out := f.pending
	f.pending = nil
	return out, nil
}

func (f *fakeConsumer) Ack(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, id)
	return nil
}

func TestWorker_ProcessesAndAcksMessages(t *testing.T) {
	fc := &fakeConsumer{pending: []Message{{ID: "1-0", Fields: map[string]any{"job_id": "j1"}}}}

	var handled []string
	var mu sync.Mutex
	w := NewWorker("w1", fc, func(_ context.Context, msg Message) error {
		mu.Lock()
		handled = append(handled, msg.ID)
		mu.Unlock()
		return nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Contains(t, handled, "1-0")
	assert.Contains(t, fc.acked, "1-0")
}

func TestWorker_FailedHandlerLeavesMessageUnacked(t *testing.T) {
	fc := &fakeConsumer{pending: []Message{{ID: "1-0"}}}

	w := NewWorker("w1", fc, func(_ context.Context, _ Message) error {
		return fmt.Errorf("boom")
	})

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	w.Start(ctx)
	time.Sleep(50 * time.Millisecond)
	w.Stop()

	assert.Empty(t, fc.acked)
}

func TestWorker_Health(t *testing.T) {
	fc := &fakeConsumer{}
	w := NewWorker("w1", fc, func(_ context.Context, _ Message) error { return nil })

	h := w.Health()
	require.Equal(t, "w1", h.ID)
	assert.Equal(t, WorkerStatusIdle, h.Status)
}

func TestResultStreamName(t *testing.T) {
	assert.Equal(t, "job-result:abc", ResultStreamName("abc"))
}
