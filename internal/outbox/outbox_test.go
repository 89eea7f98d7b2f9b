package outbox

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/model"
)

type fakeStore struct {
	pending map[string]*model.PendingMemory
}

func newFakeStore() *fakeStore {
	return &fakeStore{pending: map[string]*model.PendingMemory{}}
}

func (s *fakeStore) InsertPendingMemory(_ context.Context, pm *model.PendingMemory) (string, error) {
	if pm.Memory.ID == "" {
		pm.Memory.ID = fmt.Sprintf("pending-%d", len(s.pending)+1)
	}
	cp := *pm
	s.pending[pm.Memory.ID] = &cp
	return pm.Memory.ID, nil
}

func (s *fakeStore) DeletePendingMemory(_ context.Context, id string) error {
	delete(s.pending, id)
	return nil
}

func (s *fakeStore) MarkPendingMemoryFailed(_ context.Context, id, lastError string) error {
	pm, ok := s.pending[id]
	if !ok {
		return fmt.Errorf("not found")
	}
	pm.Attempts++
	pm.LastError = lastError
	return nil
}

func (s *fakeStore) DrainPendingMemory(_ context.Context, limit int) ([]*model.PendingMemory, error) {
	var out []*model.PendingMemory
	for _, pm := range s.pending {
		out = append(out, pm)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

type fakeCommitter struct {
	err func(pm *model.PendingMemory) error
}

func (c *fakeCommitter) Retry(_ context.Context, pm *model.PendingMemory) error {
	if c.err == nil {
		return nil
	}
	return c.err(pm)
}

func TestRecordAndClear(t *testing.T) {
	store := newFakeStore()
	o := New(store, &fakeCommitter{}, 5)

	id, err := o.Record(context.Background(), &model.PendingMemory{Memory: model.Memory{Content: "hi"}})
	require.NoError(t, err)
	require.Len(t, store.pending, 1)

	require.NoError(t, o.Clear(context.Background(), id))
	assert.Empty(t, store.pending)
}

func TestRetryOnce_SucceedsAndClears(t *testing.T) {
	store := newFakeStore()
	id, _ := store.InsertPendingMemory(context.Background(), &model.PendingMemory{Memory: model.Memory{Content: "hi"}})
	_ = id

	o := New(store, &fakeCommitter{}, 5)
	succeeded, failed, skipped := o.RetryOnce(context.Background(), 10)
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 0, skipped)
	assert.Empty(t, store.pending)
}

func TestRetryOnce_MarksFailedOnCommitError(t *testing.T) {
	store := newFakeStore()
	store.InsertPendingMemory(context.Background(), &model.PendingMemory{Memory: model.Memory{Content: "hi"}}) //nolint:errcheck

	committer := &fakeCommitter{err: func(*model.PendingMemory) error { return fmt.Errorf("still broken") }}
	o := New(store, committer, 5)

	succeeded, failed, skipped := o.RetryOnce(context.Background(), 10)
	assert.Equal(t, 0, succeeded)
	assert.Equal(t, 1, failed)
	assert.Equal(t, 0, skipped)
	require.Len(t, store.pending, 1)
	for _, pm := range store.pending {
		assert.Equal(t, 1, pm.Attempts)
	}
}

func TestRetryOnce_SkipsRowsAtMaxAttempts(t *testing.T) {
	store := newFakeStore()
	id, _ := store.InsertPendingMemory(context.Background(), &model.PendingMemory{Memory: model.Memory{Content: "hi"}})
	store.pending[id].Attempts = 5

	o := New(store, &fakeCommitter{}, 5)
	succeeded, failed, skipped := o.RetryOnce(context.Background(), 10)
	assert.Equal(t, 0, succeeded)
	assert.Equal(t, 0, failed)
	assert.Equal(t, 1, skipped)
}

func TestRun_StopsOnStop(t *testing.T) {
	store := newFakeStore()
	o := New(store, &fakeCommitter{}, 5)

	done := make(chan struct{})
	go func() {
		o.Run(context.Background(), 10*time.Millisecond, 10)
		close(done)
	}()

	o.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not stop in time")
	}
}
