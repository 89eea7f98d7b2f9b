// Package outbox wraps the pending-memory table with the periodic retry
// sweep spec.md §4.9 describes, run as a ticker-driven background
// goroutine like stuck-job recovery: a single process-wide owner,
// lifecycle-started and stopped by the top-level runtime.
package outbox

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/divinesense/internal/model"
	"github.com/hrygo/divinesense/internal/retry"
)

// Store is the persistence surface this package needs.
type Store interface {
	InsertPendingMemory(ctx context.Context, pm *model.PendingMemory) (string, error)
	DeletePendingMemory(ctx context.Context, id string) error
	MarkPendingMemoryFailed(ctx context.Context, id, lastError string) error
	DrainPendingMemory(ctx context.Context, limit int) ([]*model.PendingMemory, error)
}

// Committer re-attempts the embed+insert a pending row represents. It is
// satisfied by internal/memorystore.MemoryStore's internal commit path —
// exposed here as an interface so the sweeper can retry without importing
// memorystore directly (outbox sits below memorystore in the dependency
// graph: memorystore writes pending rows, outbox drains them).
type Committer interface {
	Retry(ctx context.Context, pm *model.PendingMemory) error
}

const defaultMaxAttempts = 5

// Outbox records and drains pending-memory rows.
type Outbox struct {
	store       Store
	committer   Committer
	maxAttempts int
	stopCh      chan struct{}
}

// New builds an Outbox. maxAttempts <= 0 uses defaultMaxAttempts.
func New(store Store, committer Committer, maxAttempts int) *Outbox {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	return &Outbox{store: store, committer: committer, maxAttempts: maxAttempts, stopCh: make(chan struct{})}
}

// Record writes a new pending-memory outbox row.
func (o *Outbox) Record(ctx context.Context, pm *model.PendingMemory) (string, error) {
	return o.store.InsertPendingMemory(ctx, pm)
}

// Clear deletes a pending-memory row once its real write succeeded.
func (o *Outbox) Clear(ctx context.Context, id string) error {
	return o.store.DeletePendingMemory(ctx, id)
}

// MarkFailed records a failed attempt against a pending row.
func (o *Outbox) MarkFailed(ctx context.Context, id string, cause error) error {
	return o.store.MarkPendingMemoryFailed(ctx, id, cause.Error())
}

// DrainPending lists up to batchSize outstanding rows.
func (o *Outbox) DrainPending(ctx context.Context, batchSize int) ([]*model.PendingMemory, error) {
	return o.store.DrainPendingMemory(ctx, batchSize)
}

// RetryOnce drains one batch and attempts to recommit each row whose
// attempts remain under maxAttempts. Each row gets a single commit
// attempt per sweep (a retry.Policy with MaxAttempts 1, so no backoff
// delay is applied); a row that fails is tried again on a later sweep.
func (o *Outbox) RetryOnce(ctx context.Context, batchSize int) (succeeded, failed, skipped int) {
	pending, err := o.DrainPending(ctx, batchSize)
	if err != nil {
		slog.Error("outbox: failed to drain pending memory", "error", err)
		return 0, 0, 0
	}

	for _, pm := range pending {
		if pm.Attempts >= o.maxAttempts {
			skipped++
			continue
		}

		policy := retry.Policy{MaxAttempts: 1, BaseBackoff: time.Second, MaxBackoff: 10 * time.Second}
		err := retry.Do(ctx, policy, "outbox-retry", func(int) error {
			return o.committer.Retry(ctx, pm)
		})
		if err != nil {
			if markErr := o.MarkFailed(ctx, pm.Memory.ID, err); markErr != nil {
				slog.Error("outbox: failed to mark pending memory failed", "id", pm.Memory.ID, "error", markErr)
			}
			failed++
			continue
		}

		if clearErr := o.Clear(ctx, pm.Memory.ID); clearErr != nil {
			slog.Warn("outbox: commit succeeded but pending row not cleared", "id", pm.Memory.ID, "error", clearErr)
		}
		succeeded++
	}

	return succeeded, failed, skipped
}

// Run starts a ticker-driven sweep loop, grounded on the same periodic
// cleanup shape as stuck-job recovery (internal/generation). Blocks until
// ctx is cancelled or Stop is called.
func (o *Outbox) Run(ctx context.Context, interval time.Duration, batchSize int) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-o.stopCh:
			return
		case <-ticker.C:
			succeeded, failed, skipped := o.RetryOnce(ctx, batchSize)
			if succeeded+failed+skipped > 0 {
				slog.Info("outbox: retry sweep complete", "succeeded", succeeded, "failed", failed, "skipped", skipped)
			}
		}
	}
}

// Stop halts the Run loop.
func (o *Outbox) Stop() {
	close(o.stopCh)
}
