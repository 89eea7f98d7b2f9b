package generation

import (
	"context"
	"log/slog"
	"time"

	"github.com/hrygo/divinesense/internal/model"
)

// stuckJobAge is how long a job may sit in JobStateActive before the
// sweeper considers it abandoned, per spec.md §7.
const stuckJobAge = time.Hour

// stuckJobBatchSize bounds how many stuck jobs one sweep pass reclaims,
// per spec.md §7's "500 at a time".
const stuckJobBatchSize = 500

// stuckJobMessage is the replayable error spec.md §7 requires so a
// caller knows the job can simply be resubmitted.
const stuckJobMessage = "Job timed out — worker may have restarted."

// StuckJobFinder locates jobs that started and never reached a terminal
// state.
type StuckJobFinder interface {
	FindStuck(ctx context.Context, olderThan time.Time, limit int) ([]model.JobRecord, error)
}

// Sweeper periodically reclaims stuck jobs by writing a failed result and
// marking them terminal, per spec.md §7's "Stuck-job recovery" rule.
type Sweeper struct {
	finder  StuckJobFinder
	tracker JobTracker
	resultW ResultWriter
}

// NewSweeper builds a Sweeper.
func NewSweeper(finder StuckJobFinder, tracker JobTracker, resultW ResultWriter) *Sweeper {
	return &Sweeper{finder: finder, tracker: tracker, resultW: resultW}
}

// Run ticks every interval until ctx is cancelled, sweeping stuck jobs on
// each tick. It does not return until ctx.Done().
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := s.SweepOnce(ctx)
			if err != nil {
				slog.Error("generation: sweep failed", "err", err)
				continue
			}
			if n > 0 {
				slog.Info("generation: swept stuck jobs", "count", n)
			}
		}
	}
}

// SweepOnce finds jobs stuck in active state and marks each one failed
// with a replayable error, returning how many were reclaimed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	cutoff := time.Now().Add(-stuckJobAge)
	stuck, err := s.finder.FindStuck(ctx, cutoff, stuckJobBatchSize)
	if err != nil {
		return 0, err
	}

	for _, rec := range stuck {
		result := model.LLMGenerationResult{
			RequestID: rec.RequestID,
			Success:   false,
			Error:     stuckJobMessage,
		}
		if err := s.resultW.WriteResult(ctx, rec.ID, result); err != nil {
			slog.Error("generation: failed to write stuck-job result", "job_id", rec.ID, "err", err)
			continue
		}
		if err := s.tracker.TrackTerminal(ctx, rec.ID, rec.RequestID, rec.Type, model.JobStateFailed); err != nil {
			slog.Error("generation: failed to mark stuck job failed", "job_id", rec.ID, "err", err)
		}
	}

	return len(stuck), nil
}
