// Package logging wires up the process-wide structured logger, matching
// the teacher's use of log/slog throughout (ai/router/service.go,
// ai/agents/runner/runner.go, ai/agents/orchestrator/dag_scheduler.go).
package logging

import (
	"context"
	"log/slog"
	"os"
)

// Setup installs a JSON slog handler at the given level as the default
// logger and returns it. modes "dev" and "demo" get a human-readable
// text handler instead, mirroring the teacher's profile.IsDev() split in
// cmd/divinesense/main.go.
func Setup(mode string, level slog.Level) *slog.Logger {
	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if mode == "dev" || mode == "demo" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// WithJob returns a logger pre-populated with request_id/job_id fields, for
// the structured-context-on-every-catch policy in spec.md §7.
func WithJob(ctx context.Context, logger *slog.Logger, requestID, jobID string) *slog.Logger {
	return logger.With(
		slog.String("request_id", requestID),
		slog.String("job_id", jobID),
	)
}
