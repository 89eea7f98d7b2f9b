package server

import (
	"context"

	"github.com/hrygo/divinesense/internal/jobplan"
)

// SchedulerRunner implements PlanRunner by building a fresh Dispatcher
// and in-process Scheduler for each plan, per spec.md §4.2's "all-in-one
// deployment mode" execution path. registry is shared across every plan
// so the generation worker (constructed once at startup, independent of
// any particular plan) can resolve its jobID back to a full *model.Job.
type SchedulerRunner struct {
	store      ResultStore
	audio      AudioProcessor
	image      ImageProcessor
	generation GenerationExecutor
	mainModel  string
	registry   *JobRegistry
}

// NewSchedulerRunner builds a SchedulerRunner.
func NewSchedulerRunner(store ResultStore, audio AudioProcessor, image ImageProcessor, generation GenerationExecutor, mainModel string, registry *JobRegistry) *SchedulerRunner {
	return &SchedulerRunner{store: store, audio: audio, image: image, generation: generation, mainModel: mainModel, registry: registry}
}

// Run schedules and executes every job in plan to completion.
func (r *SchedulerRunner) Run(ctx context.Context, plan *jobplan.Plan) error {
	r.registry.register(plan)
	defer r.registry.release(plan)

	dispatcher := NewDispatcher(plan, r.store, r.audio, r.image, r.generation, r.mainModel)
	scheduler := jobplan.NewScheduler(plan, dispatcher)
	return scheduler.Run(ctx)
}
