package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/hrygo/divinesense/internal/jobplan"
	"github.com/hrygo/divinesense/internal/model"
)

// JobRegistry tracks every job belonging to a plan currently scheduled in
// this process, letting the generation worker resolve a bare jobID (all
// jobplan.Scheduler ever passes to Execute) back to its full *model.Job —
// the same lookup Dispatcher does via Plan.Index, shared here across
// every in-flight plan instead of one. A job's Data carries live Go
// objects and is never persisted, so this registry only ever needs to
// survive for the lifetime of its own plan's run. Implements
// internal/generation.JobProvider structurally.
type JobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*model.Job
}

// NewJobRegistry builds an empty JobRegistry.
func NewJobRegistry() *JobRegistry {
	return &JobRegistry{jobs: make(map[string]*model.Job)}
}

func (r *JobRegistry) register(plan *jobplan.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, job := range plan.Index() {
		r.jobs[id] = job
	}
}

func (r *JobRegistry) release(plan *jobplan.Plan) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id := range plan.Index() {
		delete(r.jobs, id)
	}
}

// GetJob looks up jobID among every plan currently registered.
func (r *JobRegistry) GetJob(_ context.Context, jobID string) (*model.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	job, ok := r.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("server: job %q not found in registry", jobID)
	}
	return job, nil
}
