package jobplan

import (
	"fmt"

	"github.com/hrygo/divinesense/internal/model"
)

// Validate checks every job in plan against spec.md §4.2's pre-enqueue
// schema rules (required fields present, sizes non-negative, personality
// carries contextWindowTokens, responseDestination present). Any failure
// aborts the whole chain — callers must not enqueue a partially-valid
// plan.
func Validate(req *model.Request, plan *Plan) error {
	if req.RequestID == "" {
		return fmt.Errorf("jobplan: request id is required")
	}
	if req.ResponseDestination == "" {
		return fmt.Errorf("jobplan: responseDestination is required")
	}
	if req.Personality == nil {
		return fmt.Errorf("jobplan: personality is required")
	}
	if req.Personality.ContextWindowTokens <= 0 {
		return fmt.Errorf("jobplan: personality.contextWindowTokens must be positive")
	}

	for _, a := range req.Attachments {
		if a.Size < 0 {
			return fmt.Errorf("jobplan: attachment %q has negative size", a.Name)
		}
	}

	for _, job := range plan.AllJobs() {
		if err := validateJob(job); err != nil {
			return err
		}
	}

	if err := validateGenerationDependencies(plan); err != nil {
		return err
	}

	return nil
}

func validateJob(job *model.Job) error {
	if job.ID == "" {
		return fmt.Errorf("jobplan: job missing id")
	}
	if job.RequestID == "" {
		return fmt.Errorf("jobplan: job %q missing requestId", job.ID)
	}
	if job.State != model.JobStateQueued {
		return fmt.Errorf("jobplan: job %q must be queued before enqueue, got %q", job.ID, job.State)
	}
	for _, dep := range job.Dependencies {
		if dep.JobID == "" || dep.ResultKey == "" {
			return fmt.Errorf("jobplan: job %q has an incomplete dependency", job.ID)
		}
	}
	return nil
}

// validateGenerationDependencies enforces spec.md §3's invariant:
// llm-generation.dependencies must be exactly the set of preprocessing
// jobs created for the same request, and preprocessing jobs must have
// empty dependency lists of their own.
func validateGenerationDependencies(plan *Plan) error {
	preIDs := make(map[string]bool, len(plan.PreprocessingJobs))
	for _, job := range plan.PreprocessingJobs {
		if len(job.Dependencies) != 0 {
			return fmt.Errorf("jobplan: preprocessing job %q must have no dependencies", job.ID)
		}
		preIDs[job.ID] = true
	}

	genDeps := make(map[string]bool, len(plan.GenerationJob.Dependencies))
	for _, dep := range plan.GenerationJob.Dependencies {
		if !preIDs[dep.JobID] {
			return fmt.Errorf("jobplan: generation job depends on unknown job %q", dep.JobID)
		}
		genDeps[dep.JobID] = true
	}
	for id := range preIDs {
		if !genDeps[id] {
			return fmt.Errorf("jobplan: generation job is missing dependency on preprocessing job %q", id)
		}
	}

	return nil
}
