// Package jobplan builds and schedules the dependency graph for a
// request, per spec.md §4.2. Plan construction (classification, job-id
// derivation, dependency wiring) has no direct teacher analogue and is
// grounded on the shape of the teacher's own Task/TaskPlan
// (ai/agents/orchestrator/types.go); the scheduler in scheduler.go adapts
// ai/agents/orchestrator/dag_scheduler.go's Kahn's-algorithm loop
// verbatim in structure, generalized from LLM "expert" tasks to
// preprocessing/generation jobs.
package jobplan

import (
	"fmt"

	"github.com/hrygo/divinesense/internal/model"
)

// ErrInvalidAttachmentType is returned when any attachment's content type
// is neither audio/* nor image/*. A list mixing audio and image
// attachments is accepted and yields jobs of both kinds.
var ErrInvalidAttachmentType = fmt.Errorf("Invalid attachment type")

// Plan is the output of Build: every preprocessing job plus the single
// generation job that depends on them.
type Plan struct {
	PreprocessingJobs []*model.Job
	GenerationJob     *model.Job
}

// AllJobs returns every job in the plan, preprocessing jobs first and the
// generation job last — the enqueue order spec.md §4.2 requires so
// preprocessors can begin in parallel before the generation worker blocks
// on their results.
func (p *Plan) AllJobs() []*model.Job {
	jobs := make([]*model.Job, 0, len(p.PreprocessingJobs)+1)
	jobs = append(jobs, p.PreprocessingJobs...)
	jobs = append(jobs, p.GenerationJob)
	return jobs
}

// Index maps every job in the plan by its ID, for Executors that only
// receive a jobID (the in-process Scheduler.Execute call) and need to
// look the full Job back up.
func (p *Plan) Index() map[string]*model.Job {
	idx := make(map[string]*model.Job)
	for _, j := range p.AllJobs() {
		idx[j.ID] = j
	}
	return idx
}

// Build classifies req's attachments into preprocessing jobs and
// constructs the single generation job that depends on all of them, per
// spec.md §4.2's classification rules:
//   - every audio/* attachment yields its own audio-transcription job
//   - every image/* attachment batches into a single image-description job
//   - any other content type makes the whole request invalid
func Build(req *model.Request) (*Plan, error) {
	var audioAttachments []model.Attachment
	var imageAttachments []model.Attachment

	for _, a := range req.Attachments {
		switch a.Classify() {
		case model.AttachmentAudio:
			audioAttachments = append(audioAttachments, a)
		case model.AttachmentImage:
			imageAttachments = append(imageAttachments, a)
		default:
			return nil, fmt.Errorf("%w: %q", ErrInvalidAttachmentType, a.ContentType)
		}
	}

	plan := &Plan{}
	var deps []model.JobDependency

	for i, a := range audioAttachments {
		jobID := audioJobID(req.RequestID, i)
		job := &model.Job{
			CreatedAt: req.CreatedAt,
			ID:        jobID,
			RequestID: req.RequestID,
			Type:      model.JobTypeAudioTranscription,
			Data: map[string]any{
				"attachment": a,
			},
			State: model.JobStateQueued,
		}
		plan.PreprocessingJobs = append(plan.PreprocessingJobs, job)

		resultKey := fmt.Sprintf("%s:%s:%d", req.RequestID, model.JobTypeAudioTranscription, i)
		deps = append(deps, model.JobDependency{JobID: jobID, ResultKey: resultKey, Type: model.JobTypeAudioTranscription})
	}

	if len(imageAttachments) > 0 {
		jobID := imageJobID(req.RequestID)
		job := &model.Job{
			CreatedAt: req.CreatedAt,
			ID:        jobID,
			RequestID: req.RequestID,
			Type:      model.JobTypeImageDescription,
			Data: map[string]any{
				"attachments": imageAttachments,
			},
			State: model.JobStateQueued,
		}
		plan.PreprocessingJobs = append(plan.PreprocessingJobs, job)

		resultKey := fmt.Sprintf("%s:%s", req.RequestID, model.JobTypeImageDescription)
		deps = append(deps, model.JobDependency{JobID: jobID, ResultKey: resultKey, Type: model.JobTypeImageDescription})
	}

	plan.GenerationJob = &model.Job{
		CreatedAt:    req.CreatedAt,
		ID:           generationJobID(req.RequestID),
		RequestID:    req.RequestID,
		Type:         model.JobTypeLLMGeneration,
		Data:         map[string]any{"requestId": req.RequestID, "request": req},
		Dependencies: deps,
		State:        model.JobStateQueued,
	}

	return plan, nil
}

func audioJobID(requestID string, index int) string {
	return fmt.Sprintf("audio-%s-%d", requestID, index)
}

func imageJobID(requestID string) string {
	return fmt.Sprintf("image-%s", requestID)
}

func generationJobID(requestID string) string {
	return fmt.Sprintf("llm-%s", requestID)
}
