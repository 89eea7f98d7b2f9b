// Package server is the HTTP surface of spec.md §6: job submission,
// delivery confirmation, and the in-process job dispatcher that routes a
// scheduled job to whichever worker its type names. Grounded on the
// teacher's server/router/api/v1 echo.Group wiring style, generalized
// from the note-taking REST surface to the two orchestration endpoints.
package server

import (
	"context"
	"fmt"

	"github.com/hrygo/divinesense/internal/jobplan"
	"github.com/hrygo/divinesense/internal/model"
	"github.com/hrygo/divinesense/internal/preprocess"
)

// ResultStore persists a preprocessing job's output under its dependency
// result key. Satisfied by *internal/jobstore.JobStore.
type ResultStore interface {
	WriteDeliveredResult(ctx context.Context, resultKey string, body any) error
}

// AudioProcessor runs one audio-transcription job.
type AudioProcessor interface {
	Process(ctx context.Context, attachment model.Attachment) preprocess.AudioResult
}

// ImageProcessor runs one image-description job.
type ImageProcessor interface {
	Process(ctx context.Context, attachments []model.Attachment, personalityVisionModel, mainModel string) preprocess.ImageResult
}

// GenerationExecutor runs the llm-generation job's lifecycle.
type GenerationExecutor interface {
	Execute(ctx context.Context, jobID string) error
}

// Dispatcher implements internal/jobplan.Executor by routing a scheduled
// job to the worker its Type names, writing preprocessing results
// through jobstore as already-DELIVERED rows (nothing external ever
// confirms a preprocessing job's delivery — only the generation job's
// final result goes through the PENDING_DELIVERY flow).
type Dispatcher struct {
	jobs       jobplan.Plan
	index      map[string]*model.Job
	store      ResultStore
	audio      AudioProcessor
	image      ImageProcessor
	generation GenerationExecutor
	mainModel  string
}

// NewDispatcher builds a Dispatcher over plan's jobs.
func NewDispatcher(plan *jobplan.Plan, store ResultStore, audio AudioProcessor, image ImageProcessor, generation GenerationExecutor, mainModel string) *Dispatcher {
	return &Dispatcher{
		jobs:       *plan,
		index:      plan.Index(),
		store:      store,
		audio:      audio,
		image:      image,
		generation: generation,
		mainModel:  mainModel,
	}
}

// Execute dispatches jobID to the worker matching its job type.
func (d *Dispatcher) Execute(ctx context.Context, jobID string) error {
	job, ok := d.index[jobID]
	if !ok {
		return fmt.Errorf("server: unknown job %q", jobID)
	}

	switch job.Type {
	case model.JobTypeAudioTranscription:
		return d.runAudio(ctx, job)
	case model.JobTypeImageDescription:
		return d.runImage(ctx, job)
	case model.JobTypeLLMGeneration:
		return d.generation.Execute(ctx, jobID)
	default:
		return fmt.Errorf("server: no executor for job type %q", job.Type)
	}
}

func (d *Dispatcher) runAudio(ctx context.Context, job *model.Job) error {
	attachment, ok := job.Data["attachment"].(model.Attachment)
	if !ok {
		return fmt.Errorf("server: audio job %s missing attachment", job.ID)
	}
	result := d.audio.Process(ctx, attachment)
	return d.store.WriteDeliveredResult(ctx, d.resultKeyFor(job), result)
}

func (d *Dispatcher) runImage(ctx context.Context, job *model.Job) error {
	attachments, ok := job.Data["attachments"].([]model.Attachment)
	if !ok {
		return fmt.Errorf("server: image job %s missing attachments", job.ID)
	}

	visionModel := ""
	if req, ok := d.requestFor(job); ok && req.Personality != nil {
		visionModel = req.Personality.VisionModel
	}

	result := d.image.Process(ctx, attachments, visionModel, d.mainModel)
	return d.store.WriteDeliveredResult(ctx, d.resultKeyFor(job), result)
}

// requestFor finds the generation job's attached request, the only place
// a preprocessing job's originating request is reachable from, since
// preprocessing jobs themselves carry just their own attachment(s).
func (d *Dispatcher) requestFor(job *model.Job) (*model.Request, bool) {
	gen := d.jobs.GenerationJob
	if gen == nil {
		return nil, false
	}
	req, ok := gen.Data["request"].(*model.Request)
	return req, ok
}

// resultKeyFor looks up job's dependency entry on the generation job to
// find the resultKey internal/jobplan.Build assigned it — the key's
// format (e.g. "<requestId>:image-description") differs from the job's
// own id (e.g. "image-<requestId>"), so it cannot be derived from job.ID
// alone.
func (d *Dispatcher) resultKeyFor(job *model.Job) string {
	gen := d.jobs.GenerationJob
	if gen != nil {
		for _, dep := range gen.Dependencies {
			if dep.JobID == job.ID {
				return dep.ResultKey
			}
		}
	}
	return job.ID
}
