package preprocess

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hrygo/divinesense/internal/model"
	"github.com/hrygo/divinesense/internal/retry"
)

// Describer produces a textual description of one image attachment using
// the given model name. Implementations live in internal/llmclient.
type Describer interface {
	Describe(ctx context.Context, attachment model.Attachment, visionModel string) (string, error)
}

// ImageDescription pairs one attachment's URL with the vision output
// describing it, per spec.md's documented image-description scenario
// ("descriptions:[{url, description}]").
type ImageDescription struct {
	URL         string
	Description string
}

// ImageResult is the outcome of one image-description job, supporting the
// graceful-degradation contract of spec.md §4.3: a job succeeds as long
// as at least one image succeeds.
type ImageResult struct {
	Success          bool
	Descriptions     []ImageDescription
	ImageCount       int
	FailedCount      int
	ProcessingTimeMs int64
	Error            string
}

// ImageWorker processes all attachments of one image-description job
// concurrently, per spec.md §4.3.
type ImageWorker struct {
	describer Describer
	resolver  *VisionModelResolver
	policy    retry.Policy
}

// imagePolicy caps at 3 attempts per image, matching spec.md §4.3's
// "Per-image retry (max 3 attempts) with exponential backoff".
func imagePolicy() retry.Policy {
	p := retry.DefaultPolicy()
	p.MaxAttempts = 3
	return p
}

// NewImageWorker builds a worker that routes each call through resolver
// to pick the vision-capable model.
func NewImageWorker(describer Describer, resolver *VisionModelResolver) *ImageWorker {
	return &ImageWorker{describer: describer, resolver: resolver, policy: imagePolicy()}
}

type imageOutcome struct {
	index       int
	url         string
	description string
	err         error
}

// Process runs attachments through the describer concurrently, returning
// a succeeded job with only the successful descriptions if at least one
// attachment succeeded, or a failed job with a concatenated error if all
// failed.
func (w *ImageWorker) Process(ctx context.Context, attachments []model.Attachment, personalityVisionModel, mainModel string) ImageResult {
	start := time.Now()
	visionModel := w.resolver.Resolve(personalityVisionModel, mainModel)

	outcomes := make([]imageOutcome, len(attachments))
	var wg sync.WaitGroup
	for i, a := range attachments {
		wg.Add(1)
		go func(idx int, attachment model.Attachment) {
			defer wg.Done()
			outcomes[idx] = w.processOne(ctx, idx, attachment, visionModel)
		}(i, a)
	}
	wg.Wait()

	var descriptions []ImageDescription
	var errs []string
	for _, o := range outcomes {
		if o.err != nil {
			errs = append(errs, o.err.Error())
			continue
		}
		descriptions = append(descriptions, ImageDescription{URL: o.url, Description: o.description})
	}

	processingTimeMs := time.Since(start).Milliseconds()

	if len(descriptions) == 0 {
		return ImageResult{
			Success:          false,
			ImageCount:       len(attachments),
			FailedCount:      len(errs),
			ProcessingTimeMs: processingTimeMs,
			Error:            strings.Join(errs, "; "),
		}
	}

	return ImageResult{
		Success:          true,
		Descriptions:     descriptions,
		ImageCount:       len(attachments),
		FailedCount:      len(errs),
		ProcessingTimeMs: processingTimeMs,
	}
}

func (w *ImageWorker) processOne(ctx context.Context, index int, attachment model.Attachment, visionModel string) imageOutcome {
	if attachment.Classify() != model.AttachmentImage {
		return imageOutcome{index: index, url: attachment.URL, err: fmt.Errorf("invalid attachment type")}
	}

	var description string
	err := retry.Do(ctx, w.policy, "image-description", func(_ int) error {
		desc, err := w.describer.Describe(ctx, attachment, visionModel)
		if err != nil {
			return err
		}
		description = desc
		return nil
	})
	if err != nil {
		return imageOutcome{index: index, url: attachment.URL, err: fmt.Errorf("attachment %q: %w", attachment.Name, err)}
	}
	return imageOutcome{index: index, url: attachment.URL, description: description}
}
