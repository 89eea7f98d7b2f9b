package preprocess

import (
	"context"
	"fmt"

	"github.com/hrygo/divinesense/internal/model"
	"github.com/hrygo/divinesense/internal/retry"
)

// Transcriber turns one audio attachment into text. Implementations live
// in internal/llmclient, wrapping whichever provider the deployment is
// configured with.
type Transcriber interface {
	Transcribe(ctx context.Context, attachment model.Attachment) (string, error)
}

// AudioResult is the outcome of one audio-transcription job.
type AudioResult struct {
	Success bool
	Content string
	Error   string
}

// AudioWorker runs audio-transcription jobs: one attachment in, one
// result out, per spec.md §4.3.
type AudioWorker struct {
	transcriber Transcriber
	policy      retry.Policy
}

// NewAudioWorker builds a worker using retry.DefaultPolicy for the
// transcription call wrap spec.md §4.3 requires ("Wraps the
// transcription call with retry").
func NewAudioWorker(transcriber Transcriber) *AudioWorker {
	return &AudioWorker{transcriber: transcriber, policy: retry.DefaultPolicy()}
}

// Process transcribes a single attachment, failing fast with
// "Invalid attachment type" when it is not audio/*.
func (w *AudioWorker) Process(ctx context.Context, attachment model.Attachment) AudioResult {
	if attachment.Classify() != model.AttachmentAudio {
		return AudioResult{Success: false, Error: "Invalid attachment type"}
	}

	var content string
	err := retry.Do(ctx, w.policy, "audio-transcription", func(_ int) error {
		text, err := w.transcriber.Transcribe(ctx, attachment)
		if err != nil {
			return err
		}
		content = text
		return nil
	})
	if err != nil {
		return AudioResult{Success: false, Error: fmt.Sprintf("transcription failed: %v", err)}
	}

	return AudioResult{Success: true, Content: content}
}
