package preprocess

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/model"
)

func TestVisionModelResolver_PrefersPersonalityModel(t *testing.T) {
	r := NewVisionModelResolver("fallback-model")
	assert.Equal(t, "custom-vision", r.Resolve("custom-vision", "gpt-3.5-turbo"))
}

func TestVisionModelResolver_FallsBackToMainModelIfVisionCapable(t *testing.T) {
	r := NewVisionModelResolver("fallback-model")
	assert.Equal(t, "gpt-4o-mini", r.Resolve("", "gpt-4o-mini"))
	assert.Equal(t, "claude-3-opus", r.Resolve("", "claude-3-opus"))
}

func TestVisionModelResolver_UsesConfiguredFallback(t *testing.T) {
	r := NewVisionModelResolver("fallback-model")
	assert.Equal(t, "fallback-model", r.Resolve("", "gpt-3.5-turbo"))
}

func TestVisionModelResolver_CaseInsensitive(t *testing.T) {
	r := NewVisionModelResolver("fallback-model")
	assert.Equal(t, "GPT-4O", r.Resolve("", "GPT-4O"))
}

type stubTranscriber struct {
	text string
	err  error
}

func (s *stubTranscriber) Transcribe(_ context.Context, _ model.Attachment) (string, error) {
	return s.text, s.err
}

func TestAudioWorker_RejectsNonAudioAttachment(t *testing.T) {
	w := NewAudioWorker(&stubTranscriber{text: "hello"})
	result := w.Process(context.Background(), model.Attachment{ContentType: "image/png"})
	assert.False(t, result.Success)
	assert.Equal(t, "Invalid attachment type", result.Error)
}

func TestAudioWorker_SucceedsOnTranscription(t *testing.T) {
	w := NewAudioWorker(&stubTranscriber{text: "hello world"})
	result := w.Process(context.Background(), model.Attachment{ContentType: "audio/mpeg"})
	require.True(t, result.Success)
	assert.Equal(t, "hello world", result.Content)
}

func TestAudioWorker_RetriesThenFails(t *testing.T) {
	w := NewAudioWorker(&stubTranscriber{err: fmt.Errorf("provider down")})
	result := w.Process(context.Background(), model.Attachment{ContentType: "audio/wav"})
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "transcription failed")
}

type stubDescriber struct {
	failIndexes map[int]bool
	calls       atomic.Int32
}

func (s *stubDescriber) Describe(_ context.Context, attachment model.Attachment, _ string) (string, error) {
	s.calls.Add(1)
	if s.failIndexes[int(attachment.Size)] {
		return "", fmt.Errorf("describe failed")
	}
	return "a description of " + attachment.Name, nil
}

func TestImageWorker_GracefulDegradation_OneFailureStillSucceeds(t *testing.T) {
	d := &stubDescriber{failIndexes: map[int]bool{1: true}}
	w := NewImageWorker(d, NewVisionModelResolver("fallback-model"))

	attachments := []model.Attachment{
		{Name: "a.png", URL: "https://example.com/a.png", ContentType: "image/png", Size: 0},
		{Name: "b.png", URL: "https://example.com/b.png", ContentType: "image/png", Size: 1},
	}

	result := w.Process(context.Background(), attachments, "", "gpt-4o")
	require.True(t, result.Success)
	require.Len(t, result.Descriptions, 1)
	assert.Equal(t, "https://example.com/a.png", result.Descriptions[0].URL)
	assert.Equal(t, "a description of a.png", result.Descriptions[0].Description)
	assert.Equal(t, 2, result.ImageCount)
	assert.Equal(t, 1, result.FailedCount)
	assert.GreaterOrEqual(t, result.ProcessingTimeMs, int64(0))
}

func TestImageWorker_AllFail(t *testing.T) {
	d := &stubDescriber{failIndexes: map[int]bool{0: true, 1: true}}
	w := NewImageWorker(d, NewVisionModelResolver("fallback-model"))

	attachments := []model.Attachment{
		{Name: "a.png", ContentType: "image/png", Size: 0},
		{Name: "b.png", ContentType: "image/png", Size: 1},
	}

	result := w.Process(context.Background(), attachments, "", "gpt-4o")
	assert.False(t, result.Success)
	assert.Equal(t, 2, result.ImageCount)
	assert.Equal(t, 2, result.FailedCount)
	assert.NotEmpty(t, result.Error)
	assert.GreaterOrEqual(t, result.ProcessingTimeMs, int64(0))
}
