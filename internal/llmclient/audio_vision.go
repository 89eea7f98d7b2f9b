package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/pkg/errors"

	"github.com/hrygo/divinesense/internal/model"
)

// Transcribe downloads attachment and submits it to the audio
// transcriptions endpoint, implementing internal/preprocess.Transcriber.
func (c *Client) Transcribe(ctx context.Context, attachment model.Attachment) (string, error) {
	data, err := c.fetch(ctx, attachment.URL)
	if err != nil {
		return "", errors.Wrap(err, "failed to fetch audio attachment")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile("file", attachment.Name)
	if err != nil {
		return "", errors.Wrap(err, "failed to build transcription form")
	}
	if _, err := fw.Write(data); err != nil {
		return "", errors.Wrap(err, "failed to write attachment bytes")
	}
	if err := mw.WriteField("model", c.transcriptionModel); err != nil {
		return "", errors.Wrap(err, "failed to write model field")
	}
	if err := mw.Close(); err != nil {
		return "", errors.Wrap(err, "failed to close transcription form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", &body)
	if err != nil {
		return "", errors.Wrap(err, "failed to build transcription request")
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "transcription request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read transcription response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("transcription request returned status %d: %s", resp.StatusCode, truncate(string(raw), 500))
	}

	var parsed struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.Wrap(err, "failed to parse transcription response")
	}
	return parsed.Text, nil
}

const describePrompt = "Describe this image in detail, focusing on anything relevant to the conversation."

type visionImageURL struct {
	URL string `json:"url"`
}

type visionContentBlock struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *visionImageURL `json:"image_url,omitempty"`
}

type visionMessage struct {
	Role    string               `json:"role"`
	Content []visionContentBlock `json:"content"`
}

type visionRequest struct {
	Model     string          `json:"model"`
	Messages  []visionMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

// Describe submits attachment's URL directly to visionModel as an
// image_url content block, implementing internal/preprocess.Describer.
// Attachments are referenced by URL rather than downloaded and
// re-encoded, matching how every OpenAI-compatible vision endpoint
// accepts image input.
func (c *Client) Describe(ctx context.Context, attachment model.Attachment, visionModel string) (string, error) {
	wireReq := visionRequest{
		Model: visionModel,
		Messages: []visionMessage{
			{
				Role: "user",
				Content: []visionContentBlock{
					{Type: "text", Text: describePrompt},
					{Type: "image_url", ImageURL: &visionImageURL{URL: attachment.URL}},
				},
			},
		},
		MaxTokens: 300,
	}

	body, err := json.Marshal(wireReq)
	if err != nil {
		return "", errors.Wrap(err, "failed to marshal vision request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", errors.Wrap(err, "failed to build vision request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "vision request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, "failed to read vision response")
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", errors.Errorf("vision request returned status %d: %s", resp.StatusCode, truncate(string(raw), 500))
	}

	var parsed wireResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", errors.Wrap(err, "failed to parse vision response")
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("vision response had no choices")
	}
	return parsed.Choices[0].Message.Content, nil
}

// fetch downloads url's body, used to pull an attachment's bytes for the
// transcription endpoint (which requires a file upload, unlike vision
// endpoints that accept a bare URL).
func (c *Client) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("fetch returned status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
