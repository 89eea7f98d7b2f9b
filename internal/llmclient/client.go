// Package llmclient is the custom HTTP wrapper around the model API that
// spec.md §4.8 step 6 describes: clone the response before parsing so the
// original body survives a parse failure, recover a 200 out of certain 4xx
// bodies, and merge a provider's `reasoning` field into `content`.
//
// Grounded on the teacher's ai/llm.go: the same Message shape, the same
// newHTTPClient dialer/timeout tuning (30s dial, 90s idle, 100 max idle
// conns), and the same env/provider-switch construction pattern as
// NewLLMService. go-openai's typed client is used elsewhere in this module
// (internal/embedding.Provider) for the embeddings endpoint, but the chat
// endpoint here is driven by net/http directly: go-openai's
// CreateChatCompletion discards the response body on a decode error and
// returns no body at all on a non-2xx status, so it cannot satisfy the
// clone-before-parse / 4xx-recovery / reasoning-merge contract this
// package implements — see DESIGN.md.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// Message is a single chat turn.
type Message struct {
	Role    string
	Content string
}

// ChatParams is the subset of model.LLMParams relevant to a chat
// completion call, plus the message list and target model. Pointer
// fields are omitted from the wire request when nil, matching the
// reasoning-model adaptation's need to outright forbid temperature for
// certain models (internal/generation classifies and sets these).
type ChatParams struct {
	Model       string
	Messages    []Message
	Temperature *float64
	MaxTokens   int
	TopP        *float64
	Stop        []string
	Seed        *int64
}

// Usage mirrors the provider's token accounting block.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// ChatResult is the outcome of a single Chat call, after reasoning/content
// merge.
type ChatResult struct {
	Content string
	Usage   Usage
	// Recovered is true when the 200-equivalent result was synthesized
	// from a 4xx error body's embedded choices, per spec.md §4.8 step 6.
	Recovered bool
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	// TranscriptionModel names the audio transcription model Transcribe
	// submits; defaults to "whisper-1" when empty.
	TranscriptionModel string
}

const defaultTranscriptionModel = "whisper-1"

// Client talks to an OpenAI-compatible chat completions endpoint.
type Client struct {
	httpClient         *http.Client
	baseURL            string
	apiKey             string
	transcriptionModel string
}

// New builds a Client. Grounded on ai/llm.go's newHTTPClient: a dedicated
// transport with conservative dial/idle timeouts rather than relying on
// http.DefaultClient.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	transcriptionModel := cfg.TranscriptionModel
	if transcriptionModel == "" {
		transcriptionModel = defaultTranscriptionModel
	}
	return &Client{
		baseURL:            strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:             cfg.APIKey,
		transcriptionModel: transcriptionModel,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   30 * time.Second,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConns:          100,
				IdleConnTimeout:       90 * time.Second,
				TLSHandshakeTimeout:   10 * time.Second,
				ExpectContinueTimeout: time.Second,
			},
		},
	}
}

type wireMessage struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Reasoning string `json:"reasoning,omitempty"`
}

type wireChoice struct {
	Message wireMessage `json:"message"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	TopP        *float64      `json:"top_p,omitempty"`
	Stop        []string      `json:"stop,omitempty"`
	Seed        *int64        `json:"seed,omitempty"`
}

// Chat invokes the chat completions endpoint once (retry is the caller's
// concern — see internal/generation's step 7 validation loop).
func (c *Client) Chat(ctx context.Context, params ChatParams) (*ChatResult, error) {
	body, err := json.Marshal(toWireRequest(params))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to build chat request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "chat request failed")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read chat response body")
	}

	// raw is kept intact across both parse attempts below — the "clone
	// before parse" behaviour spec.md §4.8 step 6 describes, since the
	// original bytes are never consumed or mutated by a failed decode.
	var parsed wireResponse
	parseErr := json.Unmarshal(raw, &parsed)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if parseErr != nil {
			return nil, errors.Wrapf(parseErr, "failed to parse chat response (status %d)", resp.StatusCode)
		}
		if len(parsed.Choices) == 0 {
			return nil, errors.Errorf("chat response had no choices (status %d)", resp.StatusCode)
		}
		return buildResult(parsed, false), nil
	}

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		if parseErr == nil && len(parsed.Choices) > 0 && parsed.Choices[0].Message.Content != "" {
			return buildResult(parsed, true), nil
		}
	}

	return nil, errors.Errorf("chat request returned status %d: %s", resp.StatusCode, truncate(string(raw), 500))
}

func toWireRequest(p ChatParams) wireRequest {
	messages := make([]wireMessage, len(p.Messages))
	for i, m := range p.Messages {
		messages[i] = wireMessage{Role: m.Role, Content: m.Content}
	}
	return wireRequest{
		Model:       p.Model,
		Messages:    messages,
		Temperature: p.Temperature,
		MaxTokens:   p.MaxTokens,
		TopP:        p.TopP,
		Stop:        p.Stop,
		Seed:        p.Seed,
	}
}

// buildResult merges message.reasoning into message.content, per spec.md
// §4.8 step 6: empty content + present reasoning uses reasoning verbatim;
// both present prepends a <reasoning> block.
func buildResult(parsed wireResponse, recovered bool) *ChatResult {
	msg := parsed.Choices[0].Message
	content := msg.Content
	switch {
	case content == "" && msg.Reasoning != "":
		content = msg.Reasoning
	case content != "" && msg.Reasoning != "":
		content = fmt.Sprintf("<reasoning>%s</reasoning>\n%s", msg.Reasoning, content)
	}

	return &ChatResult{
		Content: content,
		Usage: Usage{
			PromptTokens:     parsed.Usage.PromptTokens,
			CompletionTokens: parsed.Usage.CompletionTokens,
			TotalTokens:      parsed.Usage.TotalTokens,
		},
		Recovered: recovered,
	}
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
