package generation

import (
	"strings"

	"github.com/hrygo/divinesense/internal/llmclient"
	"github.com/hrygo/divinesense/internal/promptctx"
)

const (
	systemInstructionsOpen  = "[System Instructions]\n"
	systemInstructionsClose = "\n[End System Instructions]\n\n"
)

// Adapted is the outcome of applying a reasoning-model's adaptation rule
// to an assembled message list, per spec.md §4.8 step 4.
type Adapted struct {
	Messages    []llmclient.Message
	Temperature *float64
}

// Adapt converts messages into the wire Message shape, applying kind's
// adaptation rule. baseTemperature is the resolved config's temperature
// before adaptation; it passes through unchanged for ReasoningNone and
// the *-thinking kinds.
func Adapt(messages []promptctx.Message, kind ReasoningKind, baseTemperature *float64) Adapted {
	switch kind {
	case ReasoningOpenAI:
		return adaptOpenAIReasoning(messages)
	case ReasoningClaudeExtendedThinking:
		forced := 1.0
		return Adapted{Messages: toWireMessages(messages), Temperature: &forced}
	default:
		return Adapted{Messages: toWireMessages(messages), Temperature: baseTemperature}
	}
}

// adaptOpenAIReasoning concatenates every system message and prepends it
// to the first user message, dropping system messages outright and
// forbidding temperature — o1/o3 reject both.
func adaptOpenAIReasoning(messages []promptctx.Message) Adapted {
	var systemParts []string
	var rest []promptctx.Message
	for _, m := range messages {
		if m.Role == "system" {
			systemParts = append(systemParts, m.Content)
			continue
		}
		rest = append(rest, m)
	}

	if len(systemParts) == 0 {
		return Adapted{Messages: toWireMessages(rest), Temperature: nil}
	}

	prefix := systemInstructionsOpen + strings.Join(systemParts, "\n\n") + systemInstructionsClose

	firstUser := -1
	for i, m := range rest {
		if m.Role == "user" {
			firstUser = i
			break
		}
	}
	if firstUser == -1 {
		rest = append([]promptctx.Message{{Role: "user", Content: prefix}}, rest...)
	} else {
		rest[firstUser].Content = prefix + rest[firstUser].Content
	}

	return Adapted{Messages: toWireMessages(rest), Temperature: nil}
}

func toWireMessages(messages []promptctx.Message) []llmclient.Message {
	out := make([]llmclient.Message, len(messages))
	for i, m := range messages {
		out[i] = llmclient.Message{Role: m.Role, Content: m.Content}
	}
	return out
}
