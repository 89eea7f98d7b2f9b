package generation

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifierClassify(t *testing.T) {
	c := NewClassifier()

	tests := []struct {
		model string
		want  ReasoningKind
	}{
		// spec.md §4.8 step 4's documented example: provider-prefixed
		// names must classify the same as the bare model name.
		{"openai/o1-preview", ReasoningOpenAI},
		{"o1-preview", ReasoningOpenAI},
		{"openai/o3-mini", ReasoningOpenAI},
		{"claude-3-7-sonnet-extended-thinking", ReasoningClaudeExtendedThinking},
		{"deepseek/deepseek-r1", ReasoningDeepSeekR1},
		{"qwen-qwq-32b", ReasoningQwenQwQ},
		{"some-provider/qwq-preview", ReasoningQwenQwQ},
		{"glm-4-thinking", ReasoningGLMThinking},
		{"kimi-k1-thinking", ReasoningKimiThinking},
		{"anthropic/generic-thinking-model", ReasoningGenericThinking},
		{"gpt-4o", ReasoningNone},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.model))
		})
	}
}

func TestMatchModelPatternMultiWildcard(t *testing.T) {
	assert.True(t, matchModelPattern("*qwq*", "qwen-qwq-32b"))
	assert.True(t, matchModelPattern("*thinking*", "generic-thinking-model"))
	assert.True(t, matchModelPattern("claude-*-thinking", "claude-3-thinking"))
	assert.False(t, matchModelPattern("*qwq*", "no-match-here"))
}
