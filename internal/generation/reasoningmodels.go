package generation

import "strings"

// ReasoningKind classifies a model name into the adaptation rules
// spec.md §4.8 step 4 describes.
type ReasoningKind string

const (
	// ReasoningNone is an ordinary chat model: no adaptation applied.
	ReasoningNone ReasoningKind = ""
	// ReasoningOpenAI covers the o1/o3 family: system messages are
	// dropped and folded into the first user message, temperature is
	// forbidden.
	ReasoningOpenAI ReasoningKind = "openai-reasoning"
	// ReasoningClaudeExtendedThinking forces temperature to 1.0.
	ReasoningClaudeExtendedThinking ReasoningKind = "claude-extended-thinking"
	// ReasoningDeepSeekR1, ReasoningQwenQwQ, ReasoningGLMThinking,
	// ReasoningKimiThinking, and ReasoningGenericThinking may emit
	// <think> tags in their output, which step 7 strips before
	// validating content.
	ReasoningDeepSeekR1      ReasoningKind = "deepseek-r1"
	ReasoningQwenQwQ         ReasoningKind = "qwen-qwq"
	ReasoningGLMThinking     ReasoningKind = "glm-thinking"
	ReasoningKimiThinking    ReasoningKind = "kimi-thinking"
	ReasoningGenericThinking ReasoningKind = "generic-thinking"
)

// EmitsThinkTags reports whether k's outputs may carry <think> tags that
// step 7 validation must strip before checking for empty content.
func (k ReasoningKind) EmitsThinkTags() bool {
	switch k {
	case ReasoningDeepSeekR1, ReasoningQwenQwQ, ReasoningGLMThinking, ReasoningKimiThinking, ReasoningGenericThinking:
		return true
	default:
		return false
	}
}

// modelPattern pairs a name-matching glob (any number of "*" wildcards,
// matching internal/preprocess.VisionModelResolver's pattern shape) with
// the ReasoningKind it implies.
type modelPattern struct {
	pattern string
	kind    ReasoningKind
}

// defaultPatterns is the config-loadable classification dataset spec.md's
// REDESIGN FLAGS calls for, replacing a hard-coded if/else chain so an
// operator can extend it without a code change, grounded on the same
// config-loadable style as internal/preprocess.visionCapablePatterns.
var defaultPatterns = []modelPattern{
	{"o1*", ReasoningOpenAI},
	{"o3*", ReasoningOpenAI},
	{"claude-*-extended-thinking", ReasoningClaudeExtendedThinking},
	{"claude-*-thinking", ReasoningClaudeExtendedThinking},
	{"deepseek-r1*", ReasoningDeepSeekR1},
	{"qwen-qwq*", ReasoningQwenQwQ},
	{"*qwq*", ReasoningQwenQwQ},
	{"glm-*-thinking", ReasoningGLMThinking},
	{"kimi-*-thinking", ReasoningKimiThinking},
	{"*thinking*", ReasoningGenericThinking},
}

// Classifier matches a model name against a pattern table to determine
// its ReasoningKind.
type Classifier struct {
	patterns []modelPattern
}

// NewClassifier builds a Classifier using the default pattern table.
func NewClassifier() *Classifier {
	return &Classifier{patterns: defaultPatterns}
}

// NewClassifierWithPatterns builds a Classifier from an operator-supplied
// pattern table, keyed by pattern -> kind string (validated by the
// caller against the ReasoningKind constants).
func NewClassifierWithPatterns(patterns map[string]ReasoningKind) *Classifier {
	var list []modelPattern
	for pattern, kind := range patterns {
		list = append(list, modelPattern{pattern: pattern, kind: kind})
	}
	return &Classifier{patterns: list}
}

// Classify returns model's ReasoningKind, or ReasoningNone if nothing
// matches. model may be provider-prefixed (e.g. "openai/o1-preview", per
// spec.md §4.8 step 4's documented example) — patterns are matched both
// against the full name and against the portion after the last "/".
func (c *Classifier) Classify(model string) ReasoningKind {
	lower := strings.ToLower(model)
	bare := lower
	if idx := strings.LastIndex(lower, "/"); idx != -1 {
		bare = lower[idx+1:]
	}
	for _, p := range c.patterns {
		pattern := strings.ToLower(p.pattern)
		if matchModelPattern(pattern, lower) || (bare != lower && matchModelPattern(pattern, bare)) {
			return p.kind
		}
	}
	return ReasoningNone
}

// matchModelPattern supports any number of "*" wildcards, reusing the
// same segment-matching shape as internal/preprocess's matchPattern
// (duplicated rather than shared across packages to keep each leaf
// package dependency-free of the other).
func matchModelPattern(pattern, s string) bool {
	if !strings.Contains(pattern, "*") {
		return pattern == s
	}

	segments := strings.Split(pattern, "*")

	if !strings.HasPrefix(s, segments[0]) {
		return false
	}
	s = s[len(segments[0]):]

	last := len(segments) - 1
	if !strings.HasSuffix(s, segments[last]) {
		return false
	}
	if segments[last] != "" {
		s = s[:len(s)-len(segments[last])]
	}

	for _, seg := range segments[1:last] {
		if seg == "" {
			continue
		}
		idx := strings.Index(s, seg)
		if idx == -1 {
			return false
		}
		s = s[idx+len(seg):]
	}
	return true
}
