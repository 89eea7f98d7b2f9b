package preprocess

import "strings"

// visionCapablePatterns is the known-vision-capable model name pattern
// set from spec.md §4.3, kept as glob data rather than hard-coded regex —
// grounded on the teacher's classification style in internal/profile's
// llmProviderDefaults map (now internal/config). NewVisionModelResolver
// always uses this list; no config setting adds to it.
var visionCapablePatterns = []string{
	"gpt-4o*",
	"gpt-4-vision*",
	"gpt-4-turbo*",
	"claude-3*",
	"claude-4*",
	"gemini-1.5*",
	"gemini-2.*",
	"*vision*",
	"llama*vision*",
}

// VisionModelResolver picks the model used for image-description calls,
// per spec.md §4.3's routing rule: prefer the personality's explicit
// visionModel; else fall back to the main model if it is known
// vision-capable; else use a configured fallback.
type VisionModelResolver struct {
	patterns []string
	fallback string
}

// NewVisionModelResolver builds a resolver using the default pattern set
// and fallbackModel for when neither the personality nor the main model
// qualifies.
func NewVisionModelResolver(fallbackModel string) *VisionModelResolver {
	return &VisionModelResolver{patterns: visionCapablePatterns, fallback: fallbackModel}
}

// Resolve returns the model name to use for a vision call.
func (r *VisionModelResolver) Resolve(personalityVisionModel, mainModel string) string {
	if personalityVisionModel != "" {
		return personalityVisionModel
	}
	if r.isVisionCapable(mainModel) {
		return mainModel
	}
	return r.fallback
}

func (r *VisionModelResolver) isVisionCapable(model string) bool {
	lower := strings.ToLower(model)
	for _, pattern := range r.patterns {
		if matchPattern(strings.ToLower(pattern), lower) {
			return true
		}
	}
	return false
}

// matchPattern supports any number of "*" wildcards anywhere in pattern
// (prefix*, *suffix, *substring*, *a*b*, or an exact match with no
// wildcard). Each "*" matches zero or more characters.
func matchPattern(pattern, s string) bool {
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
