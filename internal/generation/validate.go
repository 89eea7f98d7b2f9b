package generation

import (
	"context"
	"regexp"
	"strings"

	"github.com/hrygo/divinesense/internal/embedding"
)

// thinkTagPattern matches <think>...</think> or <thinking>...</thinking>
// blocks, case-insensitive and non-greedy, per spec.md §4.8 step 7.
var thinkTagPattern = regexp.MustCompile(`(?is)<think(?:ing)?>.*?</think(?:ing)?>`)

// StripThinkTags removes every thinking-tag block from content.
func StripThinkTags(content string) string {
	return strings.TrimSpace(thinkTagPattern.ReplaceAllString(content, ""))
}

// duplicateThreshold is the cosine-similarity floor above which an
// output is considered a repeat of something already in the caller's
// sliding window, per spec.md §4.8 step 7.
const duplicateThreshold = 0.88

// Embedder computes an embedding for validation's duplicate check.
type Embedder interface {
	Embed(ctx context.Context, text string) (embedding.Vector, error)
}

// ValidationOutcome is the result of step 7's checks on one candidate
// output.
type ValidationOutcome struct {
	Stripped        string
	Empty           bool
	Duplicate       bool
	DuplicateScore  float64
}

// Validate strips thinking tags from content and checks the remainder
// for emptiness and, if non-empty, duplication against window. On
// success (neither empty nor duplicate), the stripped content's
// embedding is recorded into window for future comparisons.
func Validate(ctx context.Context, content string, embedder Embedder, window *embedding.DuplicateWindow) (ValidationOutcome, error) {
	stripped := StripThinkTags(content)
	if stripped == "" {
		return ValidationOutcome{Stripped: stripped, Empty: true}, nil
	}

	vec, err := embedder.Embed(ctx, stripped)
	if err != nil {
		// Degraded: the spec treats embedding worker timeouts as a
		// transient-I/O condition handled by the caller's retry policy,
		// not a validation failure — propagate the error rather than
		// silently skipping duplicate detection.
		return ValidationOutcome{}, err
	}

	dup, score := window.IsDuplicate(vec, duplicateThreshold)
	if dup {
		return ValidationOutcome{Stripped: stripped, Duplicate: true, DuplicateScore: score}, nil
	}

	window.Record(stripped, vec)
	return ValidationOutcome{Stripped: stripped, DuplicateScore: score}, nil
}
