package model

// Personality is a loaded behavioural bundle used as the assistant identity
// for a conversation. Protocol (behaviour rules) is never injected into the
// persona sections of a prompt — the two are emitted at opposite ends of
// the U-shaped context window (see internal/promptctx).
type Personality struct {
	Name                string
	Character           string
	Traits              []string
	Tone                string
	Age                 string
	Appearance          string
	Likes               []string
	Dislikes            []string
	Goals               []string
	Examples            []string
	Protocol            Protocol
	ContextWindowTokens int
	Temperature         float64
	MaxTokens           int
	VisionModel         string
	LLMParams           LLMParams
}

// Protocol is the behaviour-rule portion of a personality. It was
// originally either legacy free-text markup or a structured object with
// three arrays; both representations collapse to this struct, with Legacy
// populated when only markup was supplied.
type Protocol struct {
	Legacy             string
	Permissions        []string
	CharacterDirectives []string
	FormattingRules    []string
}

// IsStructured reports whether the protocol was supplied as three arrays
// rather than legacy markup.
func (p Protocol) IsStructured() bool {
	return len(p.Permissions) > 0 || len(p.CharacterDirectives) > 0 || len(p.FormattingRules) > 0
}

// LLMParams holds the extended LLM parameters a personality (or any config
// tier) may override. Numeric fields are pointers so that "unset" can be
// distinguished from "zero value" for cascading merges (see
// internal/configresolver); slice, map and string fields count as unset
// when empty.
type LLMParams struct {
	TopP              *float64
	TopK              *int
	FrequencyPenalty  *float64
	PresencePenalty   *float64
	RepetitionPenalty *float64
	MinP              *float64
	TopA              *float64
	Seed              *int64
	Stop              []string
	LogitBias         map[string]float64
	ResponseFormat    string
	Reasoning         string
	Transforms        []string
	Route             string
	Verbosity         string
}
