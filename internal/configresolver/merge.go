package configresolver

import "github.com/hrygo/divinesense/internal/model"

// mergeLLMParams implements spec.md §4.6's merge semantic: override is a
// partial bag of fields; every pointer/slice/map field present in
// override replaces the corresponding field in base, everything else in
// base is left untouched.
func mergeLLMParams(base, override model.LLMParams) model.LLMParams {
	out := base

	if override.TopP != nil {
		out.TopP = override.TopP
	}
	if override.TopK != nil {
		out.TopK = override.TopK
	}
	if override.FrequencyPenalty != nil {
		out.FrequencyPenalty = override.FrequencyPenalty
	}
	if override.PresencePenalty != nil {
		out.PresencePenalty = override.PresencePenalty
	}
	if override.RepetitionPenalty != nil {
		out.RepetitionPenalty = override.RepetitionPenalty
	}
	if override.MinP != nil {
		out.MinP = override.MinP
	}
	if override.TopA != nil {
		out.TopA = override.TopA
	}
	if override.Seed != nil {
		out.Seed = override.Seed
	}
	if override.Stop != nil {
		out.Stop = override.Stop
	}
	if override.LogitBias != nil {
		out.LogitBias = override.LogitBias
	}
	if override.ResponseFormat != "" {
		out.ResponseFormat = override.ResponseFormat
	}
	if override.Reasoning != "" {
		out.Reasoning = override.Reasoning
	}
	if override.Transforms != nil {
		out.Transforms = override.Transforms
	}
	if override.Route != "" {
		out.Route = override.Route
	}
	if override.Verbosity != "" {
		out.Verbosity = override.Verbosity
	}

	return out
}

// isEmpty reports whether every field of p is the zero/unset value, per
// spec.md §4.6's "returns null if the merge produces an empty object".
func isEmpty(p model.LLMParams) bool {
	return p.TopP == nil && p.TopK == nil && p.FrequencyPenalty == nil &&
		p.PresencePenalty == nil && p.RepetitionPenalty == nil && p.MinP == nil &&
		p.TopA == nil && p.Seed == nil && len(p.Stop) == 0 && len(p.LogitBias) == 0 &&
		p.ResponseFormat == "" && p.Reasoning == "" && len(p.Transforms) == 0 &&
		p.Route == "" && p.Verbosity == ""
}
