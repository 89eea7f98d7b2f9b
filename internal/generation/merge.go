package generation

import (
	"fmt"
	"strings"

	"github.com/hrygo/divinesense/internal/model"
)

// dependencyOutcome is one preprocessing job's result, read back from the
// keyed store and normalized regardless of whether it was an
// AudioResult or ImageResult (both decode to a JSON object whose fields
// jobstore hands back as map[string]any — see internal/store/postgres's
// GetJobResult: the stored body round-trips through a bare `any`).
type dependencyOutcome struct {
	jobType model.JobType
	success bool
	texts   []string
	errMsg  string
}

// mergePreprocessingOutputs folds every dependency's outcome into the
// single attachmentDescriptions string spec.md §4.8 step 2 threads to
// the assembler. A missing or failed dependency is logged by the caller
// and simply contributes nothing here — it never fails the job.
func mergePreprocessingOutputs(outcomes []dependencyOutcome) string {
	var parts []string
	for _, o := range outcomes {
		if !o.success {
			continue
		}
		parts = append(parts, o.texts...)
	}
	return strings.Join(parts, "\n")
}

// decodeDependencyResult normalizes a stored preprocessing result body
// (a map[string]any after its round trip through JSON) into a
// dependencyOutcome. Unrecognized shapes are treated as a failed
// dependency rather than a panic.
func decodeDependencyResult(jobType model.JobType, body any) dependencyOutcome {
	m, ok := body.(map[string]any)
	if !ok {
		return dependencyOutcome{jobType: jobType, success: false, errMsg: "unrecognized result shape"}
	}

	success, _ := m["Success"].(bool)
	if !success {
		errMsg, _ := m["Error"].(string)
		return dependencyOutcome{jobType: jobType, success: false, errMsg: errMsg}
	}

	switch jobType {
	case model.JobTypeAudioTranscription:
		content, _ := m["Content"].(string)
		return dependencyOutcome{jobType: jobType, success: true, texts: []string{content}}
	case model.JobTypeImageDescription:
		raw, _ := m["Descriptions"].([]any)
		texts := make([]string, 0, len(raw))
		for _, d := range raw {
			entry, ok := d.(map[string]any)
			if !ok {
				continue
			}
			if desc, ok := entry["Description"].(string); ok {
				texts = append(texts, desc)
			}
		}
		return dependencyOutcome{jobType: jobType, success: true, texts: texts}
	default:
		return dependencyOutcome{jobType: jobType, success: false, errMsg: fmt.Sprintf("unexpected dependency job type %q", jobType)}
	}
}
