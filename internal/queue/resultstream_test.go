package queue

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/model"
)

func TestResultStreamName_PrefixesJobID(t *testing.T) {
	assert.Equal(t, "job-result:abc-123", ResultStreamName("abc-123"))
}

func TestResultStreamFields_EncodesResultAsBodyField(t *testing.T) {
	fields, err := resultStreamFields(model.LLMGenerationResult{
		RequestID: "req-1",
		Success:   true,
		Content:   "hello",
	})
	require.NoError(t, err)

	raw, ok := fields["body"].([]byte)
	require.True(t, ok)

	var decoded model.LLMGenerationResult
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "req-1", decoded.RequestID)
	assert.True(t, decoded.Success)
	assert.Equal(t, "hello", decoded.Content)
}
