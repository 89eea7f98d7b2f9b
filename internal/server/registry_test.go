package server

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/divinesense/internal/jobplan"
	"github.com/hrygo/divinesense/internal/model"
)

func TestJobRegistry_RegisterThenRelease(t *testing.T) {
	plan, err := jobplan.Build(&model.Request{
		RequestID:           "req-1",
		Personality:         &model.Personality{Name: "Aria", ContextWindowTokens: 4096},
		ResponseDestination: "chan-1",
	})
	require.NoError(t, err)

	reg := NewJobRegistry()
	reg.register(plan)

	job, err := reg.GetJob(context.Background(), plan.GenerationJob.ID)
	require.NoError(t, err)
	assert.Equal(t, plan.GenerationJob.ID, job.ID)

	reg.release(plan)

	_, err = reg.GetJob(context.Background(), plan.GenerationJob.ID)
	assert.Error(t, err)
}
