package postgres

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hrygo/divinesense/internal/model"
)

func TestPlaceholder(t *testing.T) {
	assert.Equal(t, "$1", placeholder(1))
	assert.Equal(t, "$7", placeholder(7))
}

func TestPlaceholders(t *testing.T) {
	assert.Equal(t, "$1, $2, $3", placeholders(3))
	assert.Equal(t, "$1", placeholders(1))
}

func TestValidateVector_AcceptsFiniteValues(t *testing.T) {
	assert.NoError(t, validateVector([]float32{0.1, -0.2, 0.3}))
}

func TestValidateVector_RejectsNaN(t *testing.T) {
	err := validateVector([]float32{0.1, float32(math.NaN())})
	assert.Error(t, err)
}

func TestValidateVector_RejectsInf(t *testing.T) {
	err := validateVector([]float32{float32(math.Inf(1)), 0.2})
	assert.Error(t, err)
}

func TestBuildScopeClause_DefaultsToAllScopes(t *testing.T) {
	args := []any{}
	argIdx := 1
	clause := buildScopeClause(nil, "persona-1", "session-1", &args, &argIdx)
	assert.Contains(t, clause, "canon_scope = 'global'")
	assert.Contains(t, clause, "canon_scope = 'personal'")
	assert.Contains(t, clause, "canon_scope = 'session'")
	assert.Len(t, args, 2)
}

func TestBuildScopeClause_OmitsSessionWhenEmpty(t *testing.T) {
	args := []any{}
	argIdx := 1
	clause := buildScopeClause([]model.CanonScope{model.CanonScopeSession}, "persona-1", "", &args, &argIdx)
	assert.Equal(t, "1 = 0", clause)
	assert.Empty(t, args)
}

func TestBuildScopeClause_GlobalOnlyNeedsNoArgs(t *testing.T) {
	args := []any{}
	argIdx := 1
	clause := buildScopeClause([]model.CanonScope{model.CanonScopeGlobal}, "persona-1", "session-1", &args, &argIdx)
	assert.Equal(t, "(canon_scope = 'global')", clause)
	assert.Empty(t, args)
}
