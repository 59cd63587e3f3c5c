package engine

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuotaEnforcer(t *testing.T) {
	q := NewQuotaEnforcer(2)

	require.NoError(t, q.Check("run-1"))
	require.NoError(t, q.Check("run-1"))

	err := q.Check("run-1")
	require.Error(t, err)
	assert.True(t, IsStepsExceededError(err))
	assert.True(t, IsStepsExceededError(fmt.Errorf("wrapped: %w", err)))
	assert.Equal(t, "run run-1 exceeded max steps quota: 3 steps > 2 limit", err.Error())
	assert.Equal(t, 3, q.Current())
}

func TestQuotaEnforcer_Zero(t *testing.T) {
	assert.True(t, IsStepsExceededError(NewQuotaEnforcer(0).Check("run-1")))
}
