package ope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banditlab/internal/policy"
)

func TestGroundTruthPolicyValue(t *testing.T) {
	q := [][]float64{
		{0.2, 0.8},
		{0.6, 0.4},
	}

	t.Run("hand computed", func(t *testing.T) {
		dist := policy.ActionDist{
			{0, 1},
			{1, 0},
		}
		v, err := GroundTruthPolicyValue(q, dist)
		require.NoError(t, err)
		assert.InDelta(t, (0.8+0.6)/2, v, 1e-12)
	})

	t.Run("uniform policy averages rewards", func(t *testing.T) {
		dist := policy.ActionDist{
			{0.5, 0.5},
			{0.5, 0.5},
		}
		v, err := GroundTruthPolicyValue(q, dist)
		require.NoError(t, err)
		assert.InDelta(t, 0.5, v, 1e-12)
	})

	t.Run("round count mismatch", func(t *testing.T) {
		_, err := GroundTruthPolicyValue(q, policy.ActionDist{{1, 0}})
		assert.Error(t, err)
	})

	t.Run("not a distribution", func(t *testing.T) {
		_, err := GroundTruthPolicyValue(q, policy.ActionDist{{0.9, 0.9}, {1, 0}})
		assert.Error(t, err)
	})

	t.Run("action count mismatch", func(t *testing.T) {
		_, err := GroundTruthPolicyValue(q, policy.ActionDist{{1, 0}, {0.5, 0.25, 0.25}})
		assert.Error(t, err)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := GroundTruthPolicyValue(nil, nil)
		assert.Error(t, err)
	})
}

func TestLoggedValue(t *testing.T) {
	v, err := LoggedValue([]float64{1, 0, 1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, v, 1e-12)

	_, err = LoggedValue(nil)
	assert.Error(t, err)
}
