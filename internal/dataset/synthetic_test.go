package dataset

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"banditlab/internal/pkg/floats"
)

func newTestDataset(t *testing.T, cfg Config) *SyntheticDataset {
	t.Helper()
	ds, err := NewSyntheticDataset(cfg)
	require.NoError(t, err)
	return ds
}

func TestNewSyntheticDatasetValidation(t *testing.T) {
	cases := []struct {
		name string
		cfg  Config
	}{
		{"one action", Config{NActions: 1, DimContext: 3}},
		{"zero dim", Config{NActions: 3, DimContext: 0}},
		{"bad reward type", Config{NActions: 3, DimContext: 3, RewardType: "poisson"}},
		{"binary+linear", Config{NActions: 3, DimContext: 3, RewardType: RewardBinary, RewardFunction: RewardFunctionLinear}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewSyntheticDataset(tc.cfg)
			assert.Error(t, err)
		})
	}
}

func TestObtainBatchFeedbackShapes(t *testing.T) {
	ds := newTestDataset(t, Config{NActions: 5, DimContext: 4, Beta: -2, Seed: 7})
	fb, err := ds.ObtainBatchFeedback(200)
	require.NoError(t, err)
	require.NoError(t, fb.Validate())

	assert.Equal(t, 200, fb.NRounds)
	assert.Equal(t, 5, fb.NActions)
	assert.Equal(t, 4, fb.DimContext())
	for i := 0; i < fb.NRounds; i++ {
		assert.Len(t, fb.ExpectedReward[i], 5)
		for _, q := range fb.ExpectedReward[i] {
			// logistic 期望奖励必须落在 (0,1)
			assert.Greater(t, q, 0.0)
			assert.Less(t, q, 1.0)
		}
		assert.Contains(t, []float64{0, 1}, fb.Reward[i])
	}
}

func TestPscoreMatchesBehaviorPolicy(t *testing.T) {
	ds := newTestDataset(t, Config{NActions: 4, DimContext: 3, Beta: -2, Seed: 11})
	fb, err := ds.ObtainBatchFeedback(50)
	require.NoError(t, err)
	for i := 0; i < fb.NRounds; i++ {
		dist := ds.BehaviorPolicy(fb.Context[i])
		assert.True(t, floats.IsDistribution(dist))
		assert.InDelta(t, dist[fb.Action[i]], fb.Pscore[i], 1e-12)
	}
}

func TestSameSeedReproduces(t *testing.T) {
	cfg := Config{NActions: 3, DimContext: 2, Beta: 1.5, Seed: 42}
	a := newTestDataset(t, cfg)
	b := newTestDataset(t, cfg)
	fa, err := a.ObtainBatchFeedback(20)
	require.NoError(t, err)
	fbatch, err := b.ObtainBatchFeedback(20)
	require.NoError(t, err)
	assert.Equal(t, fa.Action, fbatch.Action)
	assert.Equal(t, fa.Reward, fbatch.Reward)
	assert.Equal(t, fa.Context, fbatch.Context)
}

func TestSuccessiveBatchesDiffer(t *testing.T) {
	ds := newTestDataset(t, Config{NActions: 3, DimContext: 2, Seed: 1})
	first, err := ds.ObtainBatchFeedback(30)
	require.NoError(t, err)
	second, err := ds.ObtainBatchFeedback(30)
	require.NoError(t, err)
	assert.NotEqual(t, first.Context, second.Context)
}

func TestObtainBatchFeedbackRejectsBadRounds(t *testing.T) {
	ds := newTestDataset(t, Config{NActions: 3, DimContext: 2})
	_, err := ds.ObtainBatchFeedback(0)
	assert.Error(t, err)
	_, err = ds.ObtainBatchFeedback(-5)
	assert.Error(t, err)
}

func TestContinuousRewards(t *testing.T) {
	ds := newTestDataset(t, Config{
		NActions: 3, DimContext: 2, Seed: 5,
		RewardType: RewardContinuous, RewardFunction: RewardFunctionLinear,
	})
	fb, err := ds.ObtainBatchFeedback(100)
	require.NoError(t, err)
	nonBinary := 0
	for _, r := range fb.Reward {
		if r != 0 && r != 1 {
			nonBinary++
		}
	}
	assert.Greater(t, nonBinary, 0)
}
