package gormstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"banditlab/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFeedbackStore(t *testing.T) *FeedbackStore {
	t.Helper()
	store, err := NewFeedbackStore(filepath.Join(t.TempDir(), "archive", "feedback.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func syntheticBatch(t *testing.T, n int) *dataset.Feedback {
	t.Helper()
	ds, err := dataset.NewSyntheticDataset(dataset.Config{
		NActions: 4, DimContext: 3, Beta: -1,
		RewardType: dataset.RewardBinary, Seed: 7,
	})
	require.NoError(t, err)
	fb, err := ds.ObtainBatchFeedback(n)
	require.NoError(t, err)
	return fb
}

func TestFeedbackStoreRoundtrip(t *testing.T) {
	store := newTestFeedbackStore(t)
	ctx := context.Background()
	fb := syntheticBatch(t, 50)

	require.NoError(t, store.SaveBatch(ctx, "run-1", SplitTrain, fb))

	got, err := store.ListRounds(ctx, "run-1", SplitTrain)
	require.NoError(t, err)
	assert.Equal(t, fb.NRounds, got.NRounds)
	assert.Equal(t, fb.NActions, got.NActions)
	assert.Equal(t, fb.Action, got.Action)
	assert.Equal(t, fb.Reward, got.Reward)
	assert.InDeltaSlice(t, fb.Pscore, got.Pscore, 1e-12)
	require.Len(t, got.Context, fb.NRounds)
	assert.InDeltaSlice(t, fb.Context[0], got.Context[0], 1e-12)
	require.NotNil(t, got.ExpectedReward)
	assert.InDeltaSlice(t, fb.ExpectedReward[0], got.ExpectedReward[0], 1e-12)
}

func TestFeedbackStoreOverwritesSplit(t *testing.T) {
	store := newTestFeedbackStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveBatch(ctx, "run-1", SplitTest, syntheticBatch(t, 30)))
	small := syntheticBatch(t, 10)
	require.NoError(t, store.SaveBatch(ctx, "run-1", SplitTest, small))

	got, err := store.ListRounds(ctx, "run-1", SplitTest)
	require.NoError(t, err)
	assert.Equal(t, 10, got.NRounds)
}

func TestFeedbackStoreMissingSplit(t *testing.T) {
	store := newTestFeedbackStore(t)
	_, err := store.ListRounds(context.Background(), "run-x", SplitTrain)
	assert.Error(t, err)
}

func TestFeedbackStoreListRuns(t *testing.T) {
	store := newTestFeedbackStore(t)
	ctx := context.Background()
	fb := syntheticBatch(t, 5)
	require.NoError(t, store.SaveBatch(ctx, "run-a", SplitTrain, fb))
	time.Sleep(5 * time.Millisecond) // created_at 是毫秒时间戳，错开先后
	require.NoError(t, store.SaveBatch(ctx, "run-b", SplitTrain, fb))

	ids, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	// 归档时间新的在前
	assert.Equal(t, []string{"run-b", "run-a"}, ids)
}

func TestFeedbackStoreRejectsEmptyKeys(t *testing.T) {
	store := newTestFeedbackStore(t)
	err := store.SaveBatch(context.Background(), "", SplitTrain, syntheticBatch(t, 3))
	assert.Error(t, err)
}
