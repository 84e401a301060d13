package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"banditlab/internal/experiment"
	"banditlab/internal/presets"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseIntervalDuration(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30s", 30 * time.Second, true},
		{"15m", 15 * time.Minute, true},
		{"1h", time.Hour, true},
		{"4H", 4 * time.Hour, true},
		{"1d", 24 * time.Hour, true},
		{"1w", 7 * 24 * time.Hour, true},
		{" 2m ", 2 * time.Minute, true},
		{"", 0, false},
		{"m", 0, false},
		{"0h", 0, false},
		{"-1h", 0, false},
		{"1x", 0, false},
		{"abc", 0, false},
	}
	for _, tc := range cases {
		got, ok := ParseIntervalDuration(tc.in)
		assert.Equal(t, tc.ok, ok, "input=%q", tc.in)
		assert.Equal(t, tc.want, got, "input=%q", tc.in)
	}
}

func TestAlignedSchedulerStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	sched := NewAlignedScheduler(ctx, time.Hour, 0)

	done := make(chan struct{})
	go func() {
		sched.Start(func() {})
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not exit after cancel")
	}
}

func TestAlignedSchedulerRunImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sched := NewAlignedScheduler(ctx, time.Hour, 0)
	sched.RunImmediately = true

	ran := make(chan struct{}, 1)
	go sched.Start(func() {
		select {
		case ran <- struct{}{}:
		default:
		}
	})

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("immediate task did not run")
	}
}

type fakeSubmitter struct {
	mu      sync.Mutex
	configs []experiment.RunConfig
}

func (f *fakeSubmitter) Defaults() experiment.RunConfig {
	return experiment.RunConfig{
		NActions: 10, DimContext: 5, Beta: -2,
		RewardType: "binary", RoundsTrain: 1000, RoundsTest: 1000, Seed: 1,
	}
}

func (f *fakeSubmitter) SubmitConfig(cfg experiment.RunConfig) (experiment.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	return experiment.Run{ID: "fake", Config: cfg}, nil
}

func (f *fakeSubmitter) submitted() []experiment.RunConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]experiment.RunConfig{}, f.configs...)
}

func presetRegistry(t *testing.T) *presets.Registry {
	t.Helper()
	path := filepath.Join(t.TempDir(), "experiments.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"experiments:\n  nightly:\n    beta: -3.0\n  quick:\n    n_actions: 4\n"), 0o644))
	r, err := presets.NewRegistry(path)
	require.NoError(t, err)
	return r
}

func TestSweeperSubmitsPresets(t *testing.T) {
	svc := &fakeSubmitter{}
	sweeper, err := NewSweeper(svc, presetRegistry(t), SweepConfig{
		Interval:       "1h",
		Presets:        []string{"nightly", "quick", "missing"},
		RunImmediately: true,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = sweeper.Run(ctx)
		close(done)
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(svc.submitted()) >= 2 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	cancel()
	<-done

	configs := svc.submitted()
	require.Len(t, configs, 2) // missing preset 被跳过
	assert.Equal(t, "nightly", configs[0].Name)
	assert.Equal(t, -3.0, configs[0].Beta)
	assert.Equal(t, "quick", configs[1].Name)
	assert.Equal(t, 4, configs[1].NActions)
}

func TestNewSweeperValidation(t *testing.T) {
	registry := presetRegistry(t)
	svc := &fakeSubmitter{}

	_, err := NewSweeper(svc, registry, SweepConfig{Interval: "bogus", Presets: []string{"nightly"}})
	assert.Error(t, err)

	_, err = NewSweeper(svc, registry, SweepConfig{Interval: "1h"})
	assert.Error(t, err)

	_, err = NewSweeper(nil, registry, SweepConfig{Interval: "1h", Presets: []string{"nightly"}})
	assert.Error(t, err)
}
