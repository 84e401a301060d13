package policy

import (
	"context"
	"fmt"

	"banditlab/internal/dataset"
)

// UniformRandom 是不看上下文的均匀随机策略，用作评估基线。
type UniformRandom struct {
	nActions int
}

func NewUniformRandom(nActions int) (*UniformRandom, error) {
	if nActions < 2 {
		return nil, fmt.Errorf("uniform policy requires n_actions >= 2, got %d", nActions)
	}
	return &UniformRandom{nActions: nActions}, nil
}

func (u *UniformRandom) Name() string { return "uniform_random" }

// Fit 是 no-op：均匀策略不需要学习。
func (u *UniformRandom) Fit(ctx context.Context, fb *dataset.Feedback) error {
	return nil
}

// ComputeBatchActionDist 返回 nRounds 行的均匀分布。
func (u *UniformRandom) ComputeBatchActionDist(nRounds int) (ActionDist, error) {
	if nRounds <= 0 {
		return nil, fmt.Errorf("n_rounds must be positive, got %d", nRounds)
	}
	p := 1.0 / float64(u.nActions)
	dist := make(ActionDist, nRounds)
	for i := range dist {
		row := make([]float64, u.nActions)
		for a := range row {
			row[a] = p
		}
		dist[i] = row
	}
	return dist, nil
}

func (u *UniformRandom) ActionDist(contexts [][]float64) (ActionDist, error) {
	return u.ComputeBatchActionDist(len(contexts))
}
