// Package policy implements offline (off-policy) learners that turn logged
// bandit feedback into decision policies.
package policy

import (
	"context"
	"fmt"

	"banditlab/internal/dataset"
	"banditlab/internal/pkg/floats"
)

// ActionDist 是按轮的动作分布矩阵：每行对应一条上下文，行内为各动作
// 的概率（贪心策略下是 one-hot）。
type ActionDist [][]float64

// Validate 检查每一行都构成概率分布。
func (d ActionDist) Validate() error {
	if len(d) == 0 {
		return fmt.Errorf("action dist is empty")
	}
	width := len(d[0])
	for i, row := range d {
		if len(row) != width {
			return fmt.Errorf("row %d has %d actions, want %d", i, len(row), width)
		}
		if !floats.IsDistribution(row) {
			return fmt.Errorf("row %d is not a probability distribution", i)
		}
	}
	return nil
}

// Learner 是离线策略学习器的公共接口。ActionDist 返回评估用的
// 动作分布（IPW 学习器给出贪心 one-hot，神经策略给出 softmax 概率）。
type Learner interface {
	Name() string
	Fit(ctx context.Context, fb *dataset.Feedback) error
	ActionDist(contexts [][]float64) (ActionDist, error)
}

func checkContexts(contexts [][]float64, wantDim int) error {
	if len(contexts) == 0 {
		return fmt.Errorf("no contexts given")
	}
	for i, x := range contexts {
		if len(x) != wantDim {
			return fmt.Errorf("context %d has dim %d, want %d", i, len(x), wantDim)
		}
	}
	return nil
}
