package dataset

import (
	"fmt"
	"math"
)

// Feedback 是一批日志化的 bandit 反馈：每轮记录上下文、行为策略选择的
// 动作、观测到的奖励与倾向分数。合成数据还带有真实期望奖励矩阵，
// 供 ground-truth 评估使用；外部导入的日志可以没有。
type Feedback struct {
	NRounds  int         `json:"n_rounds"`
	NActions int         `json:"n_actions"`
	Context  [][]float64 `json:"context"`
	Action   []int       `json:"action"`
	Reward   []float64   `json:"reward"`
	Pscore   []float64   `json:"pscore"`

	// ExpectedReward[i][a] = q(x_i, a)；导入日志时可为 nil。
	ExpectedReward [][]float64 `json:"expected_reward,omitempty"`
}

// Validate 检查各切片的形状与取值范围。
func (f *Feedback) Validate() error {
	if f == nil {
		return fmt.Errorf("feedback is nil")
	}
	if f.NRounds <= 0 {
		return fmt.Errorf("feedback requires at least one round")
	}
	if f.NActions < 2 {
		return fmt.Errorf("feedback requires at least two actions, got %d", f.NActions)
	}
	if len(f.Context) != f.NRounds {
		return fmt.Errorf("context has %d rows, want %d", len(f.Context), f.NRounds)
	}
	if len(f.Action) != f.NRounds || len(f.Reward) != f.NRounds || len(f.Pscore) != f.NRounds {
		return fmt.Errorf("action/reward/pscore must all have %d rounds", f.NRounds)
	}
	dim := -1
	for i, row := range f.Context {
		if len(row) == 0 {
			return fmt.Errorf("round %d: empty context vector", i)
		}
		if dim == -1 {
			dim = len(row)
		} else if len(row) != dim {
			return fmt.Errorf("round %d: context dim %d differs from %d", i, len(row), dim)
		}
	}
	for i, a := range f.Action {
		if a < 0 || a >= f.NActions {
			return fmt.Errorf("round %d: action %d out of range [0,%d)", i, a, f.NActions)
		}
	}
	for i, p := range f.Pscore {
		if p <= 0 || p > 1 || math.IsNaN(p) {
			return fmt.Errorf("round %d: pscore %v must lie in (0,1]", i, p)
		}
	}
	if f.ExpectedReward != nil {
		if len(f.ExpectedReward) != f.NRounds {
			return fmt.Errorf("expected_reward has %d rows, want %d", len(f.ExpectedReward), f.NRounds)
		}
		for i, row := range f.ExpectedReward {
			if len(row) != f.NActions {
				return fmt.Errorf("round %d: expected_reward has %d actions, want %d", i, len(row), f.NActions)
			}
		}
	}
	return nil
}

// DimContext 返回上下文维度；无数据时返回 0。
func (f *Feedback) DimContext() int {
	if f == nil || len(f.Context) == 0 {
		return 0
	}
	return len(f.Context[0])
}
