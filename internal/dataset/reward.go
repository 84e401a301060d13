package dataset

import (
	"fmt"
	"math/rand"

	"banditlab/internal/pkg/floats"
)

// RewardType 决定每轮奖励的采样方式。
type RewardType string

const (
	// RewardBinary 按期望奖励做 Bernoulli 采样，期望必须落在 [0,1]。
	RewardBinary RewardType = "binary"
	// RewardContinuous 在期望奖励上叠加单位方差高斯噪声。
	RewardContinuous RewardType = "continuous"
)

const (
	RewardFunctionLogistic = "logistic"
	RewardFunctionLinear   = "linear"
)

// rewardModel 保存每个动作的线性系数，q(x,a) = x·coef_a + bias_a，
// logistic 形式再过一层 sigmoid。系数由数据集种子决定，同种子可复现。
type rewardModel struct {
	kind string
	coef [][]float64 // [nActions][dimContext]
	bias []float64
}

func newRewardModel(kind string, nActions, dimContext int, rng *rand.Rand) (*rewardModel, error) {
	switch kind {
	case RewardFunctionLogistic, RewardFunctionLinear:
	default:
		return nil, fmt.Errorf("unknown reward function %q", kind)
	}
	m := &rewardModel{
		kind: kind,
		coef: make([][]float64, nActions),
		bias: make([]float64, nActions),
	}
	for a := 0; a < nActions; a++ {
		row := make([]float64, dimContext)
		for j := range row {
			row[j] = rng.NormFloat64()
		}
		m.coef[a] = row
		m.bias[a] = rng.NormFloat64()
	}
	return m, nil
}

// expected 计算一条上下文对所有动作的期望奖励向量。
func (m *rewardModel) expected(x []float64) []float64 {
	out := make([]float64, len(m.coef))
	for a, row := range m.coef {
		v, err := floats.Dot(x, row)
		if err != nil {
			// 上下文维度由数据集构造时固定，这里不应发生
			panic(fmt.Sprintf("reward model: %v", err))
		}
		v += m.bias[a]
		if m.kind == RewardFunctionLogistic {
			v = floats.Sigmoid(v)
		}
		out[a] = v
	}
	return out
}
