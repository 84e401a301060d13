// Package dataset generates and validates logged bandit feedback.
//
// SyntheticDataset mirrors the usual off-policy research setup: contexts are
// standard normal vectors, expected rewards come from a seeded linear or
// logistic model, and the logging (behavior) policy is a softmax over the
// expected rewards with inverse temperature Beta. Negative Beta makes the
// logger prefer bad actions, which is the interesting regime for off-policy
// learning.
package dataset

import (
	"fmt"
	"math/rand"
	"sync"

	"banditlab/internal/pkg/floats"
)

// Config 描述一个合成数据生成器。
type Config struct {
	NActions       int
	DimContext     int
	Beta           float64
	RewardType     RewardType
	RewardFunction string
	Seed           int64
}

// SyntheticDataset 按固定种子生成可复现的 bandit 反馈批次。
type SyntheticDataset struct {
	cfg    Config
	reward *rewardModel

	mu  sync.Mutex
	rng *rand.Rand
}

func NewSyntheticDataset(cfg Config) (*SyntheticDataset, error) {
	if cfg.NActions < 2 {
		return nil, fmt.Errorf("synthetic dataset requires n_actions >= 2, got %d", cfg.NActions)
	}
	if cfg.DimContext < 1 {
		return nil, fmt.Errorf("synthetic dataset requires dim_context >= 1, got %d", cfg.DimContext)
	}
	if cfg.RewardType == "" {
		cfg.RewardType = RewardBinary
	}
	switch cfg.RewardType {
	case RewardBinary, RewardContinuous:
	default:
		return nil, fmt.Errorf("unknown reward type %q", cfg.RewardType)
	}
	if cfg.RewardFunction == "" {
		cfg.RewardFunction = RewardFunctionLogistic
	}
	if cfg.RewardType == RewardBinary && cfg.RewardFunction != RewardFunctionLogistic {
		return nil, fmt.Errorf("binary rewards require the logistic reward function")
	}
	rng := rand.New(rand.NewSource(cfg.Seed))
	reward, err := newRewardModel(cfg.RewardFunction, cfg.NActions, cfg.DimContext, rng)
	if err != nil {
		return nil, err
	}
	return &SyntheticDataset{cfg: cfg, reward: reward, rng: rng}, nil
}

func (d *SyntheticDataset) NActions() int   { return d.cfg.NActions }
func (d *SyntheticDataset) DimContext() int { return d.cfg.DimContext }

// BehaviorPolicy 返回行为策略在上下文 x 下的动作分布
// b(·|x) = softmax(Beta · q(x,·))。
func (d *SyntheticDataset) BehaviorPolicy(x []float64) []float64 {
	q := d.reward.expected(x)
	logits := make([]float64, len(q))
	for i, v := range q {
		logits[i] = d.cfg.Beta * v
	}
	return floats.Softmax(logits)
}

// ObtainBatchFeedback 采样 nRounds 轮日志化反馈。
// 连续调用得到互相独立的批次（训练批/评估批来自同一个生成器）。
func (d *SyntheticDataset) ObtainBatchFeedback(nRounds int) (*Feedback, error) {
	if nRounds <= 0 {
		return nil, fmt.Errorf("n_rounds must be positive, got %d", nRounds)
	}
	fb := &Feedback{
		NRounds:        nRounds,
		NActions:       d.cfg.NActions,
		Context:        make([][]float64, nRounds),
		Action:         make([]int, nRounds),
		Reward:         make([]float64, nRounds),
		Pscore:         make([]float64, nRounds),
		ExpectedReward: make([][]float64, nRounds),
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < nRounds; i++ {
		x := make([]float64, d.cfg.DimContext)
		for j := range x {
			x[j] = d.rng.NormFloat64()
		}
		q := d.reward.expected(x)
		logits := make([]float64, len(q))
		for a, v := range q {
			logits[a] = d.cfg.Beta * v
		}
		dist := floats.Softmax(logits)
		action := sampleIndex(d.rng, dist)

		fb.Context[i] = x
		fb.ExpectedReward[i] = q
		fb.Action[i] = action
		fb.Pscore[i] = dist[action]
		fb.Reward[i] = d.sampleReward(q[action])
	}
	return fb, nil
}

func (d *SyntheticDataset) sampleReward(mean float64) float64 {
	switch d.cfg.RewardType {
	case RewardContinuous:
		return mean + d.rng.NormFloat64()
	default:
		if d.rng.Float64() < mean {
			return 1
		}
		return 0
	}
}

// sampleIndex 按离散分布采样一个下标。浮点误差导致未命中时取末位。
func sampleIndex(rng *rand.Rand, dist []float64) int {
	u := rng.Float64()
	var cum float64
	for i, p := range dist {
		cum += p
		if u < cum {
			return i
		}
	}
	return len(dist) - 1
}
