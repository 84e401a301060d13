package policy

import (
	"context"
	"fmt"

	"banditlab/internal/dataset"
	"banditlab/internal/pkg/floats"
)

// IPWConfig 配置 IPW 学习器的基分类器。
type IPWConfig struct {
	Epochs       int
	LearningRate float64
	L2           float64
	Seed         int64
}

func (c *IPWConfig) applyDefaults() {
	if c.Epochs <= 0 {
		c.Epochs = 200
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.05
	}
	if c.L2 < 0 {
		c.L2 = 0
	}
}

// IPWLearner 把离线策略学习归约为重要性加权多分类：以 reward/pscore 为
// 样本权重、以行为策略选过的动作为标签训练分类器，贪心选择分类器
// 认为最优的动作。
type IPWLearner struct {
	nActions int
	cfg      IPWConfig

	base *logisticClassifier
	dim  int
}

func NewIPWLearner(nActions int, cfg IPWConfig) (*IPWLearner, error) {
	if nActions < 2 {
		return nil, fmt.Errorf("ipw learner requires n_actions >= 2, got %d", nActions)
	}
	cfg.applyDefaults()
	return &IPWLearner{nActions: nActions, cfg: cfg}, nil
}

func (l *IPWLearner) Name() string { return "ipw_learner" }

// Fit 训练基分类器。连续奖励可能为负，先减去最小奖励做基线平移，
// 分类样本权重才保持非负。平移不改变各 action 的相对偏好。
func (l *IPWLearner) Fit(ctx context.Context, fb *dataset.Feedback) error {
	if err := fb.Validate(); err != nil {
		return fmt.Errorf("ipw fit: %w", err)
	}
	if fb.NActions != l.nActions {
		return fmt.Errorf("ipw fit: feedback has %d actions, learner expects %d", fb.NActions, l.nActions)
	}
	baseline := 0.0
	for i := 0; i < fb.NRounds; i++ {
		if fb.Reward[i] < baseline {
			baseline = fb.Reward[i]
		}
	}
	weights := make([]float64, fb.NRounds)
	for i := 0; i < fb.NRounds; i++ {
		weights[i] = (fb.Reward[i] - baseline) / fb.Pscore[i]
	}
	dim := fb.DimContext()
	base := newLogisticClassifier(l.nActions, dim, l.cfg.Epochs, l.cfg.LearningRate, l.cfg.L2, l.cfg.Seed)
	if err := base.fit(ctx, fb.Context, fb.Action, weights); err != nil {
		return fmt.Errorf("ipw fit: %w", err)
	}
	l.base = base
	l.dim = dim
	return nil
}

// Predict 返回贪心 one-hot 分布。
func (l *IPWLearner) Predict(contexts [][]float64) (ActionDist, error) {
	if l.base == nil {
		return nil, fmt.Errorf("ipw learner is not fitted")
	}
	if err := checkContexts(contexts, l.dim); err != nil {
		return nil, err
	}
	dist := make(ActionDist, len(contexts))
	for i, x := range contexts {
		row := make([]float64, l.nActions)
		row[floats.ArgMax(l.base.scores(x))] = 1
		dist[i] = row
	}
	return dist, nil
}

// PredictProba 返回温度为 tau 的 softmax 分布（tau<=0 视作 1）。
func (l *IPWLearner) PredictProba(contexts [][]float64, tau float64) (ActionDist, error) {
	if l.base == nil {
		return nil, fmt.Errorf("ipw learner is not fitted")
	}
	if err := checkContexts(contexts, l.dim); err != nil {
		return nil, err
	}
	if tau <= 0 {
		tau = 1
	}
	dist := make(ActionDist, len(contexts))
	for i, x := range contexts {
		scores := l.base.scores(x)
		for k := range scores {
			scores[k] /= tau
		}
		dist[i] = floats.Softmax(scores)
	}
	return dist, nil
}

// ActionDist 评估时采用贪心分布，与离线学习的常规用法一致。
func (l *IPWLearner) ActionDist(contexts [][]float64) (ActionDist, error) {
	return l.Predict(contexts)
}
