package policy

import (
	"context"
	"fmt"
	"math/rand"

	"banditlab/internal/dataset"
	"banditlab/internal/pkg/floats"
)

// NNConfig 配置神经策略学习器。
type NNConfig struct {
	HiddenSize   int
	Epochs       int
	BatchSize    int
	LearningRate float64
	L2           float64
	// MaxWeight 截断重要性权重 reward/pscore 的上限，<=0 表示不截断。
	MaxWeight float64
	Seed      int64
}

func (c *NNConfig) applyDefaults() {
	if c.HiddenSize <= 0 {
		c.HiddenSize = 32
	}
	if c.Epochs <= 0 {
		c.Epochs = 200
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 64
	}
	if c.LearningRate <= 0 {
		c.LearningRate = 0.005
	}
	if c.L2 < 0 {
		c.L2 = 0
	}
}

// NNPolicyLearner 用单隐层 MLP（ReLU + softmax 头）直接最大化 IPW 估计的
// 策略价值：V̂(π) = (1/n) Σ_i (r_i/p_i)·π(a_i|x_i)。Adam 优化，逐 epoch 记录
// 损失曲线。
type NNPolicyLearner struct {
	nActions int
	cfg      NNConfig

	dim    int
	params []float64 // w1 | b1 | w2 | b2 扁平排布
	curve  []float64

	// EpochHook 在每个 epoch 结束后调用（用于训练轨迹落盘），可为 nil。
	EpochHook func(epoch int, loss float64)
}

func NewNNPolicyLearner(nActions int, cfg NNConfig) (*NNPolicyLearner, error) {
	if nActions < 2 {
		return nil, fmt.Errorf("nn learner requires n_actions >= 2, got %d", nActions)
	}
	cfg.applyDefaults()
	return &NNPolicyLearner{nActions: nActions, cfg: cfg}, nil
}

func (l *NNPolicyLearner) Name() string { return "nn_policy_learner" }

// LossCurve 返回逐 epoch 损失（-V̂）的副本。
func (l *NNPolicyLearner) LossCurve() []float64 {
	out := make([]float64, len(l.curve))
	copy(out, l.curve)
	return out
}

// 参数向量里各段的起点。
func (l *NNPolicyLearner) offsets() (ow1, ob1, ow2, ob2, total int) {
	d, h, a := l.dim, l.cfg.HiddenSize, l.nActions
	ow1 = 0
	ob1 = h * d
	ow2 = ob1 + h
	ob2 = ow2 + a*h
	total = ob2 + a
	return
}

func (l *NNPolicyLearner) forward(x []float64) (hidden, logits []float64) {
	d, h, a := l.dim, l.cfg.HiddenSize, l.nActions
	ow1, ob1, ow2, ob2, _ := l.offsets()
	hidden = make([]float64, h)
	for i := 0; i < h; i++ {
		s := l.params[ob1+i]
		base := ow1 + i*d
		for j := 0; j < d; j++ {
			s += l.params[base+j] * x[j]
		}
		if s > 0 {
			hidden[i] = s
		}
	}
	logits = make([]float64, a)
	for k := 0; k < a; k++ {
		s := l.params[ob2+k]
		base := ow2 + k*h
		for i := 0; i < h; i++ {
			s += l.params[base+i] * hidden[i]
		}
		logits[k] = s
	}
	return hidden, logits
}

// Fit 训练策略网络。连续奖励可以为负，IPW 权重按 [-MaxWeight, MaxWeight] 对称裁剪。
func (l *NNPolicyLearner) Fit(ctx context.Context, fb *dataset.Feedback) error {
	if err := fb.Validate(); err != nil {
		return fmt.Errorf("nn fit: %w", err)
	}
	if fb.NActions != l.nActions {
		return fmt.Errorf("nn fit: feedback has %d actions, learner expects %d", fb.NActions, l.nActions)
	}
	weights := make([]float64, fb.NRounds)
	for i := 0; i < fb.NRounds; i++ {
		w := fb.Reward[i] / fb.Pscore[i]
		if l.cfg.MaxWeight > 0 {
			w = floats.Clip(w, -l.cfg.MaxWeight, l.cfg.MaxWeight)
		}
		weights[i] = w
	}

	l.dim = fb.DimContext()
	l.initParams()
	_, _, _, _, total := l.offsets()
	opt := newAdam(l.cfg.LearningRate, total)
	grad := make([]float64, total)

	rng := rand.New(rand.NewSource(l.cfg.Seed + 1))
	order := make([]int, fb.NRounds)
	for i := range order {
		order[i] = i
	}

	l.curve = l.curve[:0]
	for epoch := 0; epoch < l.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for start := 0; start < len(order); start += l.cfg.BatchSize {
			end := start + l.cfg.BatchSize
			if end > len(order) {
				end = len(order)
			}
			batch := order[start:end]
			l.accumulateGrad(fb, weights, batch, grad)
			opt.step(l.params, grad)
		}
		loss := l.estimateLoss(fb, weights)
		l.curve = append(l.curve, loss)
		if l.EpochHook != nil {
			l.EpochHook(epoch, loss)
		}
	}
	return nil
}

func (l *NNPolicyLearner) initParams() {
	d, h := l.dim, l.cfg.HiddenSize
	ow1, _, ow2, _, total := l.offsets()
	rng := rand.New(rand.NewSource(l.cfg.Seed))
	l.params = make([]float64, total)
	scale1 := 1.0 / float64(d)
	scale2 := 1.0 / float64(h)
	for i := ow1; i < ow1+h*d; i++ {
		l.params[i] = rng.NormFloat64() * scale1
	}
	for i := ow2; i < ow2+l.nActions*h; i++ {
		l.params[i] = rng.NormFloat64() * scale2
	}
}

// accumulateGrad 计算一个 minibatch 上 -V̂ + L2 的梯度。
func (l *NNPolicyLearner) accumulateGrad(fb *dataset.Feedback, weights []float64, batch []int, grad []float64) {
	d, h, a := l.dim, l.cfg.HiddenSize, l.nActions
	ow1, ob1, ow2, ob2, _ := l.offsets()
	for i := range grad {
		grad[i] = 0
	}
	scale := 1.0 / float64(len(batch))
	for _, idx := range batch {
		x := fb.Context[idx]
		hidden, logits := l.forward(x)
		p := floats.Softmax(logits)
		ai := fb.Action[idx]
		wi := weights[idx]

		// dLoss/dz_k = -w_i · p_{a_i} · (δ_{k,a_i} - p_k)
		dz := make([]float64, a)
		for k := 0; k < a; k++ {
			delta := 0.0
			if k == ai {
				delta = 1
			}
			dz[k] = -wi * p[ai] * (delta - p[k]) * scale
		}
		dh := make([]float64, h)
		for k := 0; k < a; k++ {
			base := ow2 + k*h
			for i := 0; i < h; i++ {
				grad[base+i] += dz[k] * hidden[i]
				dh[i] += l.params[base+i] * dz[k]
			}
			grad[ob2+k] += dz[k]
		}
		for i := 0; i < h; i++ {
			if hidden[i] <= 0 {
				continue // ReLU 未激活
			}
			base := ow1 + i*d
			for j := 0; j < d; j++ {
				grad[base+j] += dh[i] * x[j]
			}
			grad[ob1+i] += dh[i]
		}
	}
	if l.cfg.L2 > 0 {
		// 只正则权重，不动偏置
		for i := ow1; i < ob1; i++ {
			grad[i] += l.cfg.L2 * l.params[i]
		}
		for i := ow2; i < ob2; i++ {
			grad[i] += l.cfg.L2 * l.params[i]
		}
	}
}

// estimateLoss 在全量数据上计算 -V̂(π)。
func (l *NNPolicyLearner) estimateLoss(fb *dataset.Feedback, weights []float64) float64 {
	var value float64
	for i := 0; i < fb.NRounds; i++ {
		_, logits := l.forward(fb.Context[i])
		p := floats.Softmax(logits)
		value += weights[i] * p[fb.Action[i]]
	}
	return -value / float64(fb.NRounds)
}

// PredictProba 返回各上下文的 softmax 动作分布。
func (l *NNPolicyLearner) PredictProba(contexts [][]float64) (ActionDist, error) {
	if l.params == nil {
		return nil, fmt.Errorf("nn learner is not fitted")
	}
	if err := checkContexts(contexts, l.dim); err != nil {
		return nil, err
	}
	dist := make(ActionDist, len(contexts))
	for i, x := range contexts {
		_, logits := l.forward(x)
		dist[i] = floats.Softmax(logits)
	}
	return dist, nil
}

func (l *NNPolicyLearner) ActionDist(contexts [][]float64) (ActionDist, error) {
	return l.PredictProba(contexts)
}
