package policy

import (
	"context"
	"fmt"
	"math"
	"math/rand"

	"banditlab/internal/pkg/floats"
)

// logisticClassifier 是带样本权重的多分类逻辑回归，充当 IPW 学习器的
// 基分类器。全批量梯度下降，L2 正则，初始权重由种子决定。
type logisticClassifier struct {
	nClasses int
	dim      int
	epochs   int
	lr       float64
	l2       float64
	seed     int64

	// w[k] 为类别 k 的权重向量，最后一位是偏置。
	w [][]float64
}

func newLogisticClassifier(nClasses, dim, epochs int, lr, l2 float64, seed int64) *logisticClassifier {
	return &logisticClassifier{
		nClasses: nClasses,
		dim:      dim,
		epochs:   epochs,
		lr:       lr,
		l2:       l2,
		seed:     seed,
	}
}

func (c *logisticClassifier) fit(ctx context.Context, xs [][]float64, ys []int, sampleWeight []float64) error {
	n := len(xs)
	if n == 0 {
		return fmt.Errorf("logistic: no training samples")
	}
	if len(ys) != n || len(sampleWeight) != n {
		return fmt.Errorf("logistic: labels/weights length mismatch")
	}
	var totalWeight float64
	for i, w := range sampleWeight {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("logistic: sample %d has invalid weight %v", i, w)
		}
		totalWeight += w
	}
	if totalWeight <= 0 {
		return fmt.Errorf("logistic: total sample weight is zero")
	}

	rng := rand.New(rand.NewSource(c.seed))
	c.w = make([][]float64, c.nClasses)
	for k := range c.w {
		row := make([]float64, c.dim+1)
		for j := range row {
			row[j] = rng.NormFloat64() * 0.01
		}
		c.w[k] = row
	}

	grad := make([][]float64, c.nClasses)
	for k := range grad {
		grad[k] = make([]float64, c.dim+1)
	}
	for epoch := 0; epoch < c.epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for k := range grad {
			for j := range grad[k] {
				grad[k][j] = 0
			}
		}
		for i, x := range xs {
			p := floats.Softmax(c.scores(x))
			wi := sampleWeight[i]
			for k := 0; k < c.nClasses; k++ {
				diff := p[k]
				if k == ys[i] {
					diff -= 1
				}
				g := wi * diff / totalWeight
				row := grad[k]
				for j := 0; j < c.dim; j++ {
					row[j] += g * x[j]
				}
				row[c.dim] += g
			}
		}
		for k := range c.w {
			for j := range c.w[k] {
				c.w[k][j] -= c.lr * (grad[k][j] + c.l2*c.w[k][j])
			}
		}
	}
	return nil
}

// scores 返回各类别的线性得分（logits）。
func (c *logisticClassifier) scores(x []float64) []float64 {
	out := make([]float64, c.nClasses)
	for k, row := range c.w {
		var s float64
		for j := 0; j < c.dim; j++ {
			s += row[j] * x[j]
		}
		out[k] = s + row[c.dim]
	}
	return out
}

func (c *logisticClassifier) proba(x []float64) []float64 {
	return floats.Softmax(c.scores(x))
}
