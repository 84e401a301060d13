// Package floats holds the small pieces of vector math shared by the
// synthetic generator and the policy learners.
package floats

import (
	"fmt"
	"math"
)

// DistTolerance is the slack allowed when checking that a row sums to one.
const DistTolerance = 1e-6

func Sigmoid(x float64) float64 {
	return 1.0 / (1.0 + math.Exp(-x))
}

// Softmax 返回数值稳定的 softmax，输入为空时返回 nil。
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxv := logits[0]
	for _, v := range logits[1:] {
		if v > maxv {
			maxv = v
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - maxv)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// ArgMax 返回最大元素下标，空切片返回 -1。并列时取靠前者。
func ArgMax(v []float64) int {
	if len(v) == 0 {
		return -1
	}
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}

func Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("dot: length mismatch %d vs %d", len(a), len(b))
	}
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s, nil
}

func Mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var s float64
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}

// IsDistribution 检查一行是否构成概率分布。
func IsDistribution(row []float64) bool {
	if len(row) == 0 {
		return false
	}
	var sum float64
	for _, p := range row {
		if p < 0 || math.IsNaN(p) || math.IsInf(p, 0) {
			return false
		}
		sum += p
	}
	return math.Abs(sum-1.0) <= DistTolerance
}

// Clip 将 x 限制到 [lo, hi]。
func Clip(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
