// Package ope computes policy values for offline experiments. Only the
// ground-truth value (available because synthetic feedback carries the true
// expected rewards) and the logged on-policy average are provided here.
package ope

import (
	"fmt"

	"banditlab/internal/pkg/floats"
	"banditlab/internal/policy"
)

// GroundTruthPolicyValue 计算 V(π) = (1/n) Σ_i Σ_a π(a|x_i)·q(x_i,a)。
func GroundTruthPolicyValue(expectedReward [][]float64, dist policy.ActionDist) (float64, error) {
	if len(expectedReward) == 0 {
		return 0, fmt.Errorf("expected reward matrix is empty")
	}
	if len(dist) != len(expectedReward) {
		return 0, fmt.Errorf("action dist has %d rounds, expected reward has %d", len(dist), len(expectedReward))
	}
	if err := dist.Validate(); err != nil {
		return 0, err
	}
	var total float64
	for i, q := range expectedReward {
		if len(q) != len(dist[i]) {
			return 0, fmt.Errorf("round %d: %d expected rewards vs %d action probs", i, len(q), len(dist[i]))
		}
		v, err := floats.Dot(q, dist[i])
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total / float64(len(expectedReward)), nil
}

// LoggedValue 返回行为策略的在线均值奖励，作为对照读数。
func LoggedValue(reward []float64) (float64, error) {
	if len(reward) == 0 {
		return 0, fmt.Errorf("no rewards logged")
	}
	return floats.Mean(reward), nil
}
