package report

import (
	"bytes"
	"strings"
	"testing"

	"banditlab/internal/experiment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleInput() RunChartInput {
	return RunChartInput{
		Run: experiment.Run{
			ID:   "0fe1c2d3-aaaa-bbbb-cccc-ddddeeeeffff",
			Name: "smoke",
			Stats: experiment.RunStats{
				BehaviorValue: 0.41,
				UniformValue:  0.5,
			},
		},
		Policies: []experiment.PolicyResult{
			{Policy: "nn_policy_learner", Value: 0.63, Lift: 0.22},
			{Policy: "ipw_learner", Value: 0.6, Lift: 0.19},
			{Policy: "uniform_random", Value: 0.5, Lift: 0.09},
		},
		Curves: map[string][]float64{
			"nn_policy_learner": {-0.4, -0.5, -0.55},
		},
	}
}

func TestRenderRunHTML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, RenderRunHTML(&buf, sampleInput()))

	html := buf.String()
	assert.Contains(t, html, "echarts")
	assert.Contains(t, html, "nn_policy_learner")
	assert.Contains(t, html, "ipw_learner")
	assert.Contains(t, html, "Training loss nn_policy_learner")
	// 没有曲线的策略不应生成损失图
	assert.NotContains(t, html, "Training loss uniform_random")
}

func TestRenderRunHTMLRequiresResults(t *testing.T) {
	input := sampleInput()
	input.Policies = nil
	err := RenderRunHTML(&bytes.Buffer{}, input)
	assert.Error(t, err)

	input = sampleInput()
	input.Run.ID = ""
	err = RenderRunHTML(&bytes.Buffer{}, input)
	assert.Error(t, err)
}

func TestSummary(t *testing.T) {
	input := sampleInput()
	s := Summary(input.Run, input.Policies)
	assert.True(t, strings.HasPrefix(s, "behavior=0.4100"))
	assert.Contains(t, s, "nn_policy_learner=0.6300")
}
