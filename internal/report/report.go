// Package report 用 go-echarts 把实验结果渲染成可直接浏览的 HTML 页面。
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"

	"banditlab/internal/experiment"
)

const (
	colorBackground    = "#060c1b"
	colorTextPrimary   = "#eceff4"
	colorTextSecondary = "#9ca3af"
	colorValue         = "#34d399"
	colorBaseline      = "#f87171"
	colorLoss          = "#22d3ee"

	chartWidthPx  = 1100
	valueHeightPx = 420
	lossHeightPx  = 360
)

// RunChartInput 是渲染一个 run 所需的全部数据。
type RunChartInput struct {
	Run      experiment.Run
	Policies []experiment.PolicyResult
	// Curves 按策略名给出逐 epoch 损失，没有曲线的策略可缺省。
	Curves map[string][]float64
}

// RenderRunHTML 把价值对比图与损失曲线写成一整页 HTML。
func RenderRunHTML(w io.Writer, input RunChartInput) error {
	if input.Run.ID == "" {
		return fmt.Errorf("run id required for report render")
	}
	if len(input.Policies) == 0 {
		return fmt.Errorf("no policy results to render for run %s", input.Run.ID)
	}

	page := components.NewPage()
	page.SetLayout(components.PageFlexLayout)
	page.PageTitle = pageTitle(input.Run)

	page.AddCharts(buildValueChart(input))
	for _, policy := range sortedCurvePolicies(input) {
		page.AddCharts(buildLossChart(policy, input.Curves[policy]))
	}
	return page.Render(w)
}

func pageTitle(run experiment.Run) string {
	name := run.Name
	if name == "" {
		name = "experiment"
	}
	return fmt.Sprintf("%s (%s)", name, shortID(run.ID))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// buildValueChart 画各策略的 ground-truth 价值柱状图，叠加行为策略基线。
func buildValueChart(input RunChartInput) *charts.Bar {
	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", valueHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:         "Policy value",
			Subtitle:      fmt.Sprintf("behavior=%.4f uniform=%.4f", input.Run.Stats.BehaviorValue, input.Run.Stats.UniformValue),
			Left:          "left",
			Top:           "10",
			TitleStyle:    &opts.TextStyle{Color: colorTextPrimary, FontSize: 18},
			SubtitleStyle: &opts.TextStyle{Color: colorTextSecondary},
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Type:      "category",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.2)}},
		}),
	)

	names := make([]string, 0, len(input.Policies))
	values := make([]opts.BarData, 0, len(input.Policies))
	baseline := make([]opts.BarData, 0, len(input.Policies))
	for _, pr := range input.Policies {
		names = append(names, pr.Policy)
		values = append(values, opts.BarData{Value: pr.Value, ItemStyle: &opts.ItemStyle{Color: colorValue, Opacity: opts.Float(0.85)}})
		baseline = append(baseline, opts.BarData{Value: input.Run.Stats.BehaviorValue, ItemStyle: &opts.ItemStyle{Color: colorBaseline, Opacity: opts.Float(0.5)}})
	}
	bar.SetXAxis(names)
	bar.AddSeries("policy value", values)
	bar.AddSeries("behavior policy", baseline)
	return bar
}

// buildLossChart 画某个学习器的训练损失（-V̂）曲线。
func buildLossChart(policy string, curve []float64) *charts.Line {
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Theme:           types.ThemeWesteros,
			Width:           fmt.Sprintf("%dpx", chartWidthPx),
			Height:          fmt.Sprintf("%dpx", lossHeightPx),
			BackgroundColor: colorBackground,
		}),
		charts.WithTitleOpts(opts.Title{
			Title:      fmt.Sprintf("Training loss %s", policy),
			Left:       "left",
			TitleStyle: &opts.TextStyle{Color: colorTextPrimary},
		}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(false)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{
			Name:      "epoch",
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
		}),
		charts.WithYAxisOpts(opts.YAxis{
			Scale:     opts.Bool(true),
			AxisLabel: &opts.AxisLabel{Color: colorTextSecondary},
			SplitLine: &opts.SplitLine{Show: opts.Bool(true), LineStyle: &opts.LineStyle{Color: colorTextSecondary, Opacity: opts.Float(0.15)}},
		}),
	)

	xAxis := make([]string, len(curve))
	data := make([]opts.LineData, len(curve))
	for i, loss := range curve {
		xAxis[i] = fmt.Sprintf("%d", i+1)
		data[i] = opts.LineData{Value: loss}
	}
	line.SetXAxis(xAxis)
	line.AddSeries(policy, data,
		charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false), Smooth: opts.Bool(true)}),
		charts.WithLineStyleOpts(opts.LineStyle{Color: colorLoss, Width: 2}),
	)
	return line
}

func sortedCurvePolicies(input RunChartInput) []string {
	// 按结果顺序取有曲线的策略，保证页面布局稳定。
	var out []string
	for _, pr := range input.Policies {
		if len(input.Curves[pr.Policy]) > 0 {
			out = append(out, pr.Policy)
		}
	}
	return out
}

// Summary 生成一行文本摘要，policies 接口随结果一起返回。
func Summary(run experiment.Run, policies []experiment.PolicyResult) string {
	parts := make([]string, 0, len(policies)+1)
	parts = append(parts, fmt.Sprintf("behavior=%.4f", run.Stats.BehaviorValue))
	for _, pr := range policies {
		parts = append(parts, fmt.Sprintf("%s=%.4f", pr.Policy, pr.Value))
	}
	return strings.Join(parts, " | ")
}
