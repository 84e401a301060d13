package app

import (
	"fmt"
	"strings"

	"banditlab/internal/config"
	"banditlab/internal/presets"
)

// StartupSummary 汇总启动配置，便于肉眼核对。
type StartupSummary struct {
	HTTPAddr string
	Data     DataSummary
	Defaults DefaultsSummary
	Presets  []string
	Sweep    SweepSummary
}

type DataSummary struct {
	ResultsRoot     string
	ArchivePath     string
	ArchiveFeedback bool
}

type DefaultsSummary struct {
	NActions    int
	DimContext  int
	Beta        float64
	RewardType  string
	RoundsTrain int
	RoundsTest  int
	Seed        int64
}

type SweepSummary struct {
	Enabled  bool
	Interval string
	Presets  []string
}

func buildStartupSummary(cfg *config.Config, registry *presets.Registry) *StartupSummary {
	s := &StartupSummary{
		HTTPAddr: cfg.App.HTTPAddr,
		Data: DataSummary{
			ResultsRoot:     cfg.Data.ResultsRoot,
			ArchivePath:     cfg.Data.ArchivePath,
			ArchiveFeedback: cfg.Data.ArchiveFeedback,
		},
		Defaults: DefaultsSummary{
			NActions:    cfg.Experiment.Defaults.NActions,
			DimContext:  cfg.Experiment.Defaults.DimContext,
			Beta:        cfg.Experiment.Defaults.Beta,
			RewardType:  cfg.Experiment.Defaults.RewardType,
			RoundsTrain: cfg.Experiment.Defaults.RoundsTrain,
			RoundsTest:  cfg.Experiment.Defaults.RoundsTest,
			Seed:        cfg.Experiment.Defaults.Seed,
		},
		Sweep: SweepSummary{
			Enabled:  cfg.Sweep.Enabled,
			Interval: cfg.Sweep.Interval,
			Presets:  cfg.Sweep.Presets,
		},
	}
	if registry != nil {
		s.Presets = registry.IDs()
	}
	return s
}

func (s *StartupSummary) Print() {
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("%*s\n", 40+len("启动配置摘要 (STARTUP SUMMARY)")/2, "启动配置摘要 (STARTUP SUMMARY)")
	fmt.Println(strings.Repeat("=", 80))

	fmt.Println("[服务 (SERVER)]")
	fmt.Printf("  HTTP 监听: %s\n", s.HTTPAddr)
	fmt.Println()

	fmt.Println("[存储 (STORAGE)]")
	fmt.Printf("  结果库目录: %s\n", s.Data.ResultsRoot)
	if s.Data.ArchiveFeedback {
		fmt.Printf("  反馈归档: %s\n", s.Data.ArchivePath)
	} else {
		fmt.Println("  反馈归档: 关闭")
	}
	fmt.Println()

	fmt.Println("[默认实验参数 (RUN DEFAULTS)]")
	fmt.Printf("  动作数: %d  上下文维度: %d  beta: %.2f\n", s.Defaults.NActions, s.Defaults.DimContext, s.Defaults.Beta)
	fmt.Printf("  奖励类型: %s  训练轮数: %d  评估轮数: %d  种子: %d\n",
		s.Defaults.RewardType, s.Defaults.RoundsTrain, s.Defaults.RoundsTest, s.Defaults.Seed)
	fmt.Println()

	fmt.Println("[实验 Preset (PRESETS)]")
	fmt.Printf("  已加载: %s\n", formatList(s.Presets))
	fmt.Println()

	fmt.Println("[周期扫描 (SWEEP)]")
	if s.Sweep.Enabled {
		fmt.Printf("  周期: %s  Preset: %s\n", s.Sweep.Interval, formatList(s.Sweep.Presets))
	} else {
		fmt.Println("  关闭")
	}
	fmt.Println(strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ", ")
}
