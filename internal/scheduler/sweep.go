package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"banditlab/internal/experiment"
	"banditlab/internal/logger"
	"banditlab/internal/presets"
)

// Submitter 是 sweep 对实验服务的最小依赖。
type Submitter interface {
	Defaults() experiment.RunConfig
	SubmitConfig(cfg experiment.RunConfig) (experiment.Run, error)
}

// SweepConfig 描述周期性重跑哪些 preset。
type SweepConfig struct {
	Interval       string
	Presets        []string
	RunImmediately bool
}

// Sweeper 按固定周期把配置的 preset 重新提交成实验。
type Sweeper struct {
	svc       Submitter
	registry  *presets.Registry
	interval  time.Duration
	presetIDs []string
	immediate bool
}

// NewSweeper 校验配置并构建 sweeper。
func NewSweeper(svc Submitter, registry *presets.Registry, cfg SweepConfig) (*Sweeper, error) {
	if svc == nil {
		return nil, fmt.Errorf("sweep requires an experiment service")
	}
	if registry == nil {
		return nil, fmt.Errorf("sweep requires a preset registry")
	}
	interval, ok := ParseIntervalDuration(cfg.Interval)
	if !ok {
		return nil, fmt.Errorf("invalid sweep interval: %q", cfg.Interval)
	}
	ids := make([]string, 0, len(cfg.Presets))
	for _, id := range cfg.Presets {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("sweep requires at least one preset id")
	}
	return &Sweeper{
		svc:       svc,
		registry:  registry,
		interval:  interval,
		presetIDs: ids,
		immediate: cfg.RunImmediately,
	}, nil
}

// Run 阻塞执行 sweep 循环，直到 ctx 取消。
func (s *Sweeper) Run(ctx context.Context) error {
	if s == nil {
		return nil
	}
	sched := NewAlignedScheduler(ctx, s.interval, 0)
	sched.RunImmediately = s.immediate
	logger.Infof("[sweep] started interval=%s presets=%v", s.interval, s.presetIDs)
	sched.Start(func() { s.sweepOnce() })
	return nil
}

// sweepOnce 提交一轮配置里的全部 preset。单个 preset 失败不影响其余。
func (s *Sweeper) sweepOnce() {
	for _, id := range s.presetIDs {
		preset, ok := s.registry.Preset(id)
		if !ok {
			logger.Warnf("[sweep] preset %s not found, skip", id)
			continue
		}
		cfg, err := preset.BuildConfig(s.svc.Defaults(), nil)
		if err != nil {
			logger.Errorf("[sweep] build config for preset %s failed: %v", id, err)
			continue
		}
		run, err := s.svc.SubmitConfig(cfg)
		if err != nil {
			logger.Errorf("[sweep] submit preset %s failed: %v", id, err)
			continue
		}
		logger.Infof("[sweep] preset %s submitted as run %s", id, run.ID)
	}
}
