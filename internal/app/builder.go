package app

import (
	"context"
	"fmt"
	"os"

	"banditlab/internal/config"
	"banditlab/internal/experiment"
	"banditlab/internal/logger"
	"banditlab/internal/policy"
	"banditlab/internal/presets"
	"banditlab/internal/scheduler"
	"banditlab/internal/store/gormstore"
	labhttp "banditlab/internal/transport/http"
)

// AppBuilder 按配置装配 App，构造函数字段可在测试里替换。
type AppBuilder struct {
	cfg *config.Config

	resultStoreFn func(string) (*experiment.ResultStore, error)
	archiveFn     func(string) (*gormstore.FeedbackStore, error)
	presetsFn     func(string) (*presets.Registry, error)
	httpServerFn  func(labhttp.Config) (*labhttp.Server, error)
}

type AppBuilderOption func(*AppBuilder)

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:           cfg,
		resultStoreFn: experiment.NewResultStore,
		archiveFn:     gormstore.NewFeedbackStore,
		presetsFn:     presets.NewRegistry,
		httpServerFn:  labhttp.NewServer,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	store, err := b.resultStoreFn(cfg.Data.ResultsRoot)
	if err != nil {
		return nil, fmt.Errorf("open result store: %w", err)
	}
	logger.Infof("✓ 结果库已打开: %s", cfg.Data.ResultsRoot)

	var archive *gormstore.FeedbackStore
	if cfg.Data.ArchiveFeedback {
		archive, err = b.archiveFn(cfg.Data.ArchivePath)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("open feedback archive: %w", err)
		}
		logger.Infof("✓ 反馈归档已启用: %s", cfg.Data.ArchivePath)
	}

	defaults := runDefaultsToConfig(cfg.Experiment.Defaults)
	svcCfg := experiment.ServiceConfig{
		Store:         store,
		Defaults:      defaults,
		MaxConcurrent: cfg.Experiment.MaxConcurrent,
	}
	if archive != nil {
		svcCfg.Archive = archive
	}
	svc, err := experiment.NewService(svcCfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	registry, err := b.loadPresets(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	server, err := b.httpServerFn(labhttp.Config{
		Addr:    cfg.App.HTTPAddr,
		Svc:     svc,
		Presets: registry,
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("build http server: %w", err)
	}

	var sweeper *scheduler.Sweeper
	if cfg.Sweep.Enabled {
		if registry == nil {
			store.Close()
			return nil, fmt.Errorf("sweep enabled but preset registry unavailable")
		}
		sweeper, err = scheduler.NewSweeper(svc, registry, scheduler.SweepConfig{
			Interval: cfg.Sweep.Interval,
			Presets:  cfg.Sweep.Presets,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	app := &App{
		cfg:     cfg,
		store:   store,
		archive: archive,
		svc:     svc,
		http:    server,
		presets: registry,
		sweeper: sweeper,
		Summary: buildStartupSummary(cfg, registry),
	}
	return app, nil
}

// loadPresets 在文件缺失时允许降级运行，sweep 之外 preset 不是硬依赖。
func (b *AppBuilder) loadPresets(cfg *config.Config) (*presets.Registry, error) {
	path := cfg.Presets.Path
	if path == "" {
		return nil, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logger.Warnf("preset file %s not found, presets disabled", path)
		return nil, nil
	}
	registry, err := b.presetsFn(path)
	if err != nil {
		return nil, fmt.Errorf("load presets: %w", err)
	}
	registry.Subscribe(func(snap presets.Snapshot) {
		logger.Infof("preset registry reloaded: version=%d presets=%d", snap.Version, len(snap.Presets))
	})
	return registry, nil
}

func runDefaultsToConfig(d config.RunDefaults) experiment.RunConfig {
	return experiment.RunConfig{
		NActions:       d.NActions,
		DimContext:     d.DimContext,
		Beta:           d.Beta,
		RewardType:     d.RewardType,
		RewardFunction: d.RewardFunction,
		RoundsTrain:    d.RoundsTrain,
		RoundsTest:     d.RoundsTest,
		Seed:           d.Seed,
		IPW: policy.IPWConfig{
			Epochs:       d.IPW.Epochs,
			LearningRate: d.IPW.LearningRate,
			L2:           d.IPW.L2,
		},
		NN: policy.NNConfig{
			HiddenSize:   d.NN.HiddenSize,
			Epochs:       d.NN.Epochs,
			BatchSize:    d.NN.BatchSize,
			LearningRate: d.NN.LearningRate,
			L2:           d.NN.L2,
			MaxWeight:    d.NN.MaxWeight,
		},
	}
}
