package config

import "strings"

// 默认值常量
const (
	defaultAppEnv      = "dev"
	defaultAppLogLevel = "info"
	defaultAppHTTPAddr = ":9881"

	defaultResultsRoot = "data/results"
	defaultArchivePath = "data/archive/feedback.db"

	defaultMaxConcurrent  = 2
	defaultNActions       = 10
	defaultDimContext     = 5
	defaultBeta           = -2.0
	defaultRewardType     = "binary"
	defaultRewardFunction = "logistic"
	defaultRoundsTrain    = 10000
	defaultRoundsTest     = 10000
	defaultSeed           = 12345

	defaultIPWEpochs = 200
	defaultIPWLR     = 0.05
	defaultIPWL2     = 1e-4

	defaultNNHidden    = 32
	defaultNNEpochs    = 200
	defaultNNBatch     = 64
	defaultNNLR        = 0.005
	defaultNNL2        = 1e-4
	defaultNNMaxWeight = 100.0

	defaultPresetsPath   = "configs/experiments.yaml"
	defaultSweepInterval = "1d"
)

type keySet map[string]struct{}

func (k keySet) mark(key string) {
	k[strings.ToLower(key)] = struct{}{}
}

func (k keySet) has(key string) bool {
	_, ok := k[strings.ToLower(key)]
	return ok
}

// applyDefaults 为所有子配置应用默认值；keys 标记了文件里显式出现过的键，
// 只有未出现的键才回落到默认值（允许显式写 0 关闭某项）。
func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Data.applyDefaults(keys)
	c.Experiment.applyDefaults(keys)
	c.Presets.applyDefaults(keys)
	c.Sweep.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a.Env == "" {
		a.Env = defaultAppEnv
	}
	if a.LogLevel == "" {
		a.LogLevel = defaultAppLogLevel
	}
	if a.HTTPAddr == "" {
		a.HTTPAddr = defaultAppHTTPAddr
	}
}

func (d *DataConfig) applyDefaults(keys keySet) {
	if d.ResultsRoot == "" {
		d.ResultsRoot = defaultResultsRoot
	}
	if d.ArchivePath == "" {
		d.ArchivePath = defaultArchivePath
	}
	if !keys.has("data.archive_feedback") {
		d.ArchiveFeedback = true
	}
}

func (e *ExperimentConfig) applyDefaults(keys keySet) {
	if e.MaxConcurrent <= 0 {
		e.MaxConcurrent = defaultMaxConcurrent
	}
	e.Defaults.applyDefaults(keys)
}

func (r *RunDefaults) applyDefaults(keys keySet) {
	if r.NActions <= 0 {
		r.NActions = defaultNActions
	}
	if r.DimContext <= 0 {
		r.DimContext = defaultDimContext
	}
	if !keys.has("experiment.defaults.beta") {
		r.Beta = defaultBeta
	}
	if r.RewardType == "" {
		r.RewardType = defaultRewardType
	}
	if r.RewardFunction == "" {
		r.RewardFunction = defaultRewardFunction
	}
	if r.RoundsTrain <= 0 {
		r.RoundsTrain = defaultRoundsTrain
	}
	if r.RoundsTest <= 0 {
		r.RoundsTest = defaultRoundsTest
	}
	if !keys.has("experiment.defaults.seed") {
		r.Seed = defaultSeed
	}
	if r.IPW.Epochs <= 0 {
		r.IPW.Epochs = defaultIPWEpochs
	}
	if r.IPW.LearningRate <= 0 {
		r.IPW.LearningRate = defaultIPWLR
	}
	if !keys.has("experiment.defaults.ipw.l2") {
		r.IPW.L2 = defaultIPWL2
	}
	if r.NN.HiddenSize <= 0 {
		r.NN.HiddenSize = defaultNNHidden
	}
	if r.NN.Epochs <= 0 {
		r.NN.Epochs = defaultNNEpochs
	}
	if r.NN.BatchSize <= 0 {
		r.NN.BatchSize = defaultNNBatch
	}
	if r.NN.LearningRate <= 0 {
		r.NN.LearningRate = defaultNNLR
	}
	if !keys.has("experiment.defaults.nn.l2") {
		r.NN.L2 = defaultNNL2
	}
	if !keys.has("experiment.defaults.nn.max_weight") {
		r.NN.MaxWeight = defaultNNMaxWeight
	}
}

func (p *PresetsConfig) applyDefaults(keys keySet) {
	if p.Path == "" && !keys.has("presets.path") {
		p.Path = defaultPresetsPath
	}
}

func (s *SweepConfig) applyDefaults(keys keySet) {
	if s.Interval == "" {
		s.Interval = defaultSweepInterval
	}
}
