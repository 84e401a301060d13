// Package experiment orchestrates offline policy experiments: it draws (or
// imports) logged bandit feedback, trains the configured learners, scores
// every policy against the ground-truth expected rewards and persists the
// outcome.
package experiment

import (
	"context"
	"fmt"
	"sync"
	"time"

	"banditlab/internal/dataset"
	"banditlab/internal/logger"
	"banditlab/internal/ope"
	"banditlab/internal/policy"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FeedbackArchive 把生成的反馈批次落盘，便于之后按 run 重放。
type FeedbackArchive interface {
	SaveBatch(ctx context.Context, runID, split string, fb *dataset.Feedback) error
}

// ServiceConfig 配置实验服务。
type ServiceConfig struct {
	Store         *ResultStore
	Archive       FeedbackArchive // 可为 nil
	Defaults      RunConfig
	MaxConcurrent int
}

// Service 负责管理任务、协调训练与写库。
type Service struct {
	store    *ResultStore
	archive  FeedbackArchive
	defaults RunConfig

	sem chan struct{}

	mu   sync.RWMutex
	runs map[string]*Run

	baseCtx context.Context
}

func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("result store cannot be nil")
	}
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 2
	}
	return &Service{
		store:    cfg.Store,
		archive:  cfg.Archive,
		defaults: cfg.Defaults,
		sem:      make(chan struct{}, maxConcurrent),
		runs:     make(map[string]*Run),
		baseCtx:  context.Background(),
	}, nil
}

// SetContext 注入宿主 ctx，用于任务取消。
func (s *Service) SetContext(ctx context.Context) {
	if ctx != nil {
		s.baseCtx = ctx
	}
}

func (s *Service) ctx() context.Context {
	if s.baseCtx == nil {
		return context.Background()
	}
	return s.baseCtx
}

// Defaults 返回服务端默认实验配置的副本。
func (s *Service) Defaults() RunConfig {
	return s.defaults
}

// Submit 把请求与默认配置合并后提交实验。
func (s *Service) Submit(req RunRequest) (Run, error) {
	return s.SubmitConfig(req.apply(s.defaults))
}

// SubmitConfig 直接按给定配置提交实验（preset 与周期任务使用）。
func (s *Service) SubmitConfig(cfg RunConfig) (Run, error) {
	cfg = normalizeConfig(cfg)
	if err := checkConfig(cfg); err != nil {
		return Run{}, err
	}
	now := time.Now()
	run := &Run{
		ID:        uuid.NewString(),
		Name:      cfg.Name,
		Status:    RunStatusPending,
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.InsertRun(s.ctx(), *run); err != nil {
		return Run{}, err
	}
	s.mu.Lock()
	s.runs[run.ID] = run
	s.mu.Unlock()
	logger.Infof("[experiment] run %s submitted: %s actions=%d dim=%d train=%d test=%d",
		run.ID, cfg.Name, cfg.NActions, cfg.DimContext, cfg.RoundsTrain, cfg.RoundsTest)
	logger.TraceRun(run.ID, "submitted", map[string]any{"name": cfg.Name})

	go s.runJob(run.ID)
	return run.copy(), nil
}

func normalizeConfig(cfg RunConfig) RunConfig {
	if cfg.Name == "" {
		cfg.Name = "adhoc"
	}
	if cfg.RewardType == "" {
		cfg.RewardType = string(dataset.RewardBinary)
	}
	if cfg.RewardFunction == "" {
		cfg.RewardFunction = dataset.RewardFunctionLogistic
	}
	// 学习器种子缺省跟随数据种子，保证整个 run 可复现
	if cfg.IPW.Seed == 0 {
		cfg.IPW.Seed = cfg.Seed
	}
	if cfg.NN.Seed == 0 {
		cfg.NN.Seed = cfg.Seed
	}
	return cfg
}

func checkConfig(cfg RunConfig) error {
	if cfg.FeedbackPath != "" {
		return nil // 维度与动作数由导入的日志决定
	}
	if cfg.NActions < 2 {
		return fmt.Errorf("run config: n_actions must be >= 2")
	}
	if cfg.DimContext < 1 {
		return fmt.Errorf("run config: dim_context must be >= 1")
	}
	if cfg.RoundsTrain <= 0 || cfg.RoundsTest <= 0 {
		return fmt.Errorf("run config: rounds_train and rounds_test must be positive")
	}
	return nil
}

func (s *Service) runJob(id string) {
	select {
	case s.sem <- struct{}{}:
	case <-s.ctx().Done():
		s.failRun(id, "service is shutting down")
		return
	}
	defer func() { <-s.sem }()

	ctx := s.ctx()
	run := s.snapshotPtr(id)
	if run == nil {
		return
	}
	cfg := run.Config
	s.setStatus(id, RunStatusRunning, "")
	logger.Infof("[experiment] run %s started", id)
	start := time.Now()

	train, test, err := s.prepareData(ctx, id, cfg)
	if err != nil {
		s.failRun(id, err.Error())
		return
	}
	cfg.NActions = train.NActions
	cfg.DimContext = train.DimContext()

	ipw, err := policy.NewIPWLearner(cfg.NActions, cfg.IPW)
	if err != nil {
		s.failRun(id, err.Error())
		return
	}
	nn, err := policy.NewNNPolicyLearner(cfg.NActions, cfg.NN)
	if err != nil {
		s.failRun(id, err.Error())
		return
	}
	nn.EpochHook = func(epoch int, loss float64) {
		logger.TraceEpoch(id, nn.Name(), epoch, loss)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error { return ipw.Fit(gctx, train) })
	group.Go(func() error { return nn.Fit(gctx, train) })
	if err := group.Wait(); err != nil {
		s.failRun(id, fmt.Sprintf("training failed: %v", err))
		return
	}

	stats, results, err := s.evaluate(cfg, test, ipw, nn)
	if err != nil {
		s.failRun(id, fmt.Sprintf("evaluation failed: %v", err))
		return
	}
	stats.TrainSeconds = time.Since(start).Seconds()
	stats.FinishedAt = time.Now()
	stats.Policies = results

	for _, pr := range results {
		if _, err := s.store.InsertPolicyResult(ctx, id, pr); err != nil {
			s.failRun(id, fmt.Sprintf("persisting policy result failed: %v", err))
			return
		}
	}
	if err := s.store.UpdateRunSummary(ctx, id, RunStatusDone, stats, "completed"); err != nil {
		s.failRun(id, fmt.Sprintf("persisting summary failed: %v", err))
		return
	}
	s.updateRun(id, func(r *Run) {
		r.Status = RunStatusDone
		r.Stats = stats
		r.Message = "completed"
		r.UpdatedAt = time.Now()
		r.CompletedAt = stats.FinishedAt
	})
	runsTotal.WithLabelValues(RunStatusDone).Inc()
	runDuration.Observe(stats.TrainSeconds)
	logger.Infof("[experiment] run %s done: best=%s value=%.4f behavior=%.4f",
		id, stats.BestPolicy, stats.BestValue, stats.BehaviorValue)
	logger.TraceRun(id, "done", map[string]any{"best": stats.BestPolicy, "value": stats.BestValue})
}

// prepareData 生成（或导入并对半切分）训练批与评估批。
func (s *Service) prepareData(ctx context.Context, id string, cfg RunConfig) (train, test *dataset.Feedback, err error) {
	if cfg.FeedbackPath != "" {
		fb, err := dataset.ImportJSONL(cfg.FeedbackPath, max(cfg.NActions, 2))
		if err != nil {
			return nil, nil, err
		}
		if fb.ExpectedReward == nil {
			return nil, nil, fmt.Errorf("imported feedback lacks expected rewards; ground-truth evaluation is impossible")
		}
		if fb.NRounds < 4 {
			return nil, nil, fmt.Errorf("imported feedback needs at least 4 rounds to split, got %d", fb.NRounds)
		}
		train, test = splitFeedback(fb)
	} else {
		ds, err := dataset.NewSyntheticDataset(dataset.Config{
			NActions:       cfg.NActions,
			DimContext:     cfg.DimContext,
			Beta:           cfg.Beta,
			RewardType:     dataset.RewardType(cfg.RewardType),
			RewardFunction: cfg.RewardFunction,
			Seed:           cfg.Seed,
		})
		if err != nil {
			return nil, nil, err
		}
		if train, err = ds.ObtainBatchFeedback(cfg.RoundsTrain); err != nil {
			return nil, nil, err
		}
		if test, err = ds.ObtainBatchFeedback(cfg.RoundsTest); err != nil {
			return nil, nil, err
		}
	}
	if s.archive != nil {
		if err := s.archive.SaveBatch(ctx, id, "train", train); err != nil {
			logger.Warnf("[experiment] run %s: archiving train batch failed: %v", id, err)
		}
		if err := s.archive.SaveBatch(ctx, id, "test", test); err != nil {
			logger.Warnf("[experiment] run %s: archiving test batch failed: %v", id, err)
		}
	}
	return train, test, nil
}

func splitFeedback(fb *dataset.Feedback) (train, test *dataset.Feedback) {
	half := fb.NRounds / 2
	slice := func(lo, hi int) *dataset.Feedback {
		out := &dataset.Feedback{
			NRounds:  hi - lo,
			NActions: fb.NActions,
			Context:  fb.Context[lo:hi],
			Action:   fb.Action[lo:hi],
			Reward:   fb.Reward[lo:hi],
			Pscore:   fb.Pscore[lo:hi],
		}
		if fb.ExpectedReward != nil {
			out.ExpectedReward = fb.ExpectedReward[lo:hi]
		}
		return out
	}
	return slice(0, half), slice(half, fb.NRounds)
}

// evaluate 在评估批上计算各策略的 ground-truth 价值。
func (s *Service) evaluate(cfg RunConfig, test *dataset.Feedback, ipw *policy.IPWLearner, nn *policy.NNPolicyLearner) (RunStats, []PolicyResult, error) {
	var stats RunStats
	behavior, err := ope.LoggedValue(test.Reward)
	if err != nil {
		return stats, nil, err
	}
	stats.BehaviorValue = behavior

	uniform, err := policy.NewUniformRandom(cfg.NActions)
	if err != nil {
		return stats, nil, err
	}

	type entry struct {
		learner interface {
			Name() string
			ActionDist([][]float64) (policy.ActionDist, error)
		}
		curve []float64
	}
	entries := []entry{
		{learner: uniform},
		{learner: ipw},
		{learner: nn, curve: nn.LossCurve()},
	}

	var results []PolicyResult
	for _, e := range entries {
		dist, err := e.learner.ActionDist(test.Context)
		if err != nil {
			return stats, nil, err
		}
		value, err := ope.GroundTruthPolicyValue(test.ExpectedReward, dist)
		if err != nil {
			return stats, nil, err
		}
		pr := PolicyResult{
			Policy:    e.learner.Name(),
			Value:     value,
			Lift:      value - behavior,
			LossCurve: e.curve,
		}
		results = append(results, pr)
		if e.learner.Name() == uniform.Name() {
			stats.UniformValue = value
		}
		if pr.Value > stats.BestValue || stats.BestPolicy == "" {
			stats.BestPolicy = pr.Policy
			stats.BestValue = pr.Value
		}
	}
	return stats, results, nil
}

func (s *Service) failRun(id, message string) {
	s.setStatus(id, RunStatusFailed, message)
	if err := s.store.UpdateRunStatus(s.ctx(), id, RunStatusFailed, message); err != nil {
		logger.Errorf("[experiment] run %s: persisting failure failed: %v", id, err)
	}
	runsTotal.WithLabelValues(RunStatusFailed).Inc()
	logger.Errorf("[experiment] run %s failed: %s", id, message)
	logger.TraceRun(id, "failed", map[string]any{"message": message})
}

func (s *Service) setStatus(id, status, message string) {
	s.updateRun(id, func(r *Run) {
		r.Status = status
		r.Message = message
		r.UpdatedAt = time.Now()
	})
	if status == RunStatusRunning {
		if err := s.store.UpdateRunStatus(s.ctx(), id, status, message); err != nil {
			logger.Warnf("[experiment] run %s: status update failed: %v", id, err)
		}
	}
}

func (s *Service) snapshotPtr(id string) *Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs[id]
}

func (s *Service) updateRun(id string, fn func(*Run)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run, ok := s.runs[id]; ok && fn != nil {
		fn(run)
	}
}

// RunSnapshot 返回任务的内存副本。
func (s *Service) RunSnapshot(id string) (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, false
	}
	return run.copy(), true
}

// RunsSnapshot 返回所有任务的拷贝列表。
func (s *Service) RunsSnapshot() []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.runs))
	for _, run := range s.runs {
		out = append(out, run.copy())
	}
	return out
}

// 持久化读取从 store 透出，供 HTTP 层使用。

func (s *Service) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	return s.store.ListRuns(ctx, limit)
}

func (s *Service) GetRun(ctx context.Context, id string) (Run, error) {
	return s.store.GetRun(ctx, id)
}

func (s *Service) ListPolicies(ctx context.Context, runID string) ([]PolicyResult, error) {
	return s.store.ListPolicies(ctx, runID)
}

func (s *Service) ListCurve(ctx context.Context, runID, policyName string, limit int) ([]float64, error) {
	return s.store.ListCurve(ctx, runID, policyName, limit)
}
