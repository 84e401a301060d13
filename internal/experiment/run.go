package experiment

import (
	"encoding/json"
	"time"

	"banditlab/internal/policy"
)

const (
	RunStatusPending = "pending"
	RunStatusRunning = "running"
	RunStatusDone    = "done"
	RunStatusFailed  = "failed"
)

// RunConfig 记录本次实验的参数快照，便于重放。
type RunConfig struct {
	Name           string  `json:"name,omitempty"`
	NActions       int     `json:"n_actions"`
	DimContext     int     `json:"dim_context"`
	Beta           float64 `json:"beta"`
	RewardType     string  `json:"reward_type"`
	RewardFunction string  `json:"reward_function"`
	RoundsTrain    int     `json:"rounds_train"`
	RoundsTest     int     `json:"rounds_test"`
	Seed           int64   `json:"seed"`

	// FeedbackPath 非空时改用外部日志训练，不再合成数据。
	FeedbackPath string `json:"feedback_path,omitempty"`

	IPW   policy.IPWConfig `json:"ipw"`
	NN    policy.NNConfig  `json:"nn"`
	Notes string           `json:"notes,omitempty"`
}

// PolicyResult 是单个策略在评估批上的成绩。
type PolicyResult struct {
	Policy    string    `json:"policy"`
	Value     float64   `json:"value"`
	Lift      float64   `json:"lift"` // 相对行为策略的提升
	LossCurve []float64 `json:"loss_curve,omitempty"`
}

// RunStats 汇总各策略价值，供前端展示。
type RunStats struct {
	BehaviorValue float64        `json:"behavior_value"`
	UniformValue  float64        `json:"uniform_value"`
	BestPolicy    string         `json:"best_policy"`
	BestValue     float64        `json:"best_value"`
	TrainSeconds  float64        `json:"train_seconds"`
	Policies      []PolicyResult `json:"policies,omitempty"`
	FinishedAt    time.Time      `json:"finished_at"`
}

// Run 表示一次离线实验任务。
type Run struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	Config      RunConfig `json:"config"`
	Stats       RunStats  `json:"stats"`
	Message     string    `json:"message"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// MarshalConfig 返回 config JSON。
func (r Run) MarshalConfig() ([]byte, error) {
	return json.Marshal(r.Config)
}

// MarshalStats 返回 stats JSON。
func (r Run) MarshalStats() ([]byte, error) {
	return json.Marshal(r.Stats)
}

func (r Run) copy() Run {
	out := r
	out.Stats.Policies = append([]PolicyResult{}, r.Stats.Policies...)
	return out
}

// RunRequest 为 HTTP 提交使用；零值字段回落到服务端默认配置。
type RunRequest struct {
	Name           string   `json:"name"`
	NActions       int      `json:"n_actions"`
	DimContext     int      `json:"dim_context"`
	Beta           *float64 `json:"beta"`
	RewardType     string   `json:"reward_type"`
	RewardFunction string   `json:"reward_function"`
	RoundsTrain    int      `json:"rounds_train"`
	RoundsTest     int      `json:"rounds_test"`
	Seed           *int64   `json:"seed"`
	FeedbackPath   string   `json:"feedback_path"`
	Notes          string   `json:"notes"`
}

// apply 把请求里的覆盖项合并进默认配置。
func (req RunRequest) apply(cfg RunConfig) RunConfig {
	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.NActions > 0 {
		cfg.NActions = req.NActions
	}
	if req.DimContext > 0 {
		cfg.DimContext = req.DimContext
	}
	if req.Beta != nil {
		cfg.Beta = *req.Beta
	}
	if req.RewardType != "" {
		cfg.RewardType = req.RewardType
	}
	if req.RewardFunction != "" {
		cfg.RewardFunction = req.RewardFunction
	}
	if req.RoundsTrain > 0 {
		cfg.RoundsTrain = req.RoundsTrain
	}
	if req.RoundsTest > 0 {
		cfg.RoundsTest = req.RoundsTest
	}
	if req.Seed != nil {
		cfg.Seed = *req.Seed
	}
	if req.FeedbackPath != "" {
		cfg.FeedbackPath = req.FeedbackPath
	}
	if req.Notes != "" {
		cfg.Notes = req.Notes
	}
	return cfg
}
