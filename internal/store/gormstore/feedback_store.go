// Package gormstore 用 Gorm + SQLite 归档实验用过的反馈批次，按 run 可重放。
package gormstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"banditlab/internal/dataset"
	"banditlab/internal/experiment"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	_ "modernc.org/sqlite"
)

const (
	SplitTrain = "train"
	SplitTest  = "test"
)

type feedbackRoundModel struct {
	ID             int64          `gorm:"column:id;primaryKey"`
	RunID          string         `gorm:"column:run_id;index:idx_feedback_run_split"`
	Split          string         `gorm:"column:split;index:idx_feedback_run_split"`
	Round          int            `gorm:"column:round"`
	Context        datatypes.JSON `gorm:"column:context"`
	Action         int            `gorm:"column:action"`
	Reward         float64        `gorm:"column:reward"`
	Pscore         float64        `gorm:"column:pscore"`
	ExpectedReward datatypes.JSON `gorm:"column:expected_reward"`
	CreatedAt      int64          `gorm:"column:created_at"`
}

func (feedbackRoundModel) TableName() string { return "feedback_rounds" }

// FeedbackStore 实现 experiment.FeedbackArchive。
type FeedbackStore struct {
	db *gorm.DB
}

var _ experiment.FeedbackArchive = (*FeedbackStore)(nil)

// NewFeedbackStore 打开（必要时创建）归档库。
func NewFeedbackStore(path string) (*FeedbackStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("feedback store: 归档路径不能为空")
	}
	if err := ensureDir(path); err != nil {
		return nil, err
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	// DSN 用的是 modernc（纯 Go）驱动的 _pragma 语法；显式走已注册的 "sqlite" 驱动，
	// 避免默认的 mattn/go-sqlite3 在 CGO_ENABLED=0 下不可用。
	db, err := gorm.Open(sqlite.Dialector{DriverName: "sqlite", DSN: dsn}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&feedbackRoundModel{}); err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite + WAL: 给并发 HTTP 读留一点余量，同时控制锁竞争。
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &FeedbackStore{db: db}, nil
}

// Close 关闭底层连接。
func (s *FeedbackStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// SaveBatch 把一批反馈逐轮落库。重复 (run, split) 先清旧数据再写入。
func (s *FeedbackStore) SaveBatch(ctx context.Context, runID, split string, fb *dataset.Feedback) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("feedback store 未初始化")
	}
	if runID == "" || split == "" {
		return fmt.Errorf("run_id 与 split 必填")
	}
	if fb == nil || fb.NRounds == 0 {
		return nil
	}
	if err := fb.Validate(); err != nil {
		return fmt.Errorf("feedback store: %w", err)
	}
	now := time.Now().UnixMilli()
	models := make([]feedbackRoundModel, 0, fb.NRounds)
	for i := 0; i < fb.NRounds; i++ {
		ctxJSON, err := json.Marshal(fb.Context[i])
		if err != nil {
			return err
		}
		m := feedbackRoundModel{
			RunID:     runID,
			Split:     split,
			Round:     i,
			Context:   datatypes.JSON(ctxJSON),
			Action:    fb.Action[i],
			Reward:    fb.Reward[i],
			Pscore:    fb.Pscore[i],
			CreatedAt: now,
		}
		if fb.ExpectedReward != nil {
			expJSON, err := json.Marshal(fb.ExpectedReward[i])
			if err != nil {
				return err
			}
			m.ExpectedReward = datatypes.JSON(expJSON)
		}
		models = append(models, m)
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("run_id = ? AND split = ?", runID, split).
			Delete(&feedbackRoundModel{}).Error; err != nil {
			return err
		}
		return tx.CreateInBatches(&models, 200).Error
	})
}

// ListRounds 按写入顺序还原某个 run/split 的反馈批次。
func (s *FeedbackStore) ListRounds(ctx context.Context, runID, split string) (*dataset.Feedback, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("feedback store 未初始化")
	}
	var models []feedbackRoundModel
	if err := s.db.WithContext(ctx).
		Where("run_id = ? AND split = ?", runID, split).
		Order("round ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("run %s 没有 %s 批次", runID, split)
	}
	fb := &dataset.Feedback{NRounds: len(models)}
	hasExpected := true
	for _, m := range models {
		var x []float64
		if err := json.Unmarshal(m.Context, &x); err != nil {
			return nil, fmt.Errorf("round %d: context 解析失败: %w", m.Round, err)
		}
		fb.Context = append(fb.Context, x)
		fb.Action = append(fb.Action, m.Action)
		fb.Reward = append(fb.Reward, m.Reward)
		fb.Pscore = append(fb.Pscore, m.Pscore)
		if m.Action >= fb.NActions {
			fb.NActions = m.Action + 1
		}
		if len(m.ExpectedReward) == 0 {
			hasExpected = false
			continue
		}
		var q []float64
		if err := json.Unmarshal(m.ExpectedReward, &q); err != nil {
			return nil, fmt.Errorf("round %d: expected_reward 解析失败: %w", m.Round, err)
		}
		fb.ExpectedReward = append(fb.ExpectedReward, q)
		if len(q) > fb.NActions {
			fb.NActions = len(q)
		}
	}
	if !hasExpected {
		fb.ExpectedReward = nil
	}
	return fb, nil
}

// ListRuns 返回归档过批次的 run ID（去重，新的在前）。
func (s *FeedbackStore) ListRuns(ctx context.Context, limit int) ([]string, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("feedback store 未初始化")
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var ids []string
	err := s.db.WithContext(ctx).
		Model(&feedbackRoundModel{}).
		Select("run_id").
		Group("run_id").
		Order("MAX(created_at) DESC").
		Limit(limit).
		Pluck("run_id", &ids).Error
	return ids, err
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
