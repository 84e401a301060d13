// Package app 负责应用级编排：加载配置→初始化依赖→启动 HTTP 与周期任务。
package app

import (
	"context"
	"fmt"

	"banditlab/internal/config"
	"banditlab/internal/experiment"
	"banditlab/internal/logger"
	"banditlab/internal/presets"
	"banditlab/internal/scheduler"
	"banditlab/internal/store/gormstore"
	labhttp "banditlab/internal/transport/http"

	"golang.org/x/sync/errgroup"
)

// App 持有全部运行期组件（不启动）。
type App struct {
	cfg     *config.Config
	store   *experiment.ResultStore
	archive *gormstore.FeedbackStore
	svc     *experiment.Service
	http    *labhttp.Server
	presets *presets.Registry
	sweeper *scheduler.Sweeper
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象。
func NewApp(cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg)
}

// Run 启动 HTTP 服务与 sweep 循环，阻塞直到 ctx 取消或组件出错。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.svc == nil || a.http == nil {
		return fmt.Errorf("experiment service not initialized")
	}

	if a.Summary != nil {
		a.Summary.Print()
	}

	group, ctx := errgroup.WithContext(ctx)
	a.svc.SetContext(ctx)

	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})

	if a.sweeper != nil {
		group.Go(func() error {
			return a.sweeper.Run(ctx)
		})
	}

	err := group.Wait()
	a.close()
	return err
}

// Service 暴露实验服务，回放与测试用。
func (a *App) Service() *experiment.Service {
	if a == nil {
		return nil
	}
	return a.svc
}

func (a *App) close() {
	if a.archive != nil {
		if err := a.archive.Close(); err != nil {
			logger.Warnf("close feedback archive failed: %v", err)
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			logger.Warnf("close result store failed: %v", err)
		}
	}
}
