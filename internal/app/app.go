package app

import (
	"context"
	"fmt"

	"quorum/internal/config"
	"quorum/internal/consensus"
	"quorum/internal/logger"
	"quorum/internal/metrics"
	"quorum/internal/store/decisionlog"
	"quorum/internal/transport/http/api"

	"golang.org/x/sync/errgroup"
)

// App 负责应用级编排：加载配置→初始化依赖→启动 HTTP 服务并监听配置变化。
type App struct {
	cfg     *config.Config
	engine  *consensus.Engine
	audit   *decisionlog.Store
	metrics *metrics.Recorder
	http    *api.Server
	watcher *config.Watcher
	Summary *StartupSummary
}

// NewApp 根据配置构建应用对象（不启动）
func NewApp(cfg *config.Config, opts ...AppBuilderOption) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	return buildAppWithWire(context.Background(), cfg, opts)
}

// Run 启动 HTTP 服务，直到 ctx 取消。
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.engine == nil {
		return fmt.Errorf("app not initialized")
	}
	defer a.Close()

	if a.Summary != nil {
		a.Summary.Print()
	}
	if a.http == nil {
		<-ctx.Done()
		return nil
	}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.http.Start(ctx); err != nil {
			return fmt.Errorf("http server error: %w", err)
		}
		return nil
	})
	return group.Wait()
}

// Engine exposes the consensus engine (for embedding and tests).
func (a *App) Engine() *consensus.Engine {
	if a == nil {
		return nil
	}
	return a.engine
}

// Close 释放审计库连接。
func (a *App) Close() {
	if a == nil || a.audit == nil {
		return
	}
	if err := a.audit.Close(); err != nil {
		logger.Warnf("audit store close failed: %v", err)
	}
}
