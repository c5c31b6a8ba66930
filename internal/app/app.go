package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"order-splitter/internal/config"
	"order-splitter/internal/store"
)

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 装配组件并阻塞运行 HTTP 接口，直到 ctx 结束。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("拆单服务已初始化",
		zap.String("app", a.cfg.App.Name),
		zap.String("environment", a.cfg.App.Environment),
		zap.String("timezone", a.cfg.Calendar.Timezone),
		zap.Int("share_precision", a.cfg.Precision.Default),
		zap.Bool("journal_in_memory", a.store.InMemory()),
	)

	orch, err := newOrchestrator(orchestratorConfigFrom(a.cfg), a.logger, a.store)
	if err != nil {
		return err
	}

	if a.cfg.App.Environment != "development" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(orch.Coordinator(), orch.Monitor(), a.logger.Named("api"))

	if err := serveHTTP(ctx, router, a.cfg.Server, a.logger); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("系统异常退出: %w", err)
	}

	a.logger.Info("系统收到退出信号，正在停止")
	return nil
}
