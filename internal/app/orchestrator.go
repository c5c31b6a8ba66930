package app

import (
	"fmt"

	"go.uber.org/zap"

	"order-splitter/internal/allocation"
	"order-splitter/internal/calendar"
	"order-splitter/internal/config"
	"order-splitter/internal/execution"
	"order-splitter/internal/index"
	"order-splitter/internal/monitor"
	"order-splitter/internal/settings"
	"order-splitter/internal/store"
)

// orchestrator 持有按配置装配好的核心组件。
type orchestrator struct {
	coordinator *execution.Coordinator
	monitor     *monitor.Service
}

func (o *orchestrator) Coordinator() *execution.Coordinator {
	return o.coordinator
}

func (o *orchestrator) Monitor() *monitor.Service {
	return o.monitor
}

type orchestratorConfig struct {
	calendar   config.CalendarConfig
	allocation config.AllocationConfig
	index      config.IndexConfig
	precision  config.PrecisionConfig
}

func newOrchestrator(cfg orchestratorConfig, logger *zap.Logger, store *store.Store, opts ...execution.Option) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	cal, err := calendar.New(cfg.calendar.ToCalendar())
	if err != nil {
		return nil, fmt.Errorf("初始化交易日历失败: %w", err)
	}

	precision, err := settings.NewPrecision(cfg.precision.Default)
	if err != nil {
		return nil, fmt.Errorf("初始化份额精度失败: %w", err)
	}

	monitorSvc, err := monitor.NewService(store, logger.Named("journal"))
	if err != nil {
		return nil, fmt.Errorf("初始化审计服务失败: %w", err)
	}

	engine := allocation.NewEngine(allocation.Config{
		DefaultUnitPrice: cfg.allocation.DefaultUnitPrice,
		SumTolerance:     cfg.allocation.SumTolerance,
		DriftTolerance:   cfg.allocation.DriftTolerance,
	}, logger.Named("allocation"))

	ix := index.New(index.Config{
		DefaultLimit: cfg.index.DefaultLimit,
		MaxLimit:     cfg.index.MaxLimit,
		StatsTTL:     cfg.index.StatsTTL,
	}, logger.Named("index"))

	opts = append([]execution.Option{execution.WithJournal(monitorSvc)}, opts...)
	coord, err := execution.NewCoordinator(engine, cal, ix, precision, logger.Named("coordinator"), opts...)
	if err != nil {
		return nil, fmt.Errorf("初始化订单协调器失败: %w", err)
	}

	return &orchestrator{
		coordinator: coord,
		monitor:     monitorSvc,
	}, nil
}

func orchestratorConfigFrom(cfg *config.Config) orchestratorConfig {
	return orchestratorConfig{
		calendar:   cfg.Calendar,
		allocation: cfg.Allocation,
		index:      cfg.Index,
		precision:  cfg.Precision,
	}
}
