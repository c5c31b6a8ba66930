package execution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"order-splitter/internal/allocation"
	"order-splitter/internal/calendar"
	"order-splitter/internal/index"
	"order-splitter/internal/order"
	"order-splitter/internal/settings"
)

// Coordinator 串联拆单、交易日历与订单库，是对外唯一的下单入口。
type Coordinator struct {
	engine    *allocation.Engine
	calendar  *calendar.Calendar
	index     *index.Index
	precision *settings.Precision
	journal   Journal
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option 调整 Coordinator 的可注入依赖。
type Option func(*Coordinator)

// WithClock 替换当前时间来源。
func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithIDGenerator 替换订单ID生成器。
func WithIDGenerator(gen func() string) Option {
	return func(c *Coordinator) {
		if gen != nil {
			c.newID = gen
		}
	}
}

// WithJournal 设置审计事件记录器。
func WithJournal(j Journal) Option {
	return func(c *Coordinator) {
		if j != nil {
			c.journal = j
		}
	}
}

// NewCoordinator 创建订单协调器。
func NewCoordinator(
	engine *allocation.Engine,
	cal *calendar.Calendar,
	ix *index.Index,
	precision *settings.Precision,
	logger *zap.Logger,
	opts ...Option,
) (*Coordinator, error) {
	if engine == nil || cal == nil || ix == nil || precision == nil {
		return nil, errors.New("execution: engine、calendar、index、precision 均不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	c := &Coordinator{
		engine:    engine,
		calendar:  cal,
		index:     ix,
		precision: precision,
		journal:   nopJournal{},
		logger:    logger,
		now:       time.Now,
		newID:     uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Submit 解析原始组合参数后创建订单，解析失败同样记为拒单。
func (c *Coordinator) Submit(ctx context.Context, side order.Side, total *decimal.Decimal, inputs []order.AssetInput) (order.Order, error) {
	req, err := order.Resolve(total, inputs)
	if err != nil {
		c.reject(ctx, side, err)
		return order.Order{}, err
	}
	return c.CreateOrder(ctx, side, req)
}

// CreateOrder 拆单、确定执行时刻并写入订单库。
func (c *Coordinator) CreateOrder(ctx context.Context, side order.Side, req order.Request) (order.Order, error) {
	if err := ctx.Err(); err != nil {
		return order.Order{}, err
	}
	if req == nil {
		err := order.InvalidPortfolio("portfolio must not be empty")
		c.reject(ctx, side, err)
		return order.Order{}, err
	}

	precision := c.precision.Get()
	result, err := c.engine.Split(side, req, precision)
	if err != nil {
		c.reject(ctx, side, err)
		if order.IsInvalidPortfolio(err) {
			return order.Order{}, err
		}
		return order.Order{}, fmt.Errorf("execution: 拆单失败: %w", err)
	}

	now := c.now()
	o := order.Order{
		ID:             c.newID(),
		Side:           side,
		RequestedTotal: result.RequestedTotal,
		Lines:          result.Lines,
		CreatedAt:      now,
		SharePrecision: result.SharePrecision,
		Mode:           result.Mode,
	}
	if c.calendar.IsOpen(now) {
		o.ExecutableNow = true
		o.ExecutionInstant = now
	} else {
		next := c.calendar.NextTradeable(now)
		o.ExecutionInstant = next
		o.NextAvailableInstant = &next
	}

	c.index.Insert(o)
	c.journal.RecordOrderCreated(ctx, o)
	if result.Drift.Abs().GreaterThan(c.engine.DriftTolerance()) {
		c.journal.RecordDrift(ctx, o, result.CostTotal, result.Drift)
	}

	c.logger.Info("订单已创建",
		zap.String("order_id", o.ID),
		zap.String("side", string(o.Side)),
		zap.String("mode", string(o.Mode)),
		zap.Int("assets", len(o.Lines)),
		zap.String("requested_total", o.RequestedTotal.StringFixed(2)),
		zap.Bool("executable_now", o.ExecutableNow),
		zap.Time("execution_instant", o.ExecutionInstant),
	)

	return o.Clone(), nil
}

func (c *Coordinator) reject(ctx context.Context, side order.Side, err error) {
	c.logger.Warn("订单被拒绝", zap.String("side", string(side)), zap.Error(err))
	c.journal.RecordOrderRejected(ctx, side, err)
}

// GetOrder 按ID读取订单。
func (c *Coordinator) GetOrder(id string) (order.Order, error) {
	return c.index.Get(id)
}

// QueryOrders 按条件分页查询订单。
func (c *Coordinator) QueryOrders(f index.Filter, limit, offset int) index.Page {
	return c.index.Query(f, limit, offset)
}

// Stats 返回订单库统计。
func (c *Coordinator) Stats() index.Stats {
	return c.index.Stats()
}

// IsMarketOpen 判断当前是否处于交易时段。
func (c *Coordinator) IsMarketOpen() bool {
	return c.calendar.IsOpen(c.now())
}

// MarketStatus 返回当前市场状态。
func (c *Coordinator) MarketStatus() calendar.MarketStatus {
	return c.calendar.Status(c.now())
}

// NextTradeable 返回 at 之后（含）的下一个可交易时刻。
func (c *Coordinator) NextTradeable(at time.Time) time.Time {
	return c.calendar.NextTradeable(at)
}

// Precision 返回当前份额精度。
func (c *Coordinator) Precision() int {
	return c.precision.Get()
}

// SetPrecision 调整份额精度，只影响之后创建的订单。
func (c *Coordinator) SetPrecision(ctx context.Context, places int) error {
	from := c.precision.Get()
	if err := c.precision.Set(places); err != nil {
		return err
	}
	if from != places {
		c.logger.Info("份额精度已调整", zap.Int("from", from), zap.Int("to", places))
		c.journal.RecordPrecisionChanged(ctx, from, places)
	}
	return nil
}

// Reset 清空订单库，返回清除的订单数量。
func (c *Coordinator) Reset(ctx context.Context) int {
	cleared := c.index.Reset()
	c.logger.Info("订单库已清空", zap.Int("cleared", cleared))
	c.journal.RecordIndexReset(ctx, cleared)
	return cleared
}
