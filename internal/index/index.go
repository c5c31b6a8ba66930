package index

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"order-splitter/internal/order"
)

const (
	DefaultPageLimit = 20
	DefaultMaxLimit  = 100
	DefaultStatsTTL  = 60 * time.Second
)

// Config 控制分页与统计缓存。
type Config struct {
	DefaultLimit int
	MaxLimit     int
	StatsTTL     time.Duration
}

// DefaultConfig 返回默认分页与缓存参数。
func DefaultConfig() Config {
	return Config{
		DefaultLimit: DefaultPageLimit,
		MaxLimit:     DefaultMaxLimit,
		StatsTTL:     DefaultStatsTTL,
	}
}

func (c Config) normalize() Config {
	if c.DefaultLimit <= 0 {
		c.DefaultLimit = DefaultPageLimit
	}
	if c.MaxLimit <= 0 {
		c.MaxLimit = DefaultMaxLimit
	}
	if c.DefaultLimit > c.MaxLimit {
		c.DefaultLimit = c.MaxLimit
	}
	if c.StatsTTL <= 0 {
		c.StatsTTL = DefaultStatsTTL
	}
	return c
}

type idSet map[string]struct{}

// Index 为内存订单库：主表、三个二级索引、插入顺序列表与统计缓存。
// 所有变更在同一把写锁内完成，读者不会看到半写入的订单。
type Index struct {
	mu sync.RWMutex

	cfg    Config
	now    func() time.Time
	logger *zap.Logger

	orders       map[string]order.Order
	bySide       map[order.Side]idSet
	bySymbol     map[string]idSet
	byAssetClass map[order.AssetClass]idSet
	sequence     []string
	position     map[string]int

	stats   *Stats
	statsAt time.Time
}

// Option 调整 Index 的可注入依赖。
type Option func(*Index)

// WithClock 替换统计缓存使用的时钟。
func WithClock(now func() time.Time) Option {
	return func(ix *Index) {
		if now != nil {
			ix.now = now
		}
	}
}

// New 创建空索引。
func New(cfg Config, logger *zap.Logger, opts ...Option) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}
	ix := &Index{
		cfg:    cfg.normalize(),
		now:    time.Now,
		logger: logger,
	}
	for _, opt := range opts {
		opt(ix)
	}
	ix.clearLocked()
	return ix
}

// Insert 写入订单及其全部二级索引，并使统计缓存失效。
func (ix *Index) Insert(o order.Order) {
	stored := o.Clone()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if _, exists := ix.orders[stored.ID]; exists {
		ix.desync("重复的订单ID", zap.String("order_id", stored.ID))
	}

	ix.orders[stored.ID] = stored
	addTo(ix.bySide, stored.Side, stored.ID)
	for _, symbol := range stored.Symbols() {
		addTo(ix.bySymbol, symbol, stored.ID)
	}
	for _, class := range stored.AssetClasses() {
		addTo(ix.byAssetClass, class, stored.ID)
	}
	ix.position[stored.ID] = len(ix.sequence)
	ix.sequence = append(ix.sequence, stored.ID)
	ix.stats = nil
}

// Get 按ID读取订单副本。
func (ix *Index) Get(id string) (order.Order, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	o, ok := ix.orders[id]
	if !ok {
		return order.Order{}, order.NotFound(id)
	}
	return o.Clone(), nil
}

// Len 返回订单数量。
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.orders)
}

// Reset 清空所有订单、索引与统计缓存，返回清除的订单数量。
func (ix *Index) Reset() int {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	cleared := len(ix.orders)
	ix.clearLocked()
	return cleared
}

func (ix *Index) clearLocked() {
	ix.orders = make(map[string]order.Order)
	ix.bySide = make(map[order.Side]idSet)
	ix.bySymbol = make(map[string]idSet)
	ix.byAssetClass = make(map[order.AssetClass]idSet)
	ix.sequence = nil
	ix.position = make(map[string]int)
	ix.stats = nil
	ix.statsAt = time.Time{}
}

// lookupLocked 解析二级索引中的ID；主表缺失说明索引已失步。
func (ix *Index) lookupLocked(id string) order.Order {
	o, ok := ix.orders[id]
	if !ok {
		ix.desync("二级索引引用了不存在的订单", zap.String("order_id", id))
	}
	return o
}

// desync 记录并中止：索引不一致属于程序错误，不做修复。
func (ix *Index) desync(msg string, fields ...zap.Field) {
	ix.logger.Error("订单索引失步: "+msg, fields...)
	panic(fmt.Sprintf("index: desync: %s", msg))
}

func addTo[K comparable](sets map[K]idSet, key K, id string) {
	set, ok := sets[key]
	if !ok {
		set = make(idSet)
		sets[key] = set
	}
	set[id] = struct{}{}
}
