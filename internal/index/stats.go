package index

import (
	"time"

	"github.com/shopspring/decimal"

	"order-splitter/internal/order"
)

// Stats 为订单库汇总快照。
type Stats struct {
	TotalOrders          int                      `json:"totalOrders"`
	CountsBySide         map[order.Side]int       `json:"countsBySide"`
	CountsByAssetClass   map[order.AssetClass]int `json:"countsByAssetClass"`
	UniqueSymbolCount    int                      `json:"uniqueSymbolCount"`
	TotalRequestedVolume decimal.Decimal          `json:"totalRequestedVolume"`
	AverageOrderSize     decimal.Decimal          `json:"averageOrderSize"`
	ComputedAt           time.Time                `json:"computedAt"`
}

func (s Stats) clone() Stats {
	cp := s
	cp.CountsBySide = make(map[order.Side]int, len(s.CountsBySide))
	for k, v := range s.CountsBySide {
		cp.CountsBySide[k] = v
	}
	cp.CountsByAssetClass = make(map[order.AssetClass]int, len(s.CountsByAssetClass))
	for k, v := range s.CountsByAssetClass {
		cp.CountsByAssetClass[k] = v
	}
	return cp
}

// Stats 返回缓存快照；缓存过期（仅在读取时判断）后全量重算。
func (ix *Index) Stats() Stats {
	now := ix.now()

	ix.mu.RLock()
	if ix.stats != nil && now.Sub(ix.statsAt) < ix.cfg.StatsTTL {
		cached := ix.stats.clone()
		ix.mu.RUnlock()
		return cached
	}
	ix.mu.RUnlock()

	ix.mu.Lock()
	defer ix.mu.Unlock()

	// 等锁期间可能已有其他调用者重算。
	if ix.stats != nil && now.Sub(ix.statsAt) < ix.cfg.StatsTTL {
		return ix.stats.clone()
	}

	computed := ix.computeLocked(now)
	ix.stats = &computed
	ix.statsAt = now
	return computed.clone()
}

func (ix *Index) computeLocked(now time.Time) Stats {
	s := Stats{
		TotalOrders:          len(ix.orders),
		CountsBySide:         make(map[order.Side]int),
		CountsByAssetClass:   make(map[order.AssetClass]int),
		TotalRequestedVolume: decimal.Zero,
		AverageOrderSize:     decimal.Zero,
		ComputedAt:           now,
	}

	symbols := make(map[string]struct{})
	for _, id := range ix.sequence {
		o := ix.lookupLocked(id)
		s.CountsBySide[o.Side]++
		for _, class := range o.AssetClasses() {
			s.CountsByAssetClass[class]++
		}
		for _, symbol := range o.Symbols() {
			symbols[symbol] = struct{}{}
		}
		s.TotalRequestedVolume = s.TotalRequestedVolume.Add(o.RequestedTotal)
	}
	if len(ix.sequence) != len(ix.orders) {
		ix.desync("插入顺序列表与主表数量不一致")
	}

	s.UniqueSymbolCount = len(symbols)
	if s.TotalOrders > 0 {
		s.AverageOrderSize = s.TotalRequestedVolume.
			Div(decimal.NewFromInt(int64(s.TotalOrders))).
			Round(2)
	}
	return s
}
