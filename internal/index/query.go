package index

import (
	"sort"
	"time"

	"order-splitter/internal/order"
)

// Filter 为查询条件，零值字段表示不过滤。
type Filter struct {
	Side       order.Side
	Symbol     string
	AssetClass order.AssetClass
	From       *time.Time
	To         *time.Time
}

// Page 为分页查询结果。
type Page struct {
	Orders  []order.Order `json:"orders"`
	Total   int           `json:"total"`
	HasMore bool          `json:"hasMore"`
	Limit   int           `json:"limit"`
	Offset  int           `json:"offset"`
}

// Query 按条件过滤，按创建时间倒序分页返回。
func (ix *Index) Query(f Filter, limit, offset int) Page {
	limit, offset = ix.clampPage(limit, offset)

	ix.mu.RLock()
	defer ix.mu.RUnlock()

	ids, ok := ix.candidatesLocked(f)
	if !ok {
		return Page{Orders: []order.Order{}, Limit: limit, Offset: offset}
	}

	matched := make([]order.Order, 0, len(ids))
	for _, id := range ids {
		o := ix.lookupLocked(id)
		if f.From != nil && o.CreatedAt.Before(*f.From) {
			continue
		}
		if f.To != nil && o.CreatedAt.After(*f.To) {
			continue
		}
		matched = append(matched, o)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return ix.position[a.ID] > ix.position[b.ID]
	})

	total := len(matched)
	page := Page{
		Orders:  []order.Order{},
		Total:   total,
		HasMore: offset < total && limit < total-offset,
		Limit:   limit,
		Offset:  offset,
	}
	if offset >= total {
		return page
	}
	end := offset + limit
	if end > total {
		end = total
	}
	for _, o := range matched[offset:end] {
		page.Orders = append(page.Orders, o.Clone())
	}
	return page
}

func (ix *Index) clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = ix.cfg.DefaultLimit
	}
	if limit > ix.cfg.MaxLimit {
		limit = ix.cfg.MaxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// candidatesLocked 求各分类条件ID集合的交集，从最小集合开始。
// 任一条件命中不存在的键时返回 false。
func (ix *Index) candidatesLocked(f Filter) ([]string, bool) {
	var sets []idSet
	if f.Side != "" {
		set, ok := ix.bySide[f.Side]
		if !ok {
			return nil, false
		}
		sets = append(sets, set)
	}
	if f.Symbol != "" {
		set, ok := ix.bySymbol[f.Symbol]
		if !ok {
			return nil, false
		}
		sets = append(sets, set)
	}
	if f.AssetClass != "" {
		set, ok := ix.byAssetClass[f.AssetClass]
		if !ok {
			return nil, false
		}
		sets = append(sets, set)
	}

	if len(sets) == 0 {
		ids := make([]string, len(ix.sequence))
		copy(ids, ix.sequence)
		return ids, true
	}

	sort.Slice(sets, func(i, j int) bool { return len(sets[i]) < len(sets[j]) })

	ids := make([]string, 0, len(sets[0]))
	for id := range sets[0] {
		inAll := true
		for _, other := range sets[1:] {
			if _, ok := other[id]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			ids = append(ids, id)
		}
	}
	return ids, true
}
