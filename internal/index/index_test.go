package index

import (
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"pgregory.net/rapid"

	"order-splitter/internal/order"
)

var baseTime = time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func makeOrder(id string, side order.Side, createdAt time.Time, total string, lines ...order.Line) order.Order {
	return order.Order{
		ID:             id,
		Side:           side,
		RequestedTotal: decimal.RequireFromString(total),
		Lines:          lines,
		CreatedAt:      createdAt,
		SharePrecision: 3,
		Mode:           order.ModeAllocation,
	}
}

func line(symbol string, class order.AssetClass) order.Line {
	return order.Line{Symbol: symbol, AssetClass: class}
}

func ids(orders []order.Order) []string {
	out := make([]string, len(orders))
	for i, o := range orders {
		out[i] = o.ID
	}
	return out
}

func equalIDs(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQuery_EmptyStore(t *testing.T) {
	ix := New(DefaultConfig(), nil)

	page := ix.Query(Filter{Side: order.SideBuy, AssetClass: order.AssetClassCrypto, Symbol: "BTC"}, 0, 0)
	if len(page.Orders) != 0 || page.Total != 0 || page.HasMore {
		t.Fatalf("expected empty page, got %+v", page)
	}
	if page.Limit != DefaultPageLimit {
		t.Errorf("expected default limit %d, got %d", DefaultPageLimit, page.Limit)
	}
}

func TestQuery_PaginationTail(t *testing.T) {
	ix := New(DefaultConfig(), nil)
	for i := 0; i < 150; i++ {
		ix.Insert(makeOrder(fmt.Sprintf("o-%03d", i), order.SideBuy, baseTime.Add(time.Duration(i)*time.Second), "100",
			line("AAPL", order.AssetClassStock)))
	}

	page := ix.Query(Filter{}, 10, 140)
	if len(page.Orders) != 10 {
		t.Fatalf("expected 10 orders, got %d", len(page.Orders))
	}
	if page.HasMore {
		t.Error("expected hasMore=false on the last page")
	}
	if page.Total != 150 {
		t.Errorf("expected total 150, got %d", page.Total)
	}
	// 倒序排列，最后一页为最早的十笔。
	if page.Orders[0].ID != "o-009" || page.Orders[9].ID != "o-000" {
		t.Errorf("unexpected tail ordering %v", ids(page.Orders))
	}

	first := ix.Query(Filter{}, 10, 0)
	if !first.HasMore || first.Orders[0].ID != "o-149" {
		t.Errorf("unexpected first page %v hasMore=%v", ids(first.Orders), first.HasMore)
	}
}

func TestQuery_LimitClamping(t *testing.T) {
	ix := New(Config{DefaultLimit: 5, MaxLimit: 8}, nil)
	for i := 0; i < 12; i++ {
		ix.Insert(makeOrder(fmt.Sprintf("o-%d", i), order.SideSell, baseTime, "10"))
	}

	tests := []struct {
		name        string
		limit       int
		offset      int
		wantLimit   int
		wantOffset  int
		wantResults int
	}{
		{"zero limit uses default", 0, 0, 5, 0, 5},
		{"negative limit uses default", -3, 0, 5, 0, 5},
		{"limit above max is clamped", 50, 0, 8, 0, 8},
		{"negative offset", 4, -7, 4, 0, 4},
		{"offset beyond total", 4, 30, 4, 30, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := ix.Query(Filter{}, tt.limit, tt.offset)
			if page.Limit != tt.wantLimit || page.Offset != tt.wantOffset {
				t.Errorf("limit/offset = %d/%d, want %d/%d", page.Limit, page.Offset, tt.wantLimit, tt.wantOffset)
			}
			if len(page.Orders) != tt.wantResults {
				t.Errorf("got %d orders, want %d", len(page.Orders), tt.wantResults)
			}
		})
	}
}

func TestQuery_MaxOffsetHasNoMore(t *testing.T) {
	ix := New(DefaultConfig(), nil)

	page := ix.Query(Filter{}, 10, math.MaxInt)
	if page.HasMore || page.Total != 0 || len(page.Orders) != 0 {
		t.Fatalf("expected empty page without more, got %+v", page)
	}

	for i := 0; i < 3; i++ {
		ix.Insert(makeOrder(fmt.Sprintf("o-%d", i), order.SideBuy, baseTime, "10"))
	}
	page = ix.Query(Filter{}, DefaultMaxLimit, math.MaxInt)
	if page.HasMore || page.Total != 3 || len(page.Orders) != 0 {
		t.Errorf("expected total 3 and no more orders, got total=%d hasMore=%v len=%d", page.Total, page.HasMore, len(page.Orders))
	}
	if page.Offset != math.MaxInt {
		t.Errorf("offset = %d, want %d", page.Offset, math.MaxInt)
	}
}

func TestQuery_Filters(t *testing.T) {
	ix := New(DefaultConfig(), nil)
	ix.Insert(makeOrder("a", order.SideBuy, baseTime, "1000",
		line("AAPL", order.AssetClassStock), line("BTC", order.AssetClassCrypto)))
	ix.Insert(makeOrder("b", order.SideSell, baseTime.Add(time.Minute), "500",
		line("BTC", order.AssetClassCrypto)))
	ix.Insert(makeOrder("c", order.SideBuy, baseTime.Add(2*time.Minute), "250",
		line("SPY", order.AssetClassETF), line("AAPL", "")))
	ix.Insert(makeOrder("d", order.SideBuy, baseTime.Add(3*time.Minute), "750",
		line("BTC", order.AssetClassCrypto), line("GOLD", order.AssetClassCommodity)))

	from := baseTime.Add(time.Minute)
	to := baseTime.Add(2 * time.Minute)

	tests := []struct {
		name   string
		filter Filter
		want   []string
	}{
		{"no filter newest first", Filter{}, []string{"d", "c", "b", "a"}},
		{"side", Filter{Side: order.SideBuy}, []string{"d", "c", "a"}},
		{"symbol", Filter{Symbol: "AAPL"}, []string{"c", "a"}},
		{"asset class", Filter{AssetClass: order.AssetClassCrypto}, []string{"d", "b", "a"}},
		{"side and class", Filter{Side: order.SideBuy, AssetClass: order.AssetClassCrypto}, []string{"d", "a"}},
		{"all three", Filter{Side: order.SideSell, Symbol: "BTC", AssetClass: order.AssetClassCrypto}, []string{"b"}},
		{"unknown symbol", Filter{Symbol: "TSLA"}, []string{}},
		{"unknown class with side", Filter{Side: order.SideBuy, AssetClass: order.AssetClassBond}, []string{}},
		{"inclusive range", Filter{From: &from, To: &to}, []string{"c", "b"}},
		{"from only", Filter{From: &to}, []string{"d", "c"}},
		{"range and symbol", Filter{Symbol: "BTC", To: &from}, []string{"b", "a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page := ix.Query(tt.filter, 0, 0)
			if got := ids(page.Orders); !equalIDs(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
			if page.Total != len(tt.want) {
				t.Errorf("total = %d, want %d", page.Total, len(tt.want))
			}
		})
	}
}

func TestQuery_TiesOrderedByLaterInsertion(t *testing.T) {
	ix := New(DefaultConfig(), nil)
	for _, id := range []string{"first", "second", "third"} {
		ix.Insert(makeOrder(id, order.SideBuy, baseTime, "1", line("AAPL", order.AssetClassStock)))
	}

	for _, f := range []Filter{{}, {Symbol: "AAPL"}} {
		got := ids(ix.Query(f, 0, 0).Orders)
		if !equalIDs(got, []string{"third", "second", "first"}) {
			t.Errorf("filter %+v: got %v", f, got)
		}
	}
}

func TestGet(t *testing.T) {
	ix := New(DefaultConfig(), nil)
	ix.Insert(makeOrder("abc", order.SideBuy, baseTime, "100", line("AAPL", order.AssetClassStock)))

	got, err := ix.Get("abc")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	got.Lines[0].Symbol = "MUTATED"

	again, _ := ix.Get("abc")
	if again.Lines[0].Symbol != "AAPL" {
		t.Error("stored order was mutated through a returned copy")
	}

	if _, err := ix.Get("missing"); !order.IsNotFound(err) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestInsert_CopiesInput(t *testing.T) {
	ix := New(DefaultConfig(), nil)
	o := makeOrder("x", order.SideBuy, baseTime, "100", line("AAPL", order.AssetClassStock))
	ix.Insert(o)
	o.Lines[0].Symbol = "CHANGED"

	got, _ := ix.Get("x")
	if got.Lines[0].Symbol != "AAPL" {
		t.Error("caller mutation leaked into the index")
	}
}

func TestInsert_DuplicatePanics(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	ix := New(DefaultConfig(), zap.New(core))
	ix.Insert(makeOrder("dup", order.SideBuy, baseTime, "1"))

	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate id")
		}
		if logs.Len() != 1 {
			t.Errorf("expected one error log, got %d", logs.Len())
		}
		if ix.Len() != 1 {
			t.Errorf("expected index untouched, len=%d", ix.Len())
		}
	}()
	ix.Insert(makeOrder("dup", order.SideSell, baseTime, "1"))
}

func TestStats(t *testing.T) {
	clock := &fakeClock{now: baseTime}
	ix := New(DefaultConfig(), nil, WithClock(clock.Now))

	empty := ix.Stats()
	if empty.TotalOrders != 0 || !empty.AverageOrderSize.IsZero() {
		t.Errorf("unexpected empty stats %+v", empty)
	}

	ix.Insert(makeOrder("a", order.SideBuy, baseTime, "1000",
		line("AAPL", order.AssetClassStock), line("BTC", order.AssetClassCrypto)))
	ix.Insert(makeOrder("b", order.SideSell, baseTime, "500", line("BTC", order.AssetClassCrypto)))
	ix.Insert(makeOrder("c", order.SideBuy, baseTime, "100", line("SPY", "")))

	s := ix.Stats()
	if s.TotalOrders != 3 {
		t.Errorf("total orders = %d, want 3", s.TotalOrders)
	}
	if s.CountsBySide[order.SideBuy] != 2 || s.CountsBySide[order.SideSell] != 1 {
		t.Errorf("unexpected side counts %v", s.CountsBySide)
	}
	if s.CountsByAssetClass[order.AssetClassCrypto] != 2 || s.CountsByAssetClass[order.AssetClassStock] != 1 {
		t.Errorf("unexpected class counts %v", s.CountsByAssetClass)
	}
	if s.UniqueSymbolCount != 3 {
		t.Errorf("unique symbols = %d, want 3", s.UniqueSymbolCount)
	}
	if !s.TotalRequestedVolume.Equal(decimal.RequireFromString("1600")) {
		t.Errorf("volume = %s, want 1600", s.TotalRequestedVolume)
	}
	if !s.AverageOrderSize.Equal(decimal.RequireFromString("533.33")) {
		t.Errorf("average = %s, want 533.33", s.AverageOrderSize)
	}
}

func TestStats_TTLCache(t *testing.T) {
	clock := &fakeClock{now: baseTime}
	ix := New(Config{StatsTTL: time.Minute}, nil, WithClock(clock.Now))

	ix.Insert(makeOrder("a", order.SideBuy, baseTime, "100"))
	first := ix.Stats()
	if first.TotalOrders != 1 {
		t.Fatalf("expected 1 order, got %d", first.TotalOrders)
	}

	// 缓存未过期时，快照中的 map 被修改也不影响下次读取。
	first.CountsBySide[order.SideSell] = 99
	clock.Advance(30 * time.Second)
	cached := ix.Stats()
	if !cached.ComputedAt.Equal(baseTime) {
		t.Errorf("expected cached snapshot from %s, got %s", baseTime, cached.ComputedAt)
	}
	if cached.CountsBySide[order.SideSell] != 0 {
		t.Error("cached snapshot shared map with caller")
	}

	clock.Advance(31 * time.Second)
	fresh := ix.Stats()
	if !fresh.ComputedAt.Equal(baseTime.Add(61 * time.Second)) {
		t.Errorf("expected recomputation after TTL, computed at %s", fresh.ComputedAt)
	}
}

func TestStats_InsertInvalidatesCache(t *testing.T) {
	clock := &fakeClock{now: baseTime}
	ix := New(DefaultConfig(), nil, WithClock(clock.Now))

	ix.Insert(makeOrder("a", order.SideBuy, baseTime, "100"))
	if ix.Stats().TotalOrders != 1 {
		t.Fatal("expected 1 order")
	}
	ix.Insert(makeOrder("b", order.SideBuy, baseTime, "100"))
	if got := ix.Stats().TotalOrders; got != 2 {
		t.Errorf("expected cache invalidated by insert, got %d", got)
	}
}

func TestReset(t *testing.T) {
	clock := &fakeClock{now: baseTime}
	ix := New(DefaultConfig(), nil, WithClock(clock.Now))
	ix.Insert(makeOrder("a", order.SideBuy, baseTime, "100", line("BTC", order.AssetClassCrypto)))
	_ = ix.Stats()

	if cleared := ix.Reset(); cleared != 1 {
		t.Errorf("expected 1 cleared order, got %d", cleared)
	}
	if ix.Len() != 0 {
		t.Errorf("expected empty index, len=%d", ix.Len())
	}
	if _, err := ix.Get("a"); !order.IsNotFound(err) {
		t.Errorf("expected not found after reset, got %v", err)
	}
	if page := ix.Query(Filter{Symbol: "BTC"}, 0, 0); page.Total != 0 {
		t.Errorf("expected secondary index cleared, got %d", page.Total)
	}
	if s := ix.Stats(); s.TotalOrders != 0 {
		t.Errorf("expected stats cache cleared, got %d", s.TotalOrders)
	}

	ix.Insert(makeOrder("a", order.SideBuy, baseTime, "100"))
	if ix.Len() != 1 {
		t.Error("expected id reusable after reset")
	}
}

func TestConcurrentInsertAndQuery(t *testing.T) {
	ix := New(DefaultConfig(), nil)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ix.Insert(makeOrder(fmt.Sprintf("w%d-%d", w, i), order.SideBuy, baseTime, "10",
					line("AAPL", order.AssetClassStock)))
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				page := ix.Query(Filter{Symbol: "AAPL", Side: order.SideBuy}, 100, 0)
				for _, o := range page.Orders {
					if len(o.Lines) != 1 {
						t.Errorf("observed partially written order %s", o.ID)
						return
					}
				}
				_ = ix.Stats()
			}
		}()
	}
	wg.Wait()

	if ix.Len() != 400 {
		t.Errorf("expected 400 orders, got %d", ix.Len())
	}
	if s := ix.Stats(); s.TotalOrders != 400 {
		t.Errorf("expected stats to see 400 orders, got %d", s.TotalOrders)
	}
}

func TestProperty_FilterOrderCommutes(t *testing.T) {
	sides := []order.Side{order.SideBuy, order.SideSell}
	symbols := []string{"AAPL", "BTC", "SPY", "GOLD"}

	rapid.Check(t, func(t *rapid.T) {
		ix := New(Config{MaxLimit: 1000}, nil)
		n := rapid.IntRange(0, 40).Draw(t, "orders")
		for i := 0; i < n; i++ {
			side := rapid.SampledFrom(sides).Draw(t, "side")
			k := rapid.IntRange(1, len(symbols)).Draw(t, "lines")
			lines := make([]order.Line, k)
			for j := range lines {
				lines[j] = line(rapid.SampledFrom(symbols).Draw(t, "symbol"), order.AssetClassStock)
			}
			offset := time.Duration(rapid.IntRange(0, 5).Draw(t, "minute")) * time.Minute
			ix.Insert(makeOrder(fmt.Sprintf("o%d", i), side, baseTime.Add(offset), "1", lines...))
		}

		side := rapid.SampledFrom(sides).Draw(t, "querySide")
		symbol := rapid.SampledFrom(symbols).Draw(t, "querySymbol")

		combined := ids(ix.Query(Filter{Side: side, Symbol: symbol}, 1000, 0).Orders)

		// 先按方向再按标的，与先按标的再按方向的结果一致。
		sideThenSymbol := filterSymbol(ix.Query(Filter{Side: side}, 1000, 0).Orders, symbol)
		symbolThenSide := filterSide(ix.Query(Filter{Symbol: symbol}, 1000, 0).Orders, side)

		if !equalIDs(ids(sideThenSymbol), ids(symbolThenSide)) {
			t.Fatalf("side-then-symbol %v != symbol-then-side %v", ids(sideThenSymbol), ids(symbolThenSide))
		}
		if !equalIDs(combined, ids(sideThenSymbol)) {
			t.Fatalf("combined filter %v != sequential %v", combined, ids(sideThenSymbol))
		}
	})
}

func filterSymbol(orders []order.Order, symbol string) []order.Order {
	var out []order.Order
	for _, o := range orders {
		for _, s := range o.Symbols() {
			if s == symbol {
				out = append(out, o)
				break
			}
		}
	}
	return out
}

func filterSide(orders []order.Order, side order.Side) []order.Order {
	var out []order.Order
	for _, o := range orders {
		if o.Side == side {
			out = append(out, o)
		}
	}
	return out
}
