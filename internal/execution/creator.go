package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"order-splitter/internal/calendar"
	"order-splitter/internal/index"
	"order-splitter/internal/order"
)

// Creator 抽象订单协调器，供 HTTP 层等外部调用方使用。
type Creator interface {
	CreateOrder(ctx context.Context, side order.Side, req order.Request) (order.Order, error)
	Submit(ctx context.Context, side order.Side, total *decimal.Decimal, inputs []order.AssetInput) (order.Order, error)
	GetOrder(id string) (order.Order, error)
	QueryOrders(f index.Filter, limit, offset int) index.Page
	Stats() index.Stats
	IsMarketOpen() bool
	MarketStatus() calendar.MarketStatus
	NextTradeable(at time.Time) time.Time
	Precision() int
	SetPrecision(ctx context.Context, places int) error
	Reset(ctx context.Context) int
}

var _ Creator = (*Coordinator)(nil)
