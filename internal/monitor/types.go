package monitor

import (
	"time"

	"github.com/shopspring/decimal"

	"order-splitter/internal/order"
)

// EventType 表示订单审计事件类型。
type EventType string

const (
	EventOrderCreated        EventType = "order_created"
	EventOrderRejected       EventType = "order_rejected"
	EventReconciliationDrift EventType = "reconciliation_drift"
	EventIndexReset          EventType = "index_reset"
	EventPrecisionChanged    EventType = "precision_changed"
)

// Event 封装通用审计事件。
type Event struct {
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload"`
}

// OrderCreatedPayload 记录入库的订单。
type OrderCreatedPayload struct {
	Order order.Order `json:"order"`
}

// OrderRejectedPayload 记录被拒绝的下单请求。
type OrderRejectedPayload struct {
	Side    order.Side `json:"side"`
	Kind    order.Kind `json:"kind,omitempty"`
	Reason  string     `json:"reason"`
	Symbols []string   `json:"symbols,omitempty"`
}

// DriftPayload 记录成本合计与请求金额之间的偏差。
type DriftPayload struct {
	OrderID        string          `json:"orderId"`
	Side           order.Side      `json:"side"`
	RequestedTotal decimal.Decimal `json:"requestedTotal"`
	CostTotal      decimal.Decimal `json:"costTotal"`
	Drift          decimal.Decimal `json:"drift"`
}

// IndexResetPayload 记录订单库清空。
type IndexResetPayload struct {
	ClearedOrders int `json:"clearedOrders"`
}

// PrecisionChangedPayload 记录份额精度调整。
type PrecisionChangedPayload struct {
	From int `json:"from"`
	To   int `json:"to"`
}
