package execution

import (
	"context"

	"github.com/shopspring/decimal"

	"order-splitter/internal/order"
)

// Journal 记录订单审计事件，写入失败由实现方自行记录日志。
type Journal interface {
	RecordOrderCreated(ctx context.Context, o order.Order)
	RecordOrderRejected(ctx context.Context, side order.Side, cause error)
	RecordDrift(ctx context.Context, o order.Order, costTotal, drift decimal.Decimal)
	RecordIndexReset(ctx context.Context, cleared int)
	RecordPrecisionChanged(ctx context.Context, from, to int)
}

type nopJournal struct{}

func (nopJournal) RecordOrderCreated(context.Context, order.Order)                            {}
func (nopJournal) RecordOrderRejected(context.Context, order.Side, error)                     {}
func (nopJournal) RecordDrift(context.Context, order.Order, decimal.Decimal, decimal.Decimal) {}
func (nopJournal) RecordIndexReset(context.Context, int)                                      {}
func (nopJournal) RecordPrecisionChanged(context.Context, int, int)                           {}
