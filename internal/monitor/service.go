package monitor

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"order-splitter/internal/order"
	"order-splitter/internal/store"
)

// DefaultListLimit 为 ListEvents 未指定数量时的返回条数。
const DefaultListLimit = 100

// Service 负责持久化订单审计事件，只追加，不回放到订单库。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewService 初始化审计服务，创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("monitor: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS order_events (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	event_type TEXT NOT NULL,
	order_id TEXT,
	payload TEXT NOT NULL,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_order_events_type ON order_events(event_type);
CREATE INDEX IF NOT EXISTS idx_order_events_order ON order_events(order_id);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("monitor: 初始化表失败: %w", err)
	}
	return nil
}

// Record 写入单个事件。
func (s *Service) Record(ctx context.Context, event Event) error {
	return s.record(ctx, event, "")
}

func (s *Service) record(ctx context.Context, event Event, orderID string) error {
	payload, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("monitor: 序列化事件失败: %w", err)
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = s.now()
	}

	var id sql.NullString
	if orderID != "" {
		id = sql.NullString{String: orderID, Valid: true}
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO order_events (event_type, order_id, payload, created_at) VALUES (?, ?, ?, ?)`,
		string(event.Type), id, string(payload), event.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("monitor: 写入事件失败: %w", err)
	}

	return nil
}

// RecordOrderCreated 记录入库订单。
func (s *Service) RecordOrderCreated(ctx context.Context, o order.Order) {
	if err := s.record(ctx, Event{
		Type:      EventOrderCreated,
		Timestamp: o.CreatedAt,
		Payload:   OrderCreatedPayload{Order: o},
	}, o.ID); err != nil {
		s.logger.Warn("记录订单创建事件失败", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// RecordOrderRejected 记录被拒绝的请求。
func (s *Service) RecordOrderRejected(ctx context.Context, side order.Side, cause error) {
	payload := OrderRejectedPayload{Side: side, Reason: cause.Error()}
	var domainErr *order.Error
	if errors.As(cause, &domainErr) {
		payload.Kind = domainErr.Kind
		payload.Reason = domainErr.Message
		payload.Symbols = domainErr.Symbols
	}
	if err := s.Record(ctx, Event{
		Type:    EventOrderRejected,
		Payload: payload,
	}); err != nil {
		s.logger.Warn("记录订单拒绝事件失败", zap.Error(err))
	}
}

// RecordDrift 记录成本对账偏差。
func (s *Service) RecordDrift(ctx context.Context, o order.Order, costTotal, drift decimal.Decimal) {
	if err := s.record(ctx, Event{
		Type:      EventReconciliationDrift,
		Timestamp: o.CreatedAt,
		Payload: DriftPayload{
			OrderID:        o.ID,
			Side:           o.Side,
			RequestedTotal: o.RequestedTotal,
			CostTotal:      costTotal,
			Drift:          drift,
		},
	}, o.ID); err != nil {
		s.logger.Warn("记录对账偏差事件失败", zap.String("order_id", o.ID), zap.Error(err))
	}
}

// RecordIndexReset 记录订单库清空。
func (s *Service) RecordIndexReset(ctx context.Context, cleared int) {
	if err := s.Record(ctx, Event{
		Type:    EventIndexReset,
		Payload: IndexResetPayload{ClearedOrders: cleared},
	}); err != nil {
		s.logger.Warn("记录订单库清空事件失败", zap.Error(err))
	}
}

// RecordPrecisionChanged 记录份额精度调整。
func (s *Service) RecordPrecisionChanged(ctx context.Context, from, to int) {
	if err := s.Record(ctx, Event{
		Type:    EventPrecisionChanged,
		Payload: PrecisionChangedPayload{From: from, To: to},
	}); err != nil {
		s.logger.Warn("记录精度调整事件失败", zap.Error(err))
	}
}

// ListEvents 按类型检索最近事件，最新的在前。
func (s *Service) ListEvents(ctx context.Context, eventType EventType, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT event_type, payload, created_at FROM order_events`
	args := make([]interface{}, 0, 2)
	if eventType != "" {
		query += ` WHERE event_type = ?`
		args = append(args, string(eventType))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("monitor: 查询事件失败: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var (
			typ     string
			payload string
			created string
		)
		if scanErr := rows.Scan(&typ, &payload, &created); scanErr != nil {
			return nil, fmt.Errorf("monitor: 解析事件失败: %w", scanErr)
		}

		ts, parseErr := time.Parse(time.RFC3339Nano, created)
		if parseErr != nil {
			s.logger.Warn("事件时间戳格式异常", zap.String("created_at", created), zap.Error(parseErr))
		}

		events = append(events, Event{
			Type:      EventType(typ),
			Timestamp: ts,
			Payload:   json.RawMessage(payload),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: 读取事件失败: %w", err)
	}

	return events, nil
}
