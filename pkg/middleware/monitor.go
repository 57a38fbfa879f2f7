package middleware

import (
	"context"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/bus"
	"github.com/peter-kozarec/tessera/pkg/common"
)

const monitorComponentName = "middleware.monitor"

type MonitorFlags uint16

//goland:noinspection GoUnusedConst
const (
	MonitorNone MonitorFlags = 1 << iota
	MonitorAll
	MonitorMarket
	MonitorFills
	MonitorOrders
	MonitorRejections
	MonitorEquity
	MonitorPositions
)

// Monitor logs the journal events selected by its flags.
type Monitor struct {
	logger *zap.Logger
	flags  MonitorFlags
}

func NewMonitor(logger *zap.Logger, flags MonitorFlags) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		logger: logger.With(zap.String("src", monitorComponentName)),
		flags:  flags,
	}
}

func (m *Monitor) enabled(flag MonitorFlags) bool {
	return m.flags&flag != 0 || m.flags&MonitorAll != 0
}

func (m *Monitor) WithMarket(handler bus.MarketEventHandler) bus.MarketEventHandler {
	return func(ctx context.Context, ev common.Event) {
		if m.enabled(MonitorMarket) {
			h := ev.Header()
			m.logger.Info("market",
				zap.Stringer("kind", ev.Kind()),
				zap.String("symbol", h.Symbol),
				zap.Time("ts", h.TimeStamp),
				zap.Uint64("seq", h.Sequence))
		}
		handler(ctx, ev)
	}
}

func (m *Monitor) WithFill(handler bus.FillEventHandler) bus.FillEventHandler {
	return func(ctx context.Context, fill common.Fill) {
		if m.enabled(MonitorFills) {
			m.logger.Info("fill",
				zap.Time("ts", fill.TimeStamp),
				zap.Uint64("fill_id", fill.Id),
				zap.Uint64("order_id", fill.OrderId),
				zap.String("symbol", fill.Symbol),
				zap.Stringer("side", fill.Side),
				zap.Stringer("price", fill.Price),
				zap.Stringer("quantity", fill.Quantity),
				zap.Stringer("fee", fill.Fee),
				zap.Stringer("realized_pnl", fill.RealizedPnL))
		}
		handler(ctx, fill)
	}
}

func (m *Monitor) WithOrder(handler bus.OrderEventHandler) bus.OrderEventHandler {
	return func(ctx context.Context, order common.Order) {
		switch {
		case order.Status == common.OrderStatusRejected && m.enabled(MonitorRejections):
			m.logger.Warn("order rejected",
				zap.Time("ts", order.UpdateTime),
				zap.Uint64("order_id", order.Id),
				zap.String("symbol", order.Symbol),
				zap.String("reason", order.Reason))
		case m.enabled(MonitorOrders):
			m.logger.Info("order",
				zap.Time("ts", order.UpdateTime),
				zap.Uint64("order_id", order.Id),
				zap.String("symbol", order.Symbol),
				zap.Stringer("side", order.Side),
				zap.Stringer("status", order.Status),
				zap.Stringer("filled", order.FilledQuantity),
				zap.Stringer("quantity", order.Quantity))
		}
		handler(ctx, order)
	}
}

func (m *Monitor) WithEquity(handler bus.EquityEventHandler) bus.EquityEventHandler {
	return func(ctx context.Context, point common.EquityPoint) {
		if m.enabled(MonitorEquity) {
			m.logger.Info("equity",
				zap.Time("ts", point.TimeStamp),
				zap.Stringer("equity", point.Equity),
				zap.Stringer("cash", point.Cash),
				zap.Stringer("unrealized_pnl", point.UnrealizedPnL))
		}
		handler(ctx, point)
	}
}

func (m *Monitor) WithPosition(handler bus.PositionEventHandler) bus.PositionEventHandler {
	return func(ctx context.Context, snapshot common.PositionSnapshot) {
		if m.enabled(MonitorPositions) {
			m.logger.Info("position",
				zap.Time("ts", snapshot.TimeStamp),
				zap.String("symbol", snapshot.Symbol),
				zap.Stringer("quantity", snapshot.Quantity),
				zap.Stringer("avg_entry_price", snapshot.AvgEntryPrice),
				zap.Stringer("mark_price", snapshot.MarkPrice))
		}
		handler(ctx, snapshot)
	}
}
