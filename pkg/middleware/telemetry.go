package middleware

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/bus"
	"github.com/peter-kozarec/tessera/pkg/common"
)

// Telemetry counts journal events per kind.
type Telemetry struct {
	logger *zap.Logger

	marketEventCounter    atomic.Int64
	fillEventCounter      atomic.Int64
	orderEventCounter     atomic.Int64
	rejectionEventCounter atomic.Int64
	equityEventCounter    atomic.Int64
	positionEventCounter  atomic.Int64
}

func NewTelemetry(logger *zap.Logger) *Telemetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Telemetry{
		logger: logger,
	}
}

func (t *Telemetry) WithMarket(handler bus.MarketEventHandler) bus.MarketEventHandler {
	return func(ctx context.Context, ev common.Event) {
		t.marketEventCounter.Add(1)
		handler(ctx, ev)
	}
}

func (t *Telemetry) WithFill(handler bus.FillEventHandler) bus.FillEventHandler {
	return func(ctx context.Context, fill common.Fill) {
		t.fillEventCounter.Add(1)
		handler(ctx, fill)
	}
}

func (t *Telemetry) WithOrder(handler bus.OrderEventHandler) bus.OrderEventHandler {
	return func(ctx context.Context, order common.Order) {
		t.orderEventCounter.Add(1)
		if order.Status == common.OrderStatusRejected {
			t.rejectionEventCounter.Add(1)
		}
		handler(ctx, order)
	}
}

func (t *Telemetry) WithEquity(handler bus.EquityEventHandler) bus.EquityEventHandler {
	return func(ctx context.Context, point common.EquityPoint) {
		t.equityEventCounter.Add(1)
		handler(ctx, point)
	}
}

func (t *Telemetry) WithPosition(handler bus.PositionEventHandler) bus.PositionEventHandler {
	return func(ctx context.Context, snapshot common.PositionSnapshot) {
		t.positionEventCounter.Add(1)
		handler(ctx, snapshot)
	}
}

func (t *Telemetry) MarketEvents() int64    { return t.marketEventCounter.Load() }
func (t *Telemetry) FillEvents() int64      { return t.fillEventCounter.Load() }
func (t *Telemetry) OrderEvents() int64     { return t.orderEventCounter.Load() }
func (t *Telemetry) RejectionEvents() int64 { return t.rejectionEventCounter.Load() }
func (t *Telemetry) EquityEvents() int64    { return t.equityEventCounter.Load() }
func (t *Telemetry) PositionEvents() int64  { return t.positionEventCounter.Load() }

func (t *Telemetry) PrintStatistics() {
	t.logger.Info("event statistics",
		zap.Int64("market_events", t.MarketEvents()),
		zap.Int64("fill_events", t.FillEvents()),
		zap.Int64("order_events", t.OrderEvents()),
		zap.Int64("rejection_events", t.RejectionEvents()),
		zap.Int64("equity_events", t.EquityEvents()),
		zap.Int64("position_events", t.PositionEvents()))
}
