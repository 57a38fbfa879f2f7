package middleware

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/bus"
	"github.com/peter-kozarec/tessera/pkg/common"
)

// Performance accumulates the time spent inside the wrapped handlers.
type Performance struct {
	logger *zap.Logger

	totalMarketHandlerDur   atomic.Int64
	totalFillHandlerDur     atomic.Int64
	totalOrderHandlerDur    atomic.Int64
	totalEquityHandlerDur   atomic.Int64
	totalPositionHandlerDur atomic.Int64
}

func NewPerformance(logger *zap.Logger) *Performance {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Performance{
		logger: logger,
	}
}

func timed(total *atomic.Int64, fn func()) {
	start := time.Now()
	fn()
	total.Add(int64(time.Since(start)))
}

func (p *Performance) WithMarket(handler bus.MarketEventHandler) bus.MarketEventHandler {
	return func(ctx context.Context, ev common.Event) {
		timed(&p.totalMarketHandlerDur, func() { handler(ctx, ev) })
	}
}

func (p *Performance) WithFill(handler bus.FillEventHandler) bus.FillEventHandler {
	return func(ctx context.Context, fill common.Fill) {
		timed(&p.totalFillHandlerDur, func() { handler(ctx, fill) })
	}
}

func (p *Performance) WithOrder(handler bus.OrderEventHandler) bus.OrderEventHandler {
	return func(ctx context.Context, order common.Order) {
		timed(&p.totalOrderHandlerDur, func() { handler(ctx, order) })
	}
}

func (p *Performance) WithEquity(handler bus.EquityEventHandler) bus.EquityEventHandler {
	return func(ctx context.Context, point common.EquityPoint) {
		timed(&p.totalEquityHandlerDur, func() { handler(ctx, point) })
	}
}

func (p *Performance) WithPosition(handler bus.PositionEventHandler) bus.PositionEventHandler {
	return func(ctx context.Context, snapshot common.PositionSnapshot) {
		timed(&p.totalPositionHandlerDur, func() { handler(ctx, snapshot) })
	}
}

func (p *Performance) MarketDuration() time.Duration   { return time.Duration(p.totalMarketHandlerDur.Load()) }
func (p *Performance) FillDuration() time.Duration     { return time.Duration(p.totalFillHandlerDur.Load()) }
func (p *Performance) OrderDuration() time.Duration    { return time.Duration(p.totalOrderHandlerDur.Load()) }
func (p *Performance) EquityDuration() time.Duration   { return time.Duration(p.totalEquityHandlerDur.Load()) }
func (p *Performance) PositionDuration() time.Duration { return time.Duration(p.totalPositionHandlerDur.Load()) }

// PrintStatistics logs total and average handler durations, using t for the
// event counts.
func (p *Performance) PrintStatistics(t *Telemetry) {
	var fields []zap.Field
	add := func(name string, total time.Duration, count int64) {
		if count == 0 {
			return
		}
		fields = append(fields,
			zap.Duration(name+"_avg_duration", total/time.Duration(count)),
			zap.Duration(name+"_total_duration", total))
	}

	add("market", p.MarketDuration(), t.MarketEvents())
	add("fill", p.FillDuration(), t.FillEvents())
	add("order", p.OrderDuration(), t.OrderEvents())
	add("equity", p.EquityDuration(), t.EquityEvents())
	add("position", p.PositionDuration(), t.PositionEvents())

	p.logger.Info("performance statistics", fields...)
}
