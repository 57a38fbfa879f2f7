package simulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/bus"
	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/datasource"
	"github.com/peter-kozarec/tessera/pkg/exchange"
	"github.com/peter-kozarec/tessera/pkg/strategy"
	"github.com/peter-kozarec/tessera/pkg/tools/metrics"
)

// maxUpdateRounds bounds how often order updates may trigger further order
// updates within one step.
const maxUpdateRounds = 1024

// run is the state of a single Engine.Run.
type run struct {
	logger    *zap.Logger
	config    cfg.Backtest
	venue     exchange.Venue
	clock     *Clock
	ctx       *strategy.Context
	handlers  strategy.Handlers
	name      string
	router    *bus.Router
	done      context.Context
	progress  ProgressFunc
	audit     *Audit
	sequencer *sequencer
	window    window
	result    *Result

	current   common.EventHeader
	order     common.OrderId
	read      int64
	index     int64
	processed int64
	skipped   int64
	steps     int64
	snapped   int64
	updates   int
	trace     []TraceEntry
}

func (r *run) exec(ctx context.Context, feed datasource.Feed) error {
	r.done = ctx
	if r.handlers.Start != nil {
		if err := r.call("OnStart", func() error { return r.handlers.Start.OnStart(r.ctx) }); err != nil {
			return err
		}
		if err := r.orderUpdates(); err != nil {
			return err
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		ev, err := feed.Next()
		if errors.Is(err, datasource.ErrEof) {
			break
		}
		if err != nil {
			return r.fail(kindOf(err), fmt.Errorf("unable to read feed: %w", err))
		}
		r.read++

		if err := r.step(ev); err != nil {
			return err
		}
	}

	if r.handlers.End != nil {
		if err := r.call("OnEnd", func() error { return r.handlers.End.OnEnd(r.ctx) }); err != nil {
			return err
		}
	}
	return r.orderUpdates()
}

func (r *run) step(ev common.Event) error {
	h := ev.Header()
	r.current = h

	if err := ev.Validate(); err != nil {
		return r.fail(common.ErrDataIntegrity, err)
	}
	if err := r.sequencer.check(ev); err != nil {
		return r.fail(common.ErrDataIntegrity, err)
	}
	if !r.config.HasSymbol(h.Symbol) || !r.window.contains(h.TimeStamp) {
		r.skipped++
		return nil
	}
	switch {
	case r.index < 0:
		r.openingSnapshot(h.TimeStamp)
	case h.TimeStamp.After(r.clock.Now()):
		r.closeStep()
	}
	if err := r.clock.Advance(h.TimeStamp); err != nil {
		return r.fail(common.ErrDataIntegrity, err)
	}
	r.index++

	fills, err := r.venue.OnEvent(ev)
	if err != nil {
		return r.fail(kindOf(err), err)
	}
	r.post(bus.MarketEvent, ev)

	for _, fill := range fills {
		r.audit.AddTrade(fill)
		r.post(bus.FillEvent, fill)
		if r.handlers.Fill != nil {
			r.order = fill.OrderId
			if err := r.call("OnFill", func() error { return r.handlers.Fill.OnFill(r.ctx, fill) }); err != nil {
				return err
			}
			r.order = 0
		}
	}

	updates := r.updates
	if err := r.orderUpdates(); err != nil {
		return err
	}
	if err := r.dispatch(ev); err != nil {
		return err
	}
	if err := r.orderUpdates(); err != nil {
		return err
	}

	r.processed++
	if r.config.Trace {
		r.trace = append(r.trace, TraceEntry{
			EventIndex:   r.index,
			TimeStamp:    h.TimeStamp,
			Symbol:       h.Symbol,
			Sequence:     h.Sequence,
			Kind:         ev.Kind(),
			Fills:        len(fills),
			OrderUpdates: r.updates - updates,
			Equity:       r.venue.Portfolio().Equity(),
		})
	}
	if r.progress != nil && r.config.ProgressEvery > 0 && r.processed%int64(r.config.ProgressEvery) == 0 {
		r.progress(Progress{
			EventsProcessed: r.processed,
			TimeStamp:       r.clock.Now(),
			Equity:          r.venue.Portfolio().Equity(),
		})
	}
	return nil
}

func (r *run) dispatch(ev common.Event) error {
	switch e := ev.(type) {
	case common.Bar:
		return r.onBar(e)
	case *common.Bar:
		return r.onBar(*e)
	case common.Tick:
		return r.onTick(e)
	case *common.Tick:
		return r.onTick(*e)
	case common.OrderBookUpdate:
		return r.onBook(e)
	case *common.OrderBookUpdate:
		return r.onBook(*e)
	}
	return r.fail(common.ErrDataIntegrity, fmt.Errorf("unsupported event type %T", ev))
}

func (r *run) onBar(bar common.Bar) error {
	if r.handlers.Bar == nil {
		return nil
	}
	return r.call("OnBar", func() error { return r.handlers.Bar.OnBar(r.ctx, bar) })
}

func (r *run) onTick(tick common.Tick) error {
	if r.handlers.Tick == nil {
		return nil
	}
	return r.call("OnTick", func() error { return r.handlers.Tick.OnTick(r.ctx, tick) })
}

func (r *run) onBook(book common.OrderBookUpdate) error {
	if r.handlers.Book == nil {
		return nil
	}
	return r.call("OnBook", func() error { return r.handlers.Book.OnBook(r.ctx, book) })
}

// orderUpdates records every pending order transition and hands it to the
// strategy, repeating while the strategy's reactions cause new transitions.
func (r *run) orderUpdates() error {
	for round := 0; ; round++ {
		updates := r.venue.DrainUpdates()
		if len(updates) == 0 {
			return nil
		}
		if round == maxUpdateRounds {
			return r.fail(common.ErrStrategy, errors.New("order updates do not settle"))
		}

		for _, order := range updates {
			r.audit.AddOrder(order)
			r.updates++
			r.post(bus.OrderEvent, order)
			if r.handlers.Order != nil {
				r.order = order.Id
				if err := r.call("OnOrderUpdate", func() error { return r.handlers.Order.OnOrderUpdate(r.ctx, order) }); err != nil {
					return err
				}
				r.order = 0
			}
		}
	}
}

// openingSnapshot records the initial cash before the first event is
// applied, stamped with the window start when one is configured.
func (r *run) openingSnapshot(first time.Time) {
	ts := first
	if !r.window.from.IsZero() {
		ts = r.window.from
	}
	r.snapshot(ts)
}

// closeStep ends the current timestamp once a later event arrives. Events
// sharing a timestamp form one step and the curve gets one point per
// SnapshotEvery steps.
func (r *run) closeStep() {
	r.steps++
	if r.steps%int64(r.config.SnapshotEvery) == 0 {
		r.snapshot(r.clock.Now())
	}
}

func (r *run) snapshot(ts time.Time) {
	point, positions := r.audit.AddSnapshot(ts, r.venue.Portfolio())
	r.snapped = r.index
	r.post(bus.EquityEvent, point)
	for _, pos := range positions {
		r.post(bus.PositionEvent, pos)
	}
}

// call invokes a strategy callback, turning errors and panics into fatal
// strategy errors.
func (r *run) call(callback string, fn func() error) error {
	err := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("panic: %v", rec)
			}
		}()
		return fn()
	}()
	if err != nil {
		return r.fail(common.ErrStrategy, fmt.Errorf("%s.%s: %w", r.name, callback, err))
	}
	return nil
}

// fail wraps err with the simulation context. The order comes from the venue
// error when it names one, otherwise from the callback being served.
func (r *run) fail(kind, err error) error {
	orderId := r.order
	var orderErr *common.OrderError
	if errors.As(err, &orderErr) {
		orderId = orderErr.OrderId
	}
	return &common.SimulationError{
		Kind:       kind,
		TimeStamp:  r.current.TimeStamp,
		Symbol:     r.current.Symbol,
		Sequence:   r.current.Sequence,
		EventIndex: r.read - 1,
		OrderId:    orderId,
		Err:        err,
	}
}

// post journals data. Fills wait for buffer space since the fill ledger must
// be complete; everything else is dropped when the journal falls behind.
func (r *run) post(id bus.EventId, data any) {
	if r.router == nil {
		return
	}
	if id == bus.FillEvent {
		if err := r.router.PostWait(r.done, id, data); err != nil {
			r.logger.Warn("journal fill dropped", zap.Error(err))
		}
		return
	}
	if err := r.router.Post(id, data); err != nil {
		r.logger.Debug("journal event dropped", zap.Stringer("event", id), zap.Error(err))
	}
}

// finish takes the closing snapshot and assembles the result.
func (r *run) finish(completed bool) *Result {
	if r.snapped != r.index || len(r.audit.EquityCurve()) == 0 {
		r.snapshot(r.clock.Now())
	}

	res := r.result
	r.audit.fill(res)
	res.Completed = completed
	res.EventsProcessed = r.processed
	res.EventsSkipped = r.skipped
	res.Trace = r.trace
	res.Metrics = metrics.Compute(metrics.Input{
		EquityCurve:  r.audit.EquityCurve(),
		Trades:       r.audit.Trades(),
		InitialCash:   r.config.InitialCash,
		Timeframe:     r.config.Timeframe,
		SnapshotEvery: r.config.SnapshotEvery,
		RiskFreeRate:  r.config.RiskFreeRate,
	})
	return res
}
