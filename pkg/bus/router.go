package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/common"
)

const componentName = "bus.router"

var (
	ErrCapacityReached = errors.New("event capacity reached")
	ErrRouterClosed    = errors.New("router is closed")
)

type event struct {
	id   EventId
	data any
}

// Router fans simulation output out to observers on a separate goroutine.
// Post never blocks: when the buffer is full the event is dropped and counted.
// Post, PostWait and Close must be called from the same goroutine.
type Router struct {
	logger *zap.Logger

	events    chan event
	closed    atomic.Bool
	closeOnce sync.Once

	OnMarket   MarketEventHandler
	OnFill     FillEventHandler
	OnOrder    OrderEventHandler
	OnEquity   EquityEventHandler
	OnPosition PositionEventHandler

	runTime       atomic.Int64
	postCount     atomic.Uint64
	postFails     atomic.Uint64
	dispatchCount atomic.Uint64
	dispatchFails atomic.Uint64
}

func NewRouter(eventCapacity int, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		logger: logger.With(zap.String("src", componentName)),
		events: make(chan event, eventCapacity),
	}
}

func (r *Router) Post(id EventId, data any) error {
	if r.closed.Load() {
		r.postFails.Add(1)
		return ErrRouterClosed
	}
	select {
	case r.events <- event{id, data}:
		r.postCount.Add(1)
		return nil
	default:
		r.postFails.Add(1)
		return ErrCapacityReached
	}
}

// PostWait is Post for events that must not be lost: it blocks until the
// buffer has room or ctx is done.
func (r *Router) PostWait(ctx context.Context, id EventId, data any) error {
	if r.closed.Load() {
		r.postFails.Add(1)
		return ErrRouterClosed
	}
	select {
	case r.events <- event{id, data}:
		r.postCount.Add(1)
		return nil
	case <-ctx.Done():
		r.postFails.Add(1)
		return ctx.Err()
	}
}

// Close stops accepting events. Exec returns once the buffered events are dispatched.
func (r *Router) Close() {
	r.closeOnce.Do(func() {
		r.closed.Store(true)
		close(r.events)
	})
}

// Exec dispatches events until the router is closed and drained or ctx is done.
func (r *Router) Exec(ctx context.Context) error {
	start := time.Now()
	defer func() {
		r.runTime.Add(int64(time.Since(start)))
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-r.events:
			if !ok {
				return nil
			}
			r.dispatchCount.Add(1)
			if err := r.dispatch(ctx, ev); err != nil {
				r.dispatchFails.Add(1)
				r.logger.Warn("dispatch failed", zap.Error(err), zap.Stringer("event", ev.id))
			}
		}
	}
}

func (r *Router) Statistics() Statistics {
	s := Statistics{
		RunTime:       time.Duration(r.runTime.Load()),
		PostCount:     r.postCount.Load(),
		PostFails:     r.postFails.Load(),
		DispatchCount: r.dispatchCount.Load(),
		DispatchFails: r.dispatchFails.Load(),
	}
	if s.RunTime > 0 {
		s.Throughput = float64(s.DispatchCount) / s.RunTime.Seconds()
	}
	return s
}

func (r *Router) dispatch(ctx context.Context, ev event) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s handler panicked: %v", ev.id, rec)
		}
	}()

	switch ev.id {
	case MarketEvent:
		data, ok := ev.data.(common.Event)
		if !ok {
			return errors.New("invalid type assertion for market event")
		}
		if r.OnMarket != nil {
			r.OnMarket(ctx, data)
		}
	case FillEvent:
		fill, ok := ev.data.(common.Fill)
		if !ok {
			return errors.New("invalid type assertion for fill event")
		}
		if r.OnFill != nil {
			r.OnFill(ctx, fill)
		}
	case OrderEvent:
		order, ok := ev.data.(common.Order)
		if !ok {
			return errors.New("invalid type assertion for order event")
		}
		if r.OnOrder != nil {
			r.OnOrder(ctx, order)
		}
	case EquityEvent:
		point, ok := ev.data.(common.EquityPoint)
		if !ok {
			return errors.New("invalid type assertion for equity event")
		}
		if r.OnEquity != nil {
			r.OnEquity(ctx, point)
		}
	case PositionEvent:
		snapshot, ok := ev.data.(common.PositionSnapshot)
		if !ok {
			return errors.New("invalid type assertion for position event")
		}
		if r.OnPosition != nil {
			r.OnPosition(ctx, snapshot)
		}
	default:
		return fmt.Errorf("unsupported event id: %v", ev.id)
	}
	return nil
}
