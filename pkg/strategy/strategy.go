package strategy

import (
	"github.com/peter-kozarec/tessera/pkg/common"
)

// Strategy is the minimal strategy contract. Callbacks are discovered by
// asserting the optional handler interfaces below.
type Strategy interface {
	Name() string
}

type Starter interface {
	OnStart(ctx *Context) error
}

type Ender interface {
	OnEnd(ctx *Context) error
}

type BarHandler interface {
	OnBar(ctx *Context, bar common.Bar) error
}

type TickHandler interface {
	OnTick(ctx *Context, tick common.Tick) error
}

type BookHandler interface {
	OnBook(ctx *Context, book common.OrderBookUpdate) error
}

type FillHandler interface {
	OnFill(ctx *Context, fill common.Fill) error
}

type OrderHandler interface {
	OnOrderUpdate(ctx *Context, order common.Order) error
}

// Handlers is the set of callbacks a strategy implements, resolved once.
type Handlers struct {
	Start Starter
	End   Ender
	Bar   BarHandler
	Tick  TickHandler
	Book  BookHandler
	Fill  FillHandler
	Order OrderHandler
}

func Resolve(s Strategy) Handlers {
	var h Handlers
	h.Start, _ = s.(Starter)
	h.End, _ = s.(Ender)
	h.Bar, _ = s.(BarHandler)
	h.Tick, _ = s.(TickHandler)
	h.Book, _ = s.(BookHandler)
	h.Fill, _ = s.(FillHandler)
	h.Order, _ = s.(OrderHandler)
	return h
}

// Funcs builds a strategy out of plain functions. Nil functions are skipped.
type Funcs struct {
	StrategyName string

	Start func(ctx *Context) error
	End   func(ctx *Context) error
	Bar   func(ctx *Context, bar common.Bar) error
	Tick  func(ctx *Context, tick common.Tick) error
	Book  func(ctx *Context, book common.OrderBookUpdate) error
	Fill  func(ctx *Context, fill common.Fill) error
	Order func(ctx *Context, order common.Order) error
}

func (f *Funcs) Name() string {
	if f.StrategyName == "" {
		return "funcs"
	}
	return f.StrategyName
}

func (f *Funcs) OnStart(ctx *Context) error {
	if f.Start == nil {
		return nil
	}
	return f.Start(ctx)
}

func (f *Funcs) OnEnd(ctx *Context) error {
	if f.End == nil {
		return nil
	}
	return f.End(ctx)
}

func (f *Funcs) OnBar(ctx *Context, bar common.Bar) error {
	if f.Bar == nil {
		return nil
	}
	return f.Bar(ctx, bar)
}

func (f *Funcs) OnTick(ctx *Context, tick common.Tick) error {
	if f.Tick == nil {
		return nil
	}
	return f.Tick(ctx, tick)
}

func (f *Funcs) OnBook(ctx *Context, book common.OrderBookUpdate) error {
	if f.Book == nil {
		return nil
	}
	return f.Book(ctx, book)
}

func (f *Funcs) OnFill(ctx *Context, fill common.Fill) error {
	if f.Fill == nil {
		return nil
	}
	return f.Fill(ctx, fill)
}

func (f *Funcs) OnOrderUpdate(ctx *Context, order common.Order) error {
	if f.Order == nil {
		return nil
	}
	return f.Order(ctx, order)
}
