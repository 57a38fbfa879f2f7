package strategy

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const limitLadderName = "limitladder"

func init() {
	Register(limitLadderName, func(params Params) (Strategy, error) {
		var c LimitLadderConfig
		var err error
		c.Symbol = params.String("symbol", "")
		if c.Levels, err = params.Int("levels", 3); err != nil {
			return nil, err
		}
		if c.Step, err = params.Point("step", fixed.MustParse("0.01")); err != nil {
			return nil, err
		}
		if c.Quantity, err = params.Point("quantity", fixed.One); err != nil {
			return nil, err
		}
		if c.TakeProfit, err = params.Point("take_profit", fixed.Zero); err != nil {
			return nil, err
		}
		return NewLimitLadder(c)
	})
}

type LimitLadderConfig struct {
	Symbol   string
	Levels   int
	Step     fixed.Point
	Quantity fixed.Point

	// TakeProfit places a resting sell this fraction above every buy fill.
	// Zero disables it.
	TakeProfit fixed.Point
}

// LimitLadder rests GTC limit buys below the first observed price, one per
// level, each Step (a fraction of that price) deeper than the previous.
type LimitLadder struct {
	cfg    LimitLadderConfig
	placed map[string]bool
}

func NewLimitLadder(c LimitLadderConfig) (*LimitLadder, error) {
	switch {
	case c.Levels <= 0:
		return nil, fmt.Errorf("levels must be positive: %w", common.ErrConfiguration)
	case !c.Step.IsPos() || c.Step.Gte(fixed.One):
		return nil, fmt.Errorf("step must be in (0, 1): %w", common.ErrConfiguration)
	case c.Step.MulInt(c.Levels).Gte(fixed.One):
		return nil, fmt.Errorf("ladder of %d levels reaches a non-positive price: %w", c.Levels, common.ErrConfiguration)
	case !c.Quantity.IsPos():
		return nil, fmt.Errorf("quantity must be positive: %w", common.ErrConfiguration)
	case c.TakeProfit.IsNeg():
		return nil, fmt.Errorf("take profit is negative: %w", common.ErrConfiguration)
	}
	return &LimitLadder{cfg: c, placed: make(map[string]bool)}, nil
}

func (l *LimitLadder) Name() string { return limitLadderName }

func (l *LimitLadder) OnBar(ctx *Context, bar common.Bar) error {
	return l.place(ctx, bar.Symbol, bar.Close)
}

func (l *LimitLadder) OnTick(ctx *Context, tick common.Tick) error {
	return l.place(ctx, tick.Symbol, tick.Price)
}

func (l *LimitLadder) OnFill(ctx *Context, fill common.Fill) error {
	if l.cfg.TakeProfit.IsZero() || fill.Side != common.SideBuy {
		return nil
	}
	target := fill.Price.Mul(fixed.One.Add(l.cfg.TakeProfit))
	_, err := ctx.Broker().Submit(common.LimitOrder(fill.Symbol, common.SideSell, fill.Quantity, target))
	return err
}

func (l *LimitLadder) place(ctx *Context, symbol string, price fixed.Point) error {
	if l.placed[symbol] || (l.cfg.Symbol != "" && symbol != l.cfg.Symbol) {
		return nil
	}
	l.placed[symbol] = true

	for i := 1; i <= l.cfg.Levels; i++ {
		limit := price.Mul(fixed.One.Sub(l.cfg.Step.MulInt(i)))
		id, err := ctx.Broker().Submit(common.LimitOrder(symbol, common.SideBuy, l.cfg.Quantity, limit))
		if err != nil {
			return err
		}
		ctx.Logger().Debug("placed ladder level",
			zap.String("symbol", symbol),
			zap.Int("level", i),
			zap.Uint64("order_id", id),
			zap.Stringer("limit", limit))
	}
	return nil
}
