package strategy

import (
	"fmt"
	"time"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/tools/bar"
	"github.com/peter-kozarec/tessera/pkg/tools/indicators"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const smaCrossName = "smacross"

func init() {
	Register(smaCrossName, func(params Params) (Strategy, error) {
		var c SMACrossConfig
		var err error
		if c.Fast, err = params.Int("fast", 10); err != nil {
			return nil, err
		}
		if c.Slow, err = params.Int("slow", 30); err != nil {
			return nil, err
		}
		if c.Quantity, err = params.Point("quantity", fixed.One); err != nil {
			return nil, err
		}
		if c.AllowShort, err = params.Bool("allow_short", false); err != nil {
			return nil, err
		}
		if c.TickPeriod, err = params.Duration("tick_period", time.Minute); err != nil {
			return nil, err
		}
		return NewSMACross(c)
	})
}

type SMACrossConfig struct {
	Fast       int
	Slow       int
	Quantity   fixed.Point
	AllowShort bool

	// TickPeriod aggregates tick feeds into bars of this length.
	TickPeriod time.Duration
}

// SMACross goes long when the fast moving average of closes crosses above the
// slow one and exits (or reverses, when shorting is allowed) on the opposite
// cross.
type SMACross struct {
	cfg     SMACrossConfig
	builder *bar.Builder
	symbols map[string]*smaState
}

type smaState struct {
	fast, slow *indicators.SMA
	above      bool
	primed     bool
	pending    common.OrderId
}

func NewSMACross(c SMACrossConfig) (*SMACross, error) {
	if c.Fast <= 0 || c.Slow <= 0 || c.Fast >= c.Slow {
		return nil, fmt.Errorf("fast %d and slow %d must satisfy 0 < fast < slow: %w", c.Fast, c.Slow, common.ErrConfiguration)
	}
	if !c.Quantity.IsPos() {
		return nil, fmt.Errorf("quantity must be positive: %w", common.ErrConfiguration)
	}
	if c.TickPeriod <= 0 {
		c.TickPeriod = time.Minute
	}
	return &SMACross{
		cfg:     c,
		builder: bar.NewBuilder(c.TickPeriod, bar.PriceModeLast),
		symbols: make(map[string]*smaState),
	}, nil
}

func (s *SMACross) Name() string { return smaCrossName }

func (s *SMACross) OnBar(ctx *Context, b common.Bar) error {
	return s.onClose(ctx, b.Symbol, b.Close)
}

func (s *SMACross) OnTick(ctx *Context, tick common.Tick) error {
	if b, ok := s.builder.OnTick(tick); ok {
		return s.onClose(ctx, b.Symbol, b.Close)
	}
	return nil
}

func (s *SMACross) OnOrderUpdate(_ *Context, order common.Order) error {
	if st, ok := s.symbols[order.Symbol]; ok && st.pending == order.Id && order.Status.IsTerminal() {
		st.pending = 0
	}
	return nil
}

func (s *SMACross) onClose(ctx *Context, symbol string, price fixed.Point) error {
	st, ok := s.symbols[symbol]
	if !ok {
		st = &smaState{fast: indicators.NewSMA(s.cfg.Fast), slow: indicators.NewSMA(s.cfg.Slow)}
		s.symbols[symbol] = st
	}

	st.fast.AddPoint(price)
	st.slow.AddPoint(price)
	if !st.slow.IsReady() {
		return nil
	}

	above := st.fast.Value().Gt(st.slow.Value())
	crossed := st.primed && above != st.above
	st.above, st.primed = above, true
	if !crossed || st.pending != 0 {
		return nil
	}

	target := fixed.Zero
	switch {
	case above:
		target = s.cfg.Quantity
	case s.cfg.AllowShort:
		target = s.cfg.Quantity.Neg()
	}

	delta := target.Sub(ctx.Position(symbol))
	var id common.OrderId
	var err error
	switch {
	case delta.IsPos():
		id, err = ctx.Buy(symbol, delta)
	case delta.IsNeg():
		id, err = ctx.Sell(symbol, delta.Abs())
	}
	if err != nil {
		return err
	}
	st.pending = id
	return nil
}
