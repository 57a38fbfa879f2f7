package strategy

import (
	"fmt"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/tools/indicators"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const meanReversionName = "meanreversion"

func init() {
	Register(meanReversionName, func(params Params) (Strategy, error) {
		var c MeanReversionConfig
		var err error
		if c.Window, err = params.Int("window", 20); err != nil {
			return nil, err
		}
		if c.Threshold, err = params.Point("threshold", fixed.Two); err != nil {
			return nil, err
		}
		if c.Quantity, err = params.Point("quantity", fixed.One); err != nil {
			return nil, err
		}
		if c.StopATR, err = params.Point("stop_atr", fixed.Zero); err != nil {
			return nil, err
		}
		if c.ATRWindow, err = params.Int("atr_window", 14); err != nil {
			return nil, err
		}
		return NewMeanReversion(c)
	})
}

type MeanReversionConfig struct {
	Window    int
	Threshold fixed.Point
	Quantity  fixed.Point

	// StopATR closes a position once price moved this many average true
	// ranges against the entry. Zero disables the stop.
	StopATR   fixed.Point
	ATRWindow int
}

// MeanReversion fades closes whose z-score over a rolling window exceeds the
// threshold and exits once price is back on the other side of the mean.
type MeanReversion struct {
	cfg     MeanReversionConfig
	zScores map[string]*indicators.ZScore
	atrs    map[string]*indicators.ATR
	entries map[string]fixed.Point
}

func NewMeanReversion(c MeanReversionConfig) (*MeanReversion, error) {
	switch {
	case c.Window < 2:
		return nil, fmt.Errorf("window must be at least 2: %w", common.ErrConfiguration)
	case !c.Threshold.IsPos():
		return nil, fmt.Errorf("threshold must be positive: %w", common.ErrConfiguration)
	case !c.Quantity.IsPos():
		return nil, fmt.Errorf("quantity must be positive: %w", common.ErrConfiguration)
	case c.StopATR.IsNeg():
		return nil, fmt.Errorf("stop_atr is negative: %w", common.ErrConfiguration)
	case c.StopATR.IsPos() && c.ATRWindow < 1:
		return nil, fmt.Errorf("atr_window must be positive: %w", common.ErrConfiguration)
	}
	return &MeanReversion{
		cfg:     c,
		zScores: make(map[string]*indicators.ZScore),
		atrs:    make(map[string]*indicators.ATR),
		entries: make(map[string]fixed.Point),
	}, nil
}

func (m *MeanReversion) Name() string { return meanReversionName }

func (m *MeanReversion) OnFill(ctx *Context, fill common.Fill) error {
	if ctx.Position(fill.Symbol).IsZero() {
		delete(m.entries, fill.Symbol)
	} else if fill.ClosedQuantity.IsZero() {
		m.entries[fill.Symbol] = fill.Price
	}
	return nil
}

func (m *MeanReversion) OnBar(ctx *Context, bar common.Bar) error {
	z, ok := m.zScores[bar.Symbol]
	if !ok {
		z = indicators.NewZScore(m.cfg.Window)
		m.zScores[bar.Symbol] = z
		m.atrs[bar.Symbol] = indicators.NewATR(max(m.cfg.ATRWindow, 1))
	}
	z.AddPoint(bar.Close)
	atr := m.atrs[bar.Symbol]
	atr.AddBar(bar)
	if !z.IsReady() || ctx.HasOpenOrders(bar.Symbol) {
		return nil
	}

	score := z.Value()
	pos := ctx.Position(bar.Symbol)

	var err error
	switch {
	case pos.IsZero() && score.Lte(m.cfg.Threshold.Neg()):
		_, err = ctx.Buy(bar.Symbol, m.cfg.Quantity)
	case pos.IsZero() && score.Gte(m.cfg.Threshold):
		_, err = ctx.Sell(bar.Symbol, m.cfg.Quantity)
	case m.stopped(bar.Symbol, pos, bar.Close, atr):
		_, err = ctx.Close(bar.Symbol)
	case pos.IsPos() && score.Gte(fixed.Zero), pos.IsNeg() && score.Lte(fixed.Zero):
		_, err = ctx.Close(bar.Symbol)
	}
	return err
}

func (m *MeanReversion) stopped(symbol string, pos, price fixed.Point, atr *indicators.ATR) bool {
	entry, ok := m.entries[symbol]
	if !ok || !m.cfg.StopATR.IsPos() || !atr.IsReady() {
		return false
	}
	distance := atr.Value().Mul(m.cfg.StopATR)
	if pos.IsPos() {
		return price.Lte(entry.Sub(distance))
	}
	return price.Gte(entry.Add(distance))
}
