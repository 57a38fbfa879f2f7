package strategy

import (
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/exchange"
	"github.com/peter-kozarec/tessera/pkg/portfolio"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

type Clock interface {
	Now() time.Time
}

type nowOnly struct{ c Clock }

func (n nowOnly) Now() time.Time { return n.c.Now() }

// Context is what a strategy sees of the run: order commands through the
// broker and read only views of everything else.
type Context struct {
	broker    exchange.Broker
	portfolio portfolio.View
	clock     Clock
	config    cfg.Backtest
	logger    *zap.Logger
}

func NewContext(broker exchange.Broker, view portfolio.View, clock Clock, config cfg.Backtest, logger *zap.Logger) *Context {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Context{
		broker:    exchange.CommandsOnly(broker),
		portfolio: view,
		clock:     nowOnly{clock},
		config:    config.Clone(),
		logger:    logger,
	}
}

func (c *Context) Broker() exchange.Broker   { return c.broker }
func (c *Context) Portfolio() portfolio.View { return c.portfolio }
func (c *Context) Clock() Clock              { return c.clock }
func (c *Context) Now() time.Time            { return c.clock.Now() }
func (c *Context) Logger() *zap.Logger       { return c.logger }
func (c *Context) Config() cfg.Backtest      { return c.config.Clone() }
func (c *Context) Params() map[string]string { return c.Config().Strategy.Params }

func (c *Context) Position(symbol string) fixed.Point {
	return c.portfolio.PositionQuantity(symbol)
}

func (c *Context) HasOpenOrders(symbol string) bool {
	for _, o := range c.broker.OpenOrders() {
		if o.Symbol == symbol {
			return true
		}
	}
	return false
}

func (c *Context) Buy(symbol string, quantity fixed.Point) (common.OrderId, error) {
	return c.broker.Submit(common.MarketOrder(symbol, common.SideBuy, quantity))
}

func (c *Context) Sell(symbol string, quantity fixed.Point) (common.OrderId, error) {
	return c.broker.Submit(common.MarketOrder(symbol, common.SideSell, quantity))
}

// Close submits a market order flattening the position in symbol. It is a
// no-op when flat.
func (c *Context) Close(symbol string) (common.OrderId, error) {
	qty := c.portfolio.PositionQuantity(symbol)
	switch {
	case qty.IsPos():
		return c.Sell(symbol, qty)
	case qty.IsNeg():
		return c.Buy(symbol, qty.Abs())
	}
	return 0, nil
}
