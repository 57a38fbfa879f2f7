package strategy

import (
	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

const buyHoldName = "buyhold"

func init() {
	Register(buyHoldName, func(params Params) (Strategy, error) {
		qty, err := params.Point("quantity", fixed.One)
		if err != nil {
			return nil, err
		}
		return NewBuyHold(params.String("symbol", ""), qty), nil
	})
}

// BuyHold buys a fixed quantity of a symbol at its first price and holds it
// until the end of the run. An empty symbol buys every symbol it sees.
type BuyHold struct {
	symbol   string
	quantity fixed.Point
	bought   map[string]bool
}

func NewBuyHold(symbol string, quantity fixed.Point) *BuyHold {
	return &BuyHold{
		symbol:   symbol,
		quantity: quantity,
		bought:   make(map[string]bool),
	}
}

func (b *BuyHold) Name() string { return buyHoldName }

func (b *BuyHold) OnBar(ctx *Context, bar common.Bar) error {
	return b.enter(ctx, bar.Symbol)
}

func (b *BuyHold) OnTick(ctx *Context, tick common.Tick) error {
	return b.enter(ctx, tick.Symbol)
}

func (b *BuyHold) enter(ctx *Context, symbol string) error {
	if b.bought[symbol] || (b.symbol != "" && symbol != b.symbol) {
		return nil
	}
	b.bought[symbol] = true

	id, err := ctx.Buy(symbol, b.quantity)
	if err != nil {
		return err
	}
	ctx.Logger().Debug("entered position",
		zap.String("symbol", symbol),
		zap.Uint64("order_id", id),
		zap.Stringer("quantity", b.quantity))
	return nil
}
