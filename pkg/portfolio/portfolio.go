package portfolio

import (
	"fmt"
	"slices"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// Portfolio owns cash and positions. Only the broker mutates it.
type Portfolio struct {
	cash            fixed.Point
	realized        fixed.Point
	fees            fixed.Point
	marginAllowance fixed.Point

	positions  map[string]*common.Position
	realizedBy map[string]fixed.Point
	marks      map[string]fixed.Point
}

func New(initialCash, marginAllowance fixed.Point) *Portfolio {
	return &Portfolio{
		cash:            initialCash,
		realized:        fixed.Zero,
		fees:            fixed.Zero,
		marginAllowance: marginAllowance,
		positions:       make(map[string]*common.Position),
		realizedBy:      make(map[string]fixed.Point),
		marks:           make(map[string]fixed.Point),
	}
}

// Mark updates the price open positions in symbol are valued at.
func (p *Portfolio) Mark(symbol string, price fixed.Point) {
	p.marks[symbol] = price
	if pos, ok := p.positions[symbol]; ok {
		pos.MarkPrice = price
	}
}

// CashAfter returns the cash balance a fill would leave behind.
func (p *Portfolio) CashAfter(side common.Side, price, quantity, fee fixed.Point) fixed.Point {
	notional := price.Mul(quantity)
	if side == common.SideBuy {
		return p.cash.Sub(notional).Sub(fee)
	}
	return p.cash.Add(notional).Sub(fee)
}

// CanAfford reports whether a fill keeps cash above the margin floor.
func (p *Portfolio) CanAfford(side common.Side, price, quantity, fee fixed.Point) bool {
	return p.CashAfter(side, price, quantity, fee).Gte(p.marginAllowance.Neg())
}

// Apply books a fill and returns it annotated with the PnL it realized. The
// portfolio is left untouched when the fill would breach the margin floor.
func (p *Portfolio) Apply(fill common.Fill) (common.Fill, error) {
	if !fill.Quantity.IsPos() {
		return fill, fmt.Errorf("fill %d has non-positive quantity %s", fill.Id, fill.Quantity)
	}

	cashAfter := p.CashAfter(fill.Side, fill.Price, fill.Quantity, fill.Fee)
	if cashAfter.Lt(p.marginAllowance.Neg()) {
		return fill, fmt.Errorf("fill %d would leave cash at %s: %w", fill.Id, cashAfter, common.ErrInsufficientFunds)
	}

	pos, ok := p.positions[fill.Symbol]
	if !ok {
		mark, marked := p.marks[fill.Symbol]
		if !marked {
			mark = fill.Price
		}
		pos = &common.Position{
			Symbol:        fill.Symbol,
			Quantity:      fixed.Zero,
			AvgEntryPrice: fixed.Zero,
			RealizedPnL:   p.realizedOf(fill.Symbol),
			MarkPrice:     mark,
		}
	}

	fill.RealizedPnL, fill.ClosedQuantity = applyToPosition(pos, fill.SignedQuantity(), fill.Price)

	p.cash = cashAfter
	p.fees = p.fees.Add(fill.Fee)
	p.realized = p.realized.Add(fill.RealizedPnL)
	pos.RealizedPnL = pos.RealizedPnL.Add(fill.RealizedPnL)
	p.realizedBy[fill.Symbol] = pos.RealizedPnL

	if pos.Quantity.IsZero() {
		delete(p.positions, fill.Symbol)
	} else {
		p.positions[fill.Symbol] = pos
	}
	return fill, nil
}

// applyToPosition books a signed quantity at price and returns the realized
// PnL and the quantity that reduced the existing position.
func applyToPosition(pos *common.Position, qty, price fixed.Point) (fixed.Point, fixed.Point) {
	current := pos.Quantity

	if current.IsZero() || current.Sign() == qty.Sign() {
		total := current.Add(qty)
		pos.AvgEntryPrice = pos.AvgEntryPrice.Mul(current.Abs()).Add(price.Mul(qty.Abs())).Div(total.Abs())
		pos.Quantity = total
		return fixed.Zero, fixed.Zero
	}

	closed := qty.Abs().Min(current.Abs())
	realized := price.Sub(pos.AvgEntryPrice).Mul(closed)
	if current.IsNeg() {
		realized = realized.Neg()
	}

	pos.Quantity = current.Add(qty)
	switch {
	case pos.Quantity.IsZero():
		pos.AvgEntryPrice = fixed.Zero
	case pos.Quantity.Sign() != current.Sign():
		pos.AvgEntryPrice = price
	}
	return realized, closed
}

func (p *Portfolio) realizedOf(symbol string) fixed.Point {
	if v, ok := p.realizedBy[symbol]; ok {
		return v
	}
	return fixed.Zero
}

func (p *Portfolio) Cash() fixed.Point            { return p.cash }
func (p *Portfolio) RealizedPnL() fixed.Point     { return p.realized }
func (p *Portfolio) Fees() fixed.Point            { return p.fees }
func (p *Portfolio) MarginAllowance() fixed.Point { return p.marginAllowance }

func (p *Portfolio) Equity() fixed.Point {
	equity := p.cash
	for _, symbol := range p.sortedSymbols() {
		equity = equity.Add(p.positions[symbol].MarketValue())
	}
	return equity
}

func (p *Portfolio) UnrealizedPnL() fixed.Point {
	sum := fixed.Zero
	for _, symbol := range p.sortedSymbols() {
		sum = sum.Add(p.positions[symbol].UnrealizedPnL())
	}
	return sum
}

// GrossExposure is the sum of absolute position market values.
func (p *Portfolio) GrossExposure() fixed.Point {
	sum := fixed.Zero
	for _, symbol := range p.sortedSymbols() {
		sum = sum.Add(p.positions[symbol].MarketValue().Abs())
	}
	return sum
}

func (p *Portfolio) Position(symbol string) (common.Position, bool) {
	pos, ok := p.positions[symbol]
	if !ok {
		return common.Position{}, false
	}
	return *pos, true
}

// Positions returns copies of all open positions ordered by symbol.
func (p *Portfolio) Positions() []common.Position {
	out := make([]common.Position, 0, len(p.positions))
	for _, symbol := range p.sortedSymbols() {
		out = append(out, *p.positions[symbol])
	}
	return out
}

func (p *Portfolio) HasPosition(symbol string) bool {
	_, ok := p.positions[symbol]
	return ok
}

func (p *Portfolio) PositionQuantity(symbol string) fixed.Point {
	if pos, ok := p.positions[symbol]; ok {
		return pos.Quantity
	}
	return fixed.Zero
}

func (p *Portfolio) MarkPrice(symbol string) (fixed.Point, bool) {
	price, ok := p.marks[symbol]
	return price, ok
}

// sortedSymbols keeps every aggregate independent of map iteration order.
func (p *Portfolio) sortedSymbols() []string {
	symbols := make([]string, 0, len(p.positions))
	for symbol := range p.positions {
		symbols = append(symbols, symbol)
	}
	slices.Sort(symbols)
	return symbols
}
