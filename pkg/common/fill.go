package common

import (
	"time"

	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

type FillId = uint64

// Fill is an immutable record of one execution of an order.
type Fill struct {
	Id        FillId      `json:"id" csv:"id"`
	OrderId   OrderId     `json:"order_id" csv:"order_id"`
	Symbol    string      `json:"symbol" csv:"symbol"`
	Side      Side        `json:"side" csv:"side"`
	Price     fixed.Point `json:"price" csv:"price"`
	Quantity  fixed.Point `json:"quantity" csv:"quantity"`
	Fee       fixed.Point `json:"fee" csv:"fee"`
	Slippage  fixed.Point `json:"slippage" csv:"slippage"`
	TimeStamp time.Time   `json:"ts" csv:"ts"`

	// RealizedPnL is the gross PnL this fill realized by reducing a position,
	// ClosedQuantity the part of the fill that reduced it.
	RealizedPnL    fixed.Point `json:"realized_pnl" csv:"realized_pnl"`
	ClosedQuantity fixed.Point `json:"closed_quantity" csv:"closed_quantity"`
}

func (f Fill) Notional() fixed.Point {
	return f.Price.Mul(f.Quantity)
}

// SignedQuantity is positive for buys and negative for sells.
func (f Fill) SignedQuantity() fixed.Point {
	if f.Side == SideSell {
		return f.Quantity.Neg()
	}
	return f.Quantity
}

// IsClosing reports whether the fill reduced an existing position.
func (f Fill) IsClosing() bool {
	return f.ClosedQuantity.IsPos()
}

type Position struct {
	Symbol        string      `json:"symbol" csv:"symbol"`
	Quantity      fixed.Point `json:"quantity" csv:"quantity"`
	AvgEntryPrice fixed.Point `json:"avg_entry_price" csv:"avg_entry_price"`
	RealizedPnL   fixed.Point `json:"realized_pnl" csv:"realized_pnl"`
	MarkPrice     fixed.Point `json:"mark_price" csv:"mark_price"`
}

func (p Position) IsFlat() bool  { return p.Quantity.IsZero() }
func (p Position) IsLong() bool  { return p.Quantity.IsPos() }
func (p Position) IsShort() bool { return p.Quantity.IsNeg() }

func (p Position) MarketValue() fixed.Point {
	return p.Quantity.Mul(p.MarkPrice)
}

func (p Position) UnrealizedPnL() fixed.Point {
	return p.MarkPrice.Sub(p.AvgEntryPrice).Mul(p.Quantity)
}
