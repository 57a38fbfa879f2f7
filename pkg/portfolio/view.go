package portfolio

import (
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// View is the read-only surface of a portfolio handed to strategies.
type View interface {
	Cash() fixed.Point
	Equity() fixed.Point
	RealizedPnL() fixed.Point
	UnrealizedPnL() fixed.Point
	Fees() fixed.Point
	GrossExposure() fixed.Point
	Position(symbol string) (common.Position, bool)
	Positions() []common.Position
	HasPosition(symbol string) bool
	PositionQuantity(symbol string) fixed.Point
	MarkPrice(symbol string) (fixed.Point, bool)
}

type readOnly struct {
	p *Portfolio
}

// ReadOnly hides the mutating methods of p behind View.
func ReadOnly(p *Portfolio) View {
	return readOnly{p: p}
}

func (r readOnly) Cash() fixed.Point                              { return r.p.Cash() }
func (r readOnly) Equity() fixed.Point                            { return r.p.Equity() }
func (r readOnly) RealizedPnL() fixed.Point                       { return r.p.RealizedPnL() }
func (r readOnly) UnrealizedPnL() fixed.Point                     { return r.p.UnrealizedPnL() }
func (r readOnly) Fees() fixed.Point                              { return r.p.Fees() }
func (r readOnly) GrossExposure() fixed.Point                     { return r.p.GrossExposure() }
func (r readOnly) Position(symbol string) (common.Position, bool) { return r.p.Position(symbol) }
func (r readOnly) Positions() []common.Position                   { return r.p.Positions() }
func (r readOnly) HasPosition(symbol string) bool                 { return r.p.HasPosition(symbol) }
func (r readOnly) PositionQuantity(symbol string) fixed.Point     { return r.p.PositionQuantity(symbol) }
func (r readOnly) MarkPrice(symbol string) (fixed.Point, bool)    { return r.p.MarkPrice(symbol) }
