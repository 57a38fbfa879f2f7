package simulation

import (
	"time"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/portfolio"
)

// Audit is the append-only record of a run. The equity curve and the trade
// log are always kept since metrics are computed from them; the recording
// toggles only decide what is handed out in the result.
type Audit struct {
	record cfg.Recording

	equityCurve    []common.EquityPoint
	positionSeries []common.PositionSnapshot
	trades         []common.Fill
	orders         []common.Order
}

func NewAudit(record cfg.Recording) *Audit {
	return &Audit{
		record: record,
	}
}

func (a *Audit) AddTrade(fill common.Fill) {
	a.trades = append(a.trades, fill)
}

func (a *Audit) AddOrder(order common.Order) {
	if a.record.Orders {
		a.orders = append(a.orders, order)
	}
}

// AddSnapshot records the account and every open position as of ts.
func (a *Audit) AddSnapshot(ts time.Time, p *portfolio.Portfolio) (common.EquityPoint, []common.PositionSnapshot) {
	point := common.EquityPoint{
		TimeStamp:     ts,
		Equity:        p.Equity(),
		Cash:          p.Cash(),
		UnrealizedPnL: p.UnrealizedPnL(),
		RealizedPnL:   p.RealizedPnL(),
		GrossExposure: p.GrossExposure(),
	}
	a.equityCurve = append(a.equityCurve, point)

	positions := p.Positions()
	snapshots := make([]common.PositionSnapshot, 0, len(positions))
	for _, pos := range positions {
		snapshots = append(snapshots, common.PositionSnapshot{TimeStamp: ts, Position: pos})
	}
	if a.record.Positions {
		a.positionSeries = append(a.positionSeries, snapshots...)
	}
	return point, snapshots
}

func (a *Audit) EquityCurve() []common.EquityPoint { return a.equityCurve }
func (a *Audit) Trades() []common.Fill             { return a.trades }

func (a *Audit) fill(r *Result) {
	if a.record.Equity {
		r.EquityCurve = a.equityCurve
	}
	if a.record.Trades {
		r.Trades = a.trades
	}
	r.Orders = a.orders
	r.PositionSeries = a.positionSeries
}
