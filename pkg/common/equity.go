package common

import (
	"time"

	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// EquityPoint is a snapshot of the account taken by the engine.
type EquityPoint struct {
	TimeStamp     time.Time   `json:"ts" csv:"ts"`
	Equity        fixed.Point `json:"equity" csv:"equity"`
	Cash          fixed.Point `json:"cash" csv:"cash"`
	UnrealizedPnL fixed.Point `json:"unrealized_pnl" csv:"unrealized_pnl"`
	RealizedPnL   fixed.Point `json:"realized_pnl" csv:"realized_pnl"`
	GrossExposure fixed.Point `json:"gross_exposure" csv:"gross_exposure"`
}

// PositionSnapshot is a position as it stood at TimeStamp.
type PositionSnapshot struct {
	TimeStamp time.Time `json:"ts" csv:"ts"`
	Position
}
