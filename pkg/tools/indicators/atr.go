package indicators

import (
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// ATR is the average true range with Wilder smoothing. The first bar only
// provides the previous close.
type ATR struct {
	windowSize int
	count      int

	lastClose fixed.Point
	atr       fixed.Point
	tr        fixed.Point
}

func NewATR(windowSize int) *ATR {
	return &ATR{windowSize: windowSize}
}

func (a *ATR) AddBar(b common.Bar) {
	defer func() {
		a.lastClose = b.Close
	}()

	if a.lastClose.IsZero() {
		return
	}

	a.tr = b.High.Sub(b.Low).Abs().
		Max(b.High.Sub(a.lastClose).Abs()).
		Max(b.Low.Sub(a.lastClose).Abs())

	if a.count == 0 {
		a.atr = a.tr
	} else {
		a.atr = a.atr.MulInt(a.windowSize - 1).Add(a.tr).DivInt(a.windowSize)
	}
	a.count++
}

func (a *ATR) Value() fixed.Point     { return a.atr }
func (a *ATR) TrueRange() fixed.Point { return a.tr }

// IsReady reports whether a full window of true ranges went into the average.
func (a *ATR) IsReady() bool { return a.count >= a.windowSize }

func (a *ATR) Reset() {
	*a = ATR{windowSize: a.windowSize}
}
