package indicators

import (
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

type ZScore struct {
	data *fixed.Window
}

func NewZScore(windowSize int) *ZScore {
	return &ZScore{data: fixed.NewWindow(windowSize)}
}

func (z *ZScore) AddPoint(p fixed.Point) {
	z.data.Push(p)
}

// Value is the distance of the latest point from the window mean in sample
// standard deviations. A flat window scores zero.
func (z *ZScore) Value() fixed.Point {
	if z.data.Size() < 2 {
		return fixed.Zero
	}

	mean := z.data.Mean()
	stdDev := fixed.SampleStdDev(z.data.Slice(), mean)
	if stdDev.IsZero() {
		return fixed.Zero
	}

	return z.data.Latest().Sub(mean).Div(stdDev)
}

func (z *ZScore) Mean() fixed.Point {
	return z.data.Mean()
}

func (z *ZScore) IsReady() bool {
	return z.data.IsFull()
}
