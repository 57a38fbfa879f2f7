package indicators

import (
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// SMA is a simple moving average over the last n points.
type SMA struct {
	data *fixed.Window
}

func NewSMA(windowSize int) *SMA {
	return &SMA{data: fixed.NewWindow(windowSize)}
}

func (s *SMA) AddPoint(p fixed.Point) {
	s.data.Push(p)
}

func (s *SMA) Value() fixed.Point {
	return s.data.Mean()
}

func (s *SMA) IsReady() bool {
	return s.data.IsFull()
}

func (s *SMA) Reset() {
	s.data.Clear()
}
