package bus

import "fmt"

type EventId uint8

const (
	MarketEvent EventId = iota
	FillEvent
	OrderEvent
	EquityEvent
	PositionEvent
)

func (id EventId) String() string {
	switch id {
	case MarketEvent:
		return "market"
	case FillEvent:
		return "fill"
	case OrderEvent:
		return "order"
	case EquityEvent:
		return "equity"
	case PositionEvent:
		return "position"
	default:
		return fmt.Sprintf("event(%d)", id)
	}
}
