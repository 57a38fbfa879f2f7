package bus

import (
	"context"

	"github.com/peter-kozarec/tessera/pkg/common"
)

type MarketEventHandler func(context.Context, common.Event)
type FillEventHandler func(context.Context, common.Fill)
type OrderEventHandler func(context.Context, common.Order)
type EquityEventHandler func(context.Context, common.EquityPoint)
type PositionEventHandler func(context.Context, common.PositionSnapshot)
