package middleware

import (
	"context"

	"github.com/peter-kozarec/tessera/pkg/common"
)

//goland:noinspection ALL
var (
	NoopMarketHdl   = func(context.Context, common.Event) {}
	NoopFillHdl     = func(context.Context, common.Fill) {}
	NoopOrderHdl    = func(context.Context, common.Order) {}
	NoopEquityHdl   = func(context.Context, common.EquityPoint) {}
	NoopPositionHdl = func(context.Context, common.PositionSnapshot) {}
)
