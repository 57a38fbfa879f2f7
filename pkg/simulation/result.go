package simulation

import (
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/tools/metrics"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// TraceEntry is one line of the debug trace, written per processed event.
type TraceEntry struct {
	EventIndex   int64            `json:"event_index" csv:"event_index"`
	TimeStamp    time.Time        `json:"ts" csv:"ts"`
	Symbol       string           `json:"symbol" csv:"symbol"`
	Sequence     uint64           `json:"seq" csv:"seq"`
	Kind         common.EventKind `json:"kind" csv:"kind"`
	Fills        int              `json:"fills" csv:"fills"`
	OrderUpdates int              `json:"order_updates" csv:"order_updates"`
	Equity       fixed.Point      `json:"equity" csv:"equity"`
}

// Result is everything a run produced. A run that failed or was canceled
// still returns the result accumulated up to that point with Completed unset.
type Result struct {
	RunId           string                    `json:"run_id"`
	Strategy        string                    `json:"strategy"`
	Config          cfg.Backtest              `json:"config"`
	Completed       bool                      `json:"completed"`
	EventsProcessed int64                     `json:"events_processed"`
	EventsSkipped   int64                     `json:"events_skipped"`
	EquityCurve     []common.EquityPoint      `json:"equity_curve"`
	PositionSeries  []common.PositionSnapshot `json:"position_series"`
	Trades          []common.Fill             `json:"trades"`
	Orders          []common.Order            `json:"orders"`
	Metrics         metrics.Report            `json:"metrics"`
	Trace           []TraceEntry              `json:"trace,omitempty"`
}

// FinalEquity is the equity of the last snapshot, or the initial cash when
// no snapshot was taken.
func (r *Result) FinalEquity() fixed.Point {
	if n := len(r.EquityCurve); n > 0 {
		return r.EquityCurve[n-1].Equity
	}
	return r.Config.InitialCash
}

func (r *Result) Print(logger *zap.Logger) {
	logger.Info("run summary",
		zap.String("run_id", r.RunId),
		zap.String("strategy", r.Strategy),
		zap.Bool("completed", r.Completed),
		zap.Int64("events_processed", r.EventsProcessed),
		zap.Int64("events_skipped", r.EventsSkipped),
		zap.Int("trades", len(r.Trades)),
		zap.Int("order_updates", len(r.Orders)),
		zap.String("final_equity", r.FinalEquity().String()))
	r.Metrics.Print(logger)
}
