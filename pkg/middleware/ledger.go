package middleware

import (
	"context"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/bus"
	"github.com/peter-kozarec/tessera/pkg/common"
)

const ledgerComponentName = "middleware.ledger"

// FillStore persists executions of a run.
type FillStore interface {
	InsertFill(ctx context.Context, runId string, fill common.Fill) error
}

// Ledger writes every journaled fill to a FillStore. Store failures are
// logged and never interrupt the handler chain.
type Ledger struct {
	logger *zap.Logger
	store  FillStore
	runId  string
}

func NewLedger(logger *zap.Logger, store FillStore, runId string) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		logger: logger.With(zap.String("src", ledgerComponentName)),
		store:  store,
		runId:  runId,
	}
}

func (l *Ledger) WithFill(handler bus.FillEventHandler) bus.FillEventHandler {
	return func(ctx context.Context, fill common.Fill) {
		if err := l.store.InsertFill(ctx, l.runId, fill); err != nil {
			l.logger.Warn("unable to insert fill",
				zap.Error(err),
				zap.String("run_id", l.runId),
				zap.Uint64("fill_id", fill.Id))
		}
		handler(ctx, fill)
	}
}
