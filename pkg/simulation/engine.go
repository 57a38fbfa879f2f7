package simulation

import (
	"context"
	"errors"
	"fmt"
	"math/rand"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/bus"
	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/datasource"
	"github.com/peter-kozarec/tessera/pkg/portfolio"
	"github.com/peter-kozarec/tessera/pkg/strategy"
	"github.com/peter-kozarec/tessera/pkg/utility"
)

const componentName = "simulation.engine"

// Engine replays a feed against a strategy. Each Run starts from a fresh
// clock, random source, broker and portfolio, so equal inputs give equal
// results.
type Engine struct {
	logger   *zap.Logger
	config   cfg.Backtest
	strategy strategy.Strategy
	router   *bus.Router
	progress ProgressFunc
	newVenue VenueFactory
}

func NewEngine(config cfg.Backtest, s strategy.Strategy, options ...Option) (*Engine, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("strategy is nil: %w", common.ErrConfiguration)
	}

	e := &Engine{
		logger:   zap.NewNop(),
		config:   config.Clone(),
		strategy: s,
		newVenue: SandboxVenue,
	}
	for _, opt := range options {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("src", componentName))
	return e, nil
}

func (e *Engine) Config() cfg.Backtest { return e.config.Clone() }

// RunId is a name based UUID of the configuration, equal for equal configs.
func (e *Engine) RunId() (string, error) {
	fp, err := e.config.Fingerprint()
	if err != nil {
		return "", fmt.Errorf("%w: %w", common.ErrConfiguration, err)
	}
	return utility.NewRunID(fp).String(), nil
}

// Run drives feed to exhaustion. Fatal errors are *common.SimulationError;
// on any error the partial result is returned alongside it.
func (e *Engine) Run(ctx context.Context, feed datasource.Feed) (*Result, error) {
	runId, err := e.RunId()
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(e.config.RandomSeed))
	venue, err := e.newVenue(e.config.Clone(), rng, e.logger)
	if err != nil {
		return nil, fmt.Errorf("unable to create venue: %w", err)
	}

	logger := e.logger.With(zap.String("run_id", runId))
	clock := NewClock(e.config.Start)

	r := &run{
		logger:    logger,
		config:    e.config,
		venue:     venue,
		clock:     clock,
		handlers:  strategy.Resolve(e.strategy),
		name:      e.strategy.Name(),
		router:    e.router,
		progress:  e.progress,
		audit:     NewAudit(e.config.Record),
		sequencer: newSequencer(),
		window:    window{from: e.config.Start, to: e.config.End},
		index:     -1,
		snapped:   -1,
	}
	r.ctx = strategy.NewContext(venue, portfolio.ReadOnly(venue.Portfolio()), clock, e.config, logger)
	r.result = &Result{
		RunId:    runId,
		Strategy: r.name,
		Config:   e.config.Clone(),
	}

	logger.Info("run started",
		zap.String("strategy", r.name),
		zap.Int64("seed", e.config.RandomSeed),
		zap.String("initial_cash", e.config.InitialCash.String()))

	if err := r.exec(ctx, feed); err != nil {
		logger.Error("run aborted", zap.Error(err), zap.Int64("events_processed", r.processed))
		return r.finish(false), err
	}

	res := r.finish(true)
	logger.Info("run finished",
		zap.Int64("events_processed", res.EventsProcessed),
		zap.Int("trades", len(r.audit.Trades())),
		zap.String("final_equity", venue.Portfolio().Equity().String()))
	return res, nil
}

func kindOf(err error) error {
	for _, kind := range []error{
		common.ErrDataIntegrity,
		common.ErrInsufficientFunds,
		common.ErrRiskLimit,
		common.ErrConfiguration,
		common.ErrStrategy,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
