package simulation

import (
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/bus"
	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/exchange"
	"github.com/peter-kozarec/tessera/pkg/exchange/sandbox"
	"github.com/peter-kozarec/tessera/pkg/portfolio"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

type Option func(*Engine)

// VenueFactory builds the broker a run executes against. It is called once
// per run with the run's random source, which it must not share.
type VenueFactory func(c cfg.Backtest, rng *rand.Rand, logger *zap.Logger) (exchange.Venue, error)

// Progress is the read-only view handed to the progress callback.
type Progress struct {
	EventsProcessed int64
	TimeStamp       time.Time
	Equity          fixed.Point
}

type ProgressFunc func(Progress)

func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithRouter journals market events, fills, order updates and snapshots to
// r. The caller runs r.Exec and closes the router after Run returns.
func WithRouter(r *bus.Router) Option {
	return func(e *Engine) {
		e.router = r
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) {
		e.progress = fn
	}
}

func WithVenue(factory VenueFactory) Option {
	return func(e *Engine) {
		e.newVenue = factory
	}
}

// SandboxVenue is the default venue: a simulated broker over a fresh
// portfolio, configured from c.
func SandboxVenue(c cfg.Backtest, rng *rand.Rand, logger *zap.Logger) (exchange.Venue, error) {
	options, err := sandbox.FromConfig(c)
	if err != nil {
		return nil, err
	}
	options = append(options, sandbox.WithLogger(logger))

	p := portfolio.New(c.InitialCash, c.Risk.MarginAllowance)
	return sandbox.NewBroker(p, rng, options...), nil
}
