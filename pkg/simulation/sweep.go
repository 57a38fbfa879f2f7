package simulation

import (
	"context"
	"fmt"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/datasource"
	"github.com/peter-kozarec/tessera/pkg/strategy"
)

// FeedFactory opens a fresh feed for every run of a sweep.
type FeedFactory func() (datasource.Feed, error)

// StrategyFactory builds a fresh strategy instance for every run of a sweep.
type StrategyFactory func() (strategy.Strategy, error)

// Registered resolves spec through the strategy registry on every call.
func Registered(spec cfg.StrategySpec) StrategyFactory {
	return func() (strategy.Strategy, error) {
		return strategy.New(spec.Name, spec.Params)
	}
}

// Sweep runs config once per seed, at most parallel runs at a time. Runs are
// independent, so results[i] is exactly what a single run with seeds[i]
// returns. The first failing run cancels the others.
func Sweep(ctx context.Context, config cfg.Backtest, seeds []int64, parallel int,
	newFeed FeedFactory, newStrategy StrategyFactory, options ...Option) ([]*Result, error) {

	results := make([]*Result, len(seeds))

	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}

	for i, seed := range seeds {
		g.Go(func() error {
			c := config.Clone()
			c.RandomSeed = seed

			res, err := runOnce(gctx, c, newFeed, newStrategy, options...)
			results[i] = res
			if err != nil {
				return fmt.Errorf("seed %d: %w", seed, err)
			}
			return nil
		})
	}

	return results, g.Wait()
}

func runOnce(ctx context.Context, c cfg.Backtest, newFeed FeedFactory, newStrategy StrategyFactory, options ...Option) (_ *Result, err error) {
	s, err := newStrategy()
	if err != nil {
		return nil, err
	}
	engine, err := NewEngine(c, s, options...)
	if err != nil {
		return nil, err
	}

	feed, err := newFeed()
	if err != nil {
		return nil, fmt.Errorf("unable to open feed: %w", err)
	}
	defer func() {
		err = multierr.Append(err, datasource.Close(feed))
	}()

	return engine.Run(ctx, feed)
}
