package main

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/datasource"
	"github.com/peter-kozarec/tessera/pkg/datasource/historical"
	"github.com/peter-kozarec/tessera/pkg/datasource/jsonl"
	"github.com/peter-kozarec/tessera/pkg/datasource/sqlsource"
	"github.com/peter-kozarec/tessera/pkg/datasource/synthetic"
	"github.com/peter-kozarec/tessera/pkg/simulation"
)

// symbolPlaceholder is replaced by the symbol in per symbol archive paths.
const symbolPlaceholder = "{symbol}"

type sourceFlags struct {
	data      string
	sqlDriver string
	sqlDsn    string
	sqlTable  string
	synthetic int64
}

func (s *sourceFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVar(&s.data, "data", "", "market data file, .jsonl or binary bar archive (.bin, may contain "+symbolPlaceholder+")")
	fs.StringVar(&s.sqlDriver, "sql-driver", sqlsource.DriverDuckDB, "bar table driver (duckdb, postgres)")
	fs.StringVar(&s.sqlDsn, "sql-dsn", "", "bar table data source name")
	fs.StringVar(&s.sqlTable, "sql-table", "", "bar table to read")
	fs.Int64Var(&s.synthetic, "synthetic", 0, "generate this many random bars per symbol")
}

// factory resolves the flags into a FeedFactory. Every call opens a new feed
// over the same data, so sweeps can run in parallel.
func (s *sourceFlags) factory(ctx context.Context, c cfg.Backtest) (simulation.FeedFactory, error) {
	selected := 0
	for _, set := range []bool{s.data != "", s.sqlTable != "", s.synthetic > 0} {
		if set {
			selected++
		}
	}
	if selected != 1 {
		return nil, fmt.Errorf("exactly one of --data, --sql-table or --synthetic is required: %w", common.ErrConfiguration)
	}

	if s.data != "" && isJsonl(s.data) {
		return func() (datasource.Feed, error) {
			return jsonl.LoadFile(s.data, datasource.Filter{Symbols: c.Symbols, Start: c.Start, End: c.End})
		}, nil
	}
	if len(c.Symbols) == 0 {
		return nil, fmt.Errorf("symbols must be configured for this data source: %w", common.ErrConfiguration)
	}

	switch {
	case s.data != "":
		return func() (datasource.Feed, error) {
			return perSymbol(c.Symbols, func(_ int, symbol string) (datasource.Feed, error) {
				path := strings.ReplaceAll(s.data, symbolPlaceholder, symbol)
				return historical.Open(path, symbol, c.Timeframe, c.Start, c.End)
			})
		}, nil
	case s.sqlTable != "":
		return func() (datasource.Feed, error) {
			db, err := sqlsource.Open(ctx, s.sqlDriver, s.sqlDsn)
			if err != nil {
				return nil, err
			}
			feed, err := perSymbol(c.Symbols, func(_ int, symbol string) (datasource.Feed, error) {
				return sqlsource.NewBarFeed(ctx, db, sqlsource.Query{
					Table:  s.sqlTable,
					Symbol: symbol,
					Period: c.Timeframe,
					From:   c.Start,
					To:     c.End,
				})
			})
			if err != nil {
				return nil, multierr.Append(err, db.Close())
			}
			return &managedFeed{Feed: feed, closers: []func() error{db.Close}}, nil
		}, nil
	default:
		return func() (datasource.Feed, error) {
			return perSymbol(c.Symbols, func(i int, symbol string) (datasource.Feed, error) {
				gen := synthetic.DefaultConfig(symbol)
				gen.Period = c.Timeframe
				gen.Bars = s.synthetic
				if !c.Start.IsZero() {
					gen.Start = c.Start
				}
				return synthetic.NewBarGenerator(gen, rand.New(rand.NewSource(c.RandomSeed+int64(i))))
			})
		}, nil
	}
}

// perSymbol opens one feed per symbol and merges them into a single stream
// ordered by timestamp, ties kept in symbol order.
func perSymbol(symbols []string, open func(int, string) (datasource.Feed, error)) (datasource.Feed, error) {
	feeds := make([]datasource.Feed, 0, len(symbols))
	for i, symbol := range symbols {
		feed, err := open(i, symbol)
		if err != nil {
			for _, f := range feeds {
				err = multierr.Append(err, datasource.Close(f))
			}
			return nil, fmt.Errorf("unable to open %s: %w", symbol, err)
		}
		feeds = append(feeds, feed)
	}
	return datasource.NewSequenceFeed(datasource.NewMergeFeed(feeds...)), nil
}

func isJsonl(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".json", ".ndjson":
		return true
	}
	return false
}

// managedFeed releases resources the feed itself does not own.
type managedFeed struct {
	datasource.Feed
	closers []func() error
}

func (f *managedFeed) Close() error {
	err := datasource.Close(f.Feed)
	for _, c := range f.closers {
		err = multierr.Append(err, c())
	}
	return err
}
