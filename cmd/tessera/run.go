package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/peter-kozarec/tessera/pkg/bus"
	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/datasource"
	"github.com/peter-kozarec/tessera/pkg/datasource/sqlsource"
	"github.com/peter-kozarec/tessera/pkg/middleware"
	"github.com/peter-kozarec/tessera/pkg/simulation"
	"github.com/peter-kozarec/tessera/pkg/strategy"
	"github.com/peter-kozarec/tessera/pkg/tools/export"
)

const routerEventCapacity = 4096

// configFlags select the configuration file and the overrides applied on top of it.
type configFlags struct {
	path     string
	seed     int64
	strategy string
	params   map[string]string
}

func (f *configFlags) register(cmd *cobra.Command) {
	fs := cmd.Flags()
	fs.StringVarP(&f.path, "config", "c", "", "backtest configuration file (yaml, json, toml)")
	fs.Int64Var(&f.seed, "seed", 0, "override random_seed")
	fs.StringVar(&f.strategy, "strategy", "", "override strategy name")
	fs.StringToStringVar(&f.params, "param", nil, "override strategy parameters (key=value)")
	_ = cmd.MarkFlagRequired("config")
}

func (f *configFlags) load(cmd *cobra.Command) (cfg.Backtest, error) {
	c, err := cfg.Load(f.path)
	if err != nil {
		return cfg.Backtest{}, err
	}
	if cmd.Flags().Changed("seed") {
		c.RandomSeed = f.seed
	}
	if f.strategy != "" {
		c.Strategy.Name = f.strategy
	}
	if len(f.params) > 0 {
		if c.Strategy.Params == nil {
			c.Strategy.Params = make(map[string]string, len(f.params))
		}
		for k, v := range f.params {
			c.Strategy.Params[k] = v
		}
	}
	return c, c.Validate()
}

type runFlags struct {
	config  configFlags
	source  sourceFlags
	out     string
	monitor []string

	ledgerDriver string
	ledgerDsn    string
	ledgerTable  string
}

func newRunCmd() *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single backtest",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBacktest(cmd, f)
		},
	}

	f.config.register(cmd)
	f.source.register(cmd)
	fs := cmd.Flags()
	fs.StringVarP(&f.out, "out", "o", "", "directory to export results to")
	fs.StringSliceVar(&f.monitor, "monitor", []string{"fills", "rejections"}, "journal events to log (market, fills, orders, rejections, equity, positions, all)")
	fs.StringVar(&f.ledgerDriver, "ledger-driver", sqlsource.DriverDuckDB, "fill ledger driver (duckdb, postgres)")
	fs.StringVar(&f.ledgerDsn, "ledger-dsn", "", "fill ledger data source name")
	fs.StringVar(&f.ledgerTable, "ledger-table", "", "record fills into this table while running")
	return cmd
}

func runBacktest(cmd *cobra.Command, f *runFlags) (err error) {
	ctx := cmd.Context()

	c, err := f.config.load(cmd)
	if err != nil {
		return err
	}
	flags, err := parseMonitorFlags(f.monitor)
	if err != nil {
		return err
	}
	newFeed, err := f.source.factory(ctx, c)
	if err != nil {
		return err
	}
	s, err := strategy.New(c.Strategy.Name, c.Strategy.Params)
	if err != nil {
		return err
	}

	router := bus.NewRouter(routerEventCapacity, logger)
	engine, err := simulation.NewEngine(c, s,
		simulation.WithLogger(logger),
		simulation.WithRouter(router),
		simulation.WithProgress(func(p simulation.Progress) {
			logger.Info("progress",
				zap.Int64("events", p.EventsProcessed),
				zap.Time("ts", p.TimeStamp),
				zap.String("equity", p.Equity.String()))
		}))
	if err != nil {
		return err
	}
	runId, err := engine.RunId()
	if err != nil {
		return err
	}

	monitor := middleware.NewMonitor(logger, flags)
	telemetry := middleware.NewTelemetry(logger)
	performance := middleware.NewPerformance(logger)

	fillChain := []func(bus.FillEventHandler) bus.FillEventHandler{telemetry.WithFill, performance.WithFill, monitor.WithFill}
	if f.ledgerTable != "" {
		ledger, closeLedger, lerr := openLedger(ctx, f, runId)
		if lerr != nil {
			return lerr
		}
		defer func() {
			err = multierr.Append(err, closeLedger())
		}()
		fillChain = append(fillChain, ledger.WithFill)
	}

	router.OnMarket = middleware.Chain(telemetry.WithMarket, performance.WithMarket, monitor.WithMarket)(middleware.NoopMarketHdl)
	router.OnFill = middleware.Chain(fillChain...)(middleware.NoopFillHdl)
	router.OnOrder = middleware.Chain(telemetry.WithOrder, performance.WithOrder, monitor.WithOrder)(middleware.NoopOrderHdl)
	router.OnEquity = middleware.Chain(telemetry.WithEquity, performance.WithEquity, monitor.WithEquity)(middleware.NoopEquityHdl)
	router.OnPosition = middleware.Chain(telemetry.WithPosition, performance.WithPosition, monitor.WithPosition)(middleware.NoopPositionHdl)

	feed, err := newFeed()
	if err != nil {
		return fmt.Errorf("unable to open feed: %w", err)
	}
	defer func() {
		err = multierr.Append(err, datasource.Close(feed))
	}()

	var res *simulation.Result
	var runErr error

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return router.Exec(gctx)
	})
	g.Go(func() error {
		defer router.Close()
		res, runErr = engine.Run(gctx, feed)
		return nil
	})
	if err := g.Wait(); err != nil && runErr == nil {
		runErr = err
	}

	router.Statistics().Print(logger)
	telemetry.PrintStatistics()
	performance.PrintStatistics(telemetry)

	if res != nil {
		res.Print(logger)
		printReport(cmd.OutOrStdout(), res)
		if f.out != "" {
			if err := export.Dir(f.out, res); err != nil {
				return multierr.Append(runErr, err)
			}
			logger.Info("results exported", zap.String("dir", f.out))
		}
	}
	return runErr
}

func openLedger(ctx context.Context, f *runFlags, runId string) (*middleware.Ledger, func() error, error) {
	db, err := sqlsource.Open(ctx, f.ledgerDriver, f.ledgerDsn)
	if err != nil {
		return nil, nil, err
	}
	table, err := export.NewFillTable(db, f.ledgerTable)
	if err == nil {
		err = table.Create(ctx)
	}
	if err != nil {
		return nil, nil, multierr.Append(err, db.Close())
	}
	return middleware.NewLedger(logger, table, runId), db.Close, nil
}

func parseMonitorFlags(names []string) (middleware.MonitorFlags, error) {
	flags := middleware.MonitorNone
	for _, name := range names {
		switch name {
		case "all":
			flags |= middleware.MonitorAll
		case "market":
			flags |= middleware.MonitorMarket
		case "fills":
			flags |= middleware.MonitorFills
		case "orders":
			flags |= middleware.MonitorOrders
		case "rejections":
			flags |= middleware.MonitorRejections
		case "equity":
			flags |= middleware.MonitorEquity
		case "positions":
			flags |= middleware.MonitorPositions
		case "none", "":
		default:
			return 0, fmt.Errorf("unknown monitor flag %q", name)
		}
	}
	return flags, nil
}
