package main

import (
	"bytes"
	"fmt"
	"runtime"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/simulation"
	"github.com/peter-kozarec/tessera/pkg/utility"
)

type sweepFlags struct {
	config   configFlags
	source   sourceFlags
	seeds    []int64
	runs     int
	parallel int
	verify   bool
}

func newSweepCmd() *cobra.Command {
	f := &sweepFlags{}

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run the same backtest across many random seeds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSweep(cmd, f)
		},
	}

	f.config.register(cmd)
	f.source.register(cmd)
	fs := cmd.Flags()
	fs.Int64SliceVar(&f.seeds, "seeds", nil, "seeds to run")
	fs.IntVar(&f.runs, "runs", 8, "number of consecutive seeds starting at random_seed, used when --seeds is empty")
	fs.IntVar(&f.parallel, "parallel", runtime.NumCPU(), "runs executed at once")
	fs.BoolVar(&f.verify, "verify", false, "run every seed twice and require identical results")
	return cmd
}

func runSweep(cmd *cobra.Command, f *sweepFlags) error {
	ctx := cmd.Context()

	c, err := f.config.load(cmd)
	if err != nil {
		return err
	}
	newFeed, err := f.source.factory(ctx, c)
	if err != nil {
		return err
	}

	seeds := f.seeds
	if len(seeds) == 0 {
		for i := 0; i < f.runs; i++ {
			seeds = append(seeds, c.RandomSeed+int64(i))
		}
	}
	if f.verify {
		seeds = append(seeds, seeds...)
	}

	logger.Info("sweep started",
		zap.Stringer("sweep_id", utility.NewSweepID()),
		zap.Int("runs", len(seeds)),
		zap.Int("parallel", f.parallel),
		zap.String("strategy", c.Strategy.Name))

	results, err := simulation.Sweep(ctx, c, seeds, f.parallel, newFeed,
		simulation.Registered(c.Strategy), simulation.WithLogger(logger))
	if err != nil {
		return err
	}

	if f.verify {
		if err := verifyDeterminism(seeds, results); err != nil {
			return err
		}
		logger.Info("every seed reproduced its result")
		seeds, results = seeds[:len(seeds)/2], results[:len(results)/2]
	}

	printSweep(cmd.OutOrStdout(), seeds, results)
	return nil
}

// verifyDeterminism compares the encoded results of runs sharing a seed.
func verifyDeterminism(seeds []int64, results []*simulation.Result) error {
	first := make(map[int64][]byte, len(seeds))
	for i, seed := range seeds {
		b, err := json.Marshal(results[i])
		if err != nil {
			return fmt.Errorf("unable to encode result of seed %d: %w", seed, err)
		}
		prev, ok := first[seed]
		if !ok {
			first[seed] = b
			continue
		}
		if !bytes.Equal(prev, b) {
			return fmt.Errorf("seed %d produced different results", seed)
		}
	}
	return nil
}
