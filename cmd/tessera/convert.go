package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/peter-kozarec/tessera/pkg/common"
	"github.com/peter-kozarec/tessera/pkg/datasource/historical"
	"github.com/peter-kozarec/tessera/pkg/datasource/jsonl"
	"github.com/peter-kozarec/tessera/pkg/utility/fixed"
)

// csvBar is one row of a bar CSV export: ts,open,high,low,close,volume.
type csvBar struct {
	TimeStamp time.Time   `csv:"ts"`
	Open      fixed.Point `csv:"open"`
	High      fixed.Point `csv:"high"`
	Low       fixed.Point `csv:"low"`
	Close     fixed.Point `csv:"close"`
	Volume    fixed.Point `csv:"volume"`
}

func newConvertCmd() *cobra.Command {
	var symbol string
	var period time.Duration

	cmd := &cobra.Command{
		Use:   "convert <in.csv> <out.bin|out.jsonl>",
		Short: "Convert a bar CSV into a binary archive or a JSON lines feed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bars, err := readBars(args[0], symbol, period)
			if err != nil {
				return err
			}
			if err := writeBars(args[1], bars); err != nil {
				return err
			}
			logger.Info("convert finished",
				zap.String("symbol", symbol),
				zap.String("out", args[1]),
				zap.Int("bars", len(bars)))
			return nil
		},
	}

	cmd.Flags().StringVar(&symbol, "symbol", "", "symbol of the bars")
	cmd.Flags().DurationVar(&period, "period", time.Minute, "bar period")
	_ = cmd.MarkFlagRequired("symbol")
	return cmd
}

func readBars(path, symbol string, period time.Duration) ([]common.Bar, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = file.Close() }()

	var rows []csvBar
	if err := gocsv.Unmarshal(bufio.NewReader(file), &rows); err != nil {
		return nil, fmt.Errorf("unable to parse %s: %w", path, err)
	}

	bars := make([]common.Bar, 0, len(rows))
	for i, row := range rows {
		bar := common.Bar{
			EventHeader: common.EventHeader{Symbol: symbol, TimeStamp: row.TimeStamp.UTC()},
			Period:      period,
			Open:        row.Open,
			High:        row.High,
			Low:         row.Low,
			Close:       row.Close,
			Volume:      row.Volume,
		}
		if err := bar.Validate(); err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func writeBars(path string, bars []common.Bar) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	if isJsonl(path) {
		w := jsonl.NewWriter(file)
		for _, bar := range bars {
			if err := w.Write(bar); err != nil {
				return err
			}
		}
		return w.Flush()
	}

	w := bufio.NewWriter(file)
	if err := historical.WriteBars(w, bars...); err != nil {
		return err
	}
	return w.Flush()
}
