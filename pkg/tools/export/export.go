package export

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"
	"github.com/goccy/go-json"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/peter-kozarec/tessera/pkg/cfg"
	"github.com/peter-kozarec/tessera/pkg/simulation"
)

const (
	ResultFile    = "result.json"
	ConfigFile    = "config.yaml"
	TradesFile    = "trades.csv"
	OrdersFile    = "orders.csv"
	EquityFile    = "equity.csv"
	PositionsFile = "positions.csv"
	TraceFile     = "trace.csv"
	MetricsFile   = "metrics.csv"
)

type metricRow struct {
	Name  string `csv:"metric"`
	Value string `csv:"value"`
}

// Dir writes every artifact of res into dir, creating it when missing.
// Empty series are skipped.
func Dir(dir string, res *simulation.Result) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("unable to create %s: %w", dir, err)
	}

	files := []struct {
		name  string
		skip  bool
		write func(io.Writer) error
	}{
		{ResultFile, false, func(w io.Writer) error { return JSON(w, res) }},
		{ConfigFile, false, func(w io.Writer) error { return Config(w, res.Config) }},
		{MetricsFile, false, func(w io.Writer) error { return Metrics(w, res) }},
		{TradesFile, len(res.Trades) == 0, func(w io.Writer) error { return CSV(w, res.Trades) }},
		{OrdersFile, len(res.Orders) == 0, func(w io.Writer) error { return CSV(w, res.Orders) }},
		{EquityFile, len(res.EquityCurve) == 0, func(w io.Writer) error { return CSV(w, res.EquityCurve) }},
		{PositionsFile, len(res.PositionSeries) == 0, func(w io.Writer) error { return CSV(w, res.PositionSeries) }},
		{TraceFile, len(res.Trace) == 0, func(w io.Writer) error { return CSV(w, res.Trace) }},
	}

	for _, f := range files {
		if f.skip {
			continue
		}
		if err := writeFile(filepath.Join(dir, f.name), f.write); err != nil {
			return err
		}
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("unable to create %s: %w", path, err)
	}
	defer func() {
		err = multierr.Append(err, file.Close())
	}()

	w := bufio.NewWriter(file)
	if err := write(w); err != nil {
		return fmt.Errorf("unable to write %s: %w", path, err)
	}
	return w.Flush()
}

// CSV writes a slice of records with a header row taken from their csv tags.
func CSV[T any](w io.Writer, records []T) error {
	return gocsv.Marshal(records, w)
}

func JSON(w io.Writer, res *simulation.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// Config dumps the resolved configuration as YAML.
func Config(w io.Writer, c cfg.Backtest) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

func Metrics(w io.Writer, res *simulation.Result) error {
	rows := res.Metrics.Rows()
	records := make([]metricRow, 0, len(rows))
	for _, row := range rows {
		records = append(records, metricRow{Name: row[0], Value: row[1]})
	}
	return CSV(w, records)
}
