package main

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"

	"github.com/peter-kozarec/tessera/pkg/simulation"
)

func printReport(w io.Writer, res *simulation.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Metric", "Value"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for _, row := range res.Metrics.Rows() {
		table.Append(row[:])
	}
	table.Render()
}

func printSweep(w io.Writer, seeds []int64, results []*simulation.Result) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Seed", "Final equity", "Return", "Sharpe", "Max drawdown", "Fills"})
	table.SetAlignment(tablewriter.ALIGN_RIGHT)
	for i, res := range results {
		if res == nil {
			continue
		}
		m := res.Metrics
		table.Append([]string{
			strconv.FormatInt(seeds[i], 10),
			m.FinalEquity.Rescale(2).String(),
			m.TotalReturn.Rescale(4).String(),
			m.SharpeRatio.Rescale(4).String(),
			m.MaxDrawdown.Rescale(4).String(),
			strconv.Itoa(m.TotalFills),
		})
	}
	table.Render()
}

func printList(w io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}
