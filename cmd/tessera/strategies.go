package main

import (
	"github.com/spf13/cobra"

	"github.com/peter-kozarec/tessera/pkg/exchange/sandbox"
	"github.com/peter-kozarec/tessera/pkg/strategy"
)

func newStrategiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "strategies",
		Short: "List registered strategies and pricing models",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			var rows [][]string
			for _, name := range strategy.Names() {
				rows = append(rows, []string{"strategy", name})
			}
			for _, name := range sandbox.SlippageModels() {
				rows = append(rows, []string{"slippage", name})
			}
			for _, name := range sandbox.CommissionModels() {
				rows = append(rows, []string{"commission", name})
			}
			printList(cmd.OutOrStdout(), []string{"Kind", "Name"}, rows)
		},
	}
}
