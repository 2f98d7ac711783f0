package main

import (
	"os"

	"github.com/cuemby/fleetload/pkg/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report RESULTS_DIR",
	Short: "Regenerate report.stats from a run's database",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		stats, err := report.Generate(args[0])
		if err != nil {
			return err
		}
		return stats.Write(os.Stdout)
	},
}
