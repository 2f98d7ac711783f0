package main

import (
	"fmt"
	"os"

	"github.com/cuemby/fleetload/pkg/command"
	"github.com/cuemby/fleetload/pkg/health"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check the hub's health",
	Long: `Check the hub's clusterversion, clusteroperators, nodes,
machineconfigpools and etcd leader elections.

Checks run in order and stop at the first failure unless --force is set.
The command exits non-zero when any check fails.`,
	RunE: runHealth,
}

func init() {
	healthCmd.Flags().Bool("force", false, "Run every check even after one fails")
	healthCmd.Flags().String("oc", "oc", "Control-plane CLI, e.g. \"oc --kubeconfig /root/bm/kubeconfig\"")
	healthCmd.Flags().Bool("no-color", false, "Disable colored output")
	for _, check := range health.AllChecks() {
		healthCmd.Flags().Bool("skip-"+string(check), false, fmt.Sprintf("Skip the %s check", check))
	}
}

func runHealth(cmd *cobra.Command, args []string) error {
	force, _ := cmd.Flags().GetBool("force")
	ocCommand, _ := cmd.Flags().GetString("oc")
	noColor, _ := cmd.Flags().GetBool("no-color")

	skip := make(map[health.CheckType]bool)
	for _, check := range health.AllChecks() {
		if v, _ := cmd.Flags().GetBool("skip-" + string(check)); v {
			skip[check] = true
		}
	}

	oc, err := command.NewTool(ocCommand, command.NewExecutor(dryRun))
	if err != nil {
		return err
	}

	version, err := health.HubVersion(cmd.Context(), oc)
	if err != nil {
		return err
	}

	report := health.Run(cmd.Context(), health.NewCheckers(oc, version), health.Options{Force: force, Skip: skip})
	report.Version = version

	color := !noColor && isatty.IsTerminal(os.Stdout.Fd())
	health.PrintReport(os.Stdout, report, color)

	if !report.Healthy() {
		return fmt.Errorf("cluster failed %d check(s)", report.Failed())
	}
	return nil
}
