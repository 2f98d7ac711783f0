package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/cuemby/fleetload/pkg/analyze"
	"github.com/cuemby/fleetload/pkg/command"
	"github.com/spf13/cobra"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the outcome of a rollout",
}

var analyzeClusterVersionCmd = &cobra.Command{
	Use:   "clusterversion RESULTS_DIR",
	Short: "Analyze clusterversion history across installed units",
	Long: `Query the clusterversion history of every unit that finished installing
and write per-version upgrade statistics.

The CSV and stats files are written to RESULTS_DIR as
clusterversion-<timestamp>.csv and clusterversion-<timestamp>.stats.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyzeClusterVersion,
}

func init() {
	analyzeCmd.AddCommand(analyzeClusterVersionCmd)

	analyzeClusterVersionCmd.Flags().String("manifests-dir", "/root/hv-vm/sno/manifests", "Directory holding each unit's kubeconfig")
	analyzeClusterVersionCmd.Flags().String("duplicate-policy", string(analyze.CompletedWins), "How repeated history entries are counted: completed-wins or keep-all")
	analyzeClusterVersionCmd.Flags().Int("concurrency", 10, "Units queried in parallel")
	analyzeClusterVersionCmd.Flags().String("oc", "oc", "Control-plane CLI, e.g. \"oc --kubeconfig /root/bm/kubeconfig\"")
}

func runAnalyzeClusterVersion(cmd *cobra.Command, args []string) error {
	manifestsDir, _ := cmd.Flags().GetString("manifests-dir")
	policyName, _ := cmd.Flags().GetString("duplicate-policy")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	ocCommand, _ := cmd.Flags().GetString("oc")

	policy, err := analyze.ParseDuplicatePolicy(policyName)
	if err != nil {
		return err
	}
	oc, err := command.NewTool(ocCommand, command.NewExecutor(dryRun))
	if err != nil {
		return err
	}

	histories, err := analyze.Collect(cmd.Context(), oc, analyze.Options{
		ManifestsDir: manifestsDir,
		Policy:       policy,
		Concurrency:  concurrency,
	})
	if err != nil {
		return err
	}

	a := analyze.Analyze(histories, policy)
	csvPath, statsPath, err := a.Write(args[0], time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", filepath.Clean(csvPath))
	fmt.Printf("Wrote %s\n", filepath.Clean(statsPath))
	return nil
}
