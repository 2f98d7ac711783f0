package main

import (
	"fmt"

	"github.com/cuemby/fleetload/pkg/config"
	"github.com/cuemby/fleetload/pkg/rollout"
	"github.com/cuemby/fleetload/pkg/types"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// deployFlags holds the flag values; only flags the user set override the
// --config file
var deployFlags = config.Default()

var deployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Release units to the fleet in batches",
	Long: `Release units to the fleet in batches while monitoring their progress.

Examples:
  # 100 units every 2 hours through the GitOps shards
  fleetload deploy interval ztp --batch 100 --interval 2h

  # Keep 500 installs in flight, applying manifests directly
  fleetload deploy concurrent manifests --concurrency 500

  # Take settings from a file, overriding the batch size
  fleetload deploy interval --config rollout.yaml --batch 50`,
}

var deployIntervalCmd = &cobra.Command{
	Use:       "interval [ztp|manifests]",
	Short:     "Release a batch every fixed interval",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(types.MethodZTP), string(types.MethodManifests)},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeploy(cmd, args, config.CadenceInterval)
	},
}

var deployConcurrentCmd = &cobra.Command{
	Use:       "concurrent [ztp|manifests]",
	Short:     "Release a batch whenever installs in flight drop below a target",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(types.MethodZTP), string(types.MethodManifests)},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDeploy(cmd, args, config.CadenceConcurrent)
	},
}

func init() {
	deployCmd.AddCommand(deployIntervalCmd)
	deployCmd.AddCommand(deployConcurrentCmd)

	bindDeployFlags(deployCmd.PersistentFlags(), &deployFlags)
	deployCmd.PersistentFlags().String("config", "", "YAML file with deploy settings, explicit flags take precedence")

	bindCadenceFlags(deployIntervalCmd.Flags(), &deployFlags, config.CadenceInterval)
	bindCadenceFlags(deployConcurrentCmd.Flags(), &deployFlags, config.CadenceConcurrent)
}

// bindDeployFlags registers the flags shared by every cadence
func bindDeployFlags(fs *pflag.FlagSet, c *config.Config) {
	fs.StringVarP(&c.UnitsDir, "units-dir", "m", c.UnitsDir, "Directory holding siteconfigs/ or manifests/")
	fs.StringVarP(&c.ArgoCDDir, "argocd-dir", "a", c.ArgoCDDir, "Directory holding the cluster/ztp-* shard applications")
	fs.StringVar(&c.UnitPrefix, "unit-prefix", c.UnitPrefix, "Unit name prefix")
	fs.IntVarP(&c.Start, "start", "s", c.Start, "First unit index to release")
	fs.IntVarP(&c.End, "end", "e", c.End, "Exclusive end index, 0 releases every discovered unit")
	fs.DurationVarP(&c.StartDelay, "start-delay", "w", c.StartDelay, "Delay before the first release")
	fs.DurationVarP(&c.EndDelay, "end-delay", "x", c.EndDelay, "Delay after the phase waits")
	fs.IntVar(&c.UnitsPerApp, "units-per-app", c.UnitsPerApp, "Units per GitOps shard application")
	fs.DurationVar(&c.WaitInstallMax, "wait-install-max", c.WaitInstallMax, "Maximum install-wait, 0 waits forever")
	fs.BoolVar(&c.WaitPolicy, "wait-policy", c.WaitPolicy, "Wait for post-install policies to finish")
	fs.DurationVar(&c.WaitPolicyMax, "wait-policy-max", c.WaitPolicyMax, "Maximum policy-wait, 0 waits forever")
	fs.BoolVar(&c.ZTPClientTemplates, "ztp-client-templates", c.ZTPClientTemplates, "Add a namespace and test ConfigMap to each unit's extra manifests")
	fs.DurationVar(&c.MonitorInterval, "monitor-interval", c.MonitorInterval, "Fleet sampling interval")
	fs.StringVar(&c.TALMVersion, "talm-version", c.TALMVersion, "TALM version assumed when it cannot be detected")
	fs.StringVar(&c.OCCommand, "oc", c.OCCommand, "Control-plane CLI, e.g. \"oc --kubeconfig /root/bm/kubeconfig\"")
	fs.IntVar(&c.CommandRetries, "command-retries", c.CommandRetries, "Retries for git push")
	fs.BoolVar(&c.PreflightHealth, "preflight-health", c.PreflightHealth, "Run the hub health checks before releasing")
	fs.StringVarP(&c.ResultsDir, "results-dir", "r", c.ResultsDir, "Base directory for run results")
	fs.StringVarP(&c.ResultsSuffix, "results-suffix", "t", c.ResultsSuffix, "Suffix of the run's results directory")
	fs.StringVar(&c.MetricsAddr, "metrics-addr", c.MetricsAddr, "Serve Prometheus metrics on this address during the run")
}

// bindCadenceFlags registers the flags of one cadence subcommand
func bindCadenceFlags(fs *pflag.FlagSet, c *config.Config, cadence config.Cadence) {
	fs.IntVarP(&c.Batch, "batch", "b", c.Batch, "Units released per batch")
	switch cadence {
	case config.CadenceInterval:
		fs.DurationVarP(&c.Interval, "interval", "i", c.Interval, "Time between batch starts")
		fs.BoolVar(&c.SkipWaitInstall, "skip-wait-install", c.SkipWaitInstall, "Do not wait for installs after the last batch")
	case config.CadenceConcurrent:
		fs.IntVarP(&c.Concurrency, "concurrency", "c", c.Concurrency, "Installs kept in flight")
	}
}

// resolveConfig layers defaults, the --config file and explicitly set flags
func resolveConfig(cmd *cobra.Command, args []string, cadence config.Cadence) (*config.Config, error) {
	cfg := deployFlags

	path, _ := cmd.Flags().GetString("config")
	if path != "" {
		loaded, err := config.LoadFile(path, config.Default())
		if err != nil {
			return nil, err
		}
		cfg = loaded

		overlay := pflag.NewFlagSet("overlay", pflag.ContinueOnError)
		bindDeployFlags(overlay, &cfg)
		bindCadenceFlags(overlay, &cfg, cadence)
		var setErr error
		cmd.Flags().Visit(func(f *pflag.Flag) {
			if o := overlay.Lookup(f.Name); o != nil && setErr == nil {
				setErr = o.Value.Set(f.Value.String())
			}
		})
		if setErr != nil {
			return nil, setErr
		}
	}

	cfg.Cadence = cadence
	if len(args) == 1 {
		method, err := types.ParseMethod(args[0])
		if err != nil {
			return nil, err
		}
		cfg.Method = method
	}
	if cmd.Flags().Changed("dry-run") || path == "" {
		cfg.DryRun = dryRun
	}
	if cmd.Flags().Changed("debug") || path == "" {
		cfg.Debug = debug
	}
	return &cfg, nil
}

func runDeploy(cmd *cobra.Command, args []string, cadence config.Cadence) error {
	cfg, err := resolveConfig(cmd, args, cadence)
	if err != nil {
		return err
	}

	res, err := rollout.Run(cmd.Context(), cfg, rollout.Deps{})
	if res != nil {
		fmt.Printf("Results: %s\n", res.Dir)
	}
	return err
}
