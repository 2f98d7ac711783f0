package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cuemby/fleetload/pkg/types"
	"gopkg.in/yaml.v3"
)

// MinMonitorInterval is the smallest accepted monitor polling interval
const MinMonitorInterval = 10 * time.Second

// Cadence selects how release batches are paced
type Cadence string

const (
	// CadenceInterval releases a batch every fixed interval
	CadenceInterval Cadence = "interval"
	// CadenceConcurrent releases a batch whenever installs in flight drop below a target
	CadenceConcurrent Cadence = "concurrent"
)

// Config is the immutable configuration of one rollout run. It is built once
// at startup and passed by pointer; nothing mutates it afterwards.
type Config struct {
	Cadence Cadence      `yaml:"cadence"`
	Method  types.Method `yaml:"method"`

	UnitsDir   string `yaml:"unitsDir"`
	ArgoCDDir  string `yaml:"argocdDir"`
	UnitPrefix string `yaml:"unitPrefix"`

	Start       int `yaml:"start"`
	End         int `yaml:"end"`
	Batch       int `yaml:"batch"`
	Concurrency int `yaml:"concurrency"`
	UnitsPerApp int `yaml:"unitsPerApp"`

	Interval        time.Duration `yaml:"interval"`
	StartDelay      time.Duration `yaml:"startDelay"`
	EndDelay        time.Duration `yaml:"endDelay"`
	MonitorInterval time.Duration `yaml:"monitorInterval"`

	SkipWaitInstall bool          `yaml:"skipWaitInstall"`
	WaitInstallMax  time.Duration `yaml:"waitInstallMax"`
	WaitPolicy      bool          `yaml:"waitPolicy"`
	WaitPolicyMax   time.Duration `yaml:"waitPolicyMax"`

	ZTPClientTemplates bool   `yaml:"ztpClientTemplates"`
	TALMVersion        string `yaml:"talmVersion"`
	OCCommand          string `yaml:"ocCommand"`
	CommandRetries     int    `yaml:"commandRetries"`
	PreflightHealth    bool   `yaml:"preflightHealth"`

	ResultsDir    string `yaml:"resultsDir"`
	ResultsSuffix string `yaml:"resultsSuffix"`
	MetricsAddr   string `yaml:"metricsAddr"`

	DryRun bool `yaml:"dryRun"`
	Debug  bool `yaml:"debug"`
}

// Default returns the configuration used when no flag or file overrides a value
func Default() Config {
	return Config{
		Cadence:         CadenceInterval,
		Method:          types.MethodZTP,
		UnitsDir:        "/root/hv-vm/sno",
		ArgoCDDir:       "/root/rhacm-ztp/cnf-features-deploy/ztp/gitops-subscriptions/argocd",
		UnitPrefix:      "sno",
		Batch:           100,
		Concurrency:     100,
		UnitsPerApp:     100,
		Interval:        7200 * time.Second,
		StartDelay:      15 * time.Second,
		EndDelay:        120 * time.Second,
		MonitorInterval: 60 * time.Second,
		WaitInstallMax:  10800 * time.Second,
		WaitPolicyMax:   18000 * time.Second,
		TALMVersion:     "4.12",
		OCCommand:       "oc",
		CommandRetries:  3,
		ResultsDir:      "results",
		ResultsSuffix:   "int-ztp-0",
	}
}

// LoadFile overlays the YAML document at path onto base. Durations use Go
// syntax ("90s", "2h").
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return cfg, nil
}

// ValidationError reports an invalid configuration value
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// Validate checks the configuration before anything is mutated
func (c *Config) Validate() error {
	if c.Start < 0 {
		return &ValidationError{"start", "start index must be equal to or greater than 0"}
	}
	if c.End < 0 {
		return &ValidationError{"end", "end index must be equal to or greater than 0"}
	}
	if c.End > 0 && c.Start >= c.End {
		return &ValidationError{"end", "end index must be greater than the start index when not 0"}
	}
	if c.MonitorInterval < MinMonitorInterval {
		return &ValidationError{"monitor-interval", fmt.Sprintf("must be equal to or greater than %s", MinMonitorInterval)}
	}
	if c.Batch < 1 {
		return &ValidationError{"batch", "batch size must be equal to or greater than 1"}
	}
	if c.Interval < 0 {
		return &ValidationError{"interval", "interval must be equal to or greater than 0"}
	}
	if c.UnitsPerApp < 1 {
		return &ValidationError{"units-per-app", "must be equal to or greater than 1"}
	}
	if c.StartDelay < 0 || c.EndDelay < 0 {
		return &ValidationError{"delay", "start and end delays must not be negative"}
	}
	if c.WaitInstallMax < 0 || c.WaitPolicyMax < 0 {
		return &ValidationError{"wait-max", "phase timeouts must not be negative"}
	}
	if c.CommandRetries < 0 {
		return &ValidationError{"command-retries", "must not be negative"}
	}
	if strings.TrimSpace(c.OCCommand) == "" {
		return &ValidationError{"oc", "control-plane command must not be empty"}
	}

	switch c.Cadence {
	case CadenceInterval:
	case CadenceConcurrent:
		if c.Concurrency < 1 {
			return &ValidationError{"concurrency", "must be equal to or greater than 1"}
		}
	default:
		return &ValidationError{"cadence", fmt.Sprintf("unknown cadence %q", c.Cadence)}
	}

	if _, err := types.ParseMethod(string(c.Method)); err != nil {
		return &ValidationError{"method", err.Error()}
	}
	return nil
}

// EffectiveEnd returns the exclusive end index for total discovered units
func (c *Config) EffectiveEnd(total int) int {
	if c.End > 0 && c.End < total {
		return c.End
	}
	return total
}
