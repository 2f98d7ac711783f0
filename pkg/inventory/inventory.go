package inventory

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/types"
)

const (
	siteconfigSuffix = "-siteconfig.yml"
	resourcesSuffix  = "-resources.yml"
	manifestFile     = "manifest.yml"
	shardPrefix      = "ztp-"
)

// DiscoveryError reports an inventory with no eligible units
type DiscoveryError struct {
	Root   string
	Method types.Method
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("zero units discovered under %s (method %s)", e.Root, e.Method)
}

// CapacityError reports shards that cannot hold every unit
type CapacityError struct {
	Units    int
	Shards   int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%d units exceed capacity of %d shards * %d units per shard = %d",
		e.Units, e.Shards, e.Capacity, e.Shards*e.Capacity)
}

// MissingArtifactError reports a unit whose companion file is absent
type MissingArtifactError struct {
	Unit string
	File string
}

func (e *MissingArtifactError) Error() string {
	return fmt.Sprintf("unit %s is missing required file %s", e.Unit, e.File)
}

// Options selects where and how to discover units
type Options struct {
	Root      string       // Directory holding siteconfigs/ or manifests/
	ArgoCDDir string       // Directory holding cluster/ztp-* shard applications
	Method    types.Method // ztp or manifests
	Capacity  int          // Maximum units per shard
	Prefix    string       // Unit name prefix, e.g. "sno"
}

// Inventory is the ordered set of units and the shards they map onto
type Inventory struct {
	Method   types.Method
	Units    []types.Unit
	Shards   []*types.Shard
	Capacity int
}

// ShardFor returns the shard a unit index maps onto
func (inv *Inventory) ShardFor(index int) (*types.Shard, error) {
	i := types.ShardIndex(index, inv.Capacity)
	if i < 0 || i >= len(inv.Shards) {
		return nil, fmt.Errorf("unit index %d maps to shard %d but only %d shards exist", index, i, len(inv.Shards))
	}
	return inv.Shards[i], nil
}

// SeedMembers records the units before start as already released, so a run
// resumed mid-shard renders the shard with its earlier members kept.
func (inv *Inventory) SeedMembers(start int) error {
	if len(inv.Shards) == 0 {
		return nil
	}
	if start > len(inv.Units) {
		start = len(inv.Units)
	}
	for _, shard := range inv.Shards {
		shard.Members = nil
	}
	for _, unit := range inv.Units[:start] {
		shard, err := inv.ShardFor(unit.Index)
		if err != nil {
			return err
		}
		shard.Members = append(shard.Members, unit.Name)
	}
	return nil
}

// Discover lists units in lexicographic order and validates them, plus the
// shard capacity for sharded methods. Errors here are fatal and happen before
// anything is released.
func Discover(opts Options) (*Inventory, error) {
	logger := log.WithComponent("inventory")

	if opts.Capacity < 1 && opts.Method.Sharded() {
		return nil, fmt.Errorf("shard capacity must be at least 1, got %d", opts.Capacity)
	}

	inv := &Inventory{Method: opts.Method, Capacity: opts.Capacity}

	var err error
	switch opts.Method {
	case types.MethodZTP:
		inv.Units, err = discoverSiteconfigs(opts)
	case types.MethodManifests:
		inv.Units, err = discoverManifests(opts)
	default:
		return nil, fmt.Errorf("unknown release method %q", opts.Method)
	}
	if err != nil {
		return nil, err
	}

	if len(inv.Units) == 0 {
		return nil, &DiscoveryError{Root: opts.Root, Method: opts.Method}
	}
	logger.Info().Int("units", len(inv.Units)).Msg("Discovered available units for deployment")

	if !opts.Method.Sharded() {
		return inv, nil
	}

	inv.Shards, err = discoverShards(opts.ArgoCDDir, opts.Capacity)
	if err != nil {
		return nil, err
	}

	maxUnits := len(inv.Shards) * opts.Capacity
	logger.Info().Msgf("Discovered %d ztp cluster apps with capacity for %d * %d = %d units",
		len(inv.Shards), len(inv.Shards), opts.Capacity, maxUnits)
	if maxUnits < len(inv.Units) {
		return nil, &CapacityError{Units: len(inv.Units), Shards: len(inv.Shards), Capacity: opts.Capacity}
	}
	return inv, nil
}

func discoverSiteconfigs(opts Options) ([]types.Unit, error) {
	dir := filepath.Join(opts.Root, "siteconfigs")
	matches, err := filepath.Glob(filepath.Join(dir, opts.Prefix+"*"+siteconfigSuffix))
	if err != nil {
		return nil, fmt.Errorf("failed to list siteconfigs: %w", err)
	}
	sort.Strings(matches)

	units := make([]types.Unit, 0, len(matches))
	for i, siteconfig := range matches {
		name := strings.TrimSuffix(filepath.Base(siteconfig), siteconfigSuffix)
		resources := filepath.Join(dir, name+resourcesSuffix)
		if !isFile(resources) {
			return nil, &MissingArtifactError{Unit: name, File: resources}
		}
		log.Logger.Debug().Str("unit", name).Msgf("Found %s", resources)

		units = append(units, types.Unit{
			Index: i,
			Name:  name,
			Files: []string{siteconfig, resources},
		})
	}
	return units, nil
}

func discoverManifests(opts Options) ([]types.Unit, error) {
	matches, err := filepath.Glob(filepath.Join(opts.Root, "manifests", opts.Prefix+"*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list manifests: %w", err)
	}
	sort.Strings(matches)

	units := make([]types.Unit, 0, len(matches))
	for _, dir := range matches {
		if !isDir(dir) {
			continue
		}
		name := filepath.Base(dir)
		manifest := filepath.Join(dir, manifestFile)
		if !isFile(manifest) {
			return nil, &MissingArtifactError{Unit: name, File: manifest}
		}
		log.Logger.Debug().Str("unit", name).Msgf("Found %s", manifest)

		units = append(units, types.Unit{
			Index: len(units),
			Name:  name,
			Files: []string{manifest},
		})
	}
	return units, nil
}

func discoverShards(argocdDir string, capacity int) ([]*types.Shard, error) {
	matches, err := filepath.Glob(filepath.Join(argocdDir, "cluster", shardPrefix+"*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list cluster applications: %w", err)
	}
	sort.Strings(matches)

	shards := make([]*types.Shard, 0, len(matches))
	for _, loc := range matches {
		if !isDir(loc) {
			continue
		}
		shards = append(shards, &types.Shard{
			Index:    len(shards),
			Location: loc,
			Capacity: capacity,
		})
	}
	return shards, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
