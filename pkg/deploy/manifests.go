package deploy

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/cuemby/fleetload/pkg/command"
	"github.com/cuemby/fleetload/pkg/inventory"
	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/types"
)

// ManifestReleaser applies each unit's manifest directory with the control-plane CLI
type ManifestReleaser struct {
	inv *inventory.Inventory
	oc  *command.Tool
}

// NewManifestReleaser creates a releaser for the manifests method
func NewManifestReleaser(inv *inventory.Inventory, oc *command.Tool) *ManifestReleaser {
	return &ManifestReleaser{inv: inv, oc: oc}
}

// Release runs "oc apply -f <dir>" for every unit in the window. The first
// failure aborts the batch.
func (r *ManifestReleaser) Release(ctx context.Context, w types.Window) (*BatchResult, error) {
	if err := checkWindow(r.inv, w); err != nil {
		return nil, err
	}

	result := &BatchResult{Window: w}
	for _, unit := range r.inv.Units[w.Start:w.End] {
		dir := filepath.Dir(unit.Files[0])
		logger := log.WithUnit(unit.Name)
		logger.Info().Msgf("Applying %s", dir)

		if _, err := r.oc.Run(ctx, command.Options{}, "apply", "-f", dir); err != nil {
			return nil, fmt.Errorf("failed to apply unit %s in %s: %w", unit.Name, w, err)
		}
		result.Units = append(result.Units, unit.Name)
		result.Paths = append(result.Paths, dir)
	}
	return result, nil
}
