package deploy

import (
	"context"
	"fmt"

	"github.com/cuemby/fleetload/pkg/command"
	"github.com/cuemby/fleetload/pkg/git"
	"github.com/cuemby/fleetload/pkg/inventory"
	"github.com/cuemby/fleetload/pkg/types"
)

// Releaser makes a window of units live on the fleet
type Releaser interface {
	Release(ctx context.Context, w types.Window) (*BatchResult, error)
}

// ShardRender records one render of a shard's membership manifest
type ShardRender struct {
	Shard    int
	Location string
	Members  []string
	// Boundary is true when the render happened because the batch moved on
	// to the next shard, false for the end-of-batch render
	Boundary bool
}

// BatchResult describes what a release changed
type BatchResult struct {
	Window  types.Window
	Units   []string
	Paths   []string // Files staged for the batch commit, in order
	Renders []ShardRender
}

// Options configures a releaser
type Options struct {
	// ClientTemplates adds per-unit extra manifests (ZTP only)
	ClientTemplates bool

	// DryRun renders and logs without touching the working copy
	DryRun bool
}

// NewReleaser returns the releaser matching the inventory's method. ztp needs
// repo, manifests needs oc.
func NewReleaser(inv *inventory.Inventory, repo *git.Repo, oc *command.Tool, opts Options) (Releaser, error) {
	switch inv.Method {
	case types.MethodZTP:
		if repo == nil {
			return nil, fmt.Errorf("ztp releases require a git working copy")
		}
		return NewZTPReleaser(inv, repo, opts), nil
	case types.MethodManifests:
		if oc == nil {
			return nil, fmt.Errorf("manifest releases require a control-plane command")
		}
		return NewManifestReleaser(inv, oc), nil
	default:
		return nil, fmt.Errorf("unknown release method %q", inv.Method)
	}
}

func checkWindow(inv *inventory.Inventory, w types.Window) error {
	if w.Start < 0 || w.End > len(inv.Units) || w.Start >= w.End {
		return fmt.Errorf("invalid window %s for %d units", w, len(inv.Units))
	}
	return nil
}
