package deploy

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/fleetload/pkg/git"
	"github.com/cuemby/fleetload/pkg/inventory"
	"github.com/cuemby/fleetload/pkg/log"
	"github.com/cuemby/fleetload/pkg/metrics"
	"github.com/cuemby/fleetload/pkg/render"
	"github.com/cuemby/fleetload/pkg/types"
	"github.com/rs/zerolog"
)

const (
	kustomizationFile = "kustomization.yaml"
	extraManifestsDir = "extra-manifests"
)

// ZTPReleaser materializes units into GitOps shards and commits each batch
type ZTPReleaser struct {
	inv    *inventory.Inventory
	repo   *git.Repo
	opts   Options
	logger zerolog.Logger
}

// NewZTPReleaser creates a shard materializer. Shard membership lives in inv
// and only grows across releases.
func NewZTPReleaser(inv *inventory.Inventory, repo *git.Repo, opts Options) *ZTPReleaser {
	return &ZTPReleaser{
		inv:    inv,
		repo:   repo,
		opts:   opts,
		logger: log.WithComponent("materializer"),
	}
}

// Release assigns the window's units to shards, copies their artifacts,
// renders the membership manifests and commits everything as one change.
func (r *ZTPReleaser) Release(ctx context.Context, w types.Window) (*BatchResult, error) {
	if err := checkWindow(r.inv, w); err != nil {
		return nil, err
	}

	result := &BatchResult{Window: w}

	active, err := r.inv.ShardFor(w.Start)
	if err != nil {
		return nil, err
	}

	for _, unit := range r.inv.Units[w.Start:w.End] {
		shard, err := r.inv.ShardFor(unit.Index)
		if err != nil {
			return nil, err
		}

		// Moving on to the next shard: the previous one is full for this batch
		if shard.Index > active.Index {
			if err := r.renderShard(active, true, result); err != nil {
				return nil, err
			}
			active = shard
		}

		shard.Members = append(shard.Members, unit.Name)
		result.Units = append(result.Units, unit.Name)
		r.logger.Debug().Str("shard", shard.Location).Strs("members", shard.Members).Msg("Assigned unit")

		if err := r.copyArtifacts(unit, shard, result); err != nil {
			return nil, err
		}

		if r.opts.ClientTemplates {
			if err := r.writeClientTemplates(unit, shard, result); err != nil {
				return nil, err
			}
		}
	}

	// Always render the shard last touched, the batch may have ended mid-shard
	if err := r.renderShard(active, false, result); err != nil {
		return nil, err
	}

	if err := r.commit(ctx, w, result.Paths); err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", w, err)
	}
	return result, nil
}

func (r *ZTPReleaser) renderShard(shard *types.Shard, boundary bool, result *BatchResult) error {
	path := filepath.Join(shard.Location, kustomizationFile)
	r.logger.Info().Bool("boundary", boundary).Msgf("Rendering %s", path)

	out, err := render.KustomizationFor(shard.Members)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", path, err)
	}
	if !r.opts.DryRun {
		if err := os.WriteFile(path, []byte(out), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}

	kind := "final"
	if boundary {
		kind = "boundary"
	}
	metrics.ShardRenders.WithLabelValues(kind).Inc()

	result.Paths = append(result.Paths, path)
	result.Renders = append(result.Renders, ShardRender{
		Shard:    shard.Index,
		Location: shard.Location,
		Members:  append([]string(nil), shard.Members...),
		Boundary: boundary,
	})
	return nil
}

func (r *ZTPReleaser) copyArtifacts(unit types.Unit, shard *types.Shard, result *BatchResult) error {
	for _, src := range unit.Files {
		dst := filepath.Join(shard.Location, filepath.Base(src))
		r.logger.Debug().Str("unit", unit.Name).Msgf("Copying %s to %s", src, dst)
		if !r.opts.DryRun {
			if err := copyFile(src, dst); err != nil {
				return fmt.Errorf("failed to copy %s for unit %s: %w", src, unit.Name, err)
			}
		}
		result.Paths = append(result.Paths, dst)
	}
	return nil
}

func (r *ZTPReleaser) writeClientTemplates(unit types.Unit, shard *types.Shard, result *BatchResult) error {
	dir := filepath.Join(shard.Location, extraManifestsDir, unit.Name)
	nsPath := filepath.Join(dir, "01-ns.yaml")
	cmPath := filepath.Join(dir, "test-cm.yaml")

	cm, err := render.ConfigMapFor(unit.Name)
	if err != nil {
		return fmt.Errorf("failed to render %s: %w", cmPath, err)
	}

	r.logger.Info().Msgf("Writing %s", nsPath)
	r.logger.Info().Msgf("Rendering %s", cmPath)
	if !r.opts.DryRun {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
		if err := os.WriteFile(nsPath, []byte(render.Namespace), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", nsPath, err)
		}
		if err := os.WriteFile(cmPath, []byte(cm), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", cmPath, err)
		}
	}
	result.Paths = append(result.Paths, nsPath, cmPath)
	return nil
}

func (r *ZTPReleaser) commit(ctx context.Context, w types.Window, paths []string) error {
	for _, p := range paths {
		if err := r.repo.Add(ctx, p); err != nil {
			return err
		}
	}
	r.logger.Info().Msgf("Added %d files in git", len(paths))

	if err := r.repo.Commit(ctx, fmt.Sprintf("Deploying sites %d to %d", w.Start, w.End)); err != nil {
		return err
	}
	return r.repo.Push(ctx)
}

// copyFile copies src to dst keeping the source permissions
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
