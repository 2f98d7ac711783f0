/*
Package deploy implements the release strategies that make a batch of units
live on the fleet.

Two releasers satisfy the Releaser interface:

  - ZTPReleaser materializes units into GitOps shards. Each unit maps onto
    shard floor(index / capacity). Its siteconfig and resources files are
    copied into the shard directory and the shard's kustomization.yaml is
    re-rendered with the full member list. The batch is staged, committed
    once and pushed.
  - ManifestReleaser runs "oc apply -f" for each unit's manifest directory.

# Shard rendering

A batch can span several shards. The materializer renders a shard when the
batch moves past it (a boundary render) and always renders the last shard it
touched once the batch is exhausted:

	units:   0  1  2 | 3  4        capacity 3, batch [2, 4)
	shards:  ztp-00001 | ztp-00002
	renders:         ^ boundary    ^ final

Shard membership only grows during a run, so a render never lists fewer
members than the previous render of the same shard.

# Dry run

In dry-run mode nothing is written to the working copy. Paths and renders are
still reported and git commands are logged by the dry-run executor.
*/
package deploy
