package fleet

import (
	"context"
	"fmt"
	"strings"

	"github.com/blang/semver"
	"github.com/cuemby/fleetload/pkg/command"
	"github.com/cuemby/fleetload/pkg/log"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const talmCSVPrefix = "topology-aware-lifecycle-manager.v"

// DetectTALMMinor returns the minor version of the installed lifecycle
// manager operator. When it cannot be found the fallback version is used.
func DetectTALMMinor(ctx context.Context, oc *command.Tool, fallback string) (uint64, error) {
	logger := log.WithComponent("fleet")

	fallbackVersion, err := semver.ParseTolerant(fallback)
	if err != nil {
		return 0, fmt.Errorf("invalid fallback TALM version %q: %w", fallback, err)
	}

	res, err := oc.Run(ctx, command.Options{Quiet: true}, "get", "csv", "-n", "openshift-operators", "-o", "json")
	if err != nil {
		logger.Warn().Err(err).Str("fallback", fallback).Msg("Unable to list ClusterServiceVersions, using fallback TALM version")
		return fallbackVersion.Minor, nil
	}

	items, err := parseList(res.Output)
	if err != nil {
		logger.Warn().Err(err).Str("fallback", fallback).Msg("Unable to decode ClusterServiceVersions, using fallback TALM version")
		return fallbackVersion.Minor, nil
	}

	for i := range items {
		if !strings.HasPrefix(items[i].GetName(), talmCSVPrefix) {
			continue
		}
		raw, found, _ := unstructured.NestedString(items[i].Object, "spec", "version")
		if !found {
			raw = strings.TrimPrefix(items[i].GetName(), talmCSVPrefix)
		}
		v, err := semver.ParseTolerant(raw)
		if err != nil {
			logger.Warn().Err(err).Str("version", raw).Msg("Unparseable TALM version, using fallback")
			return fallbackVersion.Minor, nil
		}
		logger.Info().Str("version", v.String()).Msg("Detected TALM version")
		return v.Minor, nil
	}

	logger.Info().Str("fallback", fallback).Msg("TALM not detected, using fallback version")
	return fallbackVersion.Minor, nil
}
