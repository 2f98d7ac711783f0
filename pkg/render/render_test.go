package render

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKustomizationFor(t *testing.T) {
	out, err := KustomizationFor([]string{"sno00001", "sno00002"})
	require.NoError(t, err)

	want := `---
apiVersion: kustomize.config.k8s.io/v1beta1
kind: Kustomization
generators:
- ./sno00001-siteconfig.yml
- ./sno00002-siteconfig.yml

resources:
- ./sno00001-resources.yml
- ./sno00002-resources.yml

`
	assert.Equal(t, want, out)
}

func TestKustomizationIdempotent(t *testing.T) {
	members := []string{"sno00004", "sno00005", "sno00006"}

	first, err := KustomizationFor(members)
	require.NoError(t, err)
	second, err := KustomizationFor(members)
	require.NoError(t, err)

	assert.Equal(t, []byte(first), []byte(second))
}

func TestKustomizationEmpty(t *testing.T) {
	out, err := KustomizationFor(nil)
	require.NoError(t, err)
	assert.Contains(t, out, "generators:\n\nresources:\n")
}

func TestConfigMapFor(t *testing.T) {
	out, err := ConfigMapFor("sno00042")
	require.NoError(t, err)
	assert.Contains(t, out, "network-1-ns: sno00042-sriov-ns")
}

func TestRenderErrors(t *testing.T) {
	_, err := Render("{{ .Missing", nil)
	assert.Error(t, err)

	_, err = Render("{{ .Missing }}", map[string]string{})
	assert.Error(t, err)
}
