package render

import (
	"bytes"
	"fmt"
	"text/template"
)

// Kustomization lists the siteconfig generators and resources of a shard
const Kustomization = `---
apiVersion: kustomize.config.k8s.io/v1beta1
kind: Kustomization
generators:
{{- range .Units }}
- ./{{ . }}-siteconfig.yml
{{- end }}

resources:
{{- range .Units }}
- ./{{ . }}-resources.yml
{{- end }}

`

// Namespace is the static extra manifest written for each unit with client templates
const Namespace = `---
apiVersion: v1
kind: Namespace
metadata:
  name: test-config
`

// TestConfigMap is the per-unit extra manifest rendered with client templates
const TestConfigMap = `---
apiVersion: v1
kind: ConfigMap
metadata:
  name: test-cm
  namespace: test-config
data:
  key1: "true"
  network-1-vlan: "123"
  pfname1: "ens1f1"
  network-1-ns: {{ .ClusterName }}-sriov-ns

`

// Render executes templateText with vars. It has no side effects and the same
// inputs always produce the same output.
func Render(templateText string, vars interface{}) (string, error) {
	tmpl, err := template.New("manifest").Option("missingkey=error").Parse(templateText)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to render template: %w", err)
	}
	return buf.String(), nil
}

// KustomizationFor renders the membership manifest of a shard
func KustomizationFor(units []string) (string, error) {
	return Render(Kustomization, struct{ Units []string }{Units: units})
}

// ConfigMapFor renders the test ConfigMap of a unit
func ConfigMapFor(clusterName string) (string, error) {
	return Render(TestConfigMap, map[string]string{"ClusterName": clusterName})
}
