package manifests

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/previewops/ephemeral-env-platform/internal/config"
	"github.com/previewops/ephemeral-env-platform/internal/lib"
	"github.com/previewops/ephemeral-env-platform/internal/placeholders"
)

func testConfig(t *testing.T, raw string) *config.Config {
	t.Helper()
	cfg, err := config.NewConfigFromReader(strings.NewReader(raw))
	require.NoError(t, err)
	return cfg
}

func newTestRenderer(templateDir string) *Renderer {
	return NewRenderer(placeholders.NewService(nil), templateDir)
}

func TestRenderEnvironmentBuiltins(t *testing.T) {
	r := require.New(t)

	cfg := testConfig(t, `
services:
  - name: web
    image: ghcr.io/acme/web:pr-{{PR_NUMBER}}
    port: 3000
    ingress:
      enabled: true
      path: /
    env:
      API_URL: http://api:8080
      PR_REF: "{{NAMESPACE}}"
  - name: worker
    image: ghcr.io/acme/worker:pr-{{PR_NUMBER}}
    port: 9000
`)

	env, err := newTestRenderer("").RenderEnvironment(cfg, 42, "preview.acme.dev")
	r.NoError(err)

	r.Equal("pr-42", env.Namespace)
	r.Equal("42", env.Labels["ephemeral-env/pr"])
	r.Len(env.Routes, 1)
	r.Equal("http://preview.acme.dev/pr-42/", env.Routes[0].URL)

	// One strip-prefix middleware shared by the environment.
	r.Len(env.SharedDocs, 1)
	r.Contains(env.SharedDocs[0], "kind: Middleware")
	r.Contains(env.SharedDocs[0], "/pr-42")

	r.Len(env.ServiceDocs, 2)

	web := env.ServiceDocs[0]
	r.Equal("web", web.Service)
	r.Equal("ghcr.io/acme/web:pr-42", web.Image)
	r.Len(web.Docs, 3)

	var deployment Deployment
	r.NoError(yaml.Unmarshal([]byte(web.Docs[0]), &deployment))
	r.Equal("Deployment", deployment.Kind)
	r.Equal("pr-42", deployment.Metadata.Namespace)
	r.Equal("ghcr.io/acme/web:pr-42", deployment.Spec.Template.Spec.Containers[0].Image)

	// Env vars are emitted sorted by name with placeholders resolved.
	containerEnv := deployment.Spec.Template.Spec.Containers[0].Env
	r.Equal([]EnvVar{
		{Name: "API_URL", Value: "http://api:8080"},
		{Name: "PR_REF", Value: "pr-42"},
	}, containerEnv)

	var ingressRoute IngressRoute
	r.NoError(yaml.Unmarshal([]byte(web.Docs[2]), &ingressRoute))
	r.Equal("IngressRoute", ingressRoute.Kind)
	r.Equal("PathPrefix(`/pr-42`)", ingressRoute.Spec.Routes[0].Match)
	r.Equal("pr-42-stripprefix", ingressRoute.Spec.Routes[0].Middlewares[0].Name)

	// No ingress for the worker: Deployment + Service only.
	worker := env.ServiceDocs[1]
	r.Len(worker.Docs, 2)
	for _, doc := range worker.Docs {
		r.NotContains(doc, "IngressRoute")
	}
}

func TestRenderEnvironmentTemplateOverrides(t *testing.T) {
	r := require.New(t)

	dir := t.TempDir()
	r.NoError(os.WriteFile(filepath.Join(dir, "all.yaml"), []byte(`
apiVersion: apps/v1
kind: Deployment
metadata:
  name: {{SERVICE_NAME}}
  namespace: {{NAMESPACE}}
spec:
  replicas: {{SERVICE_REPLICAS}}
---
apiVersion: v1
kind: Service
metadata:
  name: {{SERVICE_NAME}}
  namespace: {{NAMESPACE}}
`), 0o644))
	r.NoError(os.WriteFile(filepath.Join(dir, "scratch.yaml"), []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: scratch\n"), 0o644))
	r.NoError(os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte("scratch.yaml\n"), 0o644))

	cfg := testConfig(t, `
services:
  - name: api
    image: acme/api:pr-{{PR_NUMBER}}
    port: 8080
`)

	env, err := newTestRenderer(dir).RenderEnvironment(cfg, 7, "preview.acme.dev")
	r.NoError(err)
	r.Len(env.ServiceDocs, 1)
	r.Equal("acme/api:pr-7", env.ServiceDocs[0].Image)

	docs := env.ServiceDocs[0].Docs
	r.Len(docs, 2)
	r.Contains(docs[0], "name: api")
	r.Contains(docs[0], "namespace: pr-7")
	r.Contains(docs[0], "replicas: 1")

	for _, doc := range docs {
		r.NotContains(doc, "scratch")
		r.NotContains(doc, "{{")
	}
}

func TestRenderEnvironmentTemplatePatterns(t *testing.T) {
	r := require.New(t)

	dir := t.TempDir()
	r.NoError(os.MkdirAll(filepath.Join(dir, "api"), 0o755))
	r.NoError(os.WriteFile(filepath.Join(dir, "api", "deploy.yaml"), []byte(`
apiVersion: apps/v1
kind: Deployment
metadata:
  name: {{SERVICE_NAME}}
`), 0o644))
	r.NoError(os.WriteFile(filepath.Join(dir, "unrelated.yaml"), []byte(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: unrelated
`), 0o644))

	cfg := testConfig(t, `
services:
  - name: api
    image: acme/api:1
    port: 8080
    templates:
      - "api/**/*.yaml"
`)

	env, err := newTestRenderer(dir).RenderEnvironment(cfg, 3, "preview.acme.dev")
	r.NoError(err)
	r.Len(env.ServiceDocs[0].Docs, 1)
	r.Contains(env.ServiceDocs[0].Docs[0], "name: api")
}

func TestRenderEnvironmentErrors(t *testing.T) {
	t.Run("unknown placeholder in image", func(t *testing.T) {
		r := require.New(t)
		cfg := testConfig(t, `
services:
  - name: web
    image: acme/web:{{BUILD_ID}}
    port: 80
`)
		_, err := newTestRenderer("").RenderEnvironment(cfg, 1, "h")
		r.Error(err)
		r.True(errors.Is(err, lib.BadUserInputError))
		r.ErrorContains(err, "BUILD_ID")
	})

	t.Run("template document without kind", func(t *testing.T) {
		r := require.New(t)
		dir := t.TempDir()
		r.NoError(os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("metadata:\n  name: x\n"), 0o644))

		cfg := testConfig(t, `
services:
  - name: web
    image: acme/web:1
    port: 80
`)
		_, err := newTestRenderer(dir).RenderEnvironment(cfg, 1, "h")
		r.Error(err)
		r.ErrorContains(err, "apiVersion or kind")
	})

	t.Run("template with malformed placeholder braces", func(t *testing.T) {
		r := require.New(t)
		dir := t.TempDir()
		r.NoError(os.WriteFile(filepath.Join(dir, "bad.yaml"), []byte("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: '{{}}'\n"), 0o644))

		cfg := testConfig(t, `
services:
  - name: web
    image: acme/web:1
    port: 80
`)
		_, err := newTestRenderer(dir).RenderEnvironment(cfg, 1, "h")
		r.Error(err)
		r.ErrorContains(err, "unresolved placeholders")
	})
}
