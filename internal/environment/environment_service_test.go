package environment

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/previewops/ephemeral-env-platform/internal/config"
	"github.com/previewops/ephemeral-env-platform/internal/health"
	"github.com/previewops/ephemeral-env-platform/internal/manifests"
)

const webDeploymentDoc = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: web
spec:
  replicas: 1
`

const apiDeploymentDoc = `apiVersion: apps/v1
kind: Deployment
metadata:
  name: api
spec:
  replicas: 1
`

type fakeKube struct {
	mu sync.Mutex

	namespaces       map[string]bool
	appliedDocs      [][]string
	rolloutsWaited   []string
	deletedNamespace string

	applyErrFor   map[string]error
	rolloutErrFor map[string]error
	deleteErr     error
	existsErr     error
}

func newFakeKube() *fakeKube {
	return &fakeKube{namespaces: map[string]bool{}}
}

func (f *fakeKube) EnsureNamespace(ctx context.Context, name string, labels map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.namespaces[name] = true
	return nil
}

func (f *fakeKube) NamespaceExists(ctx context.Context, name string) (bool, error) {
	if f.existsErr != nil {
		return false, f.existsErr
	}
	return f.namespaces[name], nil
}

func (f *fakeKube) ApplyManifests(ctx context.Context, namespace string, docs []string) error {
	f.mu.Lock()
	f.appliedDocs = append(f.appliedDocs, docs)
	f.mu.Unlock()

	for key, err := range f.applyErrFor {
		for _, doc := range docs {
			if strings.Contains(doc, key) {
				return err
			}
		}
	}
	return nil
}

func (f *fakeKube) DeleteNamespace(ctx context.Context, name string, timeout time.Duration) error {
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deletedNamespace = name
	delete(f.namespaces, name)
	return nil
}

func (f *fakeKube) RolloutStatus(ctx context.Context, namespace, deployment string, timeout time.Duration) error {
	f.mu.Lock()
	f.rolloutsWaited = append(f.rolloutsWaited, deployment)
	f.mu.Unlock()
	if err, ok := f.rolloutErrFor[deployment]; ok {
		return err
	}
	return nil
}

type fakeRenderer struct {
	env *manifests.Environment
	err error
}

func (f *fakeRenderer) RenderEnvironment(cfg *config.Config, prNumber int, ingressHost string) (*manifests.Environment, error) {
	return f.env, f.err
}

type fakePreflight struct {
	missing map[string]error
	checked []string
	mu      sync.Mutex
}

func (f *fakePreflight) CheckImageExists(ctx context.Context, imageRef string) error {
	f.mu.Lock()
	f.checked = append(f.checked, imageRef)
	f.mu.Unlock()
	return f.missing[imageRef]
}

type fakeSmoke struct {
	results []health.Result
	probed  []manifests.Route
}

func (f *fakeSmoke) CheckRoutes(ctx context.Context, routes []manifests.Route) []health.Result {
	f.probed = routes
	return f.results
}

func testConfig() *config.Config {
	return &config.Config{Services: []config.ServiceConfig{
		{Name: "web", Image: "ghcr.io/acme/web:pr-42", Port: 3000},
		{Name: "api", Image: "ghcr.io/acme/api:pr-42", Port: 8080},
	}}
}

func testEnvironment() *manifests.Environment {
	return &manifests.Environment{
		PRNumber:  42,
		Namespace: "pr-42",
		Labels:    map[string]string{"app.kubernetes.io/managed-by": "ephemeralctl"},
		Routes: []manifests.Route{
			{Service: "web", PathPrefix: "/pr-42", URL: "http://preview.acme.dev/pr-42/"},
		},
		SharedDocs: []string{"apiVersion: traefik.io/v1alpha1\nkind: Middleware\nmetadata:\n  name: pr-42-stripprefix\n"},
		ServiceDocs: []manifests.ServiceDocs{
			{Service: "web", Image: "ghcr.io/acme/web:pr-42", Docs: []string{webDeploymentDoc}},
			{Service: "api", Image: "ghcr.io/acme/api:pr-42", Docs: []string{apiDeploymentDoc}},
		},
	}
}

func TestCreate(t *testing.T) {
	t.Run("applies shared docs, services, and waits for rollouts", func(t *testing.T) {
		r := require.New(t)
		kube := newFakeKube()
		smoke := &fakeSmoke{results: []health.Result{{Service: "web", Healthy: true, Status: 200}}}
		svc := NewService(kube, &fakeRenderer{env: testEnvironment()}).WithPreflight(&fakePreflight{}).WithSmoke(smoke)

		env, results, err := svc.Create(context.Background(), testConfig(), 42, "preview.acme.dev")
		r.NoError(err)
		r.Equal("pr-42", env.Namespace)
		r.True(kube.namespaces["pr-42"])
		r.Len(kube.appliedDocs, 3) // shared + two services
		r.ElementsMatch([]string{"web", "api"}, kube.rolloutsWaited)
		r.Len(smoke.probed, 1)
		r.Len(results, 1)
	})

	t.Run("preflights the rendered image references, not the raw config ones", func(t *testing.T) {
		r := require.New(t)
		kube := newFakeKube()
		preflight := &fakePreflight{}
		cfg := &config.Config{Services: []config.ServiceConfig{
			{Name: "web", Image: "ghcr.io/acme/web:pr-{{PR_NUMBER}}", Port: 3000},
			{Name: "api", Image: "ghcr.io/acme/api:pr-{{PR_NUMBER}}", Port: 8080},
		}}
		svc := NewService(kube, &fakeRenderer{env: testEnvironment()}).WithPreflight(preflight)

		_, _, err := svc.Create(context.Background(), cfg, 42, "preview.acme.dev")
		r.NoError(err)
		r.ElementsMatch([]string{"ghcr.io/acme/web:pr-42", "ghcr.io/acme/api:pr-42"}, preflight.checked)
	})

	t.Run("rejects missing images before touching the cluster", func(t *testing.T) {
		r := require.New(t)
		kube := newFakeKube()
		preflight := &fakePreflight{missing: map[string]error{
			"ghcr.io/acme/api:pr-42": errors.New("manifest unknown"),
		}}
		svc := NewService(kube, &fakeRenderer{env: testEnvironment()}).WithPreflight(preflight)

		_, _, err := svc.Create(context.Background(), testConfig(), 42, "preview.acme.dev")
		r.Error(err)
		r.ErrorContains(err, `service "api"`)
		r.Empty(kube.appliedDocs)
		r.False(kube.namespaces["pr-42"])
	})

	t.Run("nil preflight skips image checks", func(t *testing.T) {
		r := require.New(t)
		kube := newFakeKube()
		svc := NewService(kube, &fakeRenderer{env: testEnvironment()})

		_, results, err := svc.Create(context.Background(), testConfig(), 42, "preview.acme.dev")
		r.NoError(err)
		r.Nil(results)
	})

	t.Run("apply failure names the broken service", func(t *testing.T) {
		r := require.New(t)
		kube := newFakeKube()
		kube.applyErrFor = map[string]error{"name: api": errors.New("denied")}
		svc := NewService(kube, &fakeRenderer{env: testEnvironment()})

		_, _, err := svc.Create(context.Background(), testConfig(), 42, "preview.acme.dev")
		r.Error(err)
		r.ErrorContains(err, `service "api"`)
		r.NotContains(err.Error(), `service "web"`)
	})

	t.Run("rollout failure names service and deployment", func(t *testing.T) {
		r := require.New(t)
		kube := newFakeKube()
		kube.rolloutErrFor = map[string]error{"web": errors.New("deadline exceeded")}
		svc := NewService(kube, &fakeRenderer{env: testEnvironment()})

		_, _, err := svc.Create(context.Background(), testConfig(), 42, "preview.acme.dev")
		r.Error(err)
		r.ErrorContains(err, `service "web"`)
		r.ErrorContains(err, `deployment "web"`)
	})

	t.Run("render failure aborts", func(t *testing.T) {
		r := require.New(t)
		kube := newFakeKube()
		svc := NewService(kube, &fakeRenderer{err: errors.New("unresolved placeholder")})

		_, _, err := svc.Create(context.Background(), testConfig(), 42, "preview.acme.dev")
		r.Error(err)
		r.Empty(kube.appliedDocs)
	})
}

func TestDelete(t *testing.T) {
	t.Run("deletes an existing namespace", func(t *testing.T) {
		r := require.New(t)
		kube := newFakeKube()
		kube.namespaces["pr-42"] = true
		svc := NewService(kube, &fakeRenderer{})

		existed, err := svc.Delete(context.Background(), 42)
		r.NoError(err)
		r.True(existed)
		r.Equal("pr-42", kube.deletedNamespace)
	})

	t.Run("is a no-op when the namespace is gone", func(t *testing.T) {
		r := require.New(t)
		kube := newFakeKube()
		svc := NewService(kube, &fakeRenderer{})

		existed, err := svc.Delete(context.Background(), 42)
		r.NoError(err)
		r.False(existed)
		r.Empty(kube.deletedNamespace)
	})

	t.Run("propagates delete failures", func(t *testing.T) {
		r := require.New(t)
		kube := newFakeKube()
		kube.namespaces["pr-42"] = true
		kube.deleteErr = errors.New("namespace stuck terminating")
		svc := NewService(kube, &fakeRenderer{})

		existed, err := svc.Delete(context.Background(), 42)
		r.Error(err)
		r.True(existed)
	})
}

func TestSmokeRoutes(t *testing.T) {
	r := require.New(t)

	cfg := &config.Config{Services: []config.ServiceConfig{
		{Name: "web", Image: "img", Port: 3000, Extras: map[string]any{
			"smoke": map[string]any{"path": "/healthz"},
		}},
		{Name: "api", Image: "img", Port: 8080},
	}}
	routes := []manifests.Route{
		{Service: "web", URL: "http://h/pr-42/"},
		{Service: "api", URL: "http://h/pr-42/api"},
	}

	probed := smokeRoutes(cfg, routes)
	r.Equal("http://h/pr-42/healthz", probed[0].URL)
	r.Equal("http://h/pr-42/api", probed[1].URL)
}

func TestDeploymentNames(t *testing.T) {
	r := require.New(t)

	docs := []string{
		webDeploymentDoc,
		"apiVersion: v1\nkind: Service\nmetadata:\n  name: web\n",
		"not: [valid",
	}
	r.Equal([]string{"web"}, deploymentNames(docs))
}
