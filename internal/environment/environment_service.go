package environment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"
	"gopkg.in/yaml.v3"

	"github.com/previewops/ephemeral-env-platform/internal/config"
	"github.com/previewops/ephemeral-env-platform/internal/health"
	"github.com/previewops/ephemeral-env-platform/internal/manifests"
)

const (
	DefaultRolloutTimeout = 5 * time.Minute
	DefaultDeleteTimeout  = 2 * time.Minute

	maxConcurrentApplies = 4
)

type kubeAPI interface {
	EnsureNamespace(ctx context.Context, name string, labels map[string]string) error
	NamespaceExists(ctx context.Context, name string) (bool, error)
	ApplyManifests(ctx context.Context, namespace string, docs []string) error
	DeleteNamespace(ctx context.Context, name string, timeout time.Duration) error
	RolloutStatus(ctx context.Context, namespace, deployment string, timeout time.Duration) error
}

type rendererAPI interface {
	RenderEnvironment(cfg *config.Config, prNumber int, ingressHost string) (*manifests.Environment, error)
}

type preflightAPI interface {
	CheckImageExists(ctx context.Context, imageRef string) error
}

type smokeAPI interface {
	CheckRoutes(ctx context.Context, routes []manifests.Route) []health.Result
}

// Service drives the lifecycle of one preview environment: render, apply,
// wait, probe on create; tear down the namespace on delete.
type Service struct {
	kube      kubeAPI
	renderer  rendererAPI
	preflight preflightAPI
	smoke     smokeAPI

	rolloutTimeout time.Duration
	deleteTimeout  time.Duration
}

// NewService wires an orchestrator. Image preflight and smoke probing are
// opt-in through WithPreflight and WithSmoke.
func NewService(kube kubeAPI, renderer rendererAPI) *Service {
	return &Service{
		kube:           kube,
		renderer:       renderer,
		rolloutTimeout: DefaultRolloutTimeout,
		deleteTimeout:  DefaultDeleteTimeout,
	}
}

func (s *Service) WithPreflight(preflight preflightAPI) *Service {
	s.preflight = preflight
	return s
}

func (s *Service) WithSmoke(smoke smokeAPI) *Service {
	s.smoke = smoke
	return s
}

func (s *Service) WithRolloutTimeout(timeout time.Duration) *Service {
	s.rolloutTimeout = timeout
	return s
}

func (s *Service) WithDeleteTimeout(timeout time.Duration) *Service {
	s.deleteTimeout = timeout
	return s
}

// Create builds or rebuilds the PR's preview environment. Every step uses
// apply semantics, so re-running for the same PR converges instead of
// failing. Smoke results are advisory and never fail the create.
func (s *Service) Create(ctx context.Context, cfg *config.Config, prNumber int, ingressHost string) (*manifests.Environment, []health.Result, error) {
	env, err := s.renderer.RenderEnvironment(cfg, prNumber, ingressHost)
	if err != nil {
		return nil, nil, err
	}

	// Preflight the rendered references: the config's image fields may carry
	// placeholders like a PR-number tag that only exist after rendering.
	if err := s.checkImages(ctx, env); err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("namespace", env.Namespace).
		Int("services", len(env.ServiceDocs)).
		Msg("creating preview environment")

	if err := s.kube.EnsureNamespace(ctx, env.Namespace, env.Labels); err != nil {
		return nil, nil, fmt.Errorf("ensuring namespace %s: %w", env.Namespace, err)
	}

	if len(env.SharedDocs) > 0 {
		if err := s.kube.ApplyManifests(ctx, env.Namespace, env.SharedDocs); err != nil {
			return nil, nil, fmt.Errorf("applying shared manifests: %w", err)
		}
	}

	if err := s.applyServices(ctx, env); err != nil {
		return env, nil, err
	}

	if err := s.waitForRollouts(ctx, env); err != nil {
		return env, nil, err
	}

	var results []health.Result
	if s.smoke != nil && len(env.Routes) > 0 {
		results = s.smoke.CheckRoutes(ctx, smokeRoutes(cfg, env.Routes))
		for _, result := range results {
			if !result.Healthy {
				log.Warn().Str("service", result.Service).Msg(result.String())
			}
		}
	}

	return env, results, nil
}

// Delete removes the PR's namespace and everything in it. Deleting an
// environment that never existed, or was already cleaned up, succeeds and
// reports existed=false.
func (s *Service) Delete(ctx context.Context, prNumber int) (existed bool, err error) {
	namespace := manifests.NamespaceForPR(prNumber)

	existed, err = s.kube.NamespaceExists(ctx, namespace)
	if err != nil {
		return false, fmt.Errorf("checking namespace %s: %w", namespace, err)
	}
	if !existed {
		log.Info().Str("namespace", namespace).Msg("namespace already gone, nothing to delete")
		return false, nil
	}

	log.Info().Str("namespace", namespace).Msg("deleting preview environment")
	if err := s.kube.DeleteNamespace(ctx, namespace, s.deleteTimeout); err != nil {
		return true, err
	}
	return true, nil
}

func (s *Service) checkImages(ctx context.Context, env *manifests.Environment) error {
	if s.preflight == nil {
		return nil
	}

	p := pool.New().WithErrors().WithMaxGoroutines(maxConcurrentApplies)
	for _, docs := range env.ServiceDocs {
		p.Go(func() error {
			log.Debug().Str("service", docs.Service).Str("image", docs.Image).Msg("checking image exists")
			if err := s.preflight.CheckImageExists(ctx, docs.Image); err != nil {
				return fmt.Errorf("image for service %q: %w", docs.Service, err)
			}
			return nil
		})
	}
	return p.Wait()
}

// applyServices applies every service's manifests, continuing past failures
// so one broken service doesn't hide errors in the others.
func (s *Service) applyServices(ctx context.Context, env *manifests.Environment) error {
	errs := make([]error, len(env.ServiceDocs))

	p := pool.New().WithMaxGoroutines(maxConcurrentApplies)
	for i, docs := range env.ServiceDocs {
		p.Go(func() {
			if err := s.kube.ApplyManifests(ctx, env.Namespace, docs.Docs); err != nil {
				errs[i] = fmt.Errorf("applying manifests for service %q: %w", docs.Service, err)
			}
		})
	}
	p.Wait()

	return errors.Join(errs...)
}

// waitForRollouts awaits every deployment's rollout in parallel, so each wait
// runs against the full timeout budget instead of whatever earlier waits left.
func (s *Service) waitForRollouts(ctx context.Context, env *manifests.Environment) error {
	type rollout struct {
		service    string
		deployment string
	}

	var rollouts []rollout
	for _, docs := range env.ServiceDocs {
		for _, deployment := range deploymentNames(docs.Docs) {
			rollouts = append(rollouts, rollout{service: docs.Service, deployment: deployment})
		}
	}

	errs := make([]error, len(rollouts))

	p := pool.New().WithMaxGoroutines(maxConcurrentApplies)
	for i, ro := range rollouts {
		p.Go(func() {
			log.Debug().
				Str("namespace", env.Namespace).
				Str("deployment", ro.deployment).
				Msg("waiting for rollout")
			if err := s.kube.RolloutStatus(ctx, env.Namespace, ro.deployment, s.rolloutTimeout); err != nil {
				errs[i] = fmt.Errorf("rollout of service %q deployment %q: %w", ro.service, ro.deployment, err)
			}
		})
	}
	p.Wait()

	return errors.Join(errs...)
}

const smokePartKey = "smoke"

// smokeRoutes applies per-service smoke overrides from the config's optional
// "smoke" sections, so a service can point the probe at its health endpoint.
func smokeRoutes(cfg *config.Config, routes []manifests.Route) []manifests.Route {
	out := make([]manifests.Route, 0, len(routes))
	for _, route := range routes {
		if cfg.HasServicePart(route.Service, smokePartKey) {
			var part health.Config
			if err := cfg.LoadVariableServiceConfigPart(&part, route.Service, smokePartKey); err != nil {
				log.Warn().Err(err).Str("service", route.Service).Msg("invalid smoke config, probing the route root")
			} else if part.Path != "" {
				route.URL = strings.TrimSuffix(route.URL, "/") + "/" + strings.TrimPrefix(part.Path, "/")
			}
		}
		out = append(out, route)
	}
	return out
}

// deploymentNames extracts Deployment names from rendered documents so the
// orchestrator knows what to wait on, template overrides included.
func deploymentNames(docs []string) []string {
	var names []string
	for _, doc := range docs {
		var probe struct {
			Kind     string `yaml:"kind"`
			Metadata struct {
				Name string `yaml:"name"`
			} `yaml:"metadata"`
		}
		if err := yaml.Unmarshal([]byte(doc), &probe); err != nil {
			continue
		}
		if probe.Kind == "Deployment" && probe.Metadata.Name != "" {
			names = append(names, probe.Metadata.Name)
		}
	}
	return names
}
