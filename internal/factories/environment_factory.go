package factories

import (
	"fmt"
	"time"

	"github.com/previewops/ephemeral-env-platform/internal/environment"
	gh "github.com/previewops/ephemeral-env-platform/internal/github"
	"github.com/previewops/ephemeral-env-platform/internal/health"
	"github.com/previewops/ephemeral-env-platform/internal/kube"
	"github.com/previewops/ephemeral-env-platform/internal/manifests"
	"github.com/previewops/ephemeral-env-platform/internal/registry"
)

// EnvironmentOptions carries the per-invocation knobs the CLI collects.
type EnvironmentOptions struct {
	KubeconfigPath string
	TemplateDir    string
	SkipPreflight  bool
	SkipSmoke      bool
	RolloutTimeout time.Duration
	DeleteTimeout  time.Duration
}

type EnvironmentFactory struct {
	locator *SharedServicesLocator
}

func NewEnvironmentFactory(locator *SharedServicesLocator) *EnvironmentFactory {
	return &EnvironmentFactory{locator: locator}
}

func (f *EnvironmentFactory) NewEnvironmentService(opts EnvironmentOptions) (*environment.Service, error) {
	kubeClient, err := kube.NewClient(opts.KubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}

	renderer := manifests.NewRenderer(f.locator.PlaceholdersService, opts.TemplateDir)

	svc := environment.NewService(kubeClient, renderer)
	if !opts.SkipPreflight {
		svc = svc.WithPreflight(registry.NewPreflightService())
	}
	if !opts.SkipSmoke {
		svc = svc.WithSmoke(health.NewChecker())
	}
	if opts.RolloutTimeout > 0 {
		svc = svc.WithRolloutTimeout(opts.RolloutTimeout)
	}
	if opts.DeleteTimeout > 0 {
		svc = svc.WithDeleteTimeout(opts.DeleteTimeout)
	}

	return svc, nil
}

func (f *EnvironmentFactory) NewCommentService(token string) (*gh.CommentService, error) {
	client, err := gh.NewClientFactory(f.locator.GithubCredentialsStorage).NewClient(token)
	if err != nil {
		return nil, err
	}
	return gh.NewCommentService(client), nil
}
