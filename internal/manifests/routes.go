package manifests

import (
	"fmt"
	"strings"

	"github.com/previewops/ephemeral-env-platform/internal/config"
)

const ManagedByLabel = "ephemeralctl"

// NamespaceForPR returns the namespace owning a PR's preview environment.
// The pr-<number> shape is a published contract: the Action's workflow
// examples and the posted comment URLs all assume it.
func NamespaceForPR(prNumber int) string {
	return fmt.Sprintf("pr-%d", prNumber)
}

// Route is one published HTTP entry point of a preview environment.
type Route struct {
	Service    string
	PathPrefix string
	URL        string
}

// RouteForService computes where an ingress-enabled service is reachable.
// A service mounted at "/" owns http://<host>/pr-<n>/; a service mounted at
// "/api" is reachable at http://<host>/pr-<n>/api.
func RouteForService(ingressHost string, prNumber int, svc config.ServiceConfig) Route {
	base := "/" + NamespaceForPR(prNumber)

	prefix := base
	if p := strings.TrimSuffix(svc.PathPrefix(), "/"); p != "" {
		prefix = base + p
	}

	url := fmt.Sprintf("http://%s%s", ingressHost, prefix)
	if prefix == base {
		url += "/"
	}

	return Route{
		Service:    svc.Name,
		PathPrefix: prefix,
		URL:        url,
	}
}

// EnvironmentRoutes lists the routes of every ingress-enabled service.
func EnvironmentRoutes(ingressHost string, prNumber int, cfg *config.Config) []Route {
	var routes []Route
	for _, svc := range cfg.Services {
		if !svc.Ingress.Enabled {
			continue
		}
		routes = append(routes, RouteForService(ingressHost, prNumber, svc))
	}
	return routes
}
