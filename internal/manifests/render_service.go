package manifests

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"gopkg.in/yaml.v3"

	"github.com/previewops/ephemeral-env-platform/internal/config"
	"github.com/previewops/ephemeral-env-platform/internal/lib"
	"github.com/previewops/ephemeral-env-platform/internal/placeholders"
)

const (
	// DefaultTemplateDir mirrors the Action's template-dir input default.
	DefaultTemplateDir = "automation/templates/"

	// IgnoreFileName excludes template-dir files from discovery, gitignore
	// syntax.
	IgnoreFileName = ".previewignore"

	traefikAPIVersion = "traefik.io/v1alpha1"
	entryPoint        = "web"
)

var defaultTemplatePatterns = []string{"**/*.yaml", "**/*.yml"}

// ServiceDocs holds the rendered manifests of one configured service. Image
// is the service's image reference with all placeholders resolved.
type ServiceDocs struct {
	Service string
	Image   string
	Docs    []string
}

// Environment is the fully rendered manifest set for one PR.
type Environment struct {
	PRNumber    int
	Namespace   string
	Labels      map[string]string
	Routes      []Route
	SharedDocs  []string
	ServiceDocs []ServiceDocs
}

// Renderer turns an ephemeral config plus optional template-dir overrides
// into applyable manifest documents.
type Renderer struct {
	placeholders *placeholders.Service
	templateDir  string
}

func NewRenderer(placeholdersSvc *placeholders.Service, templateDir string) *Renderer {
	return &Renderer{
		placeholders: placeholdersSvc,
		templateDir:  templateDir,
	}
}

// RenderEnvironment renders every manifest for the PR's preview environment.
// Services with matching template-dir files use those; everything else gets
// the built-in Deployment/Service/IngressRoute set.
func (r *Renderer) RenderEnvironment(cfg *config.Config, prNumber int, ingressHost string) (*Environment, error) {
	namespace := NamespaceForPR(prNumber)

	envVars := map[string]string{
		"PR_NUMBER":    strconv.Itoa(prNumber),
		"NAMESPACE":    namespace,
		"INGRESS_HOST": ingressHost,
	}

	env := &Environment{
		PRNumber:  prNumber,
		Namespace: namespace,
		Labels: map[string]string{
			"app.kubernetes.io/managed-by": ManagedByLabel,
			"ephemeral-env/pr":             strconv.Itoa(prNumber),
		},
		Routes: EnvironmentRoutes(ingressHost, prNumber, cfg),
	}

	if len(env.Routes) > 0 {
		doc, err := marshalDoc(stripPrefixMiddleware(namespace))
		if err != nil {
			return nil, fmt.Errorf("rendering strip-prefix middleware: %w", err)
		}
		env.SharedDocs = append(env.SharedDocs, doc)
	}

	for _, svc := range cfg.Services {
		docs, image, err := r.renderService(svc, prNumber, namespace, ingressHost, envVars)
		if err != nil {
			return nil, fmt.Errorf("rendering service %q: %w", svc.Name, err)
		}
		env.ServiceDocs = append(env.ServiceDocs, ServiceDocs{Service: svc.Name, Image: image, Docs: docs})
	}

	return env, nil
}

func (r *Renderer) renderService(svc config.ServiceConfig, prNumber int, namespace, ingressHost string, envVars map[string]string) ([]string, string, error) {
	envResolvers := placeholders.StaticResolvers(envVars)

	image, err := r.placeholders.ResolvePlaceholders(svc.Image, envResolvers)
	if err != nil {
		return nil, "", fmt.Errorf("resolving image reference: %w", err)
	}

	containerEnv, err := r.resolveContainerEnv(svc.Env, envResolvers)
	if err != nil {
		return nil, "", err
	}

	route := RouteForService(ingressHost, prNumber, svc)

	svcVars := map[string]string{
		"SERVICE_NAME":     svc.Name,
		"SERVICE_IMAGE":    image,
		"SERVICE_PORT":     strconv.Itoa(svc.Port),
		"SERVICE_REPLICAS": strconv.Itoa(svc.ReplicaCount()),
		"SERVICE_PATH":     svc.PathPrefix(),
		"INGRESS_PATH":     route.PathPrefix,
	}
	for k, v := range envVars {
		svcVars[k] = v
	}

	templateFiles, err := r.discoverTemplates(svc.Templates)
	if err != nil {
		return nil, "", err
	}

	if len(templateFiles) > 0 {
		docs, err := r.renderTemplateFiles(templateFiles, placeholders.StaticResolvers(svcVars))
		return docs, image, err
	}

	docs, err := builtinServiceDocs(svc, image, containerEnv, namespace, route)
	return docs, image, err
}

func (r *Renderer) resolveContainerEnv(env map[string]string, resolvers map[string]placeholders.PlaceholderResolver) ([]EnvVar, error) {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	vars := make([]EnvVar, 0, len(names))
	for _, name := range names {
		value, err := r.placeholders.ResolvePlaceholders(env[name], resolvers)
		if err != nil {
			return nil, fmt.Errorf("resolving env var %s: %w", name, err)
		}
		vars = append(vars, EnvVar{Name: name, Value: value})
	}
	return vars, nil
}

// discoverTemplates walks the template dir and returns files matching the
// given doublestar patterns, honoring a .previewignore file. A missing
// template dir is not an error; built-in manifests cover that case.
func (r *Renderer) discoverTemplates(patterns []string) ([]string, error) {
	if r.templateDir == "" {
		return nil, nil
	}
	if _, err := os.Stat(r.templateDir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	if len(patterns) == 0 {
		patterns = defaultTemplatePatterns
	}

	var ignoreMatcher *ignore.GitIgnore
	ignorePath := filepath.Join(r.templateDir, IgnoreFileName)
	if _, err := os.Stat(ignorePath); err == nil {
		ignoreMatcher, err = ignore.CompileIgnoreFile(ignorePath)
		if err != nil {
			return nil, fmt.Errorf("compiling %s: %w", ignorePath, err)
		}
	}

	var files []string
	err := filepath.WalkDir(r.templateDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(r.templateDir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if rel == IgnoreFileName {
			return nil
		}
		if ignoreMatcher != nil && ignoreMatcher.MatchesPath(rel) {
			return nil
		}

		ok, err := lib.PathMatchesOneOfPatterns(rel, patterns)
		if err != nil {
			return err
		}
		if ok {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking template dir %s: %w", r.templateDir, err)
	}

	sort.Strings(files)
	return files, nil
}

func (r *Renderer) renderTemplateFiles(files []string, resolvers map[string]placeholders.PlaceholderResolver) ([]string, error) {
	var docs []string
	for _, file := range files {
		raw, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", file, err)
		}

		rendered, err := r.placeholders.ResolvePlaceholders(string(raw), resolvers)
		if err != nil {
			return nil, fmt.Errorf("rendering template %s: %w", file, err)
		}
		if strings.Contains(rendered, "{{") {
			return nil, fmt.Errorf("%w - template %s still contains unresolved placeholders after rendering", lib.BadUserInputError, file)
		}

		fileDocs, err := splitAndValidateDocs(rendered)
		if err != nil {
			return nil, fmt.Errorf("template %s: %w", file, err)
		}
		docs = append(docs, fileDocs...)
	}
	return docs, nil
}

func builtinServiceDocs(svc config.ServiceConfig, image string, containerEnv []EnvVar, namespace string, route Route) ([]string, error) {
	appLabels := map[string]string{
		"app":                          svc.Name,
		"app.kubernetes.io/managed-by": ManagedByLabel,
	}

	deployment := Deployment{
		APIVersion: "apps/v1",
		Kind:       "Deployment",
		Metadata:   Metadata{Name: svc.Name, Namespace: namespace, Labels: appLabels},
		Spec: DeploymentSpec{
			Replicas: svc.ReplicaCount(),
			Selector: LabelSelector{MatchLabels: map[string]string{"app": svc.Name}},
			Template: PodTemplateSpec{
				Metadata: Metadata{Labels: map[string]string{"app": svc.Name}},
				Spec: PodSpec{
					Containers: []Container{{
						Name:  svc.Name,
						Image: image,
						Ports: []ContainerPort{{ContainerPort: svc.Port}},
						Env:   containerEnv,
					}},
				},
			},
		},
	}

	service := Service{
		APIVersion: "v1",
		Kind:       "Service",
		Metadata:   Metadata{Name: svc.Name, Namespace: namespace, Labels: appLabels},
		Spec: ServiceSpec{
			Selector: map[string]string{"app": svc.Name},
			Ports:    []ServicePort{{Port: svc.Port, TargetPort: svc.Port}},
		},
	}

	objects := []any{deployment, service}

	if svc.Ingress.Enabled {
		objects = append(objects, IngressRoute{
			APIVersion: traefikAPIVersion,
			Kind:       "IngressRoute",
			Metadata:   Metadata{Name: svc.Name, Namespace: namespace, Labels: appLabels},
			Spec: IngressRouteSpec{
				EntryPoints: []string{entryPoint},
				Routes: []Rule{{
					Match:       fmt.Sprintf("PathPrefix(`%s`)", route.PathPrefix),
					Kind:        "Rule",
					Services:    []RuleService{{Name: svc.Name, Port: svc.Port}},
					Middlewares: []MiddlewareRef{{Name: stripPrefixName(namespace)}},
				}},
			},
		})
	}

	docs := make([]string, 0, len(objects))
	for _, obj := range objects {
		doc, err := marshalDoc(obj)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func stripPrefixName(namespace string) string {
	return namespace + "-stripprefix"
}

// stripPrefixMiddleware removes the /pr-<n> prefix before requests reach the
// services, so containers serve the same paths they do in production.
func stripPrefixMiddleware(namespace string) Middleware {
	return Middleware{
		APIVersion: traefikAPIVersion,
		Kind:       "Middleware",
		Metadata:   Metadata{Name: stripPrefixName(namespace), Namespace: namespace},
		Spec: MiddlewareSpec{
			StripPrefix: StripPrefix{Prefixes: []string{"/" + namespace}},
		},
	}
}

func marshalDoc(obj any) (string, error) {
	out, err := yaml.Marshal(obj)
	if err != nil {
		return "", fmt.Errorf("marshaling manifest: %w", err)
	}
	return string(out), nil
}

// splitAndValidateDocs splits a rendered template into YAML documents and
// checks each one carries apiVersion and kind.
func splitAndValidateDocs(rendered string) ([]string, error) {
	decoder := yaml.NewDecoder(strings.NewReader(rendered))

	var docs []string
	for {
		var node yaml.Node
		err := decoder.Decode(&node)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w - invalid yaml after rendering: %s", lib.BadUserInputError, err)
		}
		if isNullDoc(&node) {
			continue
		}

		var probe struct {
			APIVersion string `yaml:"apiVersion"`
			Kind       string `yaml:"kind"`
		}
		if err := node.Decode(&probe); err != nil {
			return nil, fmt.Errorf("%w - rendered document is not a kubernetes object: %s", lib.BadUserInputError, err)
		}
		if probe.APIVersion == "" || probe.Kind == "" {
			return nil, fmt.Errorf("%w - rendered document is missing apiVersion or kind", lib.BadUserInputError)
		}

		out, err := yaml.Marshal(&node)
		if err != nil {
			return nil, fmt.Errorf("re-encoding rendered document: %w", err)
		}
		docs = append(docs, string(out))
	}

	return docs, nil
}

func isNullDoc(node *yaml.Node) bool {
	if node.Kind == 0 || node.IsZero() {
		return true
	}
	if node.Kind == yaml.DocumentNode {
		if len(node.Content) == 0 {
			return true
		}
		node = node.Content[0]
	}
	return node.Kind == yaml.ScalarNode && node.Tag == "!!null"
}
