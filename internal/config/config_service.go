package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/previewops/ephemeral-env-platform/internal/lib"
)

const DefaultConfigPath = ".ephemeral-config.yaml"

// dns1123Label is the shape Kubernetes requires for resource names. Service
// names end up in Deployment/Service metadata, so they must conform.
var dns1123Label = regexp.MustCompile(`^[a-z0-9]([-a-z0-9]*[a-z0-9])?$`)

type Config struct {
	Services []ServiceConfig `yaml:"services"`
}

type ServiceConfig struct {
	Name      string            `yaml:"name"`
	Image     string            `yaml:"image"`
	Port      int               `yaml:"port"`
	Replicas  *int              `yaml:"replicas"`
	Ingress   IngressConfig     `yaml:"ingress"`
	Env       map[string]string `yaml:"env"`
	Templates []string          `yaml:"templates"`
	Extras    map[string]any    `yaml:",inline"`
}

type IngressConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// ReplicaCount returns the configured replica count, defaulting to 1.
func (s ServiceConfig) ReplicaCount() int {
	if s.Replicas == nil {
		return 1
	}
	return *s.Replicas
}

// PathPrefix returns the normalized ingress path prefix, defaulting to "/".
func (s ServiceConfig) PathPrefix() string {
	if s.Ingress.Path == "" {
		return "/"
	}
	return s.Ingress.Path
}

func NewConfigFromPath(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w - config file %s not found; add it to the repository or point --config-path at it", lib.BadUserInputError, path)
		}
		return nil, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := NewConfigFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}

func NewConfigFromReader(reader io.Reader) (*Config, error) {
	var cfg Config
	if err := yaml.NewDecoder(reader).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%w - decoding config yaml: %s", lib.BadUserInputError, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Services) == 0 {
		return fmt.Errorf("%w - config declares no services", lib.BadUserInputError)
	}

	seenNames := make(map[string]struct{}, len(c.Services))
	seenPaths := make(map[string]string, len(c.Services))

	for i, svc := range c.Services {
		if svc.Name == "" {
			return fmt.Errorf("%w - service at index %d has no name", lib.BadUserInputError, i)
		}
		if !dns1123Label.MatchString(svc.Name) || len(svc.Name) > 63 {
			return fmt.Errorf("%w - service name %q is not a valid DNS-1123 label", lib.BadUserInputError, svc.Name)
		}
		if _, ok := seenNames[svc.Name]; ok {
			return fmt.Errorf("%w - duplicate service name %q", lib.BadUserInputError, svc.Name)
		}
		seenNames[svc.Name] = struct{}{}

		if svc.Image == "" {
			return fmt.Errorf("%w - service %q has no image", lib.BadUserInputError, svc.Name)
		}
		if svc.Port < 1 || svc.Port > 65535 {
			return fmt.Errorf("%w - service %q has invalid port %d", lib.BadUserInputError, svc.Name, svc.Port)
		}
		if svc.Replicas != nil && *svc.Replicas < 0 {
			return fmt.Errorf("%w - service %q has negative replicas", lib.BadUserInputError, svc.Name)
		}

		if !svc.Ingress.Enabled {
			continue
		}
		path := svc.PathPrefix()
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("%w - service %q ingress path %q must start with '/'", lib.BadUserInputError, svc.Name, path)
		}
		if owner, ok := seenPaths[path]; ok {
			return fmt.Errorf("%w - services %q and %q both claim ingress path %q", lib.BadUserInputError, owner, svc.Name, path)
		}
		seenPaths[path] = svc.Name
	}

	return nil
}

// Service returns the named service's entry.
func (c *Config) Service(name string) (ServiceConfig, bool) {
	for _, svc := range c.Services {
		if svc.Name == name {
			return svc, true
		}
	}
	return ServiceConfig{}, false
}

// HasServicePart reports whether a service carries the given extra section.
func (c *Config) HasServicePart(service, partKey string) bool {
	svc, ok := c.Service(service)
	if !ok {
		return false
	}
	_, ok = svc.Extras[partKey]
	return ok
}

// LoadVariableServiceConfigPart decodes an arbitrary extra section of a
// service entry into cfg. Lets optional tooling keep its own config block
// under a service without the core schema knowing about it.
func (c *Config) LoadVariableServiceConfigPart(cfg any, service, partKey string) error {
	for _, svc := range c.Services {
		if svc.Name != service {
			continue
		}

		part, ok := svc.Extras[partKey]
		if !ok {
			return fmt.Errorf("config part %q not found for service %q", partKey, service)
		}
		if err := mapstructure.Decode(part, cfg); err != nil {
			return fmt.Errorf("unmarshaling config part %q for service %q: %w", partKey, service, err)
		}
		return nil
	}

	return fmt.Errorf("%w - service %q not found in config", lib.BadUserInputError, service)
}
