package manifests

// Minimal typed views of the Kubernetes and Traefik objects the platform
// generates. Only the fields we emit are modeled; the cluster's API server
// owns full validation.

type Metadata struct {
	Name        string            `yaml:"name"`
	Namespace   string            `yaml:"namespace,omitempty"`
	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

type Deployment struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Metadata   Metadata       `yaml:"metadata"`
	Spec       DeploymentSpec `yaml:"spec"`
}

type DeploymentSpec struct {
	Replicas int             `yaml:"replicas"`
	Selector LabelSelector   `yaml:"selector"`
	Template PodTemplateSpec `yaml:"template"`
}

type LabelSelector struct {
	MatchLabels map[string]string `yaml:"matchLabels"`
}

type PodTemplateSpec struct {
	Metadata Metadata `yaml:"metadata"`
	Spec     PodSpec  `yaml:"spec"`
}

type PodSpec struct {
	Containers []Container `yaml:"containers"`
}

type Container struct {
	Name  string          `yaml:"name"`
	Image string          `yaml:"image"`
	Ports []ContainerPort `yaml:"ports,omitempty"`
	Env   []EnvVar        `yaml:"env,omitempty"`
}

type ContainerPort struct {
	ContainerPort int `yaml:"containerPort"`
}

type EnvVar struct {
	Name  string `yaml:"name"`
	Value string `yaml:"value"`
}

type Service struct {
	APIVersion string      `yaml:"apiVersion"`
	Kind       string      `yaml:"kind"`
	Metadata   Metadata    `yaml:"metadata"`
	Spec       ServiceSpec `yaml:"spec"`
}

type ServiceSpec struct {
	Selector map[string]string `yaml:"selector"`
	Ports    []ServicePort     `yaml:"ports"`
}

type ServicePort struct {
	Port       int `yaml:"port"`
	TargetPort int `yaml:"targetPort"`
}

// IngressRoute is Traefik's CRD for HTTP routing (traefik.io/v1alpha1).
type IngressRoute struct {
	APIVersion string           `yaml:"apiVersion"`
	Kind       string           `yaml:"kind"`
	Metadata   Metadata         `yaml:"metadata"`
	Spec       IngressRouteSpec `yaml:"spec"`
}

type IngressRouteSpec struct {
	EntryPoints []string `yaml:"entryPoints"`
	Routes      []Rule   `yaml:"routes"`
}

type Rule struct {
	Match       string          `yaml:"match"`
	Kind        string          `yaml:"kind"`
	Services    []RuleService   `yaml:"services"`
	Middlewares []MiddlewareRef `yaml:"middlewares,omitempty"`
}

type RuleService struct {
	Name string `yaml:"name"`
	Port int    `yaml:"port"`
}

type MiddlewareRef struct {
	Name string `yaml:"name"`
}

// Middleware is Traefik's CRD for request mutation; the platform emits one
// StripPrefix middleware per environment.
type Middleware struct {
	APIVersion string         `yaml:"apiVersion"`
	Kind       string         `yaml:"kind"`
	Metadata   Metadata       `yaml:"metadata"`
	Spec       MiddlewareSpec `yaml:"spec"`
}

type MiddlewareSpec struct {
	StripPrefix StripPrefix `yaml:"stripPrefix"`
}

type StripPrefix struct {
	Prefixes []string `yaml:"prefixes"`
}
