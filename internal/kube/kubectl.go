package kube

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/previewops/ephemeral-env-platform/internal/lib"
)

// ClusterUnreachableError marks kubectl failures caused by the API server
// being unreachable with the provided kubeconfig.
var ClusterUnreachableError = errors.New("kubernetes cluster unreachable")

// NamespaceTerminatingError reports a namespace stuck in Terminating,
// usually because of lingering finalizers.
type NamespaceTerminatingError struct {
	Namespace  string
	Finalizers string
}

func (e *NamespaceTerminatingError) Error() string {
	msg := fmt.Sprintf("namespace %s is stuck in Terminating", e.Namespace)
	if e.Finalizers != "" {
		msg += fmt.Sprintf(" (finalizers: %s)", e.Finalizers)
	}
	return msg + "; clear the finalizers or wait for controllers to release them"
}

// runner executes a kubectl invocation and returns its stdout. Swappable in
// tests.
type runner func(ctx context.Context, stdin string, args ...string) (string, error)

// Client drives the cluster through the kubectl binary.
type Client struct {
	kubeconfigPath string
	run            runner
}

func NewClient(kubeconfigPath string) (*Client, error) {
	if _, err := exec.LookPath("kubectl"); err != nil {
		return nil, fmt.Errorf("%w: %s", lib.KubectlNotFoundError, err)
	}

	c := &Client{kubeconfigPath: kubeconfigPath}
	c.run = c.execKubectl
	return c, nil
}

func (c *Client) execKubectl(ctx context.Context, stdin string, args ...string) (string, error) {
	fullArgs := args
	if c.kubeconfigPath != "" {
		fullArgs = append([]string{"--kubeconfig", c.kubeconfigPath}, args...)
	}
	command := exec.CommandContext(ctx, "kubectl", fullArgs...)

	if stdin != "" {
		command.Stdin = strings.NewReader(stdin)
	}

	var stdout, stderr bytes.Buffer
	command.Stdout = &stdout
	command.Stderr = &stderr

	log.Debug().Strs("args", args).Msg("running kubectl")

	if err := command.Run(); err != nil {
		return stdout.String(), classifyError(err, stderr.String())
	}

	return stdout.String(), nil
}

func classifyError(err error, stderr string) error {
	stderr = strings.TrimSpace(stderr)
	if strings.Contains(stderr, "Unable to connect to the server") ||
		strings.Contains(stderr, "connection refused") {
		return fmt.Errorf("%w: %s", ClusterUnreachableError, stderr)
	}
	if stderr != "" {
		return fmt.Errorf("kubectl: %s: %w", stderr, err)
	}
	return fmt.Errorf("kubectl: %w", err)
}

// ApplyManifests applies the given YAML documents into the namespace. Apply
// is idempotent, which is what makes environment creation safe to replay on
// PR synchronize events.
func (c *Client) ApplyManifests(ctx context.Context, namespace string, docs []string) error {
	if len(docs) == 0 {
		return nil
	}

	stdin := strings.Join(docs, "\n---\n")
	if _, err := c.run(ctx, stdin, "apply", "--namespace", namespace, "-f", "-"); err != nil {
		return fmt.Errorf("applying %d manifest(s) to namespace %s: %w", len(docs), namespace, err)
	}
	return nil
}

// EnsureNamespace applies a Namespace object, creating it if absent and
// reconciling labels if present.
func (c *Client) EnsureNamespace(ctx context.Context, name string, labels map[string]string) error {
	var b strings.Builder
	b.WriteString("apiVersion: v1\nkind: Namespace\nmetadata:\n")
	fmt.Fprintf(&b, "  name: %s\n", name)
	if len(labels) > 0 {
		b.WriteString("  labels:\n")
		for k, v := range labels {
			fmt.Fprintf(&b, "    %s: %q\n", k, v)
		}
	}

	if _, err := c.run(ctx, b.String(), "apply", "-f", "-"); err != nil {
		return fmt.Errorf("ensuring namespace %s: %w", name, err)
	}
	return nil
}

// NamespaceExists reports whether the namespace is present on the cluster.
func (c *Client) NamespaceExists(ctx context.Context, name string) (bool, error) {
	out, err := c.run(ctx, "", "get", "namespace", name, "--ignore-not-found", "-o", "name")
	if err != nil {
		return false, fmt.Errorf("checking namespace %s: %w", name, err)
	}
	return strings.TrimSpace(out) != "", nil
}

// DeleteNamespace removes the namespace and waits for it to be gone. A
// namespace that survives the timeout is reported with its finalizers so the
// operator knows what is holding it.
func (c *Client) DeleteNamespace(ctx context.Context, name string, timeout time.Duration) error {
	_, err := c.run(ctx, "", "delete", "namespace", name,
		"--ignore-not-found",
		"--wait=true",
		fmt.Sprintf("--timeout=%s", timeout))
	if err == nil {
		return nil
	}

	phase, phaseErr := c.run(ctx, "", "get", "namespace", name,
		"--ignore-not-found", "-o", "jsonpath={.status.phase}")
	if phaseErr == nil && strings.TrimSpace(phase) == "Terminating" {
		finalizers, _ := c.run(ctx, "", "get", "namespace", name,
			"--ignore-not-found", "-o", "jsonpath={.spec.finalizers}")
		return &NamespaceTerminatingError{
			Namespace:  name,
			Finalizers: strings.TrimSpace(finalizers),
		}
	}

	return fmt.Errorf("deleting namespace %s: %w", name, err)
}

// RolloutStatus blocks until the deployment reports a complete rollout or
// the timeout elapses.
func (c *Client) RolloutStatus(ctx context.Context, namespace, deployment string, timeout time.Duration) error {
	_, err := c.run(ctx, "", "rollout", "status", fmt.Sprintf("deployment/%s", deployment),
		"--namespace", namespace,
		fmt.Sprintf("--timeout=%s", timeout))
	if err != nil {
		return fmt.Errorf("waiting for rollout of %s/%s: %w", namespace, deployment, err)
	}
	return nil
}
