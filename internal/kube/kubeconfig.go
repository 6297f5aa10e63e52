package kube

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/previewops/ephemeral-env-platform/internal/lib"
)

// MaterializeKubeconfig turns the --kubeconfig input into a file path kubectl
// can use. The GitHub Action passes the secret value straight through, so the
// input may be a path to an existing file, raw kubeconfig YAML, or base64 of
// the YAML. Inline content is written to a 0600 temp file; cleanup removes it.
func MaterializeKubeconfig(value string) (path string, cleanup func(), err error) {
	noop := func() {}

	if strings.TrimSpace(value) == "" {
		return "", noop, fmt.Errorf("%w - kubeconfig is required; pass a path or the kubeconfig content", lib.BadUserInputError)
	}

	if info, statErr := os.Stat(value); statErr == nil && !info.IsDir() {
		return value, noop, nil
	}

	content := value
	if !looksLikeKubeconfig(content) {
		decoded, decodeErr := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
		if decodeErr != nil || !looksLikeKubeconfig(string(decoded)) {
			return "", noop, fmt.Errorf("%w - kubeconfig input is neither an existing file, kubeconfig YAML, nor base64 of it", lib.BadUserInputError)
		}
		content = string(decoded)
	}

	f, err := os.CreateTemp("", "ephemeralctl-kubeconfig-*.yaml")
	if err != nil {
		return "", noop, fmt.Errorf("creating temp kubeconfig: %w", err)
	}
	if err := f.Chmod(0o600); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", noop, fmt.Errorf("restricting temp kubeconfig permissions: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", noop, fmt.Errorf("writing temp kubeconfig: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", noop, fmt.Errorf("closing temp kubeconfig: %w", err)
	}

	return f.Name(), func() { os.Remove(f.Name()) }, nil
}

func looksLikeKubeconfig(content string) bool {
	return strings.Contains(content, "apiVersion") && strings.Contains(content, "clusters")
}
