package kube

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/previewops/ephemeral-env-platform/internal/lib"
)

const kubeconfigYAML = `apiVersion: v1
kind: Config
clusters:
  - name: preview
    cluster:
      server: https://kube.example.internal:6443
contexts: []
users: []
`

func TestMaterializeKubeconfig(t *testing.T) {
	t.Run("passes through an existing file path", func(t *testing.T) {
		r := require.New(t)
		path := filepath.Join(t.TempDir(), "kubeconfig")
		r.NoError(os.WriteFile(path, []byte(kubeconfigYAML), 0o600))

		got, cleanup, err := MaterializeKubeconfig(path)
		defer cleanup()
		r.NoError(err)
		r.Equal(path, got)
	})

	t.Run("writes inline yaml to a temp file", func(t *testing.T) {
		r := require.New(t)
		got, cleanup, err := MaterializeKubeconfig(kubeconfigYAML)
		r.NoError(err)
		defer cleanup()

		r.NotEqual(kubeconfigYAML, got)
		content, readErr := os.ReadFile(got)
		r.NoError(readErr)
		r.Equal(kubeconfigYAML, string(content))

		info, statErr := os.Stat(got)
		r.NoError(statErr)
		r.Equal(os.FileMode(0o600), info.Mode().Perm())

		cleanup()
		_, statErr = os.Stat(got)
		r.True(os.IsNotExist(statErr))
	})

	t.Run("decodes base64 content", func(t *testing.T) {
		r := require.New(t)
		encoded := base64.StdEncoding.EncodeToString([]byte(kubeconfigYAML))

		got, cleanup, err := MaterializeKubeconfig(encoded)
		r.NoError(err)
		defer cleanup()

		content, readErr := os.ReadFile(got)
		r.NoError(readErr)
		r.Equal(kubeconfigYAML, string(content))
	})

	t.Run("rejects empty input", func(t *testing.T) {
		r := require.New(t)
		_, _, err := MaterializeKubeconfig("   ")
		r.Error(err)
		r.True(errors.Is(err, lib.BadUserInputError))
	})

	t.Run("rejects garbage input", func(t *testing.T) {
		r := require.New(t)
		_, _, err := MaterializeKubeconfig("definitely not a kubeconfig")
		r.Error(err)
		r.True(errors.Is(err, lib.BadUserInputError))
	})
}
