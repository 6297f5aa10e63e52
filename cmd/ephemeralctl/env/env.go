package env

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/previewops/ephemeral-env-platform/internal/factories"
	gh "github.com/previewops/ephemeral-env-platform/internal/github"
	"github.com/previewops/ephemeral-env-platform/internal/kube"
	"github.com/previewops/ephemeral-env-platform/internal/lib"
)

type sharedFlags struct {
	prNumber    int
	kubeconfig  string
	repository  string
	githubToken string
	skipGithub  bool
}

func NewEnvCmd(locator *factories.SharedServicesLocator) *cobra.Command {
	flags := &sharedFlags{}

	envCmd := &cobra.Command{
		Use:   "env",
		Short: "Manage per-PR preview environments",
	}

	envCmd.PersistentFlags().IntVar(&flags.prNumber, "pr-number", 0, "Pull request number the environment belongs to")
	envCmd.PersistentFlags().StringVar(&flags.kubeconfig, "kubeconfig", "", "Kubeconfig path, raw YAML, or base64 of the YAML (required; falls back to $KUBECONFIG)")
	envCmd.PersistentFlags().StringVar(&flags.repository, "repo", "", "GitHub repository in owner/name form (defaults to $GITHUB_REPOSITORY)")
	envCmd.PersistentFlags().StringVar(&flags.githubToken, "github-token", "", "GitHub token used for PR comments")
	envCmd.PersistentFlags().BoolVar(&flags.skipGithub, "skip-github", false, "Skip posting PR comments")

	envCmd.AddCommand(newEnvCreateCmd(locator, flags))
	envCmd.AddCommand(newEnvDeleteCmd(locator, flags))

	return envCmd
}

func (f *sharedFlags) validate() error {
	if f.prNumber <= 0 {
		return fmt.Errorf("%w - a positive --pr-number is required", lib.BadUserInputError)
	}
	return nil
}

// prRef resolves the PR coordinates for comment posting. The repository comes
// from --repo or the GITHUB_REPOSITORY variable Actions always sets.
func (f *sharedFlags) prRef() (gh.PRRef, error) {
	repository := f.repository
	if repository == "" {
		repository = os.Getenv(lib.GithubRepoEnv)
	}
	if repository == "" {
		return gh.PRRef{}, fmt.Errorf("%w - pass --repo or set %s", lib.BadUserInputError, lib.GithubRepoEnv)
	}

	owner, repo, err := gh.ParseRepository(repository)
	if err != nil {
		return gh.PRRef{}, err
	}
	return gh.PRRef{Owner: owner, Repo: repo, Number: f.prNumber}, nil
}

// resolveKubeconfig turns the --kubeconfig input (or $KUBECONFIG) into a path
// kubectl can use. A missing kubeconfig is an error: falling back to the
// developer's default context would point namespace creates and deletes at
// whatever cluster it happens to select.
func (f *sharedFlags) resolveKubeconfig() (string, func(), error) {
	value := f.kubeconfig
	if value == "" {
		value = os.Getenv(lib.KubeconfigEnv)
	}
	if value == "" {
		return "", func() {}, fmt.Errorf("%w - pass --kubeconfig or set %s", lib.BadUserInputError, lib.KubeconfigEnv)
	}
	return kube.MaterializeKubeconfig(value)
}
