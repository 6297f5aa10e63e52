package github

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v68/github"

	"github.com/previewops/ephemeral-env-platform/internal/lib"
)

const (
	githubTokenStorageKey   = "github_token"
	githubTokenStorageLabel = "GitHub Token"
)

// ClientFactory builds an authenticated GitHub client from whichever
// credentials are available: an explicit token, the ambient Actions token, a
// GitHub App installation, or the local keyring for developer runs.
type ClientFactory struct {
	storage lib.CredentialsStorage
}

func NewClientFactory(storage lib.CredentialsStorage) *ClientFactory {
	return &ClientFactory{storage: storage}
}

func (f *ClientFactory) NewClient(token string) (*github.Client, error) {
	if token != "" {
		return github.NewClient(nil).WithAuthToken(token), nil
	}

	if client, ok, err := f.newAppClient(); ok {
		return client, err
	}

	if token = lib.GetSecretFromEnv([]string{lib.GithubTokenCtlEnv, lib.GithubTokenEnv}); token != "" {
		return github.NewClient(nil).WithAuthToken(token), nil
	}

	if f.storage != nil {
		stored, err := f.storage.Get(githubTokenStorageKey)
		if err != nil {
			return nil, fmt.Errorf("reading github token from credentials storage: %w", err)
		}
		if stored != "" {
			return github.NewClient(nil).WithAuthToken(stored), nil
		}
	}

	return nil, fmt.Errorf("%w - no github token available; pass --github-token, set GITHUB_TOKEN, or configure a GitHub App", lib.BadUserInputError)
}

// Login resolves a GitHub token from env, the credentials storage, or an
// interactive prompt; a prompted token is persisted for later runs.
func (f *ClientFactory) Login(in io.Reader, out io.Writer) error {
	_, err := lib.GetSecretFromEnvOrInput(f.storage, githubTokenStorageKey, githubTokenStorageLabel,
		[]string{lib.GithubTokenCtlEnv, lib.GithubTokenEnv}, in, out, "GitHub token")
	return err
}

// Logout removes the stored token. Removing a token that was never stored
// succeeds.
func (f *ClientFactory) Logout() error {
	if f.storage == nil {
		return nil
	}
	return f.storage.Remove(githubTokenStorageKey)
}

// newAppClient builds a GitHub App installation client when the app env vars
// are present. Returns ok=false when app auth is not configured at all.
func (f *ClientFactory) newAppClient() (*github.Client, bool, error) {
	appIDRaw := os.Getenv(lib.GithubAppIDEnv)
	installIDRaw := os.Getenv(lib.GithubAppInstallationEnv)
	keyPath := os.Getenv(lib.GithubAppKeyPathEnv)

	if appIDRaw == "" && installIDRaw == "" && keyPath == "" {
		return nil, false, nil
	}
	if appIDRaw == "" || installIDRaw == "" || keyPath == "" {
		return nil, true, fmt.Errorf("%w - partial GitHub App config; %s, %s and %s must all be set",
			lib.BadUserInputError, lib.GithubAppIDEnv, lib.GithubAppInstallationEnv, lib.GithubAppKeyPathEnv)
	}

	appID, err := strconv.ParseInt(appIDRaw, 10, 64)
	if err != nil {
		return nil, true, fmt.Errorf("%w - invalid %s: %s", lib.BadUserInputError, lib.GithubAppIDEnv, err)
	}
	installID, err := strconv.ParseInt(installIDRaw, 10, 64)
	if err != nil {
		return nil, true, fmt.Errorf("%w - invalid %s: %s", lib.BadUserInputError, lib.GithubAppInstallationEnv, err)
	}

	itr, err := ghinstallation.NewKeyFromFile(http.DefaultTransport, appID, installID, keyPath)
	if err != nil {
		return nil, true, fmt.Errorf("creating GitHub App transport: %w", err)
	}

	return github.NewClient(&http.Client{Transport: itr}), true, nil
}

// PRRef identifies the pull request a preview environment belongs to.
type PRRef struct {
	Owner  string
	Repo   string
	Number int
}

// ParseRepository splits the owner/name form GitHub Actions exposes in
// GITHUB_REPOSITORY.
func ParseRepository(repository string) (owner, repo string, err error) {
	parts := strings.Split(repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w - invalid repository %q, expected owner/name", lib.BadUserInputError, repository)
	}
	return parts[0], parts[1], nil
}
