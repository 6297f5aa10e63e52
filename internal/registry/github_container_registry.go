package registry

import (
	"github.com/google/go-containerregistry/pkg/authn"

	"github.com/previewops/ephemeral-env-platform/internal/lib"
)

const GHCRDomain = "ghcr.io"

// GithubContainerRegistry authenticates against GHCR with a token from the
// environment. PR preview images usually live next to the repository, so the
// ambient GITHUB_TOKEN is enough; private images from other owners need a
// PAT in EPHEMERALCTL_GHCR_ACCESS_KEY.
type GithubContainerRegistry struct {
	accessTokenEnvs []string
}

func NewGithubContainerRegistry(accessTokenEnvs []string) Registry {
	return &GithubContainerRegistry{
		accessTokenEnvs: accessTokenEnvs,
	}
}

func (r *GithubContainerRegistry) GetAuthType() AuthType {
	if lib.GetSecretFromEnv(r.accessTokenEnvs) == "" {
		return AuthTypeAnonymous
	}
	return AuthTypeAuthenticator
}

func (r *GithubContainerRegistry) GetAuthentication() (authn.Authenticator, error) {
	token := lib.GetSecretFromEnv(r.accessTokenEnvs)
	if token == "" {
		return authn.Anonymous, nil
	}

	username := lib.GetSecretFromEnv([]string{lib.GHCRUsernameEnv})
	if username == "" {
		// GHCR accepts any username when the password is a token.
		username = "x-access-token"
	}

	return authn.FromConfig(authn.AuthConfig{
		Username: username,
		Password: token,
	}), nil
}

func (r *GithubContainerRegistry) GetKeychain() authn.Keychain {
	return nil
}
