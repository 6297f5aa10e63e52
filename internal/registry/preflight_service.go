package registry

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/go-containerregistry/pkg/authn"
	"github.com/google/go-containerregistry/pkg/name"
	"github.com/google/go-containerregistry/pkg/v1/remote"
	"github.com/rs/zerolog/log"

	"github.com/previewops/ephemeral-env-platform/internal/lib"
)

// PreflightService verifies that the images a preview environment references
// actually exist before anything is applied to the cluster. A PR whose image
// build failed otherwise surfaces as an ImagePullBackOff minutes later; a
// HEAD request against the registry turns that into an immediate error.
type PreflightService struct {
	ghcrTokenEnvs []string
}

func NewPreflightService() *PreflightService {
	return &PreflightService{
		ghcrTokenEnvs: []string{lib.GHCRAccessKeyEnv, lib.GithubTokenCtlEnv, lib.GithubTokenEnv},
	}
}

// CheckImageExists issues a registry HEAD request for the image reference.
func (s *PreflightService) CheckImageExists(ctx context.Context, imageRef string) error {
	ref, err := name.ParseReference(imageRef)
	if err != nil {
		return fmt.Errorf("%w - invalid image reference %q: %s", lib.BadUserInputError, imageRef, err)
	}

	reg := s.registryFor(ref)
	opts := []remote.Option{remote.WithContext(ctx)}

	switch reg.GetAuthType() {
	case AuthTypeAuthenticator:
		auth, err := reg.GetAuthentication()
		if err != nil {
			return fmt.Errorf("getting registry authentication for %s: %w", ref.Context().RegistryStr(), err)
		}
		opts = append(opts, remote.WithAuth(auth))
	case AuthTypeKeychain:
		opts = append(opts, remote.WithAuthFromKeychain(reg.GetKeychain()))
	default:
		opts = append(opts, remote.WithAuthFromKeychain(authn.DefaultKeychain))
	}

	log.Debug().Str("image", imageRef).Msg("checking image exists in registry")

	if _, err := remote.Head(ref, opts...); err != nil {
		return fmt.Errorf("image %s not found or not readable; has the PR image build finished? %w", imageRef, err)
	}
	return nil
}

func (s *PreflightService) registryFor(ref name.Reference) Registry {
	registryHost := ref.Context().RegistryStr()
	switch {
	case strings.EqualFold(registryHost, GHCRDomain):
		return NewGithubContainerRegistry(s.ghcrTokenEnvs)
	case strings.Contains(registryHost, ".dkr.ecr.") && strings.HasSuffix(registryHost, ".amazonaws.com"):
		return NewAwsECR()
	default:
		return anonymousRegistry{}
	}
}

type anonymousRegistry struct{}

func (anonymousRegistry) GetAuthType() AuthType       { return AuthTypeAnonymous }
func (anonymousRegistry) GetKeychain() authn.Keychain { return nil }
func (anonymousRegistry) GetAuthentication() (authn.Authenticator, error) {
	return authn.Anonymous, nil
}
