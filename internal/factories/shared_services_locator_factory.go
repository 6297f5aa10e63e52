package factories

import (
	"github.com/previewops/ephemeral-env-platform/internal/config"
	"github.com/previewops/ephemeral-env-platform/internal/lib"
	"github.com/previewops/ephemeral-env-platform/internal/placeholders"
)

type SharedServicesLocator struct {
	Config                   *config.Config
	GithubCredentialsStorage lib.CredentialsStorage
	PlaceholdersService      *placeholders.Service
}

func NewSharedServicesLocator(config *config.Config, githubCredentialsStorage lib.CredentialsStorage, placeholders *placeholders.Service) *SharedServicesLocator {
	return &SharedServicesLocator{
		config,
		githubCredentialsStorage,
		placeholders,
	}
}

func (l *SharedServicesLocator) WithConfig(config *config.Config) *SharedServicesLocator {
	return &SharedServicesLocator{
		config,
		l.GithubCredentialsStorage,
		l.PlaceholdersService,
	}
}
