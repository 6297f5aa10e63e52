package lib

import "fmt"

const (
	EnvKeyPrefix = "EPHEMERALCTL"
)

var (
	GithubTokenCtlEnv = fmt.Sprintf("%s_%s", EnvKeyPrefix, "GITHUB_TOKEN")
	GithubTokenEnv    = "GITHUB_TOKEN"
	GithubRepoEnv     = "GITHUB_REPOSITORY"
	GithubShaEnv      = "GITHUB_SHA"

	GithubAppIDEnv           = fmt.Sprintf("%s_%s", EnvKeyPrefix, "GITHUB_APP_ID")
	GithubAppInstallationEnv = fmt.Sprintf("%s_%s", EnvKeyPrefix, "GITHUB_APP_INSTALLATION_ID")
	GithubAppKeyPathEnv      = fmt.Sprintf("%s_%s", EnvKeyPrefix, "GITHUB_APP_PRIVATE_KEY_PATH")
)

var (
	GHCRAccessKeyEnv = fmt.Sprintf("%s_%s", EnvKeyPrefix, "GHCR_ACCESS_KEY")
	GHCRUsernameEnv  = fmt.Sprintf("%s_%s", EnvKeyPrefix, "GHCR_USERNAME")
	KubeconfigEnv    = "KUBECONFIG"
)
