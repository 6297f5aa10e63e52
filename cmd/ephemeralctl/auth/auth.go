package auth

import (
	"github.com/spf13/cobra"

	"github.com/previewops/ephemeral-env-platform/internal/factories"
	gh "github.com/previewops/ephemeral-env-platform/internal/github"
)

func NewAuthCmd(locator *factories.SharedServicesLocator) *cobra.Command {
	authCmd := &cobra.Command{
		Use:   "auth",
		Short: "Manage the GitHub token used for PR comments",
	}

	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Store a GitHub token in the system keyring",
		RunE: func(cmd *cobra.Command, args []string) error {
			factory := gh.NewClientFactory(locator.GithubCredentialsStorage)
			return factory.Login(cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored GitHub token",
		RunE: func(cmd *cobra.Command, args []string) error {
			return gh.NewClientFactory(locator.GithubCredentialsStorage).Logout()
		},
	}

	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)

	return authCmd
}
