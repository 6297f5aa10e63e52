package env

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/previewops/ephemeral-env-platform/internal/factories"
	gh "github.com/previewops/ephemeral-env-platform/internal/github"
	"github.com/previewops/ephemeral-env-platform/internal/manifests"
)

func newEnvDeleteCmd(locator *factories.SharedServicesLocator, flags *sharedFlags) *cobra.Command {
	var deleteTimeout time.Duration

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Tear down the PR's preview environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}

			kubeconfigPath, cleanup, err := flags.resolveKubeconfig()
			if err != nil {
				return err
			}
			defer cleanup()

			factory := factories.NewEnvironmentFactory(locator)
			envSvc, err := factory.NewEnvironmentService(factories.EnvironmentOptions{
				KubeconfigPath: kubeconfigPath,
				SkipPreflight:  true,
				SkipSmoke:      true,
				DeleteTimeout:  deleteTimeout,
			})
			if err != nil {
				return err
			}

			existed, err := envSvc.Delete(cmd.Context(), flags.prNumber)
			if err != nil {
				return err
			}

			if flags.skipGithub || !existed {
				return nil
			}
			postDeletedComment(cmd, factory, flags)
			return nil
		},
	}

	deleteCmd.Flags().DurationVar(&deleteTimeout, "delete-timeout", 0, "How long to wait for the namespace to terminate")

	return deleteCmd
}

func postDeletedComment(cmd *cobra.Command, factory *factories.EnvironmentFactory, flags *sharedFlags) {
	ref, err := flags.prRef()
	if err != nil {
		log.Warn().Err(err).Msg("cannot resolve PR for commenting, skipping")
		return
	}

	commentSvc, err := factory.NewCommentService(flags.githubToken)
	if err != nil {
		log.Warn().Err(err).Msg("cannot build github client, skipping PR comment")
		return
	}

	body := gh.EnvironmentDeletedBody(manifests.NamespaceForPR(flags.prNumber))
	if err := commentSvc.UpsertStickyComment(cmd.Context(), ref, body); err != nil {
		log.Warn().Err(err).Msg("posting PR comment failed")
	}
}
