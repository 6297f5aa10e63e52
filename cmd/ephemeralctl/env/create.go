package env

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/previewops/ephemeral-env-platform/internal/config"
	"github.com/previewops/ephemeral-env-platform/internal/factories"
	gh "github.com/previewops/ephemeral-env-platform/internal/github"
	"github.com/previewops/ephemeral-env-platform/internal/lib"
	"github.com/previewops/ephemeral-env-platform/internal/manifests"
)

func newEnvCreateCmd(locator *factories.SharedServicesLocator, flags *sharedFlags) *cobra.Command {
	var (
		configPath     string
		templateDir    string
		ingressHost    string
		skipPreflight  bool
		skipSmoke      bool
		rolloutTimeout time.Duration
	)

	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Create or rebuild the PR's preview environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			if ingressHost == "" {
				return fmt.Errorf("%w - --ingress-host is required", lib.BadUserInputError)
			}

			cfg, err := config.NewConfigFromPath(configPath)
			if err != nil {
				return err
			}

			kubeconfigPath, cleanup, err := flags.resolveKubeconfig()
			if err != nil {
				return err
			}
			defer cleanup()

			factory := factories.NewEnvironmentFactory(locator.WithConfig(cfg))
			envSvc, err := factory.NewEnvironmentService(factories.EnvironmentOptions{
				KubeconfigPath: kubeconfigPath,
				TemplateDir:    templateDir,
				SkipPreflight:  skipPreflight,
				SkipSmoke:      skipSmoke,
				RolloutTimeout: rolloutTimeout,
			})
			if err != nil {
				return err
			}

			environment, _, err := envSvc.Create(cmd.Context(), cfg, flags.prNumber, ingressHost)
			if err != nil {
				return err
			}

			for _, route := range environment.Routes {
				log.Info().Str("service", route.Service).Str("url", route.URL).Msg("route published")
			}

			if flags.skipGithub {
				return nil
			}
			postCreatedComment(cmd, factory, flags, environment)
			return nil
		},
	}

	createCmd.Flags().StringVar(&configPath, "config-path", config.DefaultConfigPath, "Path to the ephemeral environment config file")
	createCmd.Flags().StringVar(&templateDir, "template-dir", manifests.DefaultTemplateDir, "Directory with manifest template overrides")
	createCmd.Flags().StringVar(&ingressHost, "ingress-host", "", "Hostname the preview routes are published under")
	createCmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "Skip checking that container images exist before deploying")
	createCmd.Flags().BoolVar(&skipSmoke, "skip-smoke", false, "Skip probing the published routes after deploying")
	createCmd.Flags().DurationVar(&rolloutTimeout, "rollout-timeout", 0, "How long to wait for each deployment rollout")

	return createCmd
}

// postCreatedComment is best-effort: a comment failure must never fail a
// create that already converged the cluster.
func postCreatedComment(cmd *cobra.Command, factory *factories.EnvironmentFactory, flags *sharedFlags, environment *manifests.Environment) {
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

	body := gh.EnvironmentCreatedBody(environment, os.Getenv(lib.GithubShaEnv))
	if err := commentSvc.UpsertStickyComment(cmd.Context(), ref, body); err != nil {
		log.Warn().Err(err).Msg("posting PR comment failed")
	}
}
