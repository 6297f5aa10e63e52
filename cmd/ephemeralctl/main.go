package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/previewops/ephemeral-env-platform/cmd/ephemeralctl/auth"
	"github.com/previewops/ephemeral-env-platform/cmd/ephemeralctl/env"
	"github.com/previewops/ephemeral-env-platform/internal/factories"
	"github.com/previewops/ephemeral-env-platform/internal/keyring"
	"github.com/previewops/ephemeral-env-platform/internal/lib"
	"github.com/previewops/ephemeral-env-platform/internal/placeholders"
	"github.com/previewops/ephemeral-env-platform/internal/placeholders/git"
)

var RootCmd = &cobra.Command{
	Use:   "ephemeralctl",
	Short: "Ephemeralctl creates and tears down per-PR preview environments on Kubernetes.",
}

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	var logLevel string
	RootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging verbosity (trace, debug, info, warn, error)")

	RootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := bindFlagsToEnv(cmd); err != nil {
			return err
		}

		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("%w - unknown log level %q", lib.BadUserInputError, logLevel)
		}
		log.Logger = log.Logger.Level(level)
		return nil
	}

	locator := newLocator()
	RootCmd.AddCommand(env.NewEnvCmd(locator))
	RootCmd.AddCommand(auth.NewAuthCmd(locator))

	if err := RootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("command failed")
	}
}

func newLocator() *factories.SharedServicesLocator {
	gitInfo, err := git.NewRepositoryInfoService(".")
	if err != nil {
		log.Debug().Err(err).Msg("not inside a git repository, git placeholders disabled")
		gitInfo = nil
	}

	storage, err := keyring.NewService("ephemeralctl")
	if err != nil {
		// Headless CI runners have no keyring; tokens come from env there.
		log.Debug().Err(err).Msg("keyring unavailable, credentials storage disabled")
	}

	var credStorage lib.CredentialsStorage
	if storage != nil {
		credStorage = storage
	}

	return factories.NewSharedServicesLocator(nil, credStorage, placeholders.NewService(gitInfo))
}

// bindFlagsToEnv lets EPHEMERALCTL_* variables stand in for flags not set on
// the command line, so the GitHub Action can pass every input through env.
func bindFlagsToEnv(cmd *cobra.Command) error {
	v := viper.New()
	v.SetEnvPrefix(lib.EnvKeyPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil && bindErr == nil {
			envName := lib.EnvKeyPrefix + "_" + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
			bindErr = fmt.Errorf("%w - invalid %s for --%s: %s", lib.BadUserInputError, envName, f.Name, err)
		}
	})
	return bindErr
}
