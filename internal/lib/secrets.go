package lib

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
)

// GetSecretFromEnv returns the first non-empty value among the given
// environment variables, or empty string if none is set.
func GetSecretFromEnv(envKeys []string) string {
	for _, key := range envKeys {
		if key == "" {
			continue
		}
		if value := os.Getenv(key); value != "" {
			return value
		}
	}
	return ""
}

// GetSecretFromEnvOrInput resolves a secret in order of preference:
// environment variables, the credentials storage, an interactive prompt.
// A secret obtained from the prompt is persisted to storage for later runs.
// Environment always wins so CI runs never touch a keyring.
func GetSecretFromEnvOrInput(storage CredentialsStorage, storageKey, label string, envKeys []string, in io.Reader, out io.Writer, prompt string) (string, error) {
	if value := GetSecretFromEnv(envKeys); value != "" {
		log.Debug().Str("key", storageKey).Msg("secret resolved from environment")
		return value, nil
	}

	if storage != nil {
		value, err := storage.Get(storageKey)
		if err != nil {
			return "", fmt.Errorf("reading %q from credentials storage: %w", storageKey, err)
		}
		if value != "" {
			log.Debug().Str("key", storageKey).Msg("secret resolved from credentials storage")
			return value, nil
		}
	}

	value, err := RequestSecretInput(in, out, prompt)
	if err != nil {
		return "", fmt.Errorf("requesting %q: %w", storageKey, err)
	}
	if value == "" {
		return "", fmt.Errorf("%w - empty value provided for %s", BadUserInputError, label)
	}

	if storage != nil {
		if err := storage.Set(storageKey, value, KeyExtras{Label: label}); err != nil {
			log.Warn().Err(err).Str("key", storageKey).Msg("could not persist secret to credentials storage")
		}
	}

	return value, nil
}
