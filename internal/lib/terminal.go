package lib

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/term"
)

func RequestSecretInput(in io.Reader, out io.Writer, prompt string) (string, error) {
	_, err := fmt.Fprintf(out, "%s: ", prompt)
	if err != nil {
		return "", fmt.Errorf("writing prompt: %w", err)
	}

	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		secret, err := term.ReadPassword(int(f.Fd()))
		if err != nil {
			return "", fmt.Errorf("reading secret input: %w", err)
		}
		if _, err := fmt.Fprintln(out); err != nil {
			return "", fmt.Errorf("writing newline after secret input: %w", err)
		}

		return strings.TrimSpace(string(secret)), nil
	}

	log.Debug().Msg("not a terminal, falling back to normal input reading")

	reader := bufio.NewReader(in)
	secret, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading secret input: %w", err)
	}

	return strings.TrimSpace(secret), nil
}
