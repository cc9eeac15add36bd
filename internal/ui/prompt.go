package ui

import (
	"os"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/rileyhilliard/fleet/internal/errors"
	"golang.org/x/term"
)

// stdinIsTerminal is replaced in tests.
var stdinIsTerminal = func() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// PromptPassword asks for a secret without echoing it. It refuses to run
// without a terminal so scripted runs fail instead of hanging.
func PromptPassword(title string) (string, error) {
	if !stdinIsTerminal() {
		return "", errors.New(errors.ErrConfig,
			"Can't prompt for a password without a terminal",
			"Run the command interactively, or set FLEET_DEPLOY_PASSWORD")
	}

	var password string
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title(title).
				EchoMode(huh.EchoModePassword).
				Value(&password).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New(errors.ErrConfig, "Password can't be empty", "")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return "", errors.WrapWithCode(err, errors.ErrConfig, "Password prompt cancelled", "")
	}
	return password, nil
}

// Confirm asks a yes/no question. Without a terminal it returns def.
func Confirm(title string, def bool) (bool, error) {
	if !stdinIsTerminal() {
		return def, nil
	}

	answer := def
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Affirmative("Yes").
				Negative("No").
				Value(&answer),
		),
	)
	if err := form.Run(); err != nil {
		return false, errors.WrapWithCode(err, errors.ErrConfig, "Prompt cancelled", "")
	}
	return answer, nil
}
