package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
	"unicode"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"

	"github.com/fieldscribe/fieldscribe/internal/types"
)

// Operators offered by the registration form.
var Operators = []string{"Airtel", "Jio", "Vodafone Idea", "BSNL", "Other"}

// IsTerminal reports whether r is an interactive terminal.
func IsTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// RegistrationForm collects a new account. Fields already set on initial are
// pre-filled. Non-terminal input uses huh's accessible line mode.
func RegistrationForm(in io.Reader, out io.Writer, initial types.RegistrationRequest) (types.RegistrationRequest, error) {
	req := initial
	if req.Operator == "" {
		req.Operator = Operators[0]
	}

	options := make([]huh.Option[string], 0, len(Operators))
	for _, op := range Operators {
		options = append(options, huh.NewOption(op, op))
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Value(&req.Name).
				Validate(ValidateName),
			huh.NewInput().
				Title("Mobile number").
				Description("Digits only, with or without a leading +").
				Value(&req.Mobile).
				Validate(ValidateMobile),
			huh.NewSelect[string]().
				Title("Operator").
				Options(options...).
				Value(&req.Operator),
			huh.NewInput().
				Title("Password").
				EchoMode(huh.EchoModePassword).
				Value(&req.Password).
				Validate(ValidatePassword),
		),
	).
		WithInput(in).
		WithOutput(out)

	if !IsTerminal(in) {
		form = form.WithAccessible(true)
	}

	if err := form.Run(); err != nil {
		return types.RegistrationRequest{}, fmt.Errorf("registration form failed: %w", err)
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Mobile = strings.TrimSpace(req.Mobile)
	return req, nil
}

// ValidateName requires a non-blank name.
func ValidateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("name is required")
	}
	return nil
}

// ValidateMobile accepts 7 to 15 digits with an optional leading +.
func ValidateMobile(s string) error {
	s = strings.TrimPrefix(strings.TrimSpace(s), "+")
	if len(s) < 7 || len(s) > 15 {
		return fmt.Errorf("mobile number must have 7 to 15 digits")
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return fmt.Errorf("mobile number may only contain digits")
		}
	}
	return nil
}

// ValidatePassword requires at least 6 characters.
func ValidatePassword(s string) error {
	if len(s) < 6 {
		return fmt.Errorf("password must have at least 6 characters")
	}
	return nil
}
