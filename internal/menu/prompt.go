package menu

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"
	"golang.org/x/term"
)

// accessible switches huh to plain line prompts when stdin is piped.
func accessible() bool {
	return !term.IsTerminal(int(os.Stdin.Fd()))
}

func runField(field huh.Field) error {
	err := huh.NewForm(huh.NewGroup(field)).WithAccessible(accessible()).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return ErrCancelled
	}
	return err
}

// Input asks for a non-empty line of text. The prompt starts out holding
// def, and an answer left blank falls back to def.
func Input(title, description, def string) (string, error) {
	value := def
	field := huh.NewInput().
		Title(title).
		Description(description).
		Value(&value).
		Validate(func(s string) error {
			if strings.TrimSpace(s) == "" && def == "" {
				return fmt.Errorf("a value is required")
			}
			return nil
		})
	if err := runField(field); err != nil {
		return "", err
	}

	value = strings.TrimSpace(value)
	if value == "" {
		value = def
	}
	return value, nil
}

// InputInt asks for an integer in [lo, hi].
func InputInt(title string, def, lo, hi int) (int, error) {
	value := strconv.Itoa(def)
	field := huh.NewInput().
		Title(title).
		Description(fmt.Sprintf(">=%d, <=%d", lo, hi)).
		Value(&value).
		Validate(func(s string) error {
			_, err := parseBounded(s, def, lo, hi)
			return err
		})
	if err := runField(field); err != nil {
		return 0, err
	}
	return parseBounded(value, def, lo, hi)
}

// parseBounded reads an integer answer. Blank selects def.
func parseBounded(s string, def, lo, hi int) (int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("must be between %d and %d", lo, hi)
	}
	return n, nil
}

// Confirm asks a yes/no question.
func Confirm(title string, def bool) (bool, error) {
	value := def
	field := huh.NewConfirm().
		Title(title).
		Affirmative("Yes").
		Negative("No").
		Value(&value)
	if err := runField(field); err != nil {
		return false, err
	}
	return value, nil
}
