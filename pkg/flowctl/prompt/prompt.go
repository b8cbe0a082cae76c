// Package prompt asks the operator for input during interactive runs.
package prompt

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/huh"
)

// ErrAborted is returned when the operator cancels a prompt.
var ErrAborted = errors.New("prompt aborted")

// Choice is one entry of a selection prompt.
type Choice struct {
	Label string
	Value string
}

type Prompter interface {
	// ConfirmToken asks the operator to type token exactly. Anything else is
	// a refusal.
	ConfirmToken(title, description, token string) (bool, error)
	Confirm(title string) (bool, error)
	Input(title, placeholder string, validate func(string) error) (string, error)
	Select(title string, choices []Choice) (string, error)
	MultiSelect(title string, choices []Choice) ([]string, error)
	// Lines collects one value per line; blank lines are dropped.
	Lines(title, description string) ([]string, error)
}

// Form renders prompts with huh.
type Form struct {
	In         io.Reader
	Out        io.Writer
	Accessible bool
	Theme      *huh.Theme
}

func (f *Form) run(fields ...huh.Field) error {
	form := huh.NewForm(huh.NewGroup(fields...)).WithAccessible(f.Accessible)
	if f.Theme != nil {
		form = form.WithTheme(f.Theme)
	} else {
		form = form.WithTheme(huh.ThemeDracula())
	}
	if f.In != nil {
		form = form.WithInput(f.In)
	}
	if f.Out != nil {
		form = form.WithOutput(f.Out)
	}
	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return ErrAborted
		}
		return err
	}
	return nil
}

func (f *Form) ConfirmToken(title, description, token string) (bool, error) {
	var typed string
	err := f.run(
		huh.NewInput().
			Title(title).
			Description(fmt.Sprintf("%s\nType '%s' to confirm:", description, token)).
			Value(&typed),
	)
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(typed) == token, nil
}

func (f *Form) Confirm(title string) (bool, error) {
	var ok bool
	err := f.run(huh.NewConfirm().Title(title).Affirmative("Yes").Negative("No").Value(&ok))
	return ok, err
}

func (f *Form) Input(title, placeholder string, validate func(string) error) (string, error) {
	var value string
	input := huh.NewInput().Title(title).Placeholder(placeholder).Value(&value)
	if validate != nil {
		input = input.Validate(validate)
	}
	if err := f.run(input); err != nil {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func huhOptions(choices []Choice) []huh.Option[string] {
	options := make([]huh.Option[string], 0, len(choices))
	for _, c := range choices {
		options = append(options, huh.NewOption(c.Label, c.Value))
	}
	return options
}

func (f *Form) Select(title string, choices []Choice) (string, error) {
	var value string
	if len(choices) > 0 {
		value = choices[0].Value
	}
	err := f.run(huh.NewSelect[string]().Title(title).Options(huhOptions(choices)...).Value(&value))
	return value, err
}

func (f *Form) MultiSelect(title string, choices []Choice) ([]string, error) {
	var values []string
	err := f.run(
		huh.NewMultiSelect[string]().
			Title(title).
			Options(huhOptions(choices)...).
			Filterable(true).
			Value(&values),
	)
	return values, err
}

func (f *Form) Lines(title, description string) ([]string, error) {
	var text string
	err := f.run(huh.NewText().Title(title).Description(description).Value(&text))
	if err != nil {
		return nil, err
	}
	return SplitLines(text), nil
}

// SplitLines trims every line and drops empty ones.
func SplitLines(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
