package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"github.com/eidwallet/eidwallet/internal/greet"
)

// Greet invokes the greet command. Without a name the user is prompted.
func (c *Controller) Greet(ctx context.Context, name string, opts ...tea.ProgramOption) error {
	if name == "" {
		var err error
		if name, err = promptName(opts...); err != nil {
			return fmt.Errorf("failed to read name: %w", err)
		}
	}

	a, err := c.launch(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var greeting string
	if err := a.Call(ctx, greet.CommandName, greet.Args{Name: name}, &greeting); err != nil {
		return err
	}
	fmt.Fprintln(c.output(), greeting)
	return nil
}

func promptName(opts ...tea.ProgramOption) (string, error) {
	var name string
	form := nameForm(&name)

	if len(opts) > 0 {
		if _, err := tea.NewProgram(form, opts...).Run(); err != nil {
			return "", err
		}
	} else if err := form.Run(); err != nil {
		return "", err
	}

	if name == "" {
		return "", errors.New("no name given")
	}
	return name, nil
}

func nameForm(name *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Name").
				Description("Who should be greeted?").
				Value(name).
				Validate(validateName),
		),
	)
}

func validateName(s string) error {
	if strings.TrimSpace(s) == "" {
		return errors.New("name cannot be empty")
	}
	return nil
}
