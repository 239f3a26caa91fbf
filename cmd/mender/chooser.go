package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"
	"github.com/germanamz/mender/pkg/reconcile"
)

// promptChooser asks how to recover from a missing model with a huh form.
// Aborting the form dismisses the request.
type promptChooser struct {
	screen *screen
}

func (c promptChooser) Choose(ctx context.Context, model string, installed []string) (reconcile.Action, error) {
	options := []huh.Option[reconcile.Action]{
		huh.NewOption(fmt.Sprintf("Install %s", model), reconcile.ActionInstall),
	}

	if len(installed) > 0 {
		options = append(options, huh.NewOption("Switch to an installed model", reconcile.ActionSwitch))
	}

	options = append(options, huh.NewOption("Dismiss", reconcile.ActionDismiss))

	action := reconcile.ActionDismiss

	err := c.screen.suspend(func() error {
		return huh.NewForm(huh.NewGroup(
			huh.NewSelect[reconcile.Action]().
				Title(fmt.Sprintf("Model %q is not installed", model)).
				Options(options...).
				Value(&action),
		)).RunWithContext(ctx)
	})
	if errors.Is(err, huh.ErrUserAborted) {
		return reconcile.ActionDismiss, nil
	}

	return action, err
}

func (c promptChooser) PickModel(ctx context.Context, installed []string) (string, error) {
	if len(installed) == 0 {
		return "", nil
	}

	picked := installed[0]

	err := c.screen.suspend(func() error {
		return huh.NewForm(huh.NewGroup(
			huh.NewSelect[string]().
				Title("Switch to").
				Options(huh.NewOptions(installed...)...).
				Value(&picked),
		)).RunWithContext(ctx)
	})
	if errors.Is(err, huh.ErrUserAborted) {
		return "", nil
	}

	return picked, err
}

// confirm asks a yes/no question. Aborting answers no.
func (a *app) confirm(title string) (bool, error) {
	ok := false

	err := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title(title).
			Affirmative("Write").
			Negative("Skip").
			Value(&ok),
	)).Run()
	if errors.Is(err, huh.ErrUserAborted) {
		return false, nil
	}

	return ok, err
}
