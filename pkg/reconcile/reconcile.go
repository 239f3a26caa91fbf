// Package reconcile recovers from a configured model that is not installed.
//
// [Flow.Resolve] checks the catalog. When the model is missing it asks a
// [Chooser] whether to install it, switch to an installed model or give up.
// Installing starts an [Installer] without waiting for it. Switching
// persists the new model through a [ModelStore] and hands the choice back so
// the caller can re-issue its request.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// State is a step of the reconciliation state machine.
type State int

const (
	Checking State = iota
	Available
	Skipped
	Missing
	AwaitingUserChoice
	Installing
	SwitchingModel
	Declined
)

var stateNames = [...]string{
	Checking:           "checking",
	Available:          "available",
	Skipped:            "skipped",
	Missing:            "missing",
	AwaitingUserChoice: "awaiting_user_choice",
	Installing:         "installing",
	SwitchingModel:     "switching_model",
	Declined:           "declined",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}

	return stateNames[s]
}

// Proceed reports whether the caller may dispatch its request with
// Decision.Model.
func (s State) Proceed() bool {
	return s == Available || s == Skipped || s == SwitchingModel
}

// Action is the user's answer to a missing model.
type Action int

const (
	ActionDismiss Action = iota
	ActionInstall
	ActionSwitch
)

func (a Action) String() string {
	switch a {
	case ActionInstall:
		return "install"
	case ActionSwitch:
		return "switch"
	default:
		return "dismiss"
	}
}

// ParseAction maps a configuration value onto an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "dismiss":
		return ActionDismiss, nil
	case "install":
		return ActionInstall, nil
	case "switch":
		return ActionSwitch, nil
	default:
		return ActionDismiss, fmt.Errorf("reconcile: unknown action %q (want install, switch or dismiss)", s)
	}
}

// Catalog lists installed model names.
type Catalog interface {
	Models(ctx context.Context) ([]string, error)
}

// CatalogFunc adapts a function to Catalog.
type CatalogFunc func(ctx context.Context) ([]string, error)

// Models calls f.
func (f CatalogFunc) Models(ctx context.Context) ([]string, error) { return f(ctx) }

// Chooser asks the user how to recover. Both calls may block indefinitely.
type Chooser interface {
	Choose(ctx context.Context, model string, installed []string) (Action, error)
	PickModel(ctx context.Context, installed []string) (string, error)
}

// Installer starts installing a model and returns without waiting for it.
type Installer interface {
	Install(ctx context.Context, model string) error
}

// ModelStore persists the configured model name.
type ModelStore interface {
	SetModel(model string) error
}

// ModelStoreFunc adapts a function to ModelStore.
type ModelStoreFunc func(model string) error

// SetModel calls f.
func (f ModelStoreFunc) SetModel(model string) error { return f(model) }

// Decision is the outcome of Resolve.
type Decision struct {
	State   State
	Model   string // Model to dispatch with when State.Proceed().
	Message string // User-facing explanation for Installing and Declined.
}

// Flow runs the reconciliation state machine.
type Flow struct {
	Catalog   Catalog
	Chooser   Chooser
	Installer Installer  // Optional; without it install requests are declined.
	Store     ModelStore // Optional; without it switches are not persisted.
	Logger    *slog.Logger
}

func (f *Flow) logger() *slog.Logger {
	if f.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return f.Logger
}

// Resolve checks that model is installed and, if not, walks the user through
// recovery. An unreachable catalog skips the check.
func (f *Flow) Resolve(ctx context.Context, model string) Decision {
	log := f.logger().With("model", model)

	log.Debug("reconcile", "state", Checking)

	installed, err := f.Catalog.Models(ctx)
	if err != nil {
		log.Warn("model check skipped, catalog unreachable", "error", err)
		return Decision{State: Skipped, Model: model}
	}

	for _, name := range installed {
		if name == model {
			return Decision{State: Available, Model: model}
		}
	}

	log.Info("reconcile", "state", Missing, "installed", len(installed))

	if f.Chooser == nil {
		return declined(model)
	}

	log.Debug("reconcile", "state", AwaitingUserChoice)

	action, err := f.Chooser.Choose(ctx, model, installed)
	if err != nil {
		log.Warn("model choice aborted", "error", err)
		return declined(model)
	}

	switch action {
	case ActionInstall:
		return f.install(ctx, log, model)
	case ActionSwitch:
		return f.switchModel(ctx, log, model, installed)
	default:
		return declined(model)
	}
}

func (f *Flow) install(ctx context.Context, log *slog.Logger, model string) Decision {
	if f.Installer == nil {
		return Decision{State: Declined, Model: model, Message: fmt.Sprintf("model %q not installed and no installer is available", model)}
	}

	if err := f.Installer.Install(ctx, model); err != nil {
		log.Error("model install failed to start", "error", err)
		return Decision{State: Declined, Model: model, Message: fmt.Sprintf("could not start installing model %q: %v", model, err)}
	}

	log.Info("reconcile", "state", Installing)

	return Decision{
		State:   Installing,
		Model:   model,
		Message: fmt.Sprintf("installing model %q; run the request again once it finishes", model),
	}
}

func (f *Flow) switchModel(ctx context.Context, log *slog.Logger, model string, installed []string) Decision {
	picked, err := f.Chooser.PickModel(ctx, installed)
	if err != nil {
		log.Warn("model pick aborted", "error", err)
		return declined(model)
	}

	if picked == "" {
		return declined(model)
	}

	if f.Store != nil {
		if err := f.Store.SetModel(picked); err != nil {
			log.Error("persisting model choice failed", "picked", picked, "error", err)
		}
	}

	log.Info("reconcile", "state", SwitchingModel, "picked", picked)

	return Decision{State: SwitchingModel, Model: picked}
}

func declined(model string) Decision {
	return Decision{State: Declined, Model: model, Message: fmt.Sprintf("model %q not installed", model)}
}
