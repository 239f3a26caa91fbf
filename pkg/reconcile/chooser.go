package reconcile

import (
	"context"
	"slices"
)

// StaticChooser answers every prompt from configuration. It backs
// non-interactive runs such as the MCP server.
type StaticChooser struct {
	Action Action
	Model  string // Preferred switch target; empty means first installed.
}

// Choose returns the configured action.
func (s StaticChooser) Choose(context.Context, string, []string) (Action, error) {
	return s.Action, nil
}

// PickModel returns the preferred model when installed, the first installed
// model when no preference is set, and "" otherwise.
func (s StaticChooser) PickModel(_ context.Context, installed []string) (string, error) {
	if s.Model != "" {
		if slices.Contains(installed, s.Model) {
			return s.Model, nil
		}

		return "", nil
	}

	if len(installed) == 0 {
		return "", nil
	}

	return installed[0], nil
}
