package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
)

// Handler executes a tool with the given JSON input and returns a text result.
type Handler func(ctx context.Context, input json.RawMessage) (string, error)

// Tool is an operation exposed to editors: a name, a description, a JSON
// Schema for its arguments, and a handler.
type Tool struct {
	Name        string
	Description string
	InputSchema json.RawMessage
	Handler     Handler
}

// Result is the outcome of calling a tool.
type Result struct {
	Name    string
	Text    string
	IsError bool
}

// Decode unmarshals tool arguments into T. Empty input decodes as {}.
func Decode[T any](input json.RawMessage) (T, error) {
	var v T
	if len(input) == 0 {
		return v, nil
	}

	if err := json.Unmarshal(input, &v); err != nil {
		return v, fmt.Errorf("invalid arguments: %w", err)
	}

	return v, nil
}
