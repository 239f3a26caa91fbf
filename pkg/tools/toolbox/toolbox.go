package toolbox

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
)

// ToolBox holds the tools a frontend exposes, keyed by name.
type ToolBox struct {
	tools map[string]Tool
}

// New creates a new ToolBox ready for use.
func New() *ToolBox {
	return &ToolBox{
		tools: make(map[string]Tool),
	}
}

// Register adds one or more tools to the ToolBox. If a tool with the same name
// already exists, it is replaced.
func (tb *ToolBox) Register(tools ...Tool) {
	for _, t := range tools {
		tb.tools[t.Name] = t
	}
}

// Get returns a tool by name and a boolean indicating whether it was found.
func (tb *ToolBox) Get(name string) (Tool, bool) {
	t, ok := tb.tools[name]
	return t, ok
}

// Tools returns all registered tools sorted by name.
func (tb *ToolBox) Tools() []Tool {
	result := make([]Tool, 0, len(tb.tools))
	for _, t := range tb.tools {
		result = append(result, t)
	}

	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })

	return result
}

// Call runs the named tool. An unknown tool or a handler error yields a
// Result with IsError set.
func (tb *ToolBox) Call(ctx context.Context, name string, input json.RawMessage) Result {
	t, ok := tb.tools[name]
	if !ok {
		return Result{Name: name, Text: fmt.Sprintf("tool not found: %s", name), IsError: true}
	}

	text, err := t.Handler(ctx, input)
	if err != nil {
		return Result{Name: name, Text: err.Error(), IsError: true}
	}

	return Result{Name: name, Text: text}
}
