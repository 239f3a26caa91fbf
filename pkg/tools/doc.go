// Package tools exposes mender operations to editors over MCP (Model Context
// Protocol).
//
// It is organized into sub-packages:
//   - [github.com/germanamz/mender/pkg/tools/toolbox]: Tool type and ToolBox for registering, listing, and calling tools
//   - [github.com/germanamz/mender/pkg/tools/editor]: the fix_code, fix_file, chat, check_status and list_models tools backed by an engine
//   - [github.com/germanamz/mender/pkg/tools/mcpserver]: MCP server using the official MCP Go SDK for exposing tools over stdio
//
// The toolbox sub-package is the foundation layer; editor builds tools and
// mcpserver serves them, and the two are independent of each other.
package tools
