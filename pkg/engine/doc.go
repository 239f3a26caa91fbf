// Package engine is the composition root that assembles the mender
// components from configuration and exposes fix, chat, status and catalog
// operations through a frontend-agnostic API. Frontends (CLI, MCP server)
// interact with Engine, observe activity through an EventBus, and receive
// every outcome as an outcome.Result.
//
// Configuration is re-read from a ConfigSource at the start of every call.
// Before a completion is dispatched the configured model is checked against
// the server catalog and, when missing, the reconcile flow decides whether
// to install it, switch to another model or give up.
package engine
