// Package modeladapter provides the HTTP base shared by model server clients.
//
// It contains:
//   - [ModelAdapter], with request building, auth, custom headers and JSON helpers
//   - [APIError] for non-2xx responses and [TransportError] for requests that got no response
//   - [github.com/germanamz/mender/pkg/modeladapter/usage], a thread-safe token usage tracker
//
// This package contains no server-specific code. The Ollama client in
// pkg/ollama builds on it.
package modeladapter
