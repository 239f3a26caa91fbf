package mcpserver

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"time"

	"github.com/germanamz/mender/pkg/tools/toolbox"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// MCPServer serves toolbox tools over the MCP protocol using the official MCP
// Go SDK.
type MCPServer struct {
	server *mcp.Server
	logger *slog.Logger
}

// Option configures an MCPServer.
type Option func(*options)

type options struct {
	instructions string
	logger       *slog.Logger
}

// WithInstructions sets the usage hint sent to clients on initialization.
func WithInstructions(s string) Option { return func(o *options) { o.instructions = s } }

// WithLogger logs every tool call.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

// New creates a new MCPServer with the given name and version.
func New(name, version string, opts ...Option) *MCPServer {
	var o options
	for _, fn := range opts {
		fn(&o)
	}

	if o.logger == nil {
		o.logger = slog.New(slog.DiscardHandler)
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    name,
		Version: version,
	}, &mcp.ServerOptions{Instructions: o.instructions})

	return &MCPServer{server: server, logger: o.logger}
}

// Register adds tools to the server.
func (s *MCPServer) Register(tools ...toolbox.Tool) {
	for _, t := range tools {
		s.server.AddTool(toSDKTool(t), s.toSDKHandler(t.Name, t.Handler))
	}
}

// RegisterToolBox adds every tool of tb.
func (s *MCPServer) RegisterToolBox(tb *toolbox.ToolBox) {
	s.Register(tb.Tools()...)
}

// Serve starts serving MCP requests. It reads requests from in and writes
// responses to out. It blocks until ctx is cancelled or the transport closes.
func (s *MCPServer) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	transport := &mcp.IOTransport{
		Reader: io.NopCloser(in),
		Writer: nopWriteCloser{out},
	}

	return s.run(ctx, transport)
}

// run starts the server with the given transport. Tests call it with an
// in-memory transport.
func (s *MCPServer) run(ctx context.Context, transport mcp.Transport) error {
	return s.server.Run(ctx, transport)
}

// toSDKTool converts a toolbox.Tool to an SDK *mcp.Tool.
func toSDKTool(t toolbox.Tool) *mcp.Tool {
	schema := t.InputSchema
	if len(schema) == 0 {
		schema = json.RawMessage(`{"type":"object"}`)
	}

	return &mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: schema,
	}
}

// toSDKHandler wraps a toolbox.Handler as an SDK ToolHandler. Handler errors
// become tool results with IsError set so the client sees the message.
func (s *MCPServer) toSDKHandler(name string, h toolbox.Handler) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args := req.Params.Arguments
		if args == nil {
			args = json.RawMessage("{}")
		}

		start := time.Now()
		result, err := h(ctx, args)
		log := s.logger.With("tool", name, "duration", time.Since(start))

		if err != nil {
			log.Warn("tool call failed", "error", err)

			return &mcp.CallToolResult{
				Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				IsError: true,
			}, nil
		}

		log.Info("tool call finished")

		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: result}},
		}, nil
	}
}

// nopWriteCloser wraps an io.Writer as an io.WriteCloser with a no-op Close.
type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
