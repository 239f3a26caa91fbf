package main

import (
	"fmt"

	"github.com/germanamz/mender/pkg/engine"
	"github.com/germanamz/mender/pkg/logging"
	"github.com/germanamz/mender/pkg/tools/editor"
	"github.com/germanamz/mender/pkg/tools/mcpserver"
	"github.com/spf13/cobra"
)

const mcpInstructions = `mender fixes code with a local Ollama model.
Use fix_file to correct a line range of a file in place (it returns a diff and
refuses to write if the range changed meanwhile), fix_code for a snippet,
chat for questions, check_status and list_models to inspect the server.`

func newMCPCmd(a *app, version string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve mender tools over MCP on stdio",
		Long: `Run mender as an MCP (Model Context Protocol) server over stdin/stdout for
editor integration. Missing models are handled with reconcile.fallback_action
from the config since there is no terminal to ask on.

Editor configuration:

  {
    "mcpServers": {
      "mender": {
        "command": "mender",
        "args": ["mcp"]
      }
    }
  }`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := a.logger
			if a.logFile == "" {
				level := "info"
				if cfg, err := a.source.Load(); err == nil {
					level = cfg.LogLevel
				}

				if a.verbose {
					level = "debug"
				}

				log = logging.New(level, a.errOut)
			}

			eng := engine.New(a.source, engine.WithLogger(log))

			server := mcpserver.New("mender", version,
				mcpserver.WithInstructions(mcpInstructions),
				mcpserver.WithLogger(log),
			)
			server.RegisterToolBox(editor.New(eng).Tools())

			log.Info("starting MCP server on stdio", "config", a.source.Path)

			if err := server.Serve(cmd.Context(), a.in, a.out); err != nil {
				return fmt.Errorf("mcp server: %w", err)
			}

			return nil
		},
	}
}
