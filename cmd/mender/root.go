package main

import (
	"github.com/spf13/cobra"
)

// newRootCmd creates the root command with every subcommand registered.
func newRootCmd(version string) *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:   "mender",
		Short: "Fix code and chat with a local Ollama model",
		Long: `mender sends code to a model served by Ollama and writes the fix back.

Examples:
  mender fix main.go --lines 10:24
  mender fix script.py --dry-run
  mender chat
  mender status --watch
  mender mcp`,
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	rootCmd.AddCommand(
		newFixCmd(a),
		newChatCmd(a),
		newStatusCmd(a),
		newModelsCmd(a),
		newMCPCmd(a, version),
		newConfigCmd(a),
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "path to the configuration file (default: $MENDER_CONFIG, .mender.yaml or the user config dir)")
	flags.StringVar(&a.envFile, "env", ".env", "path to a .env file (ignored if missing)")
	flags.StringVar(&a.logFile, "log-file", "", "append JSON logs to this file")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log debug output to stderr")
	flags.BoolVar(&a.waitInstall, "wait-install", false, "when a request starts a model install, wait for it to finish before exiting")

	return rootCmd
}
