package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and edit the configuration file",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "path",
			Short: "Print the configuration file in use",
			Args:  cobra.NoArgs,
			Run: func(*cobra.Command, []string) {
				fmt.Fprintln(a.out, a.source.Path)
			},
		},
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration as YAML",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				cfg, err := a.source.Load()
				if err != nil {
					return err
				}

				if err := cfg.Validate(); err != nil {
					fmt.Fprintln(a.errOut, errorStyle.Render("✗ "+err.Error()))
				}

				return yaml.NewEncoder(a.out).Encode(cfg)
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Set a top-level string value, keeping the rest of the file intact",
			Example: `  mender config set model llama3:8b
  mender config set base_url http://gpu-box:11434`,
			Args: cobra.ExactArgs(2), //nolint:mnd // KEY VALUE
			RunE: func(_ *cobra.Command, args []string) error {
				if err := a.source.SetValue(args[0], args[1]); err != nil {
					return err
				}

				cfg, err := a.source.Load()
				if err != nil {
					return err
				}

				return cfg.Validate()
			},
		},
		&cobra.Command{
			Use:   "init",
			Short: "Write the default configuration if no file exists",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				if err := a.source.Init(); err != nil {
					return err
				}

				fmt.Fprintln(a.errOut, infoStyle.Render("• wrote "+a.source.Path))

				return nil
			},
		},
	)

	return cmd
}
