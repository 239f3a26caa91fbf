package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/germanamz/mender/pkg/edit"
	"github.com/germanamz/mender/pkg/engine"
	"github.com/germanamz/mender/pkg/logging"
	"github.com/germanamz/mender/pkg/outcome"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// errReported is returned once the failure has already been shown.
var errReported = errors.New("reported")

// app holds what every subcommand shares: flags, streams and the config
// source. Engines are built per command since the MCP server needs different
// wiring than the terminal commands.
type app struct {
	configPath string
	envFile    string
	logFile    string
	verbose    bool

	// waitInstall keeps a command running until a model install it started
	// has finished.
	waitInstall bool

	in          io.Reader
	out         io.Writer
	errOut      io.Writer
	interactive bool

	source  *engine.FileSource
	logger  *slog.Logger
	closers []func() error
	editor  *edit.Editor
	screen  *screen

	// noted is set once a notification has told the user about the request's
	// outcome, so a failure is not printed a second time.
	noted atomic.Bool
}

func (a *app) setup(cmd *cobra.Command) error {
	if err := loadDotEnv(a.envFile); err != nil {
		return err
	}

	a.in = cmd.InOrStdin()
	a.out = cmd.OutOrStdout()
	a.errOut = cmd.ErrOrStderr()
	a.interactive = isTerminal(a.in) && isTerminal(a.out)
	a.source = engine.NewFileSource(resolveConfigPath(a.configPath))
	a.editor = edit.New()
	a.screen = &screen{}

	level := "info"
	if cfg, err := a.source.Load(); err == nil && cfg.LogLevel != "" {
		level = cfg.LogLevel
	}

	switch {
	case a.logFile != "":
		fl, err := logging.NewFileLogger(a.logFile, level)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}

		a.logger = fl.Logger
		a.closers = append(a.closers, fl.Close)
	case a.verbose:
		a.logger = logging.New("debug", a.errOut)
	default:
		a.logger = logging.Nop()
	}

	return nil
}

func (a *app) close() {
	for _, c := range a.closers {
		_ = c()
	}

	a.closers = nil
}

// newEngine builds the engine used by the terminal commands. Choices are
// asked interactively when a terminal is attached and notifications print to
// stderr.
func (a *app) newEngine() *engine.Engine {
	opts := []engine.Option{
		engine.WithLogger(a.logger),
		engine.WithNotifier(engine.NotifierFunc(a.notify)),
	}

	if a.interactive {
		opts = append(opts, engine.WithChooser(promptChooser{screen: a.screen}))
	}

	if a.verbose {
		opts = append(opts, engine.WithInstallOutput(a.errOut))
	}

	return engine.New(a.source, opts...)
}

// notify prints a user notification, above the spinner when one is running.
func (a *app) notify(sev engine.Severity, msg string) {
	a.noted.Store(true)

	line := infoStyle.Render("• " + msg)
	if sev == engine.SeverityError {
		line = errorStyle.Render("✗ " + msg)
	}

	if !a.screen.println(line) {
		fmt.Fprintln(a.errOut, line)
	}
}

// check turns a finished result into the command's error.
func (a *app) check(res outcome.Result) error {
	switch {
	case res.OK():
		a.noted.Store(false)
		return nil
	case res.IsCancelled():
		fmt.Fprintln(a.errOut, dimStyle.Render("cancelled"))
		return errReported
	case a.noted.Swap(false):
		return errReported
	default:
		return res.Err()
	}
}

// isTerminal reports whether v is a file attached to a terminal.
func isTerminal(v any) bool {
	f, ok := v.(*os.File)

	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // fd fits in int
}
