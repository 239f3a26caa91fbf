package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	osexec "os/exec"
	"strings"
	"sync"

	"github.com/germanamz/mender/pkg/ollama"
)

// ModelPlaceholder is replaced with the model name in install commands.
const ModelPlaceholder = "{model}"

// DefaultInstallCommands pulls the model with the ollama CLI.
func DefaultInstallCommands() []string {
	return []string{"ollama pull " + ModelPlaceholder}
}

// ErrNoInstaller is returned when none of the configured installers can run.
var ErrNoInstaller = errors.New("reconcile: no installer available")

// CommandInstaller runs a sequence of external commands in the background.
// Each command is split on whitespace after substituting {model}.
type CommandInstaller struct {
	Commands []string
	Output   io.Writer // Combined stdout/stderr of every command; nil means the null device.
	Logger   *slog.Logger

	mu   sync.Mutex
	wg   sync.WaitGroup
	errs []error
}

func (c *CommandInstaller) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}

	return c.Logger
}

func (c *CommandInstaller) argv(model string) ([][]string, error) {
	cmds := c.Commands
	if len(cmds) == 0 {
		cmds = DefaultInstallCommands()
	}

	out := make([][]string, 0, len(cmds))
	for _, raw := range cmds {
		fields := strings.Fields(strings.ReplaceAll(raw, ModelPlaceholder, model))
		if len(fields) == 0 {
			continue
		}

		out = append(out, fields)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("reconcile: no install commands configured")
	}

	return out, nil
}

// Install checks that the first program exists and starts the sequence. It
// returns without waiting; the sequence stops at the first failing command.
// The commands outlive ctx cancellation.
func (c *CommandInstaller) Install(ctx context.Context, model string) error {
	argv, err := c.argv(model)
	if err != nil {
		return err
	}

	if _, err := osexec.LookPath(argv[0][0]); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrNoInstaller, argv[0][0], err)
	}

	bg := context.WithoutCancel(ctx)
	log := c.logger().With("model", model)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		for _, args := range argv {
			log.Info("running install command", "command", strings.Join(args, " "))

			cmd := osexec.CommandContext(bg, args[0], args[1:]...) //nolint:gosec // commands come from the user's config
			cmd.Stdout = c.Output
			cmd.Stderr = c.Output

			if err := cmd.Run(); err != nil {
				log.Error("install command failed", "command", args[0], "error", err)

				c.mu.Lock()
				c.errs = append(c.errs, fmt.Errorf("reconcile: %s: %w", args[0], err))
				c.mu.Unlock()

				return
			}
		}

		log.Info("model install finished")
	}()

	return nil
}

// Wait blocks until every started install sequence has finished and returns
// the joined errors of the sequences that stopped early.
func (c *CommandInstaller) Wait() error {
	c.wg.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()

	return errors.Join(c.errs...)
}

// APIInstaller pulls the model through the server's /api/pull endpoint.
type APIInstaller struct {
	Client   *ollama.Client
	BaseURL  string
	Progress func(ollama.PullProgress) // Optional.
	Logger   *slog.Logger

	mu   sync.Mutex
	wg   sync.WaitGroup
	errs []error
}

// Install starts the pull in the background and returns immediately.
func (a *APIInstaller) Install(ctx context.Context, model string) error {
	if a.Client == nil {
		return fmt.Errorf("%w: no client", ErrNoInstaller)
	}

	if _, err := ollama.NormalizeBaseURL(a.BaseURL); err != nil {
		return err
	}

	bg := context.WithoutCancel(ctx)

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		if err := a.Client.Pull(bg, a.BaseURL, model, a.Progress); err != nil {
			if a.Logger != nil {
				a.Logger.Error("model pull failed", "model", model, "error", err)
			}

			a.mu.Lock()
			a.errs = append(a.errs, err)
			a.mu.Unlock()
		}
	}()

	return nil
}

// Wait blocks until every started pull has finished and returns their
// joined errors.
func (a *APIInstaller) Wait() error {
	a.wg.Wait()

	a.mu.Lock()
	defer a.mu.Unlock()

	return errors.Join(a.errs...)
}

// Chain tries each installer in order and uses the first that starts.
type Chain []Installer

// Install starts the first installer that accepts the model.
func (c Chain) Install(ctx context.Context, model string) error {
	var errs []error
	for _, in := range c {
		err := in.Install(ctx, model)
		if err == nil {
			return nil
		}

		errs = append(errs, err)
	}

	if len(errs) == 0 {
		return ErrNoInstaller
	}

	return errors.Join(errs...)
}
