package main

import (
	"context"
	"fmt"
	"time"

	"github.com/germanamz/mender/pkg/engine"
	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
)

func newStatusCmd(a *app) *cobra.Command {
	var (
		watch bool
		every time.Duration
	)

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Report whether the Ollama server is reachable",
		Long: `Ping the configured Ollama server. With --watch, keep polling and print a
line whenever the state changes.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.status(cmd.Context(), watch, every)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "keep polling until interrupted")
	cmd.Flags().DurationVar(&every, "every", 0, "poll interval (default: status.interval from the config)")

	return cmd
}

func (a *app) status(ctx context.Context, watch bool, every time.Duration) error {
	eng := a.newEngine()

	cfg, err := a.source.Load()
	if err != nil {
		return err
	}

	up := eng.CheckStatus(ctx)
	a.printStatus(cfg.BaseURL, up)

	if !watch {
		if !up {
			return errReported
		}

		return nil
	}

	if every <= 0 {
		if every, err = cfg.StatusInterval(); err != nil {
			return err
		}
	}

	return a.watchStatus(ctx, eng, every, up)
}

// watchStatus polls on a cron schedule until ctx is done. Overlapping polls
// are skipped.
func (a *app) watchStatus(ctx context.Context, eng *engine.Engine, every time.Duration, last bool) error {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc("@every "+every.String(), func() {
		up := eng.CheckStatus(ctx)
		if up == last || ctx.Err() != nil {
			return
		}

		last = up

		base := ""
		if cfg, err := a.source.Load(); err == nil {
			base = cfg.BaseURL
		}

		a.printStatus(base, up)
	})
	if err != nil {
		return fmt.Errorf("schedule status check: %w", err)
	}

	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()

	return nil
}

func (a *app) printStatus(baseURL string, up bool) {
	stamp := dimStyle.Render(time.Now().Format(time.TimeOnly))

	if up {
		fmt.Fprintf(a.out, "%s %s Ollama is running at %s\n", stamp, upStyle.Render("●"), baseURL)
		return
	}

	fmt.Fprintf(a.out, "%s %s Ollama is not reachable at %s\n", stamp, downStyle.Render("○"), baseURL)
}
