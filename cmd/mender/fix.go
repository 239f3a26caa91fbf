package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/germanamz/mender/pkg/edit"
	"github.com/germanamz/mender/pkg/outcome"
	"github.com/germanamz/mender/pkg/prompt"
	"github.com/spf13/cobra"
)

type fixOptions struct {
	lines  string
	lang   string
	dryRun bool
	yes    bool
	print  bool
}

func newFixCmd(a *app) *cobra.Command {
	var opts fixOptions

	cmd := &cobra.Command{
		Use:   "fix FILE",
		Short: "Fix a file or a line range of it",
		Long: `Send a file, or the lines selected with --lines, to the model and show the
fix as a diff. The fix is only written if the selected lines are unchanged
when the model answers.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.fix(cmd.Context(), args[0], opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.lines, "lines", "l", "", "line range such as 10:20 (default: whole file)")
	flags.StringVar(&opts.lang, "lang", "", "language tag (default: inferred from the file extension)")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "show the diff without writing")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "write without asking")
	flags.BoolVar(&opts.print, "print", false, "print the fixed code only")

	return cmd
}

func (a *app) fix(ctx context.Context, path string, opts fixOptions) error {
	sel, err := edit.ParseLines(path, opts.lines)
	if err != nil {
		return err
	}

	snap, err := edit.Read(sel)
	if err != nil {
		return err
	}

	if strings.TrimSpace(snap.Text) == "" {
		return fmt.Errorf("%s: nothing to fix", sel)
	}

	lang := opts.lang
	if lang == "" {
		lang = prompt.LanguageFromPath(path)
	}

	eng := a.newEngine()

	res := a.request(ctx, eng, "Fixing "+sel.String(), func(ctx context.Context) outcome.Result {
		return eng.Fix(ctx, snap.Text, lang)
	})
	if err := a.check(res); err != nil {
		return err
	}

	replacement := edit.Fit(snap.Text, res.Text)

	if opts.print {
		fmt.Fprint(a.out, replacement)
		return nil
	}

	return a.applyReplacement(snap, replacement, opts.dryRun, opts.yes)
}

// applyReplacement shows the diff and writes the replacement once confirmed.
// Without a terminal it writes only when yes is set.
func (a *app) applyReplacement(snap edit.Snapshot, replacement string, dryRun, yes bool) error {
	sel := snap.Selection

	diff := edit.Diff(sel.String(), snap.Content, edit.Preview(snap, replacement))
	if diff == "" {
		fmt.Fprintln(a.out, "no changes")
		return nil
	}

	if a.interactive {
		fmt.Fprintln(a.out, colorDiff(diff))
	} else {
		fmt.Fprint(a.out, diff)
	}

	if dryRun {
		return nil
	}

	if !yes {
		if !a.interactive {
			fmt.Fprintln(a.errOut, dimStyle.Render("not written; pass --yes to write without a terminal"))
			return nil
		}

		ok, err := a.confirm("Write changes to " + sel.String() + "?")
		if err != nil {
			return err
		}

		if !ok {
			fmt.Fprintln(a.errOut, dimStyle.Render("skipped"))
			return nil
		}
	}

	if err := a.editor.Apply(snap, replacement); err != nil {
		if errors.Is(err, edit.ErrSelectionChanged) {
			return fmt.Errorf("%s changed while the model was answering; nothing was written", sel)
		}

		return err
	}

	fmt.Fprintln(a.errOut, infoStyle.Render("• wrote "+sel.String()))

	return nil
}
