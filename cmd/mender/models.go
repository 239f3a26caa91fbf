package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/germanamz/mender/pkg/engine"
	"github.com/germanamz/mender/pkg/ollama"
	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"
)

func newModelsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the models installed on the Ollama server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.printModels(cmd.Context(), a.newEngine())
		},
	}
}

func (a *app) printModels(ctx context.Context, eng *engine.Engine) error {
	cfg, err := eng.Config()
	if err != nil {
		return err
	}

	models := eng.Models(ctx)
	if len(models) == 0 {
		fmt.Fprintln(a.errOut, dimStyle.Render("no models installed or server unreachable"))
		return nil
	}

	fmt.Fprint(a.out, modelTable(models, cfg.Model, cfg.EffectiveChatModel()))

	return nil
}

// modelTable renders models as aligned columns. The configured fix and chat
// models are marked.
func modelTable(models []ollama.ModelEntry, model, chatModel string) string {
	rows := [][]string{{"", "NAME", "PARAMS", "QUANT", "SIZE", "MODIFIED"}}

	for _, m := range models {
		mark := ""
		switch {
		case m.Name == model && m.Name == chatModel:
			mark = "*"
		case m.Name == model:
			mark = "f"
		case m.Name == chatModel:
			mark = "c"
		}

		size := ""
		if m.Size > 0 {
			size = fmtBytes(m.Size)
		}

		rows = append(rows, []string{
			mark,
			m.Name,
			m.Details.ParameterSize,
			m.Details.QuantizationLevel,
			size,
			fmtModified(m.ModifiedAt),
		})
	}

	widths := make([]int, len(rows[0]))
	for _, r := range rows {
		for i, cell := range r {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var sb strings.Builder
	for _, r := range rows {
		cells := make([]string, len(r))
		for i, cell := range r {
			cells[i] = runewidth.FillRight(cell, widths[i])
		}

		sb.WriteString(strings.TrimRight(strings.Join(cells, "  "), " "))
		sb.WriteString("\n")
	}

	return sb.String()
}

// fmtModified shortens an RFC 3339 timestamp to a date.
func fmtModified(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}

	return t.Format(time.DateOnly)
}
