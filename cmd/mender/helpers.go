package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/joho/godotenv"
)

// mdRenderer renders markdown to terminal-formatted output.
var mdRenderer *glamour.TermRenderer

func initMarkdownRenderer(width int) {
	if width <= 0 {
		width = 100
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return
	}
	mdRenderer = r
}

// renderMarkdown converts markdown text to terminal-formatted output.
func renderMarkdown(text string) string {
	if mdRenderer == nil {
		return text
	}
	out, err := mdRenderer.Render(text)
	if err != nil {
		return text
	}
	return strings.TrimRight(out, "\n")
}

// truncate returns s shortened to at most n runes, with "..." appended if
// truncated. Newlines are replaced with spaces for single-line display.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// fmtTokens formats a token count for display, using k/M suffixes.
func fmtTokens(n int) string {
	switch {
	case n >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	case n >= 1_000:
		return fmt.Sprintf("%.1fk", float64(n)/1_000)
	default:
		return fmt.Sprintf("%d", n)
	}
}

// fmtDuration formats a duration for display.
func fmtDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	mins := int(d.Minutes())
	sec := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm %ds", mins, sec)
}

// fmtBytes formats a model size using binary units.
func fmtBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// loadDotEnv loads environment variables from path. Missing files are ignored.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

// configFileName is looked up in the working directory.
const configFileName = ".mender.yaml"

// resolveConfigPath returns the config file to use. Priority:
// 1. Explicit --config flag (non-empty)
// 2. $MENDER_CONFIG
// 3. .mender.yaml in the working directory (if it exists)
// 4. mender/config.yaml under the user config directory
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		return explicit
	}

	if env := os.Getenv("MENDER_CONFIG"); env != "" {
		return env
	}

	if _, err := os.Stat(configFileName); err == nil {
		return configFileName
	}

	dir, err := os.UserConfigDir()
	if err != nil {
		return configFileName
	}

	return filepath.Join(dir, "mender", "config.yaml")
}

// historyPath returns where the chat prompt keeps its history, or "" when
// there is no cache directory.
func historyPath() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return ""
	}

	dir = filepath.Join(dir, "mender")
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return ""
	}

	return filepath.Join(dir, "chat_history")
}

// colorDiff styles the lines of a unified diff.
func colorDiff(diff string) string {
	lines := strings.Split(strings.TrimRight(diff, "\n"), "\n")
	for i, l := range lines {
		switch {
		case strings.HasPrefix(l, "+++"), strings.HasPrefix(l, "---"):
			lines[i] = headerStyle.Render(l)
		case strings.HasPrefix(l, "@@"):
			lines[i] = diffHunkStyle.Render(l)
		case strings.HasPrefix(l, "+"):
			lines[i] = diffAddStyle.Render(l)
		case strings.HasPrefix(l, "-"):
			lines[i] = diffDelStyle.Render(l)
		}
	}
	return strings.Join(lines, "\n")
}
