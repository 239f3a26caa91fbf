package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/mender/pkg/ollama"
	"github.com/germanamz/mender/pkg/outcome"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFmtTokens(t *testing.T) {
	tests := []struct {
		input    int
		expected string
	}{
		{0, "0"},
		{500, "500"},
		{1000, "1.0k"},
		{15000, "15.0k"},
		{1_000_000, "1.0M"},
		{3_400_000, "3.4M"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, fmtTokens(tt.input), "fmtTokens(%d)", tt.input)
	}
}

func TestFmtDuration(t *testing.T) {
	tests := []struct {
		input    time.Duration
		expected string
	}{
		{100 * time.Millisecond, "0.1s"},
		{30 * time.Second, "30.0s"},
		{65 * time.Second, "1m 5s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, fmtDuration(tt.input), "fmtDuration(%v)", tt.input)
	}
}

func TestFmtBytes(t *testing.T) {
	tests := []struct {
		input    int64
		expected string
	}{
		{512, "512 B"},
		{2048, "2.0 KiB"},
		{5 * 1024 * 1024, "5.0 MiB"},
		{4_683_087_332, "4.4 GiB"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.expected, fmtBytes(tt.input), "fmtBytes(%d)", tt.input)
	}
}

func TestFmtModified(t *testing.T) {
	assert.Equal(t, "2026-05-01", fmtModified("2026-05-01T10:00:00Z"))
	assert.Equal(t, "yesterday", fmtModified("yesterday"))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hello", truncate("hello", 10))
	assert.Equal(t, "hel...", truncate("hello world", 3))
	assert.Equal(t, "hello world", truncate("hello\nworld", 20))
	assert.Empty(t, truncate("", 5))
}

func TestLoadDotEnv(t *testing.T) {
	require.NoError(t, loadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
	require.NoError(t, loadDotEnv(""))

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("MENDER_TEST_KEY=secret\n"), 0o600))
	t.Setenv("MENDER_TEST_KEY", "")
	require.NoError(t, os.Unsetenv("MENDER_TEST_KEY"))

	require.NoError(t, loadDotEnv(path))
	assert.Equal(t, "secret", os.Getenv("MENDER_TEST_KEY"))
}

func TestResolveConfigPath(t *testing.T) {
	assert.Equal(t, "explicit.toml", resolveConfigPath("explicit.toml"))

	t.Setenv("MENDER_CONFIG", "/etc/mender.yaml")
	assert.Equal(t, "/etc/mender.yaml", resolveConfigPath(""))

	t.Setenv("MENDER_CONFIG", "")
	t.Chdir(t.TempDir())

	require.NoError(t, os.WriteFile(configFileName, []byte("model: x\n"), 0o600))
	assert.Equal(t, configFileName, resolveConfigPath(""))

	require.NoError(t, os.Remove(configFileName))
	assert.True(t, strings.HasSuffix(resolveConfigPath(""), filepath.Join("mender", "config.yaml")))
}

func TestParseApplyArgs(t *testing.T) {
	got, err := parseApplyArgs([]string{"main.go"})
	require.NoError(t, err)
	assert.Equal(t, applyArgs{file: "main.go"}, got)

	got, err = parseApplyArgs([]string{"2", "main.go", "3:9"})
	require.NoError(t, err)
	assert.Equal(t, applyArgs{block: 2, file: "main.go", lines: "3:9"}, got)

	_, err = parseApplyArgs(nil)
	assert.Error(t, err)

	_, err = parseApplyArgs([]string{"0", "main.go"})
	assert.Error(t, err)

	_, err = parseApplyArgs([]string{"1", "a", "b", "c"})
	assert.Error(t, err)
}

func TestColorDiffKeepsLines(t *testing.T) {
	diff := "--- a\n+++ a\n@@ -1 +1 @@\n-x\n+y\n"

	out := colorDiff(diff)
	for _, l := range []string{"-x", "+y", "@@ -1 +1 @@"} {
		assert.Contains(t, out, l)
	}
}

func TestModelTable(t *testing.T) {
	out := modelTable([]ollama.ModelEntry{
		{Name: "coder", Details: ollama.ModelDetails{ParameterSize: "7B"}},
		{Name: "llama3:latest"},
	}, "coder", "coder")

	assert.Equal(t, "   NAME           PARAMS  QUANT  SIZE  MODIFIED\n*  coder          7B\n   llama3:latest\n", out)
}

func TestTaskModel(t *testing.T) {
	cancelled := false
	m := newTaskModel("Fixing", func() { cancelled = true })

	assert.Contains(t, m.View(), "Fixing")

	next, cmd := m.Update(taskDetailMsg("pulling 40%"))
	assert.Nil(t, cmd)
	assert.Contains(t, next.View(), "pulling 40%")

	next, cmd = next.Update(taskDoneMsg{result: outcome.Success("ok")})
	require.NotNil(t, cmd)
	done := next.(taskModel)
	assert.True(t, done.finished)
	assert.Equal(t, "ok", done.result.Text)
	assert.Empty(t, done.View())
	assert.False(t, cancelled)

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	assert.True(t, next.(taskModel).result.IsCancelled())
	assert.True(t, cancelled)
}
