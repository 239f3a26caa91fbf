package engine

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileSource_MissingFileYieldsDefaults(t *testing.T) {
	src := NewFileSource(filepath.Join(t.TempDir(), "mender.yaml"))

	cfg, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestFileSource_RereadsEveryLoad(t *testing.T) {
	path := writeConfig(t, "mender.yaml", "model: foo\n")
	src := NewFileSource(path)

	cfg, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, "foo", cfg.Model)

	require.NoError(t, os.WriteFile(path, []byte("model: bar\n"), 0o600))

	cfg, err = src.Load()
	require.NoError(t, err)
	assert.Equal(t, "bar", cfg.Model)
}

func TestFileSource_SetModel_YAMLKeepsComments(t *testing.T) {
	path := writeConfig(t, "mender.yaml", "# local server\nbase_url: http://localhost:11434\nmodel: foo # old\nauth:\n  key: ${MENDER_KEY}\n")
	src := NewFileSource(path)

	require.NoError(t, src.SetModel("bar"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# local server")
	assert.Contains(t, string(data), "${MENDER_KEY}")

	cfg, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, "bar", cfg.Model)
	assert.Equal(t, "http://localhost:11434", cfg.BaseURL)
}

func TestFileSource_SetValue_AddsMissingKey(t *testing.T) {
	path := writeConfig(t, "mender.yaml", "model: foo\n")
	src := NewFileSource(path)

	require.NoError(t, src.SetValue("chat_model", "llama3"))

	cfg, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, "foo", cfg.Model)
	assert.Equal(t, "llama3", cfg.ChatModel)
}

func TestFileSource_SetModel_CreatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "mender.yaml")
	src := NewFileSource(path)

	require.NoError(t, src.SetModel("bar"))

	cfg, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, "bar", cfg.Model)
}

func TestFileSource_SetModel_TOML(t *testing.T) {
	path := writeConfig(t, "mender.toml", sampleTOML)
	src := NewFileSource(path)

	require.NoError(t, src.SetModel("bar"))

	cfg, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, "bar", cfg.Model)
	assert.Equal(t, 20, cfg.Options.TopK)
	assert.Equal(t, 1, cfg.Retry.MaxRetries)
}

func TestFileSource_SetModel_RejectsNonMapping(t *testing.T) {
	path := writeConfig(t, "mender.yaml", "- a\n- b\n")

	assert.Error(t, NewFileSource(path).SetModel("bar"))
}

func TestFileSource_Init(t *testing.T) {
	for _, name := range []string{"mender.yaml", "mender.toml"} {
		t.Run(name, func(t *testing.T) {
			src := NewFileSource(filepath.Join(t.TempDir(), "conf", name))

			require.NoError(t, src.Init())

			cfg, err := src.Load()
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())

			def := DefaultConfig()
			assert.Equal(t, def.Model, cfg.Model)
			assert.Equal(t, def.Options, cfg.Options)
			assert.Equal(t, def.Retry, cfg.Retry)
			assert.Equal(t, def.Reconcile.InstallCommands, cfg.Reconcile.InstallCommands)

			assert.Error(t, src.Init())
		})
	}
}

func TestMemorySource(t *testing.T) {
	src := NewMemorySource(DefaultConfig())

	require.NoError(t, src.SetValue("model", "bar"))
	require.NoError(t, src.SetValue("chat_model", "baz"))
	assert.Error(t, src.SetValue("log_level", "debug"))

	src.Update(func(c *Config) { c.Stop = []string{"x"} })

	cfg, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, "bar", cfg.Model)
	assert.Equal(t, "baz", cfg.ChatModel)

	cfg.Stop[0] = "mutated"

	again, err := src.Load()
	require.NoError(t, err)
	assert.Equal(t, []string{"x"}, again.Stop)
}
