package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/germanamz/mender/pkg/logging"
	"github.com/germanamz/mender/pkg/modeladapter"
	"github.com/germanamz/mender/pkg/ollama"
	"github.com/germanamz/mender/pkg/prompt"
	"github.com/germanamz/mender/pkg/reconcile"
	"github.com/germanamz/mender/pkg/retry"
	"gopkg.in/yaml.v3"
)

// Config is the full mender configuration. Durations are Go duration strings
// ("30s", "1500ms").
type Config struct {
	BaseURL       string            `yaml:"base_url" toml:"base_url"`
	Model         string            `yaml:"model" toml:"model"`
	ChatModel     string            `yaml:"chat_model" toml:"chat_model"` // Empty means Model.
	Timeout       string            `yaml:"timeout" toml:"timeout"`
	Endpoint      string            `yaml:"endpoint" toml:"endpoint"` // generate or chat.
	Retry         RetryConfig       `yaml:"retry" toml:"retry"`
	Options       OptionsConfig     `yaml:"options" toml:"options"`
	Stop          []string          `yaml:"stop" toml:"stop"`
	Prompt        PromptConfig      `yaml:"prompt" toml:"prompt"`
	Notifications bool              `yaml:"notifications" toml:"notifications"`
	LogLevel      string            `yaml:"log_level" toml:"log_level"`
	Auth          AuthConfig        `yaml:"auth" toml:"auth"`
	Headers       map[string]string `yaml:"headers" toml:"headers"`
	Reconcile     ReconcileConfig   `yaml:"reconcile" toml:"reconcile"`
	Status        StatusConfig      `yaml:"status" toml:"status"`
}

// RetryConfig controls retries of transient failures.
type RetryConfig struct {
	MaxRetries        int     `yaml:"max_retries" toml:"max_retries"`
	InitialDelay      string  `yaml:"initial_delay" toml:"initial_delay"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier" toml:"backoff_multiplier"`
}

// OptionsConfig holds the sampling parameters sent with every completion.
type OptionsConfig struct {
	Temperature      float64 `yaml:"temperature" toml:"temperature"`
	TopP             float64 `yaml:"top_p" toml:"top_p"`
	TopK             int     `yaml:"top_k" toml:"top_k"`
	RepeatPenalty    float64 `yaml:"repeat_penalty" toml:"repeat_penalty"`
	PresencePenalty  float64 `yaml:"presence_penalty" toml:"presence_penalty"`
	FrequencyPenalty float64 `yaml:"frequency_penalty" toml:"frequency_penalty"`
	Mirostat         int     `yaml:"mirostat" toml:"mirostat"`
	MirostatTau      float64 `yaml:"mirostat_tau" toml:"mirostat_tau"`
	MirostatEta      float64 `yaml:"mirostat_eta" toml:"mirostat_eta"`
	NumCtx           int     `yaml:"num_ctx" toml:"num_ctx"`
	NumPredict       int     `yaml:"num_predict" toml:"num_predict"`
	Seed             int     `yaml:"seed" toml:"seed"`
}

// PromptConfig holds the fix template and the chat system message.
type PromptConfig struct {
	Prefix     string `yaml:"prefix" toml:"prefix"`
	Suffix     string `yaml:"suffix" toml:"suffix"`
	ChatSystem string `yaml:"chat_system" toml:"chat_system"`
}

// AuthConfig holds credentials for a server behind an authenticating proxy.
type AuthConfig struct {
	Key    string `yaml:"key" toml:"key"` //nolint:gosec // configuration field, not a hardcoded secret
	Header string `yaml:"header" toml:"header"`
	Scheme string `yaml:"scheme" toml:"scheme"`
}

// ReconcileConfig drives non-interactive recovery from a missing model.
type ReconcileConfig struct {
	FallbackAction  string   `yaml:"fallback_action" toml:"fallback_action"` // install, switch or dismiss.
	FallbackModel   string   `yaml:"fallback_model" toml:"fallback_model"`
	InstallCommands []string `yaml:"install_commands" toml:"install_commands"`
}

// StatusConfig controls liveness polling.
type StatusConfig struct {
	Interval string `yaml:"interval" toml:"interval"`
}

// DefaultConfig returns the configuration used when no file exists, and the
// base every loaded file is overlaid onto.
func DefaultConfig() Config {
	opts := ollama.DefaultOptions()
	tpl := prompt.DefaultTemplate()
	policy := retry.DefaultPolicy()

	return Config{
		BaseURL:  "http://localhost:11434",
		Model:    "qwen2.5-coder:7b",
		Timeout:  ollama.DefaultTimeout.String(),
		Endpoint: string(ollama.EndpointGenerate),
		Retry: RetryConfig{
			MaxRetries:        policy.MaxRetries,
			InitialDelay:      policy.InitialDelay.String(),
			BackoffMultiplier: policy.Multiplier,
		},
		Options: OptionsConfig{
			Temperature:      opts.Temperature,
			TopP:             opts.TopP,
			TopK:             opts.TopK,
			RepeatPenalty:    opts.RepeatPenalty,
			PresencePenalty:  opts.PresencePenalty,
			FrequencyPenalty: opts.FrequencyPenalty,
			Mirostat:         opts.Mirostat,
			MirostatTau:      opts.MirostatTau,
			MirostatEta:      opts.MirostatEta,
			NumCtx:           opts.NumCtx,
			NumPredict:       opts.NumPredict,
			Seed:             opts.Seed,
		},
		Prompt: PromptConfig{
			Prefix:     tpl.Prefix,
			Suffix:     tpl.Suffix,
			ChatSystem: "You are a concise programming assistant. Put code in fenced code blocks tagged with their language.",
		},
		Notifications: true,
		LogLevel:      "info",
		Reconcile: ReconcileConfig{
			FallbackAction:  reconcile.ActionDismiss.String(),
			InstallCommands: reconcile.DefaultInstallCommands(),
		},
		Status: StatusConfig{Interval: "30s"},
	}
}

// isTOML reports whether path should be decoded as TOML.
func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// LoadConfig reads a YAML or TOML file (chosen by extension) and overlays it
// onto DefaultConfig. Environment variables referenced as ${VAR} or $VAR are
// expanded before parsing so credentials can live in the environment (e.g.
// loaded from a .env file) rather than in the config.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is caller-provided configuration, not user input
	if err != nil {
		return Config{}, fmt.Errorf("engine: load config: %w", err)
	}

	return parseConfig(path, data)
}

func parseConfig(path string, data []byte) (Config, error) {
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()

	if isTOML(path) {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return Config{}, fmt.Errorf("engine: parse config: %w", err)
		}

		return cfg, nil
	}

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("engine: parse config: %w", err)
	}

	return cfg, nil
}

// Validate checks ranges and enumerations. The base URL is validated per
// request instead, so a bad URL surfaces as a Configuration failure of the
// operation that used it.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Model) == "" {
		return fmt.Errorf("engine: config: model is required")
	}

	if _, err := c.TimeoutDuration(); err != nil {
		return err
	}

	if _, err := c.RetryPolicy(); err != nil {
		return err
	}

	if _, err := ollama.ParseEndpoint(c.Endpoint); err != nil {
		return fmt.Errorf("engine: config: %w", err)
	}

	if _, err := reconcile.ParseAction(c.Reconcile.FallbackAction); err != nil {
		return fmt.Errorf("engine: config: %w", err)
	}

	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("engine: config: %w", err)
	}

	if _, err := c.StatusInterval(); err != nil {
		return err
	}

	if c.Options.Temperature < 0 {
		return fmt.Errorf("engine: config: options.temperature must be >= 0")
	}

	if c.Options.NumCtx < 0 {
		return fmt.Errorf("engine: config: options.num_ctx must be >= 0")
	}

	return nil
}

// TimeoutDuration parses Timeout, which must be positive.
func (c Config) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("engine: config: timeout: %w", err)
	}

	if d <= 0 {
		return 0, fmt.Errorf("engine: config: timeout must be > 0")
	}

	return d, nil
}

// StatusInterval parses Status.Interval; empty means 30s.
func (c Config) StatusInterval() (time.Duration, error) {
	if c.Status.Interval == "" {
		return 30 * time.Second, nil //nolint:mnd // default poll interval
	}

	d, err := time.ParseDuration(c.Status.Interval)
	if err != nil {
		return 0, fmt.Errorf("engine: config: status.interval: %w", err)
	}

	if d < time.Second {
		return 0, fmt.Errorf("engine: config: status.interval must be >= 1s")
	}

	return d, nil
}

// RetryPolicy builds and validates the retry policy.
func (c Config) RetryPolicy() (retry.Policy, error) {
	delay, err := time.ParseDuration(c.Retry.InitialDelay)
	if err != nil {
		return retry.Policy{}, fmt.Errorf("engine: config: retry.initial_delay: %w", err)
	}

	p := retry.Policy{
		MaxRetries:   c.Retry.MaxRetries,
		InitialDelay: delay,
		Multiplier:   c.Retry.BackoffMultiplier,
	}

	if err := p.Validate(); err != nil {
		return retry.Policy{}, fmt.Errorf("engine: config: %w", err)
	}

	return p, nil
}

// Template returns the fix prompt template.
func (c Config) Template() prompt.Template {
	return prompt.Template{Prefix: c.Prompt.Prefix, Suffix: c.Prompt.Suffix}
}

// ModelAuth converts the auth section for the HTTP layer.
func (c Config) ModelAuth() modeladapter.Auth {
	return modeladapter.Auth{Key: c.Auth.Key, Header: c.Auth.Header, Scheme: c.Auth.Scheme}
}

// EffectiveChatModel is the model chat mode talks to.
func (c Config) EffectiveChatModel() string {
	if c.ChatModel != "" {
		return c.ChatModel
	}

	return c.Model
}

// ToOllama converts the sampling parameters for the wire.
func (o OptionsConfig) ToOllama() ollama.Options {
	return ollama.Options{
		Temperature:      o.Temperature,
		TopP:             o.TopP,
		TopK:             o.TopK,
		RepeatPenalty:    o.RepeatPenalty,
		PresencePenalty:  o.PresencePenalty,
		FrequencyPenalty: o.FrequencyPenalty,
		Mirostat:         o.Mirostat,
		MirostatTau:      o.MirostatTau,
		MirostatEta:      o.MirostatEta,
		NumCtx:           o.NumCtx,
		NumPredict:       o.NumPredict,
		Seed:             o.Seed,
	}
}

// RequestConfig builds the per-request value for fix mode (chat=false) or
// chat mode. The base URL is normalized; a malformed one is a Configuration
// error and no request must be sent.
func (c Config) RequestConfig(chat bool) (ollama.RequestConfig, error) {
	timeout, err := c.TimeoutDuration()
	if err != nil {
		return ollama.RequestConfig{}, err
	}

	endpoint, err := ollama.ParseEndpoint(c.Endpoint)
	if err != nil {
		return ollama.RequestConfig{}, err
	}

	rc := ollama.RequestConfig{
		BaseURL:  c.BaseURL,
		Model:    c.Model,
		Timeout:  timeout,
		Options:  c.Options.ToOllama(),
		Stop:     append([]string(nil), c.Stop...),
		Endpoint: endpoint,
	}

	if chat {
		rc.Model = c.EffectiveChatModel()
		rc.Endpoint = ollama.EndpointChat
		rc.System = c.Prompt.ChatSystem
	}

	if err := rc.Validate(); err != nil {
		return ollama.RequestConfig{}, err
	}

	return rc, nil
}
