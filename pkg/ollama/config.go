package ollama

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/germanamz/mender/pkg/outcome"
)

// DefaultTimeout bounds a single attempt when the config leaves it unset.
const DefaultTimeout = 120 * time.Second

// Endpoint selects the completion endpoint family.
type Endpoint string

const (
	// EndpointGenerate posts a prompt string to /api/generate.
	EndpointGenerate Endpoint = "generate"
	// EndpointChat posts a message list to /api/chat.
	EndpointChat Endpoint = "chat"
)

// ParseEndpoint maps a configuration value onto an Endpoint. An empty value
// means generate.
func ParseEndpoint(s string) (Endpoint, error) {
	switch Endpoint(strings.ToLower(strings.TrimSpace(s))) {
	case "", EndpointGenerate:
		return EndpointGenerate, nil
	case EndpointChat:
		return EndpointChat, nil
	default:
		return "", fmt.Errorf("ollama: unknown endpoint %q (want generate or chat)", s)
	}
}

// Options are the sampling parameters sent under "options".
type Options struct {
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p"`
	TopK             int      `json:"top_k"`
	RepeatPenalty    float64  `json:"repeat_penalty"`
	PresencePenalty  float64  `json:"presence_penalty"`
	FrequencyPenalty float64  `json:"frequency_penalty"`
	Mirostat         int      `json:"mirostat"`
	MirostatTau      float64  `json:"mirostat_tau"`
	MirostatEta      float64  `json:"mirostat_eta"`
	NumCtx           int      `json:"num_ctx"`
	NumPredict       int      `json:"num_predict"`
	Stop             []string `json:"stop,omitempty"`
	Seed             int      `json:"seed"`
}

// RandomSeed asks the server for a fresh seed per request. Any other value,
// 0 included, makes sampling reproducible.
const RandomSeed = -1

// DefaultOptions returns conservative sampling parameters suited to code
// correction.
func DefaultOptions() Options {
	return Options{
		Temperature:   0.2,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.1,
		MirostatTau:   5.0,
		MirostatEta:   0.1,
		NumCtx:        4096,
		NumPredict:    -1,
		Seed:          RandomSeed,
	}
}

// RequestConfig is everything one completion needs. It is built fresh from
// configuration for every call and never mutated afterwards.
type RequestConfig struct {
	BaseURL  string
	Model    string
	Timeout  time.Duration // Per attempt.
	Options  Options
	Stop     []string
	Endpoint Endpoint
	System   string // Optional system message, chat endpoint only.
}

// WithModel returns a copy of the config targeting another model.
func (c RequestConfig) WithModel(model string) RequestConfig {
	c.Model = model
	c.Stop = append([]string(nil), c.Stop...)

	return c
}

// Validate normalizes the base URL and checks that a model is set.
// Failures are Configuration errors.
func (c *RequestConfig) Validate() error {
	base, err := NormalizeBaseURL(c.BaseURL)
	if err != nil {
		return err
	}

	c.BaseURL = base

	if strings.TrimSpace(c.Model) == "" {
		return outcome.Errorf(outcome.Configuration, "no model configured")
	}

	if c.Endpoint == "" {
		c.Endpoint = EndpointGenerate
	}

	return nil
}

// options merges the stop sequences into the sampling parameters.
func (c RequestConfig) options() Options {
	opts := c.Options
	if len(c.Stop) > 0 {
		opts.Stop = c.Stop
	}

	return opts
}

// NormalizeBaseURL checks that raw is an absolute http or https URL and
// strips trailing slashes.
func NormalizeBaseURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)

	u, err := url.Parse(s)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", outcome.Errorf(outcome.Configuration,
			"invalid base URL %q: must be an absolute http or https URL", raw)
	}

	return strings.TrimRight(s, "/"), nil
}
