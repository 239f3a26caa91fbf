// Package ollama talks to an Ollama server: the model catalog, completions
// on /api/generate and /api/chat, liveness and model pulls.
//
// Every call that can fail transiently goes through a [retry.Retrier]. The
// per-attempt timeout comes from [RequestConfig.Timeout]. Terminal failures
// are classified as [outcome.Error] values: no response is Network, a non-2xx
// response is API with status and body, a bad URL is Configuration.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/germanamz/mender/pkg/modeladapter"
	"github.com/germanamz/mender/pkg/modeladapter/usage"
	"github.com/germanamz/mender/pkg/outcome"
	"github.com/germanamz/mender/pkg/retry"
)

const pingTimeout = 3 * time.Second

// Message is one turn of a chat request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ModelEntry describes an installed model as reported by /api/tags.
type ModelEntry struct {
	Name       string       `json:"name"`
	Model      string       `json:"model,omitempty"`
	ModifiedAt string       `json:"modified_at,omitempty"`
	Size       int64        `json:"size,omitempty"`
	Digest     string       `json:"digest,omitempty"`
	Details    ModelDetails `json:"details"`
}

// ModelDetails holds the optional metadata block of a catalog entry.
type ModelDetails struct {
	Format            string `json:"format,omitempty"`
	Family            string `json:"family,omitempty"`
	ParameterSize     string `json:"parameter_size,omitempty"`
	QuantizationLevel string `json:"quantization_level,omitempty"`
}

type tagsResponse struct {
	Models []ModelEntry `json:"models"`
}

type generateRequest struct {
	Model   string  `json:"model"`
	Prompt  string  `json:"prompt"`
	Stream  bool    `json:"stream"`
	Options Options `json:"options"`
}

type chatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
	Options  Options   `json:"options"`
}

type counters struct {
	PromptEvalCount int   `json:"prompt_eval_count"`
	EvalCount       int   `json:"eval_count"`
	TotalDuration   int64 `json:"total_duration"`
}

type generateResponse struct {
	counters
	Response *string `json:"response"`
}

type chatResponse struct {
	counters
	Message *struct {
		Content *string `json:"content"`
	} `json:"message"`
}

// Client issues requests against whichever server a RequestConfig names.
type Client struct {
	retrier *retry.Retrier
	logger  *slog.Logger
	http    *http.Client
	auth    modeladapter.Auth
	headers map[string]string
	usage   *usage.Tracker
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option { return func(c *Client) { c.http = hc } }

// WithAuth sets credentials for a server behind an authenticating proxy.
func WithAuth(auth modeladapter.Auth) Option { return func(c *Client) { c.auth = auth } }

// WithHeaders adds headers to every request.
func WithHeaders(h map[string]string) Option { return func(c *Client) { c.headers = h } }

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.logger = l } }

// WithUsage records token counts of successful completions.
func WithUsage(t *usage.Tracker) Option { return func(c *Client) { c.usage = t } }

// WithTimeout sets the per-attempt timeout for catalog reads.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// New creates a Client. A nil retrier uses the default policy.
func New(retrier *retry.Retrier, opts ...Option) *Client {
	c := &Client{timeout: DefaultTimeout}
	for _, o := range opts {
		o(c)
	}

	if c.logger == nil {
		c.logger = slog.New(slog.DiscardHandler)
	}

	if retrier == nil {
		retrier = retry.New(retry.DefaultPolicy(), c.logger)
	}

	c.retrier = retrier

	return c
}

func (c *Client) adapter(baseURL string) *modeladapter.ModelAdapter {
	a := modeladapter.New(baseURL, c.auth, c.http)
	a.Headers = c.headers
	a.Usage = c.usage

	return a
}

func (c *Client) attemptContext(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = c.timeout
	}

	if d <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, d)
}

// ListModels reads the installed model catalog.
func (c *Client) ListModels(ctx context.Context, baseURL string) ([]ModelEntry, error) {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	a := c.adapter(base)

	resp, err := retry.Do(c.retrier, func() (tagsResponse, error) {
		actx, cancel := c.attemptContext(ctx, 0)
		defer cancel()

		var r tagsResponse
		err := a.GetJSON(actx, "/api/tags", &r)

		return r, err
	})
	if err != nil {
		return nil, classify(err, base)
	}

	if resp.Models == nil {
		return []ModelEntry{}, nil
	}

	return resp.Models, nil
}

// Catalog is the advisory form of ListModels: failures are logged and an
// empty slice is returned.
func (c *Client) Catalog(ctx context.Context, baseURL string) []ModelEntry {
	models, err := c.ListModels(ctx, baseURL)
	if err != nil {
		c.logger.Warn("model catalog unavailable", "base_url", baseURL, "error", err)
		return []ModelEntry{}
	}

	return models
}

// Names returns the model names in catalog order.
func Names(models []ModelEntry) []string {
	out := make([]string, 0, len(models))
	for _, m := range models {
		out = append(out, m.Name)
	}

	return out
}

// Complete dispatches prompt on the endpoint cfg selects. On the chat
// endpoint the prompt becomes a single user message.
func (c *Client) Complete(ctx context.Context, cfg RequestConfig, prompt string) outcome.Result {
	if cfg.Endpoint == EndpointChat {
		return c.Chat(ctx, cfg, []Message{{Role: "user", Content: prompt}})
	}

	return c.Generate(ctx, cfg, prompt)
}

// Generate posts prompt to /api/generate and returns the "response" field,
// or the raw body when the field is absent.
func (c *Client) Generate(ctx context.Context, cfg RequestConfig, prompt string) outcome.Result {
	if err := cfg.Validate(); err != nil {
		return outcome.FromError(err)
	}

	payload := generateRequest{
		Model:   cfg.Model,
		Prompt:  prompt,
		Stream:  false,
		Options: cfg.options(),
	}

	a := c.adapter(cfg.BaseURL)

	body, err := c.post(ctx, a, cfg, "/api/generate", payload)
	if err != nil {
		return outcome.FromError(err)
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return outcome.FromError(outcome.Wrap(outcome.Unknown, "malformed completion response", err))
	}

	record(a, cfg, resp.counters)

	if resp.Response == nil {
		return outcome.Success(string(body))
	}

	return outcome.Success(*resp.Response)
}

// Chat posts messages to /api/chat and returns "message.content", or the raw
// body when the field is absent. A configured system message is prepended.
func (c *Client) Chat(ctx context.Context, cfg RequestConfig, messages []Message) outcome.Result {
	if err := cfg.Validate(); err != nil {
		return outcome.FromError(err)
	}

	msgs := messages
	if cfg.System != "" {
		msgs = append([]Message{{Role: "system", Content: cfg.System}}, messages...)
	}

	payload := chatRequest{
		Model:    cfg.Model,
		Messages: msgs,
		Stream:   false,
		Options:  cfg.options(),
	}

	a := c.adapter(cfg.BaseURL)

	body, err := c.post(ctx, a, cfg, "/api/chat", payload)
	if err != nil {
		return outcome.FromError(err)
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return outcome.FromError(outcome.Wrap(outcome.Unknown, "malformed chat response", err))
	}

	record(a, cfg, resp.counters)

	if resp.Message == nil || resp.Message.Content == nil {
		return outcome.Success(string(body))
	}

	return outcome.Success(*resp.Message.Content)
}

// Ping reports whether the server answers GET {baseURL} with a 2xx status.
// It does not retry.
func (c *Client) Ping(ctx context.Context, baseURL string) bool {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		c.logger.Debug("ping skipped", "error", err)
		return false
	}

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	if _, err := c.adapter(base).GetRaw(pctx, ""); err != nil {
		c.logger.Debug("ping failed", "base_url", base, "error", err)
		return false
	}

	return true
}

func (c *Client) post(ctx context.Context, a *modeladapter.ModelAdapter, cfg RequestConfig, path string, payload any) ([]byte, error) {
	c.logger.Debug("sending completion", "endpoint", path, "model", cfg.Model)

	body, err := retry.Do(c.retrier, func() ([]byte, error) {
		actx, cancel := c.attemptContext(ctx, cfg.Timeout)
		defer cancel()

		return a.PostRaw(actx, path, payload)
	})
	if err != nil {
		return nil, classify(err, cfg.BaseURL)
	}

	return body, nil
}

// record adds the response counters to the adapter's usage tracker.
func record(a *modeladapter.ModelAdapter, cfg RequestConfig, n counters) {
	a.RecordUsage(usage.TokenCount{
		Model:        cfg.Model,
		PromptTokens: n.PromptEvalCount,
		EvalTokens:   n.EvalCount,
		Duration:     time.Duration(n.TotalDuration),
	})
}

// classify turns a terminal transport or API error into an *outcome.Error.
func classify(err error, baseURL string) error {
	var oe *outcome.Error
	if errors.As(err, &oe) {
		return err
	}

	var ae *modeladapter.APIError
	if errors.As(err, &ae) {
		return &outcome.Error{
			Kind:       outcome.API,
			Message:    apiMessage(ae),
			StatusCode: ae.StatusCode,
			Body:       ae.Body,
			Err:        err,
		}
	}

	if outcome.KindOf(err) == outcome.Network {
		return outcome.Wrap(outcome.Network, fmt.Sprintf("cannot reach Ollama at %s", baseURL), err)
	}

	return outcome.Wrap(outcome.Unknown, "request failed", err)
}

// apiMessage prefers the server's {"error": "..."} text over the raw body.
func apiMessage(ae *modeladapter.APIError) string {
	var body struct {
		Error string `json:"error"`
	}

	if json.Unmarshal([]byte(ae.Body), &body) == nil && body.Error != "" {
		return fmt.Sprintf("Ollama returned status %d: %s", ae.StatusCode, body.Error)
	}

	return fmt.Sprintf("Ollama returned status %d", ae.StatusCode)
}
