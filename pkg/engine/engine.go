package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/germanamz/mender/pkg/chats/chat"
	"github.com/germanamz/mender/pkg/chats/message"
	"github.com/germanamz/mender/pkg/chats/role"
	"github.com/germanamz/mender/pkg/modeladapter/usage"
	"github.com/germanamz/mender/pkg/ollama"
	"github.com/germanamz/mender/pkg/outcome"
	"github.com/germanamz/mender/pkg/prompt"
	"github.com/germanamz/mender/pkg/reconcile"
	"github.com/germanamz/mender/pkg/retry"
	"github.com/google/uuid"
)

// maxSwitchDepth bounds how many times one call is re-issued after the user
// switches model.
const maxSwitchDepth = 1

// Engine runs mender operations against the server the current
// configuration names. It is safe for concurrent use; operations share no
// mutable state besides the usage tracker and pending installs.
type Engine struct {
	source     ConfigSource
	logger     *slog.Logger
	notifier   Notifier
	chooser    reconcile.Chooser
	installer  reconcile.Installer
	httpClient *http.Client
	sleep      func(time.Duration)
	events     *EventBus
	usage      *usage.Tracker
	output     io.Writer

	mu      sync.Mutex
	waiters []waiter
}

// waiter is implemented by installers that run in the background.
type waiter interface {
	Wait() error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithNotifier sets the user notification sink.
func WithNotifier(n Notifier) Option { return func(e *Engine) { e.notifier = n } }

// WithChooser sets an interactive chooser. Without one the engine answers
// from the reconcile section of the configuration.
func WithChooser(c reconcile.Chooser) Option { return func(e *Engine) { e.chooser = c } }

// WithInstaller replaces the default install chain (configured commands,
// then the pull API).
func WithInstaller(in reconcile.Installer) Option { return func(e *Engine) { e.installer = in } }

// WithHTTPClient sets the HTTP client used for every request.
func WithHTTPClient(hc *http.Client) Option { return func(e *Engine) { e.httpClient = hc } }

// WithSleepFunc replaces time.Sleep between retry attempts.
func WithSleepFunc(fn func(time.Duration)) Option { return func(e *Engine) { e.sleep = fn } }

// WithEventBus publishes events on bus instead of a private one.
func WithEventBus(bus *EventBus) Option { return func(e *Engine) { e.events = bus } }

// WithInstallOutput receives the output of install commands.
func WithInstallOutput(w io.Writer) Option { return func(e *Engine) { e.output = w } }

// New creates an Engine reading configuration from source.
func New(source ConfigSource, opts ...Option) *Engine {
	e := &Engine{source: source}
	for _, o := range opts {
		o(e)
	}

	if e.logger == nil {
		e.logger = slog.New(slog.DiscardHandler)
	}

	if e.events == nil {
		e.events = NewEventBus()
	}

	e.usage = &usage.Tracker{}

	return e
}

// Events returns the bus the engine publishes request steps on. Pull
// progress of installs it started is published there too.
func (e *Engine) Events() *EventBus { return e.events }

// Usage returns the token counts of successful completions.
func (e *Engine) Usage() *usage.Tracker { return e.usage }

// Config loads the current configuration.
func (e *Engine) Config() (Config, error) {
	cfg, err := e.source.Load()
	if err != nil {
		return Config{}, err
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Fix asks the model to correct snippet, written in lang, and returns the
// extracted code.
func (e *Engine) Fix(ctx context.Context, snippet, lang string) outcome.Result {
	return e.run(ctx, "fix", false, func(ctx context.Context, c *ollama.Client, cfg Config, rc ollama.RequestConfig) outcome.Result {
		res := c.Complete(ctx, rc, prompt.Build(cfg.Template(), lang, snippet))
		if !res.OK() {
			return res
		}

		return outcome.Success(prompt.ExtractCode(res.Text))
	})
}

// Chat sends text as the next user turn of conv. On success both the user
// turn and the reply are appended to conv; otherwise conv is unchanged. A nil
// conv starts a conversation that is not kept.
func (e *Engine) Chat(ctx context.Context, conv *chat.Chat, text string) outcome.Result {
	if conv == nil {
		conv = chat.New()
	}

	history := conv.Messages()

	msgs := make([]ollama.Message, 0, len(history)+1)
	for _, m := range history {
		msgs = append(msgs, ollama.Message{Role: m.Role.String(), Content: m.Text})
	}

	msgs = append(msgs, ollama.Message{Role: role.User.String(), Content: text})

	res := e.run(ctx, "chat", true, func(ctx context.Context, c *ollama.Client, _ Config, rc ollama.RequestConfig) outcome.Result {
		return c.Chat(ctx, rc, msgs)
	})

	if res.OK() {
		conv.Append(message.New(role.User, text), message.New(role.Assistant, res.Text))
	}

	return res
}

// CheckStatus reports whether the configured server answers.
func (e *Engine) CheckStatus(ctx context.Context) bool {
	cfg, err := e.source.Load()
	if err != nil {
		e.logger.Warn("status check skipped", "error", err)
		return false
	}

	client, err := e.newClient(cfg, e.logger)
	if err != nil {
		e.logger.Warn("status check skipped", "error", err)
		return false
	}

	return client.Ping(ctx, cfg.BaseURL)
}

// Models returns the installed models. It returns nil when the configuration
// is invalid and an empty slice when the catalog cannot be read.
func (e *Engine) Models(ctx context.Context) []ollama.ModelEntry {
	cfg, err := e.Config()
	if err != nil {
		e.logger.Warn("model catalog skipped", "error", err)
		return nil
	}

	base, err := ollama.NormalizeBaseURL(cfg.BaseURL)
	if err != nil {
		e.logger.Warn("model catalog skipped", "error", err)
		return nil
	}

	client, err := e.newClient(cfg, e.logger)
	if err != nil {
		e.logger.Warn("model catalog skipped", "error", err)
		return nil
	}

	return client.Catalog(ctx, base)
}

// PendingInstalls returns how many started installs have not been waited on.
func (e *Engine) PendingInstalls() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.waiters)
}

// WaitInstalls blocks until every install started by this engine has
// finished and returns their joined errors.
func (e *Engine) WaitInstalls() error {
	e.mu.Lock()
	ws := e.waiters
	e.waiters = nil
	e.mu.Unlock()

	var errs []error
	for _, w := range ws {
		if err := w.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

type callFunc func(ctx context.Context, c *ollama.Client, cfg Config, rc ollama.RequestConfig) outcome.Result

// call carries the per-request state through dispatch.
type call struct {
	id     string
	op     string
	chat   bool
	cfg    Config
	client *ollama.Client
	log    *slog.Logger
	fn     callFunc
}

func (e *Engine) run(ctx context.Context, op string, chatMode bool, fn callFunc) outcome.Result {
	id := uuid.NewString()
	log := e.logger.With("request_id", id, "op", op)

	if ctx.Err() != nil {
		return outcome.Cancelled()
	}

	cfg, err := e.Config()
	if err != nil {
		return e.finish(log, true, configFailure(err))
	}

	rc, err := cfg.RequestConfig(chatMode)
	if err != nil {
		return e.finish(log, cfg.Notifications, configFailure(err))
	}

	client, err := e.newClient(cfg, log)
	if err != nil {
		return e.finish(log, cfg.Notifications, configFailure(err))
	}

	e.events.Publish(Event{Kind: EventRequestStart, RequestID: id, Op: op, Model: rc.Model})
	log.Debug("request started", "model", rc.Model, "endpoint", rc.Endpoint)

	c := call{id: id, op: op, chat: chatMode, cfg: cfg, client: client, log: log, fn: fn}
	res, state := e.dispatch(context.WithoutCancel(ctx), c, rc, 0)

	switch {
	case ctx.Err() != nil:
		log.Info("result discarded, request cancelled")
		return outcome.Cancelled()
	case state == reconcile.Installing:
		log.Info("request not issued, model is installing", "model", rc.Model)
		return res
	default:
		return e.finish(log, cfg.Notifications, res)
	}
}

// dispatch resolves the model and issues the call. After a switch it runs
// again for the chosen model without a chooser, so a stale pick is declined
// instead of looping. The returned state is the final reconcile state.
func (e *Engine) dispatch(ctx context.Context, c call, rc ollama.RequestConfig, depth int) (outcome.Result, reconcile.State) {
	flow := &reconcile.Flow{
		Catalog: reconcile.CatalogFunc(func(ctx context.Context) ([]string, error) {
			models, err := c.client.ListModels(ctx, rc.BaseURL)
			if err != nil {
				return nil, err
			}

			return ollama.Names(models), nil
		}),
		Logger: c.log,
	}

	if depth < maxSwitchDepth {
		flow.Chooser = e.chooserFor(c.cfg)
		flow.Installer = e.installerFor(c, rc.BaseURL, rc.Model)
		flow.Store = e.storeFor(c)
	}

	d := flow.Resolve(ctx, rc.Model)

	switch d.State {
	case reconcile.Available, reconcile.Skipped:
		return c.fn(ctx, c.client, c.cfg, rc), d.State
	case reconcile.SwitchingModel:
		e.events.Publish(Event{Kind: EventModelSwitched, RequestID: c.id, Op: c.op, Model: d.Model, Previous: rc.Model})
		return e.dispatch(ctx, c, rc.WithModel(d.Model), depth+1)
	case reconcile.Installing:
		e.events.Publish(Event{Kind: EventInstallStarted, RequestID: c.id, Op: c.op, Model: d.Model})
		e.notify(SeverityInfo, d.Message)

		return outcome.Failure(outcome.Configuration, d.Message), d.State
	default:
		return outcome.Failure(outcome.Configuration, d.Message), d.State
	}
}

func (e *Engine) chooserFor(cfg Config) reconcile.Chooser {
	if e.chooser != nil {
		return e.chooser
	}

	action, _ := reconcile.ParseAction(cfg.Reconcile.FallbackAction)

	return reconcile.StaticChooser{Action: action, Model: cfg.Reconcile.FallbackModel}
}

func (e *Engine) installerFor(c call, baseURL, model string) reconcile.Installer {
	if e.installer != nil {
		t := trackedInstaller{engine: e, installer: e.installer}
		if w, ok := e.installer.(waiter); ok {
			t.waiters = []waiter{w}
		}

		return t
	}

	cmd := &reconcile.CommandInstaller{
		Commands: c.cfg.Reconcile.InstallCommands,
		Output:   e.output,
		Logger:   c.log,
	}
	api := &reconcile.APIInstaller{
		Client:  c.client,
		BaseURL: baseURL,
		Progress: func(p ollama.PullProgress) {
			e.events.Publish(Event{Kind: EventInstallProgress, RequestID: c.id, Op: c.op, Model: model, Progress: p})
		},
		Logger: c.log,
	}

	return trackedInstaller{
		engine:    e,
		installer: reconcile.Chain{cmd, api},
		waiters:   []waiter{cmd, api},
	}
}

// trackedInstaller registers its waiters with the engine once an install has
// started.
type trackedInstaller struct {
	engine    *Engine
	installer reconcile.Installer
	waiters   []waiter
}

func (t trackedInstaller) Install(ctx context.Context, model string) error {
	if err := t.installer.Install(ctx, model); err != nil {
		return err
	}

	for _, w := range t.waiters {
		t.engine.track(w)
	}

	return nil
}

// storeFor persists a switched model under the key the operation reads.
func (e *Engine) storeFor(c call) reconcile.ModelStore {
	key := "model"
	if c.chat && c.cfg.ChatModel != "" {
		key = "chat_model"
	}

	return reconcile.ModelStoreFunc(func(model string) error {
		return e.source.SetValue(key, model)
	})
}

func (e *Engine) track(w waiter) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.waiters = append(e.waiters, w)
}

func (e *Engine) newClient(cfg Config, log *slog.Logger) (*ollama.Client, error) {
	policy, err := cfg.RetryPolicy()
	if err != nil {
		return nil, err
	}

	timeout, err := cfg.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	r := retry.New(policy, log)
	if e.sleep != nil {
		r.SetSleepFunc(e.sleep)
	}

	return ollama.New(r,
		ollama.WithHTTPClient(e.httpClient),
		ollama.WithAuth(cfg.ModelAuth()),
		ollama.WithHeaders(cfg.Headers),
		ollama.WithLogger(log),
		ollama.WithUsage(e.usage),
		ollama.WithTimeout(timeout),
	), nil
}

// finish logs and reports a terminal failure.
func (e *Engine) finish(log *slog.Logger, notify bool, res outcome.Result) outcome.Result {
	if !res.Failed() {
		return res
	}

	log.Error("request failed", "kind", res.Kind, "status", res.StatusCode, "message", res.Message)

	if notify {
		e.notify(SeverityError, res.Message)
	}

	return res
}

func (e *Engine) notify(sev Severity, msg string) {
	if e.notifier != nil {
		e.notifier.Notify(sev, msg)
	}
}

// configFailure classifies err as a Configuration failure unless it already
// carries a kind.
func configFailure(err error) outcome.Result {
	if outcome.KindOf(err) != outcome.Configuration {
		err = outcome.Wrap(outcome.Configuration, err.Error(), err)
	}

	return outcome.FromError(err)
}
