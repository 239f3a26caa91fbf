// Package editor provides the tools mender exposes to editors over MCP:
// fixing a snippet or a file region, chatting with the model, and reporting
// the server status and installed models. Chat conversations are kept per
// session name for the lifetime of the process.
package editor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/germanamz/mender/pkg/chats/chat"
	"github.com/germanamz/mender/pkg/edit"
	"github.com/germanamz/mender/pkg/ollama"
	"github.com/germanamz/mender/pkg/outcome"
	"github.com/germanamz/mender/pkg/prompt"
	"github.com/germanamz/mender/pkg/tools/toolbox"
	"github.com/mattn/go-runewidth"
)

// defaultSession names the conversation used when a chat call names none.
const defaultSession = "default"

// Engine is the subset of engine.Engine the tools call.
type Engine interface {
	Fix(ctx context.Context, snippet, lang string) outcome.Result
	Chat(ctx context.Context, conv *chat.Chat, text string) outcome.Result
	CheckStatus(ctx context.Context) bool
	Models(ctx context.Context) []ollama.ModelEntry
}

// Tools serves mender operations as toolbox tools.
type Tools struct {
	engine Engine
	editor *edit.Editor

	mu       sync.Mutex
	sessions map[string]*session
}

// session is one named conversation. Its lock serializes turns.
type session struct {
	mu   sync.Mutex
	conv *chat.Chat
}

// New creates Tools backed by eng.
func New(eng Engine) *Tools {
	return &Tools{
		engine:   eng,
		editor:   edit.New(),
		sessions: make(map[string]*session),
	}
}

// Tools returns a ToolBox with fix_code, fix_file, chat, check_status and
// list_models.
func (t *Tools) Tools() *toolbox.ToolBox {
	tb := toolbox.New()

	tb.Register(
		toolbox.Tool{
			Name:        "fix_code",
			Description: "Send a code snippet to the local model and return the corrected code only.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"code":{"type":"string","description":"The snippet to fix"},"language":{"type":"string","description":"Language tag such as go or python"},"path":{"type":"string","description":"File the snippet came from; used to infer the language"}},"required":["code"]}`),
			Handler:     t.handleFixCode,
		},
		toolbox.Tool{
			Name:        "fix_file",
			Description: "Fix a line range of a file in place. The edit is only written if the range is unchanged when the model answers. Returns a unified diff.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"path":{"type":"string","description":"File to fix"},"lines":{"type":"string","description":"Line range such as 10:20; empty means the whole file"},"dry_run":{"type":"boolean","description":"Return the diff without writing"}},"required":["path"]}`),
			Handler:     t.handleFixFile,
		},
		toolbox.Tool{
			Name:        "chat",
			Description: "Send a message to the local model within a named conversation and return its reply.",
			InputSchema: json.RawMessage(`{"type":"object","properties":{"message":{"type":"string","description":"The user message"},"session":{"type":"string","description":"Conversation name (default \"default\")"},"reset":{"type":"boolean","description":"Clear the conversation before sending"}},"required":["message"]}`),
			Handler:     t.handleChat,
		},
		toolbox.Tool{
			Name:        "check_status",
			Description: "Report whether the configured Ollama server is reachable.",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler:     t.handleStatus,
		},
		toolbox.Tool{
			Name:        "list_models",
			Description: "List the models installed on the configured Ollama server.",
			InputSchema: json.RawMessage(`{"type":"object"}`),
			Handler:     t.handleListModels,
		},
	)

	return tb
}

// --- input types ---

type fixCodeInput struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	Path     string `json:"path"`
}

type fixFileInput struct {
	Path   string `json:"path"`
	Lines  string `json:"lines"`
	DryRun bool   `json:"dry_run"`
}

type chatInput struct {
	Message string `json:"message"`
	Session string `json:"session"`
	Reset   bool   `json:"reset"`
}

// --- handlers ---

func (t *Tools) handleFixCode(ctx context.Context, input json.RawMessage) (string, error) {
	in, err := toolbox.Decode[fixCodeInput](input)
	if err != nil {
		return "", fmt.Errorf("fix_code: %w", err)
	}

	if strings.TrimSpace(in.Code) == "" {
		return "", errors.New("fix_code: code is required")
	}

	lang := in.Language
	if lang == "" {
		lang = prompt.LanguageFromPath(in.Path)
	}

	return resultText(t.engine.Fix(ctx, in.Code, lang))
}

func (t *Tools) handleFixFile(ctx context.Context, input json.RawMessage) (string, error) {
	in, err := toolbox.Decode[fixFileInput](input)
	if err != nil {
		return "", fmt.Errorf("fix_file: %w", err)
	}

	sel, err := edit.ParseLines(in.Path, in.Lines)
	if err != nil {
		return "", fmt.Errorf("fix_file: %w", err)
	}

	snap, err := edit.Read(sel)
	if err != nil {
		return "", fmt.Errorf("fix_file: %w", err)
	}

	fixed, err := resultText(t.engine.Fix(ctx, snap.Text, prompt.LanguageFromPath(in.Path)))
	if err != nil {
		return "", err
	}

	replacement := edit.Fit(snap.Text, fixed)

	diff := edit.Diff(sel.String(), snap.Content, edit.Preview(snap, replacement))
	if diff == "" {
		return "no changes", nil
	}

	if in.DryRun {
		return diff, nil
	}

	if err := t.editor.Apply(snap, replacement); err != nil {
		return "", fmt.Errorf("fix_file: %w", err)
	}

	return diff, nil
}

func (t *Tools) handleChat(ctx context.Context, input json.RawMessage) (string, error) {
	in, err := toolbox.Decode[chatInput](input)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}

	if strings.TrimSpace(in.Message) == "" {
		return "", errors.New("chat: message is required")
	}

	sess := t.session(in.Session)

	sess.mu.Lock()
	defer sess.mu.Unlock()

	if in.Reset {
		sess.conv.Reset()
	}

	return resultText(t.engine.Chat(ctx, sess.conv, in.Message))
}

func (t *Tools) handleStatus(ctx context.Context, _ json.RawMessage) (string, error) {
	if t.engine.CheckStatus(ctx) {
		return "running", nil
	}

	return "not reachable", nil
}

func (t *Tools) handleListModels(ctx context.Context, _ json.RawMessage) (string, error) {
	models := t.engine.Models(ctx)
	if len(models) == 0 {
		return "no models installed or server unreachable", nil
	}

	width := 0
	for _, m := range models {
		width = max(width, runewidth.StringWidth(m.Name))
	}

	var sb strings.Builder
	for _, m := range models {
		if m.Details.ParameterSize == "" {
			sb.WriteString(m.Name)
		} else {
			sb.WriteString(runewidth.FillRight(m.Name, width))
			sb.WriteString("  ")
			sb.WriteString(m.Details.ParameterSize)
		}

		sb.WriteString("\n")
	}

	return strings.TrimSuffix(sb.String(), "\n"), nil
}

// session returns the named conversation, creating it on first use.
func (t *Tools) session(name string) *session {
	if name == "" {
		name = defaultSession
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[name]
	if !ok {
		s = &session{conv: chat.New()}
		t.sessions[name] = s
	}

	return s
}

// resultText converts an engine result into tool output.
func resultText(res outcome.Result) (string, error) {
	switch {
	case res.OK():
		return res.Text, nil
	case res.IsCancelled():
		return "", errors.New("request cancelled")
	default:
		return "", res.Err()
	}
}
