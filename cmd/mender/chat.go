package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/chzyer/readline"
	"github.com/germanamz/mender/pkg/chats/chat"
	"github.com/germanamz/mender/pkg/chats/role"
	"github.com/germanamz/mender/pkg/edit"
	"github.com/germanamz/mender/pkg/engine"
	"github.com/germanamz/mender/pkg/outcome"
	"github.com/germanamz/mender/pkg/prompt"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const chatHelp = `/apply [N] FILE [LINES]  write code block N (default: last) of the last reply
/models                  list installed models
/reset                   start a new conversation
/exit                    leave`

func newChatCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [MESSAGE]",
		Short: "Chat with the model",
		Long: `Start a conversation with the configured chat model. With a MESSAGE,
send it, print the reply and exit.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng := a.newEngine()

			if len(args) > 0 {
				return a.chatTurn(cmd.Context(), eng, chat.New(), strings.Join(args, " "))
			}

			return a.chatLoop(cmd.Context(), eng)
		},
	}
}

// lineReader is the part of readline the loop uses.
type lineReader interface {
	Readline() (string, error)
	Close() error
}

// scanReader reads plain lines when stdin is not a terminal.
type scanReader struct {
	sc *bufio.Scanner
}

func (r scanReader) Readline() (string, error) {
	if r.sc.Scan() {
		return r.sc.Text(), nil
	}

	if err := r.sc.Err(); err != nil {
		return "", err
	}

	return "", io.EOF
}

func (scanReader) Close() error { return nil }

func (a *app) lineReader() (lineReader, error) {
	if !a.interactive {
		return scanReader{sc: bufio.NewScanner(a.in)}, nil
	}

	return readline.NewEx(&readline.Config{
		Prompt:          userPromptStyle.Render("you> "),
		HistoryFile:     historyPath(),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
}

func (a *app) chatLoop(ctx context.Context, eng *engine.Engine) error {
	rl, err := a.lineReader()
	if err != nil {
		return err
	}
	defer func() { _ = rl.Close() }()

	if a.interactive {
		width, _, _ := term.GetSize(int(os.Stdout.Fd())) //nolint:gosec // fd fits in int
		initMarkdownRenderer(width - 2) //nolint:mnd // answer padding

		fmt.Fprintln(a.errOut, dimStyle.Render("/help for commands, ctrl+d to leave"))
	}

	conv := chat.New()

	for {
		line, err := rl.Readline()
		switch {
		case errors.Is(err, readline.ErrInterrupt):
			if line == "" {
				return nil
			}

			continue
		case errors.Is(err, io.EOF):
			return nil
		case err != nil:
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := a.chatCommand(ctx, eng, conv, line)
			if err != nil {
				fmt.Fprintln(a.errOut, errorStyle.Render("✗ "+err.Error()))
			}

			if quit {
				return nil
			}

			continue
		}

		if err := a.chatTurn(ctx, eng, conv, line); err != nil && !errors.Is(err, errReported) {
			fmt.Fprintln(a.errOut, errorStyle.Render("✗ "+err.Error()))
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

// chatTurn sends one message and prints the reply.
func (a *app) chatTurn(ctx context.Context, eng *engine.Engine, conv *chat.Chat, text string) error {
	res := a.request(ctx, eng, "Thinking", func(ctx context.Context) outcome.Result {
		return eng.Chat(ctx, conv, text)
	})
	if err := a.check(res); err != nil {
		return err
	}

	if !a.interactive {
		fmt.Fprintln(a.out, res.Text)
		return nil
	}

	fmt.Fprintln(a.out, answerBlockStyle.Render(renderMarkdown(res.Text)))

	if last, ok := eng.Usage().Last(); ok {
		fmt.Fprintln(a.errOut, dimStyle.Render(fmt.Sprintf(" %s · ↑%s ↓%s · %s",
			last.Model, fmtTokens(last.PromptTokens), fmtTokens(last.EvalTokens), fmtDuration(last.Duration))))
	}

	return nil
}

// chatCommand runs a slash command. It reports whether the loop should end.
func (a *app) chatCommand(ctx context.Context, eng *engine.Engine, conv *chat.Chat, line string) (bool, error) {
	fields := strings.Fields(line)

	switch fields[0] {
	case "/exit", "/quit":
		return true, nil
	case "/reset":
		conv.Reset()
		fmt.Fprintln(a.errOut, dimStyle.Render("conversation cleared"))
	case "/models":
		return false, a.printModels(ctx, eng)
	case "/apply":
		return false, a.applyBlock(conv, fields[1:])
	case "/help":
		fmt.Fprintln(a.errOut, chatHelp)
	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}

	return false, nil
}

// applyArgs is the parsed form of /apply [N] FILE [LINES].
type applyArgs struct {
	block int // 1-based; 0 means last.
	file  string
	lines string
}

func parseApplyArgs(args []string) (applyArgs, error) {
	var out applyArgs

	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			if n < 1 {
				return applyArgs{}, fmt.Errorf("block number must be at least 1")
			}

			out.block = n
			args = args[1:]
		}
	}

	switch len(args) {
	case 1:
		out.file = args[0]
	case 2: //nolint:mnd // FILE LINES
		out.file, out.lines = args[0], args[1]
	default:
		return applyArgs{}, fmt.Errorf("usage: /apply [N] FILE [LINES]")
	}

	return out, nil
}

// applyBlock writes a code block of the last reply over a file region.
func (a *app) applyBlock(conv *chat.Chat, args []string) error {
	parsed, err := parseApplyArgs(args)
	if err != nil {
		return err
	}

	last, ok := conv.LastBy(role.Assistant)
	if !ok {
		return fmt.Errorf("no reply to apply yet")
	}

	blocks := prompt.CodeBlocks(last.Text)
	if len(blocks) == 0 {
		return fmt.Errorf("the last reply has no code blocks")
	}

	n := parsed.block
	if n == 0 {
		n = len(blocks)
	}

	if n > len(blocks) {
		return fmt.Errorf("the last reply has %d code blocks", len(blocks))
	}

	sel, err := edit.ParseLines(parsed.file, parsed.lines)
	if err != nil {
		return err
	}

	snap, err := edit.Read(sel)
	if err != nil {
		return err
	}

	return a.applyReplacement(snap, edit.Fit(snap.Text, blocks[n-1].Code), false, false)
}
