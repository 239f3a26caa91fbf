package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/germanamz/mender/pkg/engine"
	"github.com/germanamz/mender/pkg/outcome"
)

// screen tracks the spinner program currently owning the terminal so prompts
// and notifications can step around it.
type screen struct {
	mu      sync.Mutex
	program *tea.Program
}

func (s *screen) set(p *tea.Program) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.program = p
}

func (s *screen) current() *tea.Program {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.program
}

// suspend hands the terminal to fn while a spinner is running.
func (s *screen) suspend(fn func() error) error {
	p := s.current()
	if p == nil {
		return fn()
	}

	if err := p.ReleaseTerminal(); err != nil {
		return err
	}

	defer func() { _ = p.RestoreTerminal() }()

	return fn()
}

// println prints above the running spinner. It reports false when there is
// none.
func (s *screen) println(line string) bool {
	p := s.current()
	if p == nil {
		return false
	}

	p.Println(line)

	return true
}

// show puts an engine event on the running spinner: a model switch is
// printed above it and everything else replaces its detail. It reports false
// when no spinner is running.
func (s *screen) show(ev engine.Event) bool {
	p := s.current()
	if p == nil {
		return false
	}

	if ev.Kind == engine.EventModelSwitched {
		p.Println(infoStyle.Render("• " + ev.Status()))
	} else {
		p.Send(taskDetailMsg(ev.Status()))
	}

	return true
}

// taskDoneMsg carries the result of the background call.
type taskDoneMsg struct{ result outcome.Result }

// taskDetailMsg replaces the text shown after the title.
type taskDetailMsg string

// taskModel shows a spinner until the call finishes or the user cancels.
type taskModel struct {
	spinner  spinner.Model
	title    string
	detail   string
	started  time.Time
	cancel   context.CancelFunc
	finished bool
	result   outcome.Result
}

func newTaskModel(title string, cancel context.CancelFunc) taskModel {
	sp := spinner.New(
		spinner.WithSpinner(spinner.Spinner{Frames: spinnerFrames, FPS: time.Second / 10}), //nolint:mnd // 10 fps
		spinner.WithStyle(spinnerStyle),
	)

	return taskModel{spinner: sp, title: title, started: time.Now(), cancel: cancel}
}

func (m taskModel) Init() tea.Cmd { return m.spinner.Tick }

func (m taskModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.cancel()
			m.result = outcome.Cancelled()
			m.finished = true

			return m, tea.Quit
		}
	case taskDoneMsg:
		m.result = msg.result
		m.finished = true

		return m, tea.Quit
	case taskDetailMsg:
		m.detail = string(msg)
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)

		return m, cmd
	}

	return m, nil
}

func (m taskModel) View() string {
	if m.finished {
		return ""
	}

	line := m.spinner.View() + " " + m.title
	if m.detail != "" {
		line += " " + dimStyle.Render(truncate(m.detail, 40)) //nolint:mnd // keeps the line short
	}

	return line + dimStyle.Render(fmt.Sprintf(" %s · esc to cancel", fmtDuration(time.Since(m.started))))
}

// runTask runs fn behind a spinner. Without a terminal it just calls fn.
// Cancelling the spinner returns Cancelled at once; fn's late result is
// dropped.
func (a *app) runTask(ctx context.Context, title string, fn func(context.Context) outcome.Result) outcome.Result {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if !a.interactive {
		return fn(ctx)
	}

	p := tea.NewProgram(newTaskModel(title, cancel), tea.WithOutput(a.errOut))
	a.screen.set(p)

	defer a.screen.set(nil)

	go func() {
		p.Send(taskDoneMsg{result: fn(ctx)})
	}()

	go func() {
		<-ctx.Done()
		p.Send(taskDoneMsg{result: outcome.Cancelled()})
	}()

	final, err := p.Run()
	if err != nil {
		return outcome.FromError(err)
	}

	tm, ok := final.(taskModel)
	if !ok || !tm.finished {
		return outcome.Cancelled()
	}

	return tm.result
}

// eventBuffer is how many engine events queue for the spinner.
const eventBuffer = 32

// request runs an engine call behind a spinner that follows the engine's
// events. A call that started a model install is never issued again; with
// --wait-install the command stays until the install is done so the user can
// re-run it.
func (a *app) request(ctx context.Context, eng *engine.Engine, title string, fn func(context.Context) outcome.Result) outcome.Result {
	var (
		mu       sync.Mutex
		switches []string
	)

	stop := eng.Events().Watch(eventBuffer, func(ev engine.Event) {
		if a.screen.show(ev) || ev.Kind != engine.EventModelSwitched {
			return
		}

		mu.Lock()
		switches = append(switches, ev.Status())
		mu.Unlock()
	})

	res := a.runTask(ctx, title, fn)
	if res.Failed() && a.waitInstall && eng.PendingInstalls() > 0 {
		a.waitInstalls(ctx, eng)
	}

	stop()

	for _, line := range switches {
		fmt.Fprintln(a.errOut, infoStyle.Render("• "+line))
	}

	return res
}

// waitInstalls blocks behind a spinner until the engine's installs finish.
func (a *app) waitInstalls(ctx context.Context, eng *engine.Engine) {
	res := a.runTask(ctx, "Installing model", func(context.Context) outcome.Result {
		if err := eng.WaitInstalls(); err != nil {
			return outcome.FromError(err)
		}

		return outcome.Success("")
	})

	switch {
	case res.OK():
		fmt.Fprintln(a.errOut, infoStyle.Render("• model installed; run the command again"))
	case res.Failed():
		fmt.Fprintln(a.errOut, errorStyle.Render("✗ install failed: "+res.Message))
	}
}
