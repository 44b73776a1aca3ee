// Package tui renders a live interview session in the terminal.
//
// The model never touches session state directly. It reads [interview.View]
// snapshots from the controller's update channel and turns key presses into
// controller commands, each run as an asynchronous tea.Cmd.
package tui

import (
	"context"
	"errors"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/MrWong99/interviewcoach/internal/interview"
)

// Controller is the subset of [*interview.Controller] the TUI drives.
type Controller interface {
	StartRecording(ctx context.Context) error
	StopRecording(ctx context.Context) error
	NextQuestion(ctx context.Context) error
	Submit(ctx context.Context) error
	Restart(ctx context.Context) error
	ReloadQuestions(ctx context.Context) error
	Updates() <-chan interview.View
}

// Config wires runtime options into the TUI program.
type Config struct {
	// Ctx bounds every controller call. When it is cancelled the program quits.
	Ctx        context.Context
	Controller Controller

	// CommandTimeout caps a single controller command. Zero means 10s.
	CommandTimeout time.Duration
}

// New returns a tea.Model ready to be mounted into a Program.
func New(config Config) tea.Model {
	if config.Ctx == nil {
		config.Ctx = context.Background()
	}
	if config.CommandTimeout <= 0 {
		config.CommandTimeout = 10 * time.Second
	}

	spin := spinner.New()
	spin.Spinner = spinner.Dot

	return &model{
		config:  config,
		stage:   stageLoading,
		spinner: spin,
		bar:     progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage(), progress.WithWidth(barWidth)),
		level:   progress.New(progress.WithSolidFill("#7f5af0"), progress.WithoutPercentage(), progress.WithWidth(barWidth)),
		width:   80,
	}
}

type stage int

const (
	stageLoading stage = iota
	stageSession
	stageStopped
)

const barWidth = 30

type model struct {
	config Config
	stage  stage

	spinner spinner.Model
	bar     progress.Model
	level   progress.Model

	view    interview.View
	hasView bool
	pending string

	errorMessage string
	infoMessage  string
	width        int
}

// viewMsg carries a fresh controller snapshot.
type viewMsg struct{ view interview.View }

// stoppedMsg reports that the surrounding context ended.
type stoppedMsg struct{}

// actionResultMsg reports the outcome of a controller command.
type actionResultMsg struct {
	action string
	err    error
}

func (m *model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForView(m.config.Ctx, m.config.Controller.Updates()))
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		if m.busy() {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
		return m, nil
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil
	case viewMsg:
		wasBusy := m.busy()
		m.view = msg.view
		m.hasView = true
		m.stage = stageSession
		cmds := []tea.Cmd{waitForView(m.config.Ctx, m.config.Controller.Updates())}
		if !wasBusy && m.busy() {
			cmds = append(cmds, m.spinner.Tick)
		}
		return m, tea.Batch(cmds...)
	case stoppedMsg:
		m.stage = stageStopped
		return m, tea.Quit
	case actionResultMsg:
		m.pending = ""
		m.errorMessage = ""
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.errorMessage = msg.action + ": " + msg.err.Error()
		}
		return m, nil
	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m *model) handleKey(key tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch key.String() {
	case "ctrl+c", "q":
		m.stage = stageStopped
		return m, tea.Quit
	}
	if !m.hasView || m.pending != "" {
		return m, nil
	}

	m.infoMessage = ""
	phase := m.view.Phase
	switch key.String() {
	case "r", " ":
		switch phase {
		case interview.PhaseReady:
			return m.run("start recording", m.config.Controller.StartRecording)
		case interview.PhaseRecording:
			return m.run("stop recording", m.config.Controller.StopRecording)
		}
		m.infoMessage = "Recording is only available while a question is shown."
	case "n", "enter":
		if phase == interview.PhaseReady || phase == interview.PhaseRecording {
			return m.run("next question", m.config.Controller.NextQuestion)
		}
	case "s":
		if phase == interview.PhaseSubmitFailed {
			return m.run("submit", m.config.Controller.Submit)
		}
		m.infoMessage = "Nothing to resubmit."
	case "R":
		return m.run("restart", m.config.Controller.Restart)
	case "l":
		if phase == interview.PhaseNoQuestions {
			return m.run("reload questions", m.config.Controller.ReloadQuestions)
		}
	}
	return m, nil
}

// run marks action as pending and executes fn off the UI goroutine.
func (m *model) run(action string, fn func(context.Context) error) (tea.Model, tea.Cmd) {
	m.pending = action
	m.errorMessage = ""
	return m, tea.Batch(m.spinner.Tick, controllerCmd(m.config.Ctx, m.config.CommandTimeout, action, fn))
}

func (m *model) busy() bool {
	if m.pending != "" || !m.hasView {
		return true
	}
	return m.view.Phase == interview.PhaseLoading || m.view.Phase == interview.PhaseSubmitting
}

func controllerCmd(parent context.Context, timeout time.Duration, action string, fn func(context.Context) error) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(parent, timeout)
		defer cancel()
		return actionResultMsg{action: action, err: fn(ctx)}
	}
}

func waitForView(ctx context.Context, updates <-chan interview.View) tea.Cmd {
	return func() tea.Msg {
		select {
		case v := <-updates:
			return viewMsg{view: v}
		case <-ctx.Done():
			return stoppedMsg{}
		}
	}
}
