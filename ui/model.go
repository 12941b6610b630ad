// Package ui is the terminal front end: URL entry, element selection,
// save path prompt, activity log and a progress spinner.
package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/aluiziolira/go-scrape-selectors/models"
	"github.com/aluiziolira/go-scrape-selectors/pipeline"
	"github.com/aluiziolira/go-scrape-selectors/session"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
)

const (
	defaultWidth     = 80
	defaultLogHeight = 10
)

type mode int

const (
	modeMain mode = iota
	modeElements
	modeSavePath
)

// logMsg signals that the sink has new lines.
type logMsg struct{}

type sinkClosedMsg struct{}

// finishedMsg is emitted once the background session has exited.
type finishedMsg struct {
	result *models.SessionResult
}

// Model is the Bubble Tea model for the scraper window.
type Model struct {
	ctx  context.Context
	orch *session.Orchestrator
	sink *pipeline.Sink

	urlInput  textinput.Model
	elements  textarea.Model
	pathInput textinput.Model
	spinner   spinner.Model
	logView   viewport.Model

	mode       mode
	busy       bool
	pendingURL string
	last       *models.SessionResult
	width      int
}

// New builds the model. defaultURL and defaultPath pre-fill the inputs.
func New(ctx context.Context, orch *session.Orchestrator, sink *pipeline.Sink, defaultURL, defaultPath string) *Model {
	if ctx == nil {
		ctx = context.Background()
	}

	urlInput := textinput.New()
	urlInput.Placeholder = "https://example.com"
	urlInput.CharLimit = 2048
	urlInput.Width = 60
	urlInput.SetValue(defaultURL)
	urlInput.Focus()

	elements := textarea.New()
	elements.Placeholder = "div#id\np.class"
	elements.SetWidth(60)
	elements.SetHeight(8)
	elements.ShowLineNumbers = false

	pathInput := textinput.New()
	pathInput.Placeholder = "output/scrape.txt"
	pathInput.CharLimit = 4096
	pathInput.Width = 60
	pathInput.SetValue(defaultPath)

	sp := spinner.New(spinner.WithSpinner(spinner.Dot))
	sp.Style = labelStyle

	logView := viewport.New(defaultWidth-4, defaultLogHeight)

	return &Model{
		ctx:       ctx,
		orch:      orch,
		sink:      sink,
		urlInput:  urlInput,
		elements:  elements,
		pathInput: pathInput,
		spinner:   sp,
		logView:   logView,
		mode:      modeMain,
		width:     defaultWidth,
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForLog(m.sink))
}

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.logView.Width = max(msg.Width-4, 20)
		m.logView.Height = max(msg.Height-18, 5)
		m.refreshLog()
		return m, nil

	case logMsg:
		m.refreshLog()
		return m, waitForLog(m.sink)

	case sinkClosedMsg:
		return m, nil

	case finishedMsg:
		m.busy = false
		m.last = msg.result
		m.refreshLog()
		return m, nil

	case spinner.TickMsg:
		if !m.busy {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.orch.Cancel()
			return m, tea.Quit
		}
		switch m.mode {
		case modeElements:
			return m.updateElements(msg)
		case modeSavePath:
			return m.updateSavePath(msg)
		default:
			return m.updateMain(msg)
		}
	}

	return m, nil
}

func (m *Model) updateMain(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.orch.Cancel()
		return m, tea.Quit

	case "ctrl+e":
		if err := m.orch.BeginElements(); err != nil {
			return m, nil
		}
		m.mode = modeElements
		m.elements.SetValue(strings.Join(m.orch.Selectors(), "\n"))
		m.urlInput.Blur()
		return m, m.elements.Focus()

	case "ctrl+r":
		url := strings.TrimSpace(m.urlInput.Value())
		if err := m.orch.CheckStart(url); err != nil {
			return m, nil
		}
		m.pendingURL = url
		m.mode = modeSavePath
		m.urlInput.Blur()
		return m, m.pathInput.Focus()

	case "ctrl+x":
		m.orch.Cancel()
		return m, nil

	case "pgup", "pgdown", "up", "down":
		var cmd tea.Cmd
		m.logView, cmd = m.logView.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.urlInput, cmd = m.urlInput.Update(msg)
	return m, cmd
}

func (m *Model) updateElements(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.orch.CancelElements()
		return m, m.backToMain()

	case "ctrl+s":
		if _, err := m.orch.ConfirmElements(m.elements.Value()); err != nil {
			m.orch.CancelElements()
		}
		return m, m.backToMain()
	}

	var cmd tea.Cmd
	m.elements, cmd = m.elements.Update(msg)
	return m, cmd
}

func (m *Model) updateSavePath(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		// A dismissed prompt is an empty path; Start reports it.
		_ = m.orch.Start(m.ctx, m.pendingURL, "")
		return m, m.backToMain()

	case "enter":
		path := strings.TrimSpace(m.pathInput.Value())
		focus := m.backToMain()
		if err := m.orch.Start(m.ctx, m.pendingURL, path); err != nil {
			return m, focus
		}
		m.busy = true
		return m, tea.Batch(focus, m.spinner.Tick, waitForSession(m.orch))
	}

	var cmd tea.Cmd
	m.pathInput, cmd = m.pathInput.Update(msg)
	return m, cmd
}

func (m *Model) backToMain() tea.Cmd {
	m.mode = modeMain
	m.elements.Blur()
	m.pathInput.Blur()
	return m.urlInput.Focus()
}

func (m *Model) refreshLog() {
	lines := m.sink.Lines()
	styled := make([]string, len(lines))
	for i, line := range lines {
		styled[i] = styleLogLine(line)
	}
	m.logView.SetContent(strings.Join(styled, "\n"))
	m.logView.GotoBottom()
}

// View implements tea.Model.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(renderTitle("Web Scraper"))
	b.WriteString(labelStyle.Render("Enter URL:") + "\n")
	b.WriteString(m.urlInput.View() + "\n\n")

	selectors := m.orch.Selectors()
	if len(selectors) == 0 {
		b.WriteString(mutedStyle.Render("No elements chosen.") + "\n")
	} else {
		b.WriteString(fmt.Sprintf("%s %s\n", labelStyle.Render("Elements:"), strings.Join(selectors, ", ")))
	}

	switch m.mode {
	case modeElements:
		b.WriteString("\n" + labelStyle.Render("Enter CSS Selectors (e.g., 'div#id, p.class'), one per line:") + "\n")
		b.WriteString(m.elements.View() + "\n")
		b.WriteString(helpStyle.Render("ctrl+s confirm selection • esc cancel") + "\n")
	case modeSavePath:
		b.WriteString("\n" + labelStyle.Render("Save results to:") + "\n")
		b.WriteString(m.pathInput.View() + "\n")
		b.WriteString(helpStyle.Render("enter start scraping • esc cancel") + "\n")
	}

	b.WriteString("\n" + m.statusLine() + "\n")
	b.WriteString(renderDivider(min(m.width, defaultWidth)) + "\n")
	b.WriteString(logBoxStyle.Render(m.logView.View()) + "\n")
	b.WriteString(helpStyle.Render("ctrl+e choose elements • ctrl+r start scraping • ctrl+x cancel • pgup/pgdown scroll • esc quit") + "\n")

	return b.String()
}

func (m *Model) statusLine() string {
	if m.busy {
		done, total := m.orch.Progress()
		return fmt.Sprintf("%s Scraping... %d/%d", m.spinner.View(), done, total)
	}
	if m.last == nil {
		return mutedStyle.Render("Idle")
	}
	switch {
	case m.last.Err != nil:
		return errorStyle.Render("Last scrape failed: " + m.last.Err.Error())
	case m.last.Cancelled:
		return warningStyle.Render(fmt.Sprintf("Last scrape cancelled after %d/%d iterations", m.last.Completed, m.last.Iterations))
	default:
		return successStyle.Render(fmt.Sprintf("✓ Last scrape wrote %d lines to %s", m.last.LinesWritten, m.last.OutputFile))
	}
}

func waitForLog(sink *pipeline.Sink) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-sink.Events(); !ok {
			return sinkClosedMsg{}
		}
		return logMsg{}
	}
}

func waitForSession(orch *session.Orchestrator) tea.Cmd {
	return func() tea.Msg {
		return finishedMsg{result: orch.Wait()}
	}
}
