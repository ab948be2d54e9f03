package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"video-studio/internal/artifacts"
	"video-studio/internal/config"
	"video-studio/internal/pipeline"
	"video-studio/internal/project"
	"video-studio/internal/workflow"
)

var (
	wizardTitleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("205"))
	wizardSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	wizardDoneStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	wizardErrorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	wizardDimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	wizardStatusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("39"))
)

func runWizard(args []string) error {
	fs := flag.NewFlagSet("wizard", flag.ContinueOnError)
	selector := fs.String("project", "", "project id or name (default: most recent)")
	root := fs.String("root", "", "output root override")
	fs.SetOutput(flag.CommandLine.Output())
	if err := fs.Parse(args); err != nil {
		return err
	}

	settings, err := loadSettings(*root)
	if err != nil {
		return err
	}
	proj, err := resolveProject(settings.OutputRoot, *selector)
	if err != nil {
		return err
	}
	runner, err := pipeline.NewRunner(pipeline.Options{Project: proj, Settings: settings})
	if err != nil {
		return err
	}

	model := newWizardModel(proj, settings, runner)
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return err
	}
	if m, ok := final.(wizardModel); ok && m.fatalErr != nil {
		return m.fatalErr
	}
	return nil
}

type stepRunner interface {
	RunStep(ctx context.Context, step string, params map[string]string) (pipeline.StepResult, error)
}

type wizardMode int

const (
	wizardModeSteps wizardMode = iota
	wizardModeTitlePick
	wizardModeTitleInput
)

type wizardModel struct {
	proj     *project.Project
	settings config.Settings
	runner   stepRunner

	mode     wizardMode
	cursor   int
	running  bool
	status   string
	fatalErr error

	titleOptions []string
	titleCursor  int
	titleInput   textinput.Model
}

type wizardStepDoneMsg struct {
	result pipeline.StepResult
	err    error
}

func newWizardModel(proj *project.Project, settings config.Settings, runner stepRunner) wizardModel {
	return wizardModel{proj: proj, settings: settings, runner: runner}
}

func (m wizardModel) Init() tea.Cmd { return nil }

func (m wizardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.running {
			return m, nil
		}
		if m.mode == wizardModeTitlePick {
			return m.updateTitlePick(msg)
		}
		if m.mode == wizardModeTitleInput {
			return m.updateTitleInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(workflow.Steps)-1 {
				m.cursor++
			}
		case "enter":
			return m.startStep(workflow.Steps[m.cursor])
		case "n":
			next := m.proj.Workflow.NextStep()
			if next == "" {
				m.status = "workflow complete"
				return m, nil
			}
			return m.startStep(next)
		case "d":
			m.toggleEnabled(workflow.Steps[m.cursor])
		case "s":
			step := workflow.Steps[m.cursor]
			if err := m.proj.Workflow.MarkSkipped(step); err != nil {
				m.status = err.Error()
			} else {
				m.status = step + " skipped"
			}
		case "t":
			m.openTitlePicker()
		}
	case wizardStepDoneMsg:
		m.running = false
		switch {
		case msg.err != nil:
			m.fatalErr = msg.err
			return m, tea.Quit
		case msg.result.OK():
			m.status = msg.result.Step + " completed"
		default:
			m.status = msg.result.Step + " failed: " + msg.result.Err
		}
	}
	return m, nil
}

func (m wizardModel) startStep(step string) (tea.Model, tea.Cmd) {
	m.running = true
	m.status = "running " + step + "..."
	runner := m.runner
	return m, func() tea.Msg {
		res, err := runner.RunStep(context.Background(), step, nil)
		return wizardStepDoneMsg{result: res, err: err}
	}
}

func (m *wizardModel) toggleEnabled(step string) {
	status, err := m.proj.Workflow.Status(step)
	if err != nil {
		m.status = err.Error()
		return
	}
	if status.Enabled && !status.Skipped {
		err = m.proj.Workflow.Disable(step)
	} else {
		err = m.proj.Workflow.Enable(step)
	}
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = step + " toggled"
}

// openTitlePicker loads the generated candidates and switches to pick mode.
// The last row is always a free-form entry.
func (m *wizardModel) openTitlePicker() {
	path, err := m.proj.Store.Get(artifacts.KeyTitlesList)
	if err != nil {
		m.status = "no titles yet (run generate_titles first)"
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		m.status = err.Error()
		return
	}
	m.titleOptions = m.titleOptions[:0]
	for _, line := range strings.Split(string(data), "\n") {
		if t := strings.TrimSpace(line); t != "" {
			m.titleOptions = append(m.titleOptions, t)
		}
	}
	if len(m.titleOptions) == 0 {
		m.status = "titles list is empty"
		return
	}
	m.titleCursor = 0
	m.mode = wizardModeTitlePick
}

func (m wizardModel) updateTitlePick(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c", "esc":
		m.mode = wizardModeSteps
	case "up", "k":
		if m.titleCursor > 0 {
			m.titleCursor--
		}
	case "down", "j":
		if m.titleCursor < len(m.titleOptions) {
			m.titleCursor++
		}
	case "enter":
		if m.titleCursor == len(m.titleOptions) {
			input := textinput.New()
			input.Placeholder = "custom title"
			input.CharLimit = 100
			input.Focus()
			m.titleInput = input
			m.mode = wizardModeTitleInput
			return m, textinput.Blink
		}
		m.saveSelectedTitle(m.titleOptions[m.titleCursor])
		m.mode = wizardModeSteps
	}
	return m, nil
}

func (m wizardModel) updateTitleInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "esc":
		m.mode = wizardModeSteps
		return m, nil
	case "enter":
		value := strings.TrimSpace(m.titleInput.Value())
		if value == "" {
			m.status = "title cannot be empty"
			return m, nil
		}
		m.saveSelectedTitle(value)
		m.mode = wizardModeSteps
		return m, nil
	}
	var cmd tea.Cmd
	m.titleInput, cmd = m.titleInput.Update(msg)
	return m, cmd
}

func (m *wizardModel) saveSelectedTitle(title string) {
	_, err := m.proj.Store.SaveBytes(artifacts.KeySelectedTitle, []byte(title+"\n"), ".txt", map[string]any{"method": "wizard"})
	if err != nil {
		m.status = err.Error()
		return
	}
	m.status = "selected title: " + title
}

func (m wizardModel) View() string {
	if m.mode == wizardModeTitlePick {
		return m.viewTitlePick()
	}
	if m.mode == wizardModeTitleInput {
		return wizardTitleStyle.Render("Custom title") + "\n\n" +
			m.titleInput.View() + "\n\n" +
			wizardDimStyle.Render("enter: save  esc: cancel") + "\n"
	}
	var b strings.Builder
	b.WriteString(wizardTitleStyle.Render(fmt.Sprintf("%s (%s)", m.proj.Name(), m.proj.ID())))
	b.WriteString("\n\n")

	for i, step := range workflow.Steps {
		status, err := m.proj.Workflow.Status(step)
		if err != nil {
			continue
		}
		marker := "  "
		if i == m.cursor {
			marker = "> "
		}
		line := fmt.Sprintf("%s%-18s %s", marker, step, stepStateLabel(status))
		if status.Error != "" {
			line += "  " + status.Error
		}
		switch {
		case status.Error != "":
			line = wizardErrorStyle.Render(line)
		case status.Completed:
			line = wizardDoneStyle.Render(line)
		case status.Skipped || !status.Enabled:
			line = wizardDimStyle.Render(line)
		case i == m.cursor:
			line = wizardSelectedStyle.Render(line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(wizardStatusStyle.Render(m.status))
		b.WriteString("\n")
	}
	if m.running {
		b.WriteString(wizardDimStyle.Render("working..."))
	} else {
		b.WriteString(wizardDimStyle.Render("enter: run step  n: run next  d: enable/disable  s: skip  t: pick title  q: quit"))
	}
	b.WriteString("\n")
	return b.String()
}

func (m wizardModel) viewTitlePick() string {
	var b strings.Builder
	b.WriteString(wizardTitleStyle.Render("Select a title"))
	b.WriteString("\n\n")
	for i, option := range m.titleOptions {
		line := "  " + option
		if i == m.titleCursor {
			line = wizardSelectedStyle.Render("> " + option)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	custom := "  enter a custom title..."
	if m.titleCursor == len(m.titleOptions) {
		custom = wizardSelectedStyle.Render("> enter a custom title...")
	}
	b.WriteString(custom)
	b.WriteString("\n\n")
	b.WriteString(wizardDimStyle.Render("enter: choose  esc: back"))
	b.WriteString("\n")
	return b.String()
}
