package main

import (
	"context"
	"fmt"
	"io/ioutil"
	"mime"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/trezcool/homeworkchat/core/conversation"
)

const helpLine = "enter: send · /upload PATH... · /task MODE TASK · /quit"

var (
	studentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#05d9e8")).Bold(true)
	agentStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ff2a6d")).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#8d99ae"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#ef233c")).Bold(true)
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
)

type (
	// viewMsg carries the composed view of the thread.
	viewMsg []conversation.Message

	toastMsg conversation.Toast

	sentMsg struct {
		outcome conversation.Outcome
		err     error
	}

	uploadedMsg struct {
		names []string
		err   error
	}
)

type model struct {
	ctx      context.Context
	svc      *conversation.Service
	readFile func(path string) ([]byte, error)

	viewport viewport.Model
	input    textinput.Model
	messages []conversation.Message
	status   string
	failed   bool
	ready    bool
}

func newModel(ctx context.Context, svc *conversation.Service) model {
	input := textinput.New()
	input.Prompt = "> "
	input.CharLimit = 2000
	input.Placeholder = "Ask about your homework"
	input.Focus()

	// typed keys belong to the input, the thread only scrolls by page
	vp := viewport.New(0, 0)
	vp.KeyMap = viewport.KeyMap{
		PageUp:   key.NewBinding(key.WithKeys("pgup")),
		PageDown: key.NewBinding(key.WithKeys("pgdown")),
	}

	return model{
		ctx:      ctx,
		svc:      svc,
		readFile: ioutil.ReadFile,
		viewport: vp,
		input:    input,
		status:   helpLine,
	}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.loadView())
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - 4 // header, status and input lines
		if m.viewport.Height < 1 {
			m.viewport.Height = 1
		}
		m.input.Width = msg.Width - len(m.input.Prompt) - 1
		m.ready = true
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			line := strings.TrimSpace(m.input.Value())
			m.input.Reset()
			cmd := m.submit(line)
			return m, cmd
		}

	case viewMsg:
		m.messages = msg
		m.refresh()

	case toastMsg:
		m.status = msg.Title + ": " + msg.Text
		m.failed = msg.Level == conversation.LevelError

	case sentMsg:
		if msg.err != nil && msg.outcome != conversation.OutcomeFailed {
			m.setError(fmt.Sprintf("send failed: %v", msg.err))
		}
		cmds = append(cmds, m.loadView())

	case uploadedMsg:
		if msg.err != nil {
			m.setError(fmt.Sprintf("upload failed: %v", msg.err))
		} else {
			m.setStatus("uploaded " + strings.Join(msg.names, ", "))
		}
		cmds = append(cmds, m.loadView())

	case error:
		m.setError(msg.Error())
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// submit turns an input line into a command. Network work runs outside of the update loop.
func (m *model) submit(line string) tea.Cmd {
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return m.send(line)
	}

	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit":
		return tea.Quit
	case "/task":
		if len(fields) != 3 {
			m.setError("usage: /task MODE TASK")
			return nil
		}
		m.svc.SetTask(fields[1], fields[2])
		m.messages = nil
		m.setStatus("thread " + m.svc.Key().String())
		m.refresh()
		return m.loadView()
	case "/upload":
		if len(fields) < 2 {
			m.setError("usage: /upload PATH...")
			return nil
		}
		m.setStatus("uploading...")
		return m.upload(fields[1:])
	default:
		m.setError(fmt.Sprintf("unknown command %s", fields[0]))
		return nil
	}
}

func (m model) loadView() tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		msgs, err := svc.View(ctx)
		if err != nil {
			return err
		}
		return viewMsg(msgs)
	}
}

func (m model) send(text string) tea.Cmd {
	ctx, svc := m.ctx, m.svc
	return func() tea.Msg {
		outcome, err := svc.Send(ctx, text)
		return sentMsg{outcome: outcome, err: err}
	}
}

func (m model) upload(paths []string) tea.Cmd {
	ctx, svc, readFile := m.ctx, m.svc, m.readFile
	return func() tea.Msg {
		files := make([]conversation.File, 0, len(paths))
		names := make([]string, 0, len(paths))
		for _, path := range paths {
			data, err := readFile(path)
			if err != nil {
				return uploadedMsg{err: err}
			}
			name := filepath.Base(path)
			files = append(files, conversation.File{
				Name:        name,
				ContentType: mime.TypeByExtension(strings.ToLower(filepath.Ext(name))),
				Data:        data,
			})
			names = append(names, name)
		}
		return uploadedMsg{names: names, err: svc.Upload(ctx, files...)}
	}
}

func (m *model) setStatus(s string) { m.status, m.failed = s, false }
func (m *model) setError(s string)  { m.status, m.failed = s, true }

func (m *model) refresh() {
	if !m.ready {
		return
	}
	m.viewport.SetContent(renderMessages(m.messages, m.viewport.Width))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "loading..."
	}
	status := mutedStyle.Render(m.status)
	if m.failed {
		status = errorStyle.Render(m.status)
	}
	return strings.Join([]string{
		headerStyle.Render("Homework chat · " + m.svc.Key().String()),
		m.viewport.View(),
		status,
		m.input.View(),
	}, "\n")
}

func renderMessages(msgs []conversation.Message, width int) string {
	wrap := lipgloss.NewStyle()
	if width > 2 {
		wrap = wrap.Width(width - 2)
	}

	var b strings.Builder
	for _, msg := range msgs {
		who := agentStyle.Render("tutor")
		if msg.IsStudent() {
			who = studentStyle.Render("you")
		}
		b.WriteString(who)
		if msg.Transient {
			b.WriteString(mutedStyle.Render(" (pending)"))
		}
		b.WriteString("\n")
		b.WriteString(wrap.Render(renderBody(msg)))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func renderBody(msg conversation.Message) string {
	switch msg.Kind {
	case conversation.KindImage:
		if conversation.IsDataURI(msg.Content) {
			return mutedStyle.Render("[image preview]")
		}
		return "[image] " + msg.Content
	case conversation.KindStatus:
		return mutedStyle.Render(msg.Content)
	case conversation.KindTable:
		if msg.Table == nil {
			return msg.Content
		}
		lines := make([]string, 0, len(msg.Table.QA)+1)
		if msg.Table.ExtractedText != "" {
			lines = append(lines, msg.Table.ExtractedText)
		}
		for i, qa := range msg.Table.QA {
			lines = append(lines, fmt.Sprintf("%d. %s = %s", i+1, qa.Text, qa.Answer))
		}
		return strings.Join(lines, "\n")
	default:
		return msg.Content
	}
}
