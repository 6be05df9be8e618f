package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/nstogner/uistream/pkg/client"
	"github.com/nstogner/uistream/pkg/domain"
	"github.com/nstogner/uistream/pkg/protocol"
)

func newChatCmd(a *app) *cobra.Command {
	var serverURL string
	cmd := &cobra.Command{
		Use:         "chat",
		Short:       "Chat with a running server in the terminal",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{logFileAnnotation: "uistream-chat.log"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if serverURL == "" {
				serverURL = fmt.Sprintf("http://localhost:%d", a.cfg.Port)
			}
			c := client.New(serverURL)
			threads, err := c.ListThreads(cmd.Context())
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", serverURL, err)
			}
			p := tea.NewProgram(newChatModel(cmd.Context(), c, threads))
			_, err = p.Run()
			return err
		},
	}
	cmd.Flags().StringVarP(&serverURL, "server", "s", "", "server URL (default is http://localhost:<port>)")
	return cmd
}

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	reasoningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Italic(true)
	toolStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))

	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1)
)

type state int

const (
	stateMenu state = iota
	stateSelectingThread
	stateChatting
)

type (
	errMsg     struct{ err error }
	threadMsg  struct{ thread *domain.Thread }
	historyMsg struct{ messages []protocol.UIMessage }

	// streamUpdateMsg carries the partially assembled assistant message.
	streamUpdateMsg struct{ message protocol.UIMessage }
	streamDoneMsg   struct {
		asm *protocol.Assembler
		err error
	}
)

type chatModel struct {
	ctx    context.Context
	client *client.Client

	state      state
	threads    []domain.Thread
	thread     *domain.Thread
	cursor     int
	listOffset int
	width      int
	height     int
	err        error

	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer

	history   []protocol.UIMessage
	pending   *protocol.UIMessage
	streaming bool
	updates   chan tea.Msg
}

func newChatModel(ctx context.Context, c *client.Client, threads []domain.Thread) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Send a message..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 10000
	ta.SetWidth(80)
	ta.SetHeight(3)
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)

	// A fixed style keeps glamour from querying the terminal, which would
	// leak escape sequences into the input.
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	return chatModel{
		ctx:      ctx,
		client:   c,
		state:    stateMenu,
		threads:  threads,
		viewport: vp,
		textarea: ta,
		renderer: r,
	}
}

func (m chatModel) Init() tea.Cmd {
	return textarea.Blink
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	// Keys only reach the textarea while chatting, so menu selection does not
	// leak into the input.
	switch msg.(type) {
	case tea.KeyMsg:
		if m.state == stateChatting {
			m.textarea, tiCmd = m.textarea.Update(msg)
			cmds = append(cmds, tiCmd)
		}
	default:
		m.textarea, tiCmd = m.textarea.Update(msg)
		cmds = append(cmds, tiCmd)
	}
	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = max(msg.Height-m.textarea.Height()-3, 0)
		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(max(m.width-4, 20)),
		)
		m.clampList()
		m.refreshView()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			switch m.state {
			case stateMenu:
				if m.cursor == 0 {
					return m, m.createThread()
				}
				if len(m.threads) == 0 {
					m.err = errors.New("no existing threads found")
					return m, nil
				}
				m.state = stateSelectingThread
				m.cursor, m.listOffset = 0, 0
			case stateSelectingThread:
				th := m.threads[m.cursor]
				return m.enterChat(&th)
			case stateChatting:
				m.err = nil
				return m.sendMessage()
			}
		case tea.KeyUp:
			if m.state != stateChatting && m.cursor > 0 {
				m.cursor--
				m.clampList()
			}
		case tea.KeyDown:
			if m.state != stateChatting && m.cursor < m.maxCursor() {
				m.cursor++
				m.clampList()
			}
		}

	case threadMsg:
		m.threads = append([]domain.Thread{*msg.thread}, m.threads...)
		return m.enterChat(msg.thread)

	case historyMsg:
		m.history = msg.messages
		m.refreshView()

	case streamUpdateMsg:
		m.pending = &msg.message
		m.refreshView()
		cmds = append(cmds, waitForStream(m.updates))

	case streamDoneMsg:
		m.streaming = false
		m.pending = nil
		switch {
		case msg.err != nil:
			m.err = msg.err
		case msg.asm != nil && msg.asm.Err() != "":
			m.err = errors.New(msg.asm.Err())
		}
		if msg.asm != nil {
			slog.Debug("Stream finished", "threadID", m.thread.ID,
				"steps", msg.asm.Steps(), "checkpoints", len(msg.asm.Checkpoints()))
		}
		cmds = append(cmds, m.loadHistory())

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m chatModel) maxCursor() int {
	if m.state == stateSelectingThread {
		return len(m.threads) - 1
	}
	return 1
}

// clampList keeps the cursor inside the visible window of a list.
func (m *chatModel) clampList() {
	maxViewable := max(m.height-7, 1)
	if m.cursor < m.listOffset {
		m.listOffset = m.cursor
	}
	if m.cursor >= m.listOffset+maxViewable {
		m.listOffset = m.cursor - maxViewable + 1
	}
	m.listOffset = max(m.listOffset, 0)
}

func (m chatModel) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("\nError: %v", m.err))
	}

	switch m.state {
	case stateMenu:
		options := []string{"New Thread", "Continue Thread"}
		return m.listView("Main Menu", options, errorView)

	case stateSelectingThread:
		options := make([]string, len(m.threads))
		for i, th := range m.threads {
			title := th.Title
			if title == "" {
				title = th.ID
			}
			options[i] = fmt.Sprintf("%s (%s)", title, th.UpdatedAt.Format(time.RFC822))
		}
		return m.listView("Select Thread", options, errorView)
	}

	title := "Chat"
	if m.thread != nil && m.thread.Title != "" {
		title = m.thread.Title
	}
	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render(title),
		"",
		m.viewport.View(),
		errorView,
		m.textarea.View(),
	)
}

func (m chatModel) listView(header string, options []string, errorView string) string {
	maxViewable := max(m.height-7, 1)
	start := m.listOffset
	end := min(start+maxViewable, len(options))

	var optionsView []string
	for i := start; i < end; i++ {
		cursor, line := " ", options[i]
		if m.cursor == i {
			cursor = ">"
			line = selectedItemStyle.Render(line)
		}
		optionsView = append(optionsView, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), line))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		titleStyle.Render(header),
		"",
		lipgloss.JoinVertical(lipgloss.Left, optionsView...),
		"",
		"Press Enter to select, Esc to quit.",
		errorView,
	)
}

// Actions

func (m chatModel) createThread() tea.Cmd {
	return func() tea.Msg {
		th, err := m.client.CreateThread(m.ctx, "")
		if err != nil {
			return errMsg{err}
		}
		return threadMsg{th}
	}
}

func (m chatModel) enterChat(th *domain.Thread) (chatModel, tea.Cmd) {
	m.thread = th
	m.state = stateChatting
	m.history = nil
	m.textarea.Placeholder = "Type a message..."
	m.textarea.Focus()
	m.refreshView()
	return m, m.loadHistory()
}

func (m chatModel) loadHistory() tea.Cmd {
	threadID := m.thread.ID
	return func() tea.Msg {
		msgs, err := m.client.Messages(m.ctx, threadID)
		if err != nil {
			return errMsg{err}
		}
		return historyMsg{msgs}
	}
}

func (m chatModel) sendMessage() (chatModel, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	if v == "" || m.streaming {
		return m, nil
	}
	if v == "/exit" {
		return m, tea.Quit
	}
	m.textarea.Reset()

	m.history = append(m.history, protocol.UIMessage{
		Role:  domain.RoleUser,
		Parts: []protocol.Part{protocol.TextPart(v)},
	})
	m.streaming = true
	m.updates = make(chan tea.Msg, 16)
	m.refreshView()

	go m.stream(m.thread.ID, v, m.updates)
	return m, waitForStream(m.updates)
}

// stream runs one chat request, posting each update and finally a
// streamDoneMsg to updates.
func (m chatModel) stream(threadID, prompt string, updates chan<- tea.Msg) {
	defer close(updates)
	asm, err := m.client.Chat(m.ctx, threadID, prompt, func(msg protocol.UIMessage) {
		select {
		case updates <- streamUpdateMsg{msg}:
		case <-m.ctx.Done():
		}
	})
	select {
	case updates <- streamDoneMsg{asm: asm, err: err}:
	case <-m.ctx.Done():
	}
}

func waitForStream(updates <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-updates
		if !ok {
			return nil
		}
		return msg
	}
}

func (m *chatModel) refreshView() {
	msgs := m.history
	if m.pending != nil {
		msgs = append(msgs[:len(msgs):len(msgs)], *m.pending)
	}
	m.viewport.SetContent(renderMessages(msgs, m.renderer))
	m.viewport.GotoBottom()
}

// renderMessages renders a transcript. Text goes through the markdown
// renderer when one is available.
func renderMessages(msgs []protocol.UIMessage, r *glamour.TermRenderer) string {
	var sb strings.Builder
	for _, msg := range msgs {
		switch msg.Role {
		case domain.RoleUser:
			sb.WriteString(userStyle.Render("User: "))
		case domain.RoleAssistant:
			sb.WriteString(senderStyle.Render("AI: "))
		default:
			sb.WriteString(reasoningStyle.Render(string(msg.Role) + ": "))
		}
		sb.WriteString("\n")

		for _, p := range msg.Parts {
			switch {
			case p.Type == protocol.PartText:
				sb.WriteString(renderMarkdown(p.Text, r))
			case p.Type == protocol.PartReasoning:
				sb.WriteString(reasoningStyle.Render(p.Text))
			case p.Type == protocol.PartFile:
				sb.WriteString(toolStyle.Render(fmt.Sprintf("[File: %s]", p.MediaType)))
			case p.IsTool():
				sb.WriteString(toolStyle.Render(fmt.Sprintf("[Tool: %s]", p.ToolName)))
				if len(p.Input) > 0 {
					sb.WriteString("\n" + string(p.Input))
				}
				if p.State == protocol.StateOutputAvailable {
					sb.WriteString("\n" + toolStyle.Render("=> ") + string(p.Output))
				}
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func renderMarkdown(text string, r *glamour.TermRenderer) string {
	if r == nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}
