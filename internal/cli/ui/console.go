package ui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/pkg/sdk"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/gorilla/websocket"
)

// maxConsoleLines bounds what the console view keeps in memory.
const maxConsoleLines = 5000

// consoleFrame mirrors what the console websocket sends.
type consoleFrame struct {
	Type string `json:"type"`
	Line string `json:"line"`
	Code *int   `json:"code"`
}

type consoleModel struct {
	sub       chan consoleFrame
	conn      *websocket.Conn
	viewport  viewport.Model
	textInput textinput.Model
	ready     bool
	name      string
	status    *sdk.ServerStatus
	lines     []string
	exited    bool
	quitting  bool
	back      bool
	client    *sdk.Client
	width     int
	height    int
}

func newConsoleModel(name string, conn *websocket.Conn, sub chan consoleFrame, client *sdk.Client) consoleModel {
	ti := textinput.New()
	ti.Placeholder = "Type a command..."
	ti.Focus()
	ti.CharLimit = 256
	ti.Width = 40

	return consoleModel{
		sub:       sub,
		conn:      conn,
		textInput: ti,
		name:      name,
		client:    client,
	}
}

func (m consoleModel) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		waitForFrame(m.sub),
		fetchStatus(m.client, m.name),
		tickCmd(),
	)
}

type frameMsg consoleFrame
type consoleClosedMsg struct{}
type statusMsg *sdk.ServerStatus

func waitForFrame(sub chan consoleFrame) tea.Cmd {
	return func() tea.Msg {
		f, ok := <-sub
		if !ok {
			return consoleClosedMsg{}
		}
		return frameMsg(f)
	}
}

func fetchStatus(client *sdk.Client, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		st, err := client.ServerStatus(ctx, name)
		if err != nil {
			return nil
		}
		return statusMsg(st)
	}
}

func (m *consoleModel) appendLine(line string) {
	m.lines = append(m.lines, line)
	if len(m.lines) > maxConsoleLines {
		m.lines = m.lines[len(m.lines)-maxConsoleLines:]
	}
	if m.ready {
		m.viewport.SetContent(strings.Join(m.lines, "\n"))
		m.viewport.GotoBottom()
	}
}

// exitLine describes the end of the process for the console view.
func exitLine(code *int) string {
	if code == nil {
		return "[Manager] Server process ended."
	}
	return fmt.Sprintf("[Manager] Server exited with code %d.", *code)
}

func (m consoleModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.quitting = true
			return m, tea.Quit
		case tea.KeyEsc:
			m.back = true
			return m, tea.Quit
		case tea.KeyEnter:
			if cmd := strings.TrimSpace(m.textInput.Value()); cmd != "" {
				m.textInput.SetValue("")
				if m.conn != nil && !m.exited {
					if err := m.conn.WriteMessage(websocket.TextMessage, []byte(cmd)); err != nil {
						m.appendLine(systemStyle.Render("[Manager] Could not send command: " + err.Error()))
					}
				}
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		headerHeight := 12
		contentWidth := msg.Width - 6

		if !m.ready {
			m.viewport = viewport.New(contentWidth, msg.Height-headerHeight)
			m.viewport.YPosition = headerHeight
			m.ready = true
			m.viewport.SetContent(strings.Join(m.lines, "\n"))
			m.viewport.GotoBottom()
		} else {
			m.viewport.Width = contentWidth
			m.viewport.Height = msg.Height - headerHeight
		}
		m.textInput.Width = contentWidth - 4

	case frameMsg:
		switch msg.Type {
		case sdk.EventOutput:
			m.appendLine(msg.Line)
		case sdk.EventDone:
			m.exited = true
			m.appendLine(systemStyle.Render(exitLine(msg.Code)))
		}
		return m, waitForFrame(m.sub)

	case consoleClosedMsg:
		if !m.exited {
			m.exited = true
			m.appendLine(systemStyle.Render("[Manager] Console disconnected."))
		}
		return m, nil

	case statusMsg:
		m.status = msg

	case tickMsg:
		return m, tea.Batch(fetchStatus(m.client, m.name), tickCmd())
	}

	m.textInput, tiCmd = m.textInput.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd)
}

func (m consoleModel) statusLine() string {
	st := m.status
	if st == nil {
		return "Loading server details..."
	}

	state := stoppedStyle.Render("stopped")
	if st.Running {
		state = runningStyle.Render("running")
	} else if st.UpdateInProgress {
		state = warnStyle.Render("updating")
	}

	parts := []string{fmt.Sprintf("Instance: %s (%s)", m.name, state)}
	if st.UptimeSeconds != nil {
		parts = append(parts, "Uptime: "+FormatUptime(*st.UptimeSeconds))
	}
	if st.RAMMB != nil {
		parts = append(parts, fmt.Sprintf("RAM: %.0f MB", *st.RAMMB))
	}
	if st.CPUPercent != nil {
		parts = append(parts, fmt.Sprintf("CPU: %.1f%%", *st.CPUPercent))
	}
	if st.Players != nil {
		parts = append(parts, fmt.Sprintf("Players: %d", *st.Players))
	}
	if !st.Running && st.LastExitCode != nil {
		parts = append(parts, fmt.Sprintf("Last exit: %d", *st.LastExitCode))
	}
	return strings.Join(parts, "  •  ")
}

func (m consoleModel) View() string {
	if !m.ready {
		return "\n  Initializing..."
	}

	title := headerStyle.Width(m.width).Render("SERVER CONSOLE")

	headerBox := baseStyle.
		Width(m.width-4).
		Align(lipgloss.Center).
		Render(m.statusLine())

	console := baseStyle.
		Width(m.width - 4).
		Render(m.viewport.View())

	footerContent := lipgloss.JoinVertical(lipgloss.Left,
		fmt.Sprintf("→ %s", m.textInput.View()),
		lipgloss.NewStyle().Width(m.width-6).Align(lipgloss.Center).
			Render(helpLine("enter", "send", "esc", "back", "ctrl+c", "quit")),
	)

	footerBox := footerStyle.
		Width(m.width - 4).
		Align(lipgloss.Left).
		Render(footerContent)

	return lipgloss.JoinVertical(lipgloss.Center, title, headerBox, console, footerBox)
}

// RunConsole attaches to the console of a running instance. It returns
// true when the user asked to go back rather than quit.
func RunConsole(client *sdk.Client, name string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	wsURL, err := client.ConsoleURL(ctx, name)
	cancel()
	if err != nil {
		fmt.Printf("Error building console URL: %v\n", err)
		return false
	}

	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == 409 {
			err = fmt.Errorf("%s is not running", name)
		}
		fmt.Printf("Error connecting to console: %v\nPress Enter to continue...", err)
		fmt.Scanln()
		return true
	}
	defer conn.Close()

	sub := make(chan consoleFrame, 64)
	go func() {
		defer close(sub)
		for {
			_, message, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f consoleFrame
			if json.Unmarshal(message, &f) == nil {
				sub <- f
			}
		}
	}()

	p := tea.NewProgram(
		newConsoleModel(name, conn, sub, client),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)

	final, err := p.Run()
	if err != nil {
		fmt.Printf("Error running console UI: %v\n", err)
		return true
	}
	if m, ok := final.(consoleModel); ok {
		return m.back
	}
	return false
}
