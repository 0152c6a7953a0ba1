package ui

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/pkg/sdk"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const refreshEvery = 2 * time.Second

type dashboardRow struct {
	instance sdk.InstanceSummary
	status   *sdk.ServerStatus
}

type model struct {
	table   table.Model
	rows    []dashboardRow
	err     error
	width   int
	height  int
	message string
	choice  string
	client  *sdk.Client
}

type dashboardDataMsg []dashboardRow

type errMsg error

type clearMessageMsg struct{}

type actionMsg string

// RunDashboard shows every instance with its live status. It returns the
// instance whose console the user opened, or "" when the user quit.
func RunDashboard(client *sdk.Client) string {
	columns := []table.Column{
		{Title: "Sts", Width: 3},
		{Title: "Name", Width: 20},
		{Title: "Version", Width: 18},
		{Title: "Line", Width: 11},
		{Title: "Port", Width: 6},
		{Title: "CPU", Width: 7},
		{Title: "RAM", Width: 9},
		{Title: "Players", Width: 7},
		{Title: "Uptime", Width: 8},
		{Title: "Last backup", Width: 16},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	m := model{table: t, client: client}

	program := tea.NewProgram(m, tea.WithAltScreen(), tea.WithInput(os.Stdin), tea.WithOutput(os.Stdout))
	finalModel, err := program.Run()
	if err != nil {
		fmt.Printf("Error running dashboard: %v\n", err)
		return ""
	}
	if m, ok := finalModel.(model); ok {
		return m.choice
	}
	return ""
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchDataCmd(m.client), tickCmd())
}

func (m model) selected() (dashboardRow, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rows) {
		return dashboardRow{}, false
	}
	return m.rows[i], true
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "s", "x", "r":
			row, ok := m.selected()
			if !ok {
				break
			}
			running := row.status != nil && row.status.Running
			switch {
			case msg.String() == "s" && running:
				m.message = fmt.Sprintf("%s is already running", row.instance.Name)
				return m, clearMessageCmd()
			case msg.String() != "s" && !running:
				m.message = fmt.Sprintf("%s is not running", row.instance.Name)
				return m, clearMessageCmd()
			}
			m.message = fmt.Sprintf("Sending %s to %s...", actionName(msg.String()), row.instance.Name)
			return m, actionCmd(m.client, msg.String(), row.instance.Name)
		case "enter":
			if row, ok := m.selected(); ok {
				m.choice = row.instance.Name
				return m, tea.Quit
			}
		}
	case clearMessageMsg:
		m.message = ""
		return m, nil
	case actionMsg:
		m.message = string(msg)
		return m, tea.Batch(fetchDataCmd(m.client), clearMessageCmd())
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width - 10)
		m.table.SetHeight(msg.Height - 12)
	case dashboardDataMsg:
		m.err = nil
		m.rows = msg
		m.updateTable()
		return m, nil
	case tickMsg:
		return m, tea.Batch(fetchDataCmd(m.client), tickCmd())
	case errMsg:
		m.err = msg
		return m, nil
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func actionName(key string) string {
	switch key {
	case "s":
		return "start"
	case "x":
		return "stop"
	}
	return "restart"
}

func actionCmd(client *sdk.Client, key, name string) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		var err error
		switch key {
		case "s":
			err = client.StartServer(ctx, name)
		case "x":
			var res *sdk.StopResult
			res, err = client.StopServer(ctx, name, false)
			if err == nil && !res.Exited {
				return actionMsg(fmt.Sprintf("%s: %s", name, res.Message))
			}
		default:
			err = client.RestartServer(ctx, name)
		}
		if err != nil {
			return actionMsg(fmt.Sprintf("Could not %s %s: %v", actionName(key), name, err))
		}
		return actionMsg(fmt.Sprintf("%s: %s done", name, actionName(key)))
	}
}

func (m *model) updateTable() {
	rows := make([]table.Row, 0, len(m.rows))
	for _, r := range m.rows {
		inst := r.instance
		sts := stoppedStyle.Render("●")
		cpu, ram, players, uptime := "-", "-", "-", "-"
		switch {
		case r.status != nil && r.status.Running:
			sts = runningStyle.Render("●")
			if r.status.CPUPercent != nil {
				cpu = fmt.Sprintf("%.1f%%", *r.status.CPUPercent)
			}
			if r.status.RAMMB != nil {
				ram = fmt.Sprintf("%.0fMB", *r.status.RAMMB)
			}
			if r.status.Players != nil {
				players = fmt.Sprintf("%d", *r.status.Players)
			}
			if r.status.UptimeSeconds != nil {
				uptime = FormatUptime(*r.status.UptimeSeconds)
			}
		case r.status != nil && r.status.UpdateInProgress:
			sts = warnStyle.Render("●")
		case !inst.Installed:
			sts = descStyle.Render("○")
		}

		name := inst.Name
		if inst.Active {
			name = "* " + name
		}
		last := "-"
		if inst.LastBackupCreated != nil {
			last = inst.LastBackupCreated.Local().Format("2006-01-02 15:04")
		}

		rows = append(rows, table.Row{
			sts,
			name,
			inst.Version,
			string(inst.Channel),
			FormatPort(inst.GamePort),
			cpu,
			ram,
			players,
			uptime,
			last,
		})
	}
	m.table.SetRows(rows)
}

func (m model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := headerStyle.Render("HYTALE SERVER MANAGER")
	clock := subHeaderStyle.Render(time.Now().Format("Mon Jan 2 15:04:05"))

	running := 0
	for _, r := range m.rows {
		if r.status != nil && r.status.Running {
			running++
		}
	}
	hostInfo := fmt.Sprintf("Manager: %s  |  Instances: %d  |  Running: %d", m.client.BaseURL(), len(m.rows), running)
	headerBox := baseStyle.
		Width(m.width-4).
		Align(lipgloss.Center).
		Render(lipgloss.JoinVertical(lipgloss.Center, title, clock, " ", hostInfo))

	tableContainer := baseStyle.
		Width(m.width - 4).
		Height(m.height - 12).
		Render(m.table.View())

	footerText := lipgloss.NewStyle().MarginLeft(2).Render(
		helpLine("↑/↓", "navigate", "s", "start", "x", "stop", "r", "restart", "enter", "console", "q", "quit"))

	if m.err != nil {
		footerText = lipgloss.NewStyle().MarginLeft(2).Render(stoppedStyle.Render(m.err.Error())) + "\n" + footerText
	} else if m.message != "" {
		footerText = lipgloss.NewStyle().MarginLeft(2).Render(messageStyle.Render(m.message)) + "\n" + footerText
	}

	return lipgloss.JoinVertical(lipgloss.Center, headerBox, tableContainer, footerText)
}

type tickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func clearMessageCmd() tea.Cmd {
	return tea.Tick(3*time.Second, func(time.Time) tea.Msg {
		return clearMessageMsg{}
	})
}

func fetchDataCmd(client *sdk.Client) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		instances, err := client.ListInstances(ctx)
		if err != nil {
			return errMsg(err)
		}

		byName := make(map[string]*sdk.ServerStatus)
		if all, err := client.ServerStatusAll(ctx); err == nil {
			for i := range all {
				byName[all[i].Instance] = &all[i]
			}
		}

		return dashboardDataMsg(joinStatus(instances, byName))
	}
}

func joinStatus(instances []sdk.InstanceSummary, byName map[string]*sdk.ServerStatus) []dashboardRow {
	rows := make([]dashboardRow, 0, len(instances))
	for _, inst := range instances {
		rows = append(rows, dashboardRow{instance: inst, status: byName[inst.Name]})
	}
	return rows
}
