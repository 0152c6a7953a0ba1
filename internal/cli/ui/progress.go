package ui

import (
	"fmt"
	"strings"

	"github.com/Stormster/hytale-server-manager-sub000/pkg/sdk"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

const maxProgressLog = 8

type progressEventMsg sdk.Event
type progressClosedMsg struct{ err error }

// ProgressResult is how a streamed operation ended.
type ProgressResult struct {
	OK      bool
	Message string
	Err     error

	// Detached is set when the user left the view before the end.
	Detached bool
}

type progressModel struct {
	title    string
	events   <-chan sdk.Event
	errc     <-chan error
	bar      progress.Model
	spinner  spinner.Model
	percent  float64
	detail   string
	log      []string
	result   *ProgressResult
	canceled bool
	width    int
}

func newProgressModel(title string, events <-chan sdk.Event, errc <-chan error) progressModel {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = keyStyle

	return progressModel{
		title:   title,
		events:  events,
		errc:    errc,
		bar:     progress.New(progress.WithDefaultGradient()),
		spinner: s,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.next())
}

func (m progressModel) next() tea.Cmd {
	events, errc := m.events, m.errc
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return progressClosedMsg{err: <-errc}
		}
		return progressEventMsg(ev)
	}
}

func (m *progressModel) record(line string) {
	m.log = append(m.log, line)
	if len(m.log) > maxProgressLog {
		m.log = m.log[len(m.log)-maxProgressLog:]
	}
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			m.canceled = true
			return m, tea.Quit
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.bar.Width = max(20, msg.Width-8)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case progressEventMsg:
		switch msg.Type {
		case sdk.EventStatus:
			m.record(msg.Message)
		case sdk.EventProgress:
			m.percent = msg.Percent
			m.detail = msg.Detail
		case sdk.EventDone:
			m.result = &ProgressResult{OK: msg.OK, Message: msg.Message}
			if msg.OK {
				m.percent = 100
			}
		}
		if m.result != nil {
			return m, tea.Quit
		}
		return m, m.next()

	case progressClosedMsg:
		if m.result == nil {
			m.result = &ProgressResult{Err: msg.err}
		} else {
			m.result.Err = msg.err
		}
		return m, tea.Quit
	}
	return m, nil
}

func (m progressModel) View() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render(m.title))
	b.WriteString("\n\n")

	for _, line := range m.log {
		b.WriteString("  " + descStyle.Render(line) + "\n")
	}
	b.WriteString("\n  " + m.bar.ViewAs(m.percent/100) + "\n")

	switch {
	case m.result != nil && m.result.OK:
		b.WriteString("  " + runningStyle.Render("✔ "+m.result.Message) + "\n")
	case m.result != nil:
		b.WriteString("  " + stoppedStyle.Render("✘ "+m.result.Message) + "\n")
	default:
		status := m.detail
		if status == "" {
			status = "Working..."
		}
		b.WriteString("  " + m.spinner.View() + " " + status + "\n")
		b.WriteString("\n  " + helpLine("ctrl+c", "detach") + "\n")
	}
	return lipgloss.NewStyle().Margin(1, 2).Render(b.String())
}

// RunProgress runs op in the background and renders its event stream with
// a progress bar until the done event arrives. Detaching with ctrl+c leaves
// the operation running on the manager.
func RunProgress(title string, op func(sdk.EventHandler) error) ProgressResult {
	events := make(chan sdk.Event, 64)
	errc := make(chan error, 1)
	go func() {
		err := op(func(ev sdk.Event) { events <- ev })
		close(events)
		errc <- err
	}()

	final, err := tea.NewProgram(newProgressModel(title, events, errc)).Run()
	if err != nil {
		return ProgressResult{Err: fmt.Errorf("progress view: %w", err)}
	}
	m, ok := final.(progressModel)
	if !ok || m.result == nil {
		return ProgressResult{Detached: true, Message: "Detached; the operation continues on the manager."}
	}
	return *m.result
}

// PrintProgress writes the stream as plain lines, for pipes and scripts.
func PrintProgress(op func(sdk.EventHandler) error) ProgressResult {
	var res ProgressResult
	lastPercent := -1
	res.Err = op(func(ev sdk.Event) {
		switch ev.Type {
		case sdk.EventStatus:
			fmt.Println(ev.Message)
		case sdk.EventProgress:
			if p := int(ev.Percent); p/10 != lastPercent/10 {
				lastPercent = p
				fmt.Printf("  %3d%% %s\n", p, ev.Detail)
			}
		case sdk.EventDone:
			res.OK = ev.OK
			res.Message = ev.Message
		}
	})
	return res
}
