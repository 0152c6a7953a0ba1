package ui

import (
	"errors"
	"testing"

	"github.com/Stormster/hytale-server-manager-sub000/pkg/sdk"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUptime(t *testing.T) {
	assert.Equal(t, "9s", FormatUptime(9))
	assert.Equal(t, "4m 10s", FormatUptime(250))
	assert.Equal(t, "3h 12m", FormatUptime(3*3600+12*60+5))
	assert.Equal(t, "2d 3h", FormatUptime((2*24+3)*3600))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "0B", FormatBytes(0))
	assert.Equal(t, "512.0B", FormatBytes(512))
	assert.Equal(t, "1.5K", FormatBytes(1536))
	assert.Equal(t, "2.0G", FormatBytes(2<<30))
}

func TestProgressModel_FollowsStream(t *testing.T) {
	m := newProgressModel("Updating", nil, nil)

	next, _ := m.Update(progressEventMsg(sdk.Event{Type: sdk.EventStatus, Message: "Downloading"}))
	m = next.(progressModel)
	next, _ = m.Update(progressEventMsg(sdk.Event{Type: sdk.EventProgress, Percent: 40, Detail: "40 MB / 100 MB"}))
	m = next.(progressModel)

	assert.Equal(t, []string{"Downloading"}, m.log)
	assert.Equal(t, 40.0, m.percent)
	assert.Nil(t, m.result)
	assert.Contains(t, m.View(), "40 MB / 100 MB")

	next, cmd := m.Update(progressEventMsg(sdk.Event{Type: sdk.EventDone, OK: true, Message: "Updated"}))
	m = next.(progressModel)
	require.NotNil(t, m.result)
	assert.True(t, m.result.OK)
	assert.Equal(t, 100.0, m.percent)
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

func TestProgressModel_ClosedWithoutDone(t *testing.T) {
	m := newProgressModel("Installing", nil, nil)
	refused := errors.New("operation in progress")

	next, _ := m.Update(progressClosedMsg{err: refused})
	m = next.(progressModel)
	require.NotNil(t, m.result)
	assert.False(t, m.result.OK)
	assert.ErrorIs(t, m.result.Err, refused)
}

func TestProgressModel_LogIsBounded(t *testing.T) {
	m := newProgressModel("Updating", nil, nil)
	for i := 0; i < maxProgressLog+5; i++ {
		m.record("line")
	}
	assert.Len(t, m.log, maxProgressLog)
}

func TestPrintProgress(t *testing.T) {
	res := PrintProgress(func(fn sdk.EventHandler) error {
		fn(sdk.Event{Type: sdk.EventStatus, Message: "Backing up"})
		fn(sdk.Event{Type: sdk.EventDone, OK: false, Message: "Update failed"})
		return nil
	})
	assert.False(t, res.OK)
	assert.Equal(t, "Update failed", res.Message)
	assert.NoError(t, res.Err)
}

func TestConsoleModel_FramesAndExit(t *testing.T) {
	m := newConsoleModel("Alpha", nil, nil, nil)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 100, Height: 40})
	m = next.(consoleModel)

	next, _ = m.Update(frameMsg{Type: sdk.EventOutput, Line: "Server started"})
	m = next.(consoleModel)
	code := 0
	next, _ = m.Update(frameMsg{Type: sdk.EventDone, Code: &code})
	m = next.(consoleModel)

	assert.True(t, m.exited)
	require.Len(t, m.lines, 2)
	assert.Equal(t, "Server started", m.lines[0])
	assert.Contains(t, m.lines[1], "exited with code 0")
}

func TestJoinStatus(t *testing.T) {
	up := 12.0
	instances := []sdk.InstanceSummary{{Instance: sdk.Instance{Name: "a"}}, {Instance: sdk.Instance{Name: "b"}}}
	rows := joinStatus(instances, map[string]*sdk.ServerStatus{"b": {Instance: "b", Running: true, UptimeSeconds: &up}})
	require.Len(t, rows, 2)
	assert.Nil(t, rows[0].status)
	require.NotNil(t, rows[1].status)
	assert.True(t, rows[1].status.Running)
}
