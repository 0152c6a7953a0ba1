package cmd

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/cli/ui"
	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/pkg/sdk"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstanceRows(t *testing.T) {
	port := 5520
	created := time.Date(2026, 1, 2, 3, 4, 0, 0, time.Local)
	rows := instanceRows([]sdk.InstanceSummary{
		{Instance: sdk.Instance{Name: "Alpha", Version: "2026.01.01-abc", Channel: domain.ChannelRelease, GamePort: &port}, Installed: true, Active: true, LastBackupCreated: &created},
		{Instance: sdk.Instance{Name: "Beta", Version: domain.UnknownVersion, Degraded: true}},
	})
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"*", "Alpha", "yes", "2026.01.01-abc", "release", "5520", "-", "2026-01-02 03:04"}, rows[0])
	assert.Equal(t, "degraded", rows[1][2])
	assert.Equal(t, "-", rows[1][5])
}

func TestBackupRows(t *testing.T) {
	rows := backupRows([]sdk.Backup{{
		Folder:      "backup_1",
		Label:       "before update",
		Type:        domain.BackupPreUpdate,
		FromVersion: "2026.01.01-a",
		ToVersion:   "2026.02.01-b",
		Size:        2048,
	}})
	require.Len(t, rows, 1)
	assert.Equal(t, "pre-update", rows[0][2])
	assert.Equal(t, "2026.01.01-a → 2026.02.01-b", rows[0][4])
	assert.Equal(t, "2.0K", rows[0][5])
}

func TestStatusRows(t *testing.T) {
	up, ram, cpu := 90.0, 2048.0, 12.5
	players, code := 3, 1
	rows := statusRows([]sdk.ServerStatus{
		{Instance: "Alpha", Installed: true, Running: true, UptimeSeconds: &up, RAMMB: &ram, CPUPercent: &cpu, Players: &players},
		{Instance: "Beta", Installed: true, LastExitCode: &code},
	})
	require.Len(t, rows, 2)
	assert.Contains(t, rows[0][1], "running")
	assert.Equal(t, []string{"1m 30s", "2048 MB", "12.5%", "3"}, rows[0][2:6])
	assert.Contains(t, rows[1][1], "stopped")
	assert.Equal(t, "1", rows[1][6])
}

func TestOperationError(t *testing.T) {
	assert.NoError(t, operationError(ui.ProgressResult{OK: true, Message: "Updated"}))
	assert.Error(t, operationError(ui.ProgressResult{OK: false, Message: "Update failed"}))

	refused := errors.New("refused")
	assert.ErrorIs(t, operationError(ui.ProgressResult{Err: refused}), refused)
	assert.ErrorIs(t, operationError(ui.ProgressResult{Message: "Connection lost", Err: refused}), refused)
	assert.NoError(t, operationError(ui.ProgressResult{Detached: true, Message: "Detached"}))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, []string{"Name", "Port"}, [][]string{{"Alpha", "5520"}})
	assert.Contains(t, buf.String(), "Alpha")
	assert.Contains(t, buf.String(), "5520")
}
