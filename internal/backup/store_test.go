package backup

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func newInstanceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "Server", "HytaleServer.jar"), "jar-v1")
	writeFile(t, filepath.Join(dir, "Server", "universe", "world.dat"), "world-v1")
	writeFile(t, filepath.Join(dir, "Assets.zip"), "assets-v1")
	require.NoError(t, instance.WriteMarkers(dir, "2026.01.10-aaaa", domain.ChannelRelease))
	return dir
}

func fixedClock(ts ...time.Time) func() time.Time {
	i := 0
	return func() time.Time {
		t := ts[i]
		if i < len(ts)-1 {
			i++
		}
		return t
	}
}

func TestStore_CreateWritesSidecar(t *testing.T) {
	dir := newInstanceDir(t)
	s := NewStore(0)

	var lastPct float64
	b, err := s.Create(context.Background(), dir, CreateOptions{
		Type:          domain.BackupPreUpdate,
		FromVersion:   "2026.01.10-aaaa",
		FromPatchline: domain.ChannelRelease,
		ToVersion:     "2026.01.20-bbbb",
		ToPatchline:   domain.ChannelRelease,
	}, func(ev domain.ProgressEvent) { lastPct = ev.Percent })
	require.NoError(t, err)

	assert.Equal(t, domain.BackupPreUpdate, b.Type)
	assert.Equal(t, "update from 2026.01.10-aaaa (release) to 2026.01.20-bbbb (release)", b.Label)
	assert.True(t, b.HasServer)
	assert.InDelta(t, 100, lastPct, 0.001)

	path := filepath.Join(dir, "backups", b.Folder)
	assert.FileExists(t, filepath.Join(path, "Server", "universe", "world.dat"))
	assert.FileExists(t, filepath.Join(path, "Assets.zip"))
	assert.FileExists(t, filepath.Join(path, "server_version.txt"))
	assert.FileExists(t, filepath.Join(path, "backup_info.json"))
}

func TestStore_CreateWithoutServer(t *testing.T) {
	s := NewStore(0)
	_, err := s.Create(context.Background(), t.TempDir(), CreateOptions{}, nil)
	assert.ErrorIs(t, err, domain.ErrNoServerState)
}

func TestStore_CreateCancelledLeavesNothing(t *testing.T) {
	dir := newInstanceDir(t)
	s := NewStore(0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Create(ctx, dir, CreateOptions{}, nil)
	require.Error(t, err)

	entries, err := os.ReadDir(filepath.Join(dir, "backups"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestStore_FolderCollisionAndOrder(t *testing.T) {
	dir := newInstanceDir(t)
	s := NewStore(0)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	s.now = fixedClock(base, base, base.Add(time.Minute))

	a, err := s.Create(context.Background(), dir, CreateOptions{Label: "first"}, nil)
	require.NoError(t, err)
	b, err := s.Create(context.Background(), dir, CreateOptions{Label: "second"}, nil)
	require.NoError(t, err)
	c, err := s.Create(context.Background(), dir, CreateOptions{}, nil)
	require.NoError(t, err)

	assert.Equal(t, "backup_2026-03-01_120000", a.Folder)
	assert.Equal(t, "backup_2026-03-01_120000_1", b.Folder)
	assert.Equal(t, "Manual backup", c.Label)

	list, err := s.List(dir)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, c.Folder, list[0].Folder)
}

func TestStore_ListParsesLegacyFolders(t *testing.T) {
	dir := t.TempDir()
	legacy := filepath.Join(dir, "backups", "update from 2025.12.01-abc (release) to 2026.01.01-def (pre-release)")
	writeFile(t, filepath.Join(legacy, "Server", "x"), "x")
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "backups", ".backup_2026-01-01_000000.tmp"), 0755))

	s := NewStore(0)
	list, err := s.List(dir)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, domain.BackupPreUpdate, list[0].Type)
	assert.Equal(t, "2025.12.01-abc", list[0].FromVersion)
	assert.Equal(t, "pre-release", list[0].ToPatchline)
}

func TestStore_RenameAndDelete(t *testing.T) {
	dir := newInstanceDir(t)
	s := NewStore(0)
	b, err := s.Create(context.Background(), dir, CreateOptions{Label: "before"}, nil)
	require.NoError(t, err)

	renamed, err := s.Rename(dir, b.Folder, "  ")
	require.NoError(t, err)
	assert.Equal(t, "Manual backup", renamed.Label)
	assert.Equal(t, b.Folder, renamed.Folder)

	renamed, err = s.Rename(dir, b.Folder, "after")
	require.NoError(t, err)
	assert.Equal(t, "after", renamed.Label)

	assert.ErrorIs(t, s.Delete(dir, "../"+b.Folder), domain.ErrInvalidPath)
	require.NoError(t, s.Delete(dir, b.Folder))
	assert.ErrorIs(t, s.Delete(dir, b.Folder), domain.ErrNotFound)
}

func TestStore_RestoreReplacesServerState(t *testing.T) {
	dir := newInstanceDir(t)
	s := NewStore(0)
	b, err := s.Create(context.Background(), dir, CreateOptions{}, nil)
	require.NoError(t, err)

	writeFile(t, filepath.Join(dir, "Server", "universe", "world.dat"), "world-v2")
	writeFile(t, filepath.Join(dir, "Server", "new.txt"), "added later")
	require.NoError(t, instance.WriteMarkers(dir, "2026.02.01-cccc", domain.ChannelPrerelease))

	require.NoError(t, s.Restore(context.Background(), dir, b.Folder))

	data, err := os.ReadFile(filepath.Join(dir, "Server", "universe", "world.dat"))
	require.NoError(t, err)
	assert.Equal(t, "world-v1", string(data))
	assert.NoFileExists(t, filepath.Join(dir, "Server", "new.txt"))

	ver, ch := instance.ReadMarkers(dir)
	assert.Equal(t, "2026.01.10-aaaa", ver)
	assert.Equal(t, domain.ChannelRelease, ch)
}

// treeHash digests every path and file body under dir except the backups
// folder.
func treeHash(t *testing.T, dir string) string {
	t.Helper()
	h := sha256.New()
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if d.IsDir() && rel == instance.BackupsDir {
			return filepath.SkipDir
		}
		h.Write([]byte(filepath.ToSlash(rel) + "\x00"))
		if d.Type().IsRegular() {
			data, err := os.ReadFile(path)
			if err != nil {
				return err
			}
			h.Write(data)
			h.Write([]byte{0})
		}
		return nil
	})
	require.NoError(t, err)
	return hex.EncodeToString(h.Sum(nil))
}

func TestStore_RestoreTwiceYieldsIdenticalTree(t *testing.T) {
	dir := newInstanceDir(t)
	writeFile(t, filepath.Join(dir, "Server", "mods", "mod.jar"), "mod-v1")
	writeFile(t, filepath.Join(dir, "start.sh"), "#!/bin/sh\n")
	want := treeHash(t, dir)

	s := NewStore(0)
	b, err := s.Create(context.Background(), dir, CreateOptions{}, nil)
	require.NoError(t, err)
	assert.Equal(t, want, treeHash(t, dir))

	writeFile(t, filepath.Join(dir, "Server", "universe", "world.dat"), "world-v2")
	writeFile(t, filepath.Join(dir, "Server", "universe", "region", "r.0.0"), "new region")
	require.NoError(t, os.Remove(filepath.Join(dir, "Server", "mods", "mod.jar")))
	writeFile(t, filepath.Join(dir, "Assets.zip"), "assets-v2")
	require.NoError(t, s.Restore(context.Background(), dir, b.Folder))
	first := treeHash(t, dir)
	assert.Equal(t, want, first)

	writeFile(t, filepath.Join(dir, "Server", "HytaleServer.jar"), "jar-v2")
	writeFile(t, filepath.Join(dir, "start.sh"), "#!/bin/sh\necho changed\n")
	require.NoError(t, instance.WriteMarkers(dir, "2026.02.01-cccc", domain.ChannelPrerelease))
	require.NoError(t, s.Restore(context.Background(), dir, b.Folder))
	assert.Equal(t, first, treeHash(t, dir))

	require.NoError(t, s.Restore(context.Background(), dir, b.Folder))
	assert.Equal(t, first, treeHash(t, dir))
}

func TestStore_RestoreInvalidBackupLeavesLiveState(t *testing.T) {
	dir := newInstanceDir(t)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "backups", "empty"), 0755))

	s := NewStore(0)
	err := s.Restore(context.Background(), dir, "empty")
	assert.ErrorIs(t, err, domain.ErrInvalidBackup)
	assert.FileExists(t, filepath.Join(dir, "Server", "HytaleServer.jar"))

	err = s.Restore(context.Background(), dir, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestStore_RetentionPrunesOldest(t *testing.T) {
	dir := newInstanceDir(t)
	s := NewStore(2)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	s.now = fixedClock(base, base.Add(time.Minute), base.Add(2*time.Minute))

	first, err := s.Create(context.Background(), dir, CreateOptions{}, nil)
	require.NoError(t, err)
	_, err = s.Create(context.Background(), dir, CreateOptions{}, nil)
	require.NoError(t, err)
	_, err = s.Create(context.Background(), dir, CreateOptions{}, nil)
	require.NoError(t, err)

	list, err := s.List(dir)
	require.NoError(t, err)
	require.Len(t, list, 2)
	for _, b := range list {
		assert.NotEqual(t, first.Folder, b.Folder)
	}
}

func TestStore_Export(t *testing.T) {
	dir := newInstanceDir(t)
	s := NewStore(0)
	b, err := s.Create(context.Background(), dir, CreateOptions{}, nil)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, s.Export(context.Background(), dir, b.Folder, &buf))
	assert.Greater(t, buf.Len(), 0)
}
