package instance

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()
	store, err := storage.NewGormStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewRegistry(root, store, PortPolicy{
		Start:     5520,
		End:       5600,
		WebOffset: 100,
		Available: func(int) bool { return true },
	})
}

func writeServerFiles(t *testing.T, dir string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, ServerDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ServerDir, ServerJar), []byte("jar"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, AssetsFile), []byte("zip"), 0644))
}

func TestSanitizeName(t *testing.T) {
	got, err := SanitizeName(`  My:Server/1  `)
	require.NoError(t, err)
	assert.Equal(t, "My-Server-1", got)

	_, err = SanitizeName("   ")
	assert.ErrorIs(t, err, domain.ErrInvalidName)

	_, err = SanitizeName("..")
	assert.ErrorIs(t, err, domain.ErrInvalidName)
}

func TestRegistry_CreateActivatesAndAllocatesPorts(t *testing.T) {
	r := newTestRegistry(t)

	a, err := r.Create("Alpha")
	require.NoError(t, err)
	assert.DirExists(t, a.Dir)
	require.NotNil(t, a.GamePort)
	assert.Equal(t, 5520, *a.GamePort)
	assert.Equal(t, 5620, *a.WebPort)
	assert.Equal(t, domain.UnknownVersion, a.Version)

	b, err := r.Create("Beta")
	require.NoError(t, err)
	assert.Equal(t, 5521, *b.GamePort)

	active, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, "Beta", active.Name)

	_, err = r.Create("Alpha")
	assert.ErrorIs(t, err, domain.ErrNameTaken)
}

func TestRegistry_ResolveEmptyWithoutActive(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Resolve("")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_ImportCopiesAndReadsMarkers(t *testing.T) {
	r := newTestRegistry(t)
	src := t.TempDir()
	writeServerFiles(t, src)
	require.NoError(t, WriteMarkers(src, "2026.01.15-abc123", domain.ChannelPrerelease))

	inst, err := r.Import(context.Background(), "Imported", src)
	require.NoError(t, err)
	assert.Equal(t, "2026.01.15-abc123", inst.Version)
	assert.Equal(t, domain.ChannelPrerelease, inst.Channel)
	assert.FileExists(t, filepath.Join(r.Root, "Imported", ServerDir, ServerJar))
	assert.DirExists(t, src)
}

func TestRegistry_ImportRejectsIncompleteFolder(t *testing.T) {
	r := newTestRegistry(t)
	src := t.TempDir()

	_, err := r.Import(context.Background(), "Bad", src)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), AssetsFile))
}

func TestRegistry_RenameMovesFolderAndActive(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create("Old")
	require.NoError(t, err)

	inst, err := r.Rename("Old", "New")
	require.NoError(t, err)
	assert.Equal(t, "New", inst.Name)
	assert.DirExists(t, filepath.Join(r.Root, "New"))
	assert.NoDirExists(t, filepath.Join(r.Root, "Old"))

	active, err := r.Active()
	require.NoError(t, err)
	assert.Equal(t, "New", active.Name)
}

func TestRegistry_RenameRefusedWhileRunningOrBusy(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create("Srv")
	require.NoError(t, err)

	r.InUse = func(name string) bool { return name == "Srv" }
	_, err = r.Rename("Srv", "Other")
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)

	r.InUse = nil
	unlock := r.Locks.Lock("Srv")
	_, err = r.Rename("Srv", "Other")
	assert.ErrorIs(t, err, domain.ErrOperationInProgress)
	unlock()
}

func TestRegistry_RenameToTakenName(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create("A")
	require.NoError(t, err)
	_, err = r.Create("B")
	require.NoError(t, err)

	_, err = r.Rename("A", "B")
	assert.ErrorIs(t, err, domain.ErrNameTaken)
	assert.DirExists(t, filepath.Join(r.Root, "A"))
}

func TestRegistry_DeleteKeepsFilesUnlessAsked(t *testing.T) {
	r := newTestRegistry(t)
	a, err := r.Create("A")
	require.NoError(t, err)
	b, err := r.Create("B")
	require.NoError(t, err)

	require.NoError(t, r.Delete("A", false))
	assert.DirExists(t, a.Dir)

	require.NoError(t, r.Delete("B", true))
	assert.NoDirExists(t, b.Dir)

	_, err = r.Get("B")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_AssignPortsConflict(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create("A")
	require.NoError(t, err)
	_, err = r.Create("B")
	require.NoError(t, err)

	taken := 5620 // A's web port
	_, err = r.AssignPorts("B", &taken, nil)
	assert.ErrorIs(t, err, domain.ErrPortConflict)

	free := 5590
	inst, err := r.AssignPorts("B", &free, nil)
	require.NoError(t, err)
	assert.Equal(t, 5590, *inst.GamePort)
}

func TestRegistry_Reorder(t *testing.T) {
	r := newTestRegistry(t)
	for _, n := range []string{"A", "B", "C"} {
		_, err := r.Create(n)
		require.NoError(t, err)
	}

	assert.Error(t, r.Reorder([]string{"C", "A"}))
	require.NoError(t, r.Reorder([]string{"C", "A", "B"}))

	list, err := r.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "C", list[0].Name)
	assert.Equal(t, "B", list[2].Name)
}

func TestRegistry_SetVersionAndSyncMarkers(t *testing.T) {
	r := newTestRegistry(t)
	inst, err := r.Create("V")
	require.NoError(t, err)

	require.NoError(t, r.SetVersion("V", "2026.02.01-ffff", domain.ChannelRelease))
	ver, ch := ReadMarkers(inst.Dir)
	assert.Equal(t, "2026.02.01-ffff", ver)
	assert.Equal(t, domain.ChannelRelease, ch)

	require.NoError(t, WriteMarkers(inst.Dir, "2026.01.01-aaaa", domain.ChannelPrerelease))
	synced, err := r.SyncMarkers("V")
	require.NoError(t, err)
	assert.Equal(t, "2026.01.01-aaaa", synced.Version)

	stored, err := r.Get("V")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelPrerelease, stored.Channel)
}

func TestRegistry_UpdateStartup(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create("S")
	require.NoError(t, err)

	args := domain.StartupArgs{MinRAM: 1024, MaxRAM: 4096, JVMArgs: "-XX:+UseZGC", Launcher: "script", DisableAOT: true}
	require.NoError(t, r.UpdateStartup("S", args))

	stored, err := r.Get("S")
	require.NoError(t, err)
	assert.Equal(t, args, stored.Startup)

	err = r.UpdateStartup("S", domain.StartupArgs{MinRAM: 4096, MaxRAM: 1024})
	assert.ErrorIs(t, err, domain.ErrInvalidStartup)

	err = r.UpdateStartup("S", domain.StartupArgs{Launcher: "docker"})
	assert.ErrorIs(t, err, domain.ErrInvalidStartup)

	err = r.UpdateStartup("missing", args)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRegistry_Files(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Create("F")
	require.NoError(t, err)

	require.NoError(t, r.WriteFile("F", "/Server/config.json", strings.NewReader(`{"a":1}`)))
	data, err := r.ReadFile("F", "Server/config.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, string(data))

	entries, err := r.ListFiles("F", "/Server")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "/Server/config.json", entries[0].Path)

	escaped, err := r.ReadFile("F", "../../etc/passwd")
	assert.Error(t, err)
	assert.Nil(t, escaped)

	assert.Error(t, r.DeleteFile("F", "/"))
}
