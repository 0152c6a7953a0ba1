package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()
	store, err := NewGormStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func intPtr(v int) *int { return &v }

func TestGormStore_SaveAndGet(t *testing.T) {
	store := newTestStore(t)

	inst := &domain.Instance{
		Name:      "Test",
		Dir:       "/srv/Test",
		Version:   "2025.01.10-abc",
		Channel:   domain.ChannelRelease,
		GamePort:  intPtr(5520),
		Startup:   domain.StartupArgs{MaxRAM: 4096},
		CreatedAt: time.Now(),
	}
	require.NoError(t, store.SaveInstance(inst))

	got, err := store.GetInstance("Test")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025.01.10-abc", got.Version)
	assert.Equal(t, domain.ChannelRelease, got.Channel)
	require.NotNil(t, got.GamePort)
	assert.Equal(t, 5520, *got.GamePort)
	assert.Nil(t, got.WebPort)
	assert.Equal(t, 4096, got.Startup.MaxRAM)

	missing, err := store.GetInstance("nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestGormStore_SaveDuplicate(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveInstance(&domain.Instance{Name: "A"}))
	assert.ErrorIs(t, store.SaveInstance(&domain.Instance{Name: "A"}), domain.ErrNameTaken)
}

func TestGormStore_RenameMovesActive(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveInstance(&domain.Instance{Name: "A", Dir: "/a"}))
	require.NoError(t, store.SaveInstance(&domain.Instance{Name: "B", Dir: "/b"}))
	require.NoError(t, store.SetActiveInstance("A"))

	assert.ErrorIs(t, store.RenameInstance("A", "B", "/b"), domain.ErrNameTaken)
	assert.ErrorIs(t, store.RenameInstance("missing", "C", "/c"), domain.ErrNotFound)

	require.NoError(t, store.RenameInstance("A", "C", "/c"))
	active, err := store.ActiveInstance()
	require.NoError(t, err)
	assert.Equal(t, "C", active)

	got, err := store.GetInstance("C")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "/c", got.Dir)
}

func TestGormStore_DeleteClearsActive(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, store.SaveInstance(&domain.Instance{Name: "A"}))
	require.NoError(t, store.SetActiveInstance("A"))
	require.NoError(t, store.DeleteInstance("A"))

	active, err := store.ActiveInstance()
	require.NoError(t, err)
	assert.Equal(t, "", active)
}

func TestGormStore_OrderAndUpdates(t *testing.T) {
	store := newTestStore(t)
	for _, n := range []string{"A", "B", "C"} {
		require.NoError(t, store.SaveInstance(&domain.Instance{Name: n}))
	}
	require.NoError(t, store.SetOrder([]string{"C", "A", "B"}))

	list, err := store.ListInstances()
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"C", "A", "B"}, []string{list[0].Name, list[1].Name, list[2].Name})

	require.NoError(t, store.UpdateVersion("A", "2025.02.01-def", domain.ChannelPrerelease))
	require.NoError(t, store.SetDegraded("A", true))
	require.NoError(t, store.UpdatePorts("A", intPtr(5521), intPtr(5621)))

	a, err := store.GetInstance("A")
	require.NoError(t, err)
	assert.Equal(t, domain.ChannelPrerelease, a.Channel)
	assert.True(t, a.Degraded)
	assert.Equal(t, 5621, *a.WebPort)

	assert.ErrorIs(t, store.UpdateVersion("missing", "x", domain.ChannelRelease), domain.ErrNotFound)
}

func TestGormStore_PortRange(t *testing.T) {
	store := newTestStore(t)

	start, end, err := store.GetPortRange()
	require.NoError(t, err)
	assert.Equal(t, DefaultPortRangeStart, start)
	assert.Equal(t, DefaultPortRangeEnd, end)

	assert.Error(t, store.SetPortRange(6000, 5000))
	require.NoError(t, store.SetPortRange(7000, 7010))
	start, end, err = store.GetPortRange()
	require.NoError(t, err)
	assert.Equal(t, 7000, start)
	assert.Equal(t, 7010, end)
}

func TestGormStore_SettingsUpsertAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	store, err := NewGormStore(path)
	require.NoError(t, err)

	_, err = store.GetSetting("theme")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.SetSetting("theme", "dark"))
	require.NoError(t, store.SetSetting("theme", "light"))
	require.NoError(t, store.SetPortRange(6000, 6100))
	require.NoError(t, store.Close())

	store, err = NewGormStore(path)
	require.NoError(t, err)
	defer store.Close()

	v, err := store.GetSetting("theme")
	require.NoError(t, err)
	assert.Equal(t, "light", v)

	start, end, err := store.GetPortRange()
	require.NoError(t, err)
	assert.Equal(t, 6000, start)
	assert.Equal(t, 6100, end)
}
