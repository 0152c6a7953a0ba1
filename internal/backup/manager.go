package backup

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/Stormster/hytale-server-manager-sub000/internal/metrics"
)

// Manager applies the store to registered instances. Every mutating call
// takes the instance lock without waiting, so a backup never interleaves
// with an update of the same instance.
type Manager struct {
	Registry *instance.Registry
	Store    *Store
}

func NewManager(registry *instance.Registry, store *Store) *Manager {
	return &Manager{Registry: registry, Store: store}
}

func (m *Manager) lock(name string) (*domain.Instance, func(), error) {
	inst, err := m.Registry.Resolve(name)
	if err != nil {
		return nil, nil, err
	}
	unlock, ok := m.Registry.Locks.TryLock(inst.Name)
	if !ok {
		return nil, nil, fmt.Errorf("instance %q: %w", inst.Name, domain.ErrOperationInProgress)
	}
	return inst, unlock, nil
}

func (m *Manager) ListBackups(name string) ([]domain.Backup, error) {
	inst, err := m.Registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return m.Store.List(inst.Dir)
}

func (m *Manager) GetBackup(name, folder string) (*domain.Backup, error) {
	inst, err := m.Registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return m.Store.Get(inst.Dir, folder)
}

// LastBackup is shaped for instance.Registry.Summaries.
func (m *Manager) LastBackup(dir string) *time.Time {
	return m.Store.Latest(dir)
}

// CreateBackup takes a manual backup. It is allowed while the server runs.
func (m *Manager) CreateBackup(ctx context.Context, name, label string, progress domain.ProgressFunc) (*domain.Backup, error) {
	inst, unlock, err := m.lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := m.Store.Create(ctx, inst.Dir, CreateOptions{Type: domain.BackupManual, Label: label}, progress)
	if err != nil {
		return nil, err
	}
	metrics.BackupCreated(string(b.Type))
	return b, nil
}

func (m *Manager) RenameBackup(name, folder, label string) (*domain.Backup, error) {
	inst, unlock, err := m.lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return m.Store.Rename(inst.Dir, folder, label)
}

func (m *Manager) DeleteBackup(name, folder string) error {
	inst, unlock, err := m.lock(name)
	if err != nil {
		return err
	}
	defer unlock()
	return m.Store.Delete(inst.Dir, folder)
}

// RestoreBackup replaces the live server state. The server must be stopped.
// A successful restore also clears the degraded flag, since the restored
// files are a complete, known state.
func (m *Manager) RestoreBackup(ctx context.Context, name, folder string) (*domain.Instance, error) {
	inst, unlock, err := m.lock(name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if m.Registry.InUse != nil && m.Registry.InUse(inst.Name) {
		return nil, fmt.Errorf("stop the server before restoring: %w", domain.ErrAlreadyRunning)
	}

	if err := m.Store.Restore(ctx, inst.Dir, folder); err != nil {
		return nil, err
	}

	if err := m.Registry.SetDegraded(inst.Name, false); err != nil {
		return nil, err
	}
	return m.Registry.SyncMarkers(inst.Name)
}

func (m *Manager) ExportBackup(ctx context.Context, name, folder string, w io.Writer) error {
	inst, err := m.Registry.Resolve(name)
	if err != nil {
		return err
	}
	return m.Store.Export(ctx, inst.Dir, folder, w)
}
