package instance

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/fsutil"
	"github.com/rs/zerolog/log"
)

// Registry is the durable list of instances. Records live in the store;
// each instance's files live in Root/<name>.
type Registry struct {
	Root  string
	Store domain.Repository
	Ports PortPolicy
	Locks *Locks

	// InUse, when set, reports whether an instance has a live server
	// process. Rename and delete refuse to touch such instances.
	InUse func(name string) bool

	mu sync.RWMutex
}

func NewRegistry(root string, store domain.Repository, ports PortPolicy) *Registry {
	return &Registry{
		Root:  root,
		Store: store,
		Ports: ports,
		Locks: NewLocks(),
	}
}

var forbiddenChars = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)

// SanitizeName makes name safe to use as a folder name.
func SanitizeName(name string) (string, error) {
	name = forbiddenChars.ReplaceAllString(strings.TrimSpace(name), "-")
	name = strings.Trim(name, ". ")
	if name == "" || name == BackupsDir {
		return "", fmt.Errorf("%w: %q", domain.ErrInvalidName, name)
	}
	if len(name) > 64 {
		name = strings.TrimRight(name[:64], ". ")
	}
	return name, nil
}

// policy applies the port range stored in settings over the configured one.
func (r *Registry) policy() PortPolicy {
	p := r.Ports
	if start, end, err := r.Store.GetPortRange(); err == nil && start > 0 && end >= start {
		p.Start, p.End = start, end
	}
	return p
}

func (r *Registry) dirFor(name string) string {
	return filepath.Join(r.Root, name)
}

func (r *Registry) Get(name string) (*domain.Instance, error) {
	inst, err := r.Store.GetInstance(name)
	if err != nil {
		return nil, err
	}
	if inst == nil {
		return nil, fmt.Errorf("instance %q: %w", name, domain.ErrNotFound)
	}
	return inst, nil
}

// Resolve returns the named instance, or the active one when name is empty.
func (r *Registry) Resolve(name string) (*domain.Instance, error) {
	if name == "" {
		active, err := r.Store.ActiveInstance()
		if err != nil {
			return nil, err
		}
		if active == "" {
			return nil, fmt.Errorf("no active instance: %w", domain.ErrNotFound)
		}
		name = active
	}
	return r.Get(name)
}

func (r *Registry) List() ([]domain.Instance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.Store.ListInstances()
}

// Summaries lists instances with the fields derived from disk. lastBackup
// may be nil.
func (r *Registry) Summaries(lastBackup func(dir string) *time.Time) ([]domain.InstanceSummary, error) {
	list, err := r.List()
	if err != nil {
		return nil, err
	}
	active, err := r.Store.ActiveInstance()
	if err != nil {
		return nil, err
	}

	out := make([]domain.InstanceSummary, 0, len(list))
	for _, inst := range list {
		s := domain.InstanceSummary{
			Instance:  inst,
			Installed: IsInstalled(inst.Dir),
			Active:    inst.Name == active,
		}
		if lastBackup != nil {
			s.LastBackupCreated = lastBackup(inst.Dir)
		}
		out = append(out, s)
	}
	return out, nil
}

// Create registers a new, empty instance and makes it active.
func (r *Registry) Create(name string) (*domain.Instance, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	dir := r.dirFor(clean)
	if existing, err := r.Store.GetInstance(clean); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("instance %q: %w", clean, domain.ErrNameTaken)
	}
	if fsutil.Exists(dir) {
		return nil, fmt.Errorf("folder %q already exists: %w", clean, domain.ErrNameTaken)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("filesystem error: %w", err)
	}

	inst, err := r.register(clean, dir, domain.UnknownVersion, domain.ChannelRelease)
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	log.Info().Str("instance", clean).Str("dir", dir).Msg("instance created")
	return inst, nil
}

// register saves a record for dir with freshly allocated ports at the end of
// the display order. Callers hold r.mu.
func (r *Registry) register(name, dir, ver string, ch domain.Channel) (*domain.Instance, error) {
	existing, err := r.Store.ListInstances()
	if err != nil {
		return nil, err
	}

	game, web, err := r.policy().Allocate(existing)
	if err != nil {
		log.Warn().Err(err).Str("instance", name).Msg("no free port, leaving unassigned")
	}

	order := 0
	for _, e := range existing {
		if e.Order >= order {
			order = e.Order + 1
		}
	}

	inst := &domain.Instance{
		Name:      name,
		Dir:       dir,
		Version:   ver,
		Channel:   ch,
		GamePort:  game,
		WebPort:   web,
		Order:     order,
		CreatedAt: time.Now(),
	}
	if err := r.Store.SaveInstance(inst); err != nil {
		if errors.Is(err, domain.ErrNameTaken) {
			return nil, fmt.Errorf("instance %q: %w", name, err)
		}
		return nil, fmt.Errorf("DB error: %w", err)
	}
	if err := r.Store.SetActiveInstance(name); err != nil {
		log.Warn().Err(err).Str("instance", name).Msg("could not activate instance")
	}
	return inst, nil
}

// Import registers an existing server folder. A folder already inside Root
// is registered in place; anything else is copied in.
func (r *Registry) Import(ctx context.Context, name, source string) (*domain.Instance, error) {
	clean, err := SanitizeName(name)
	if err != nil {
		return nil, err
	}

	source, err = filepath.Abs(source)
	if err != nil {
		return nil, err
	}
	if err := validateImportSource(source); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, err := r.Store.GetInstance(clean); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("instance %q: %w", clean, domain.ErrNameTaken)
	}

	dir := r.dirFor(clean)
	root, _ := filepath.Abs(r.Root)
	copied := false
	if filepath.Clean(source) != filepath.Clean(dir) {
		if filepath.Dir(source) == root {
			return nil, fmt.Errorf("%q is already inside the instances folder; import it under its own name", source)
		}
		if fsutil.Exists(dir) {
			return nil, fmt.Errorf("folder %q already exists: %w", clean, domain.ErrNameTaken)
		}
		if err := fsutil.CopyDir(ctx, source, dir, nil); err != nil {
			os.RemoveAll(dir)
			return nil, fmt.Errorf("copy server files: %w", err)
		}
		copied = true
	}

	ver, ch := ReadMarkers(dir)
	inst, err := r.register(clean, dir, ver, ch)
	if err != nil {
		if copied {
			os.RemoveAll(dir)
		}
		return nil, err
	}

	log.Info().Str("instance", clean).Str("source", source).Str("version", ver).Msg("instance imported")
	return inst, nil
}

func validateImportSource(source string) error {
	if !fsutil.IsDir(source) {
		return fmt.Errorf("source %q: %w", source, domain.ErrNotFound)
	}
	var missing []string
	if !fsutil.IsFile(filepath.Join(source, AssetsFile)) {
		missing = append(missing, AssetsFile)
	}
	if !fsutil.IsFile(filepath.Join(source, ServerDir, ServerJar)) {
		missing = append(missing, ServerDir+"/"+ServerJar)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", domain.ErrNotInstalled, strings.Join(missing, ", "))
	}
	return nil
}

// Delete removes the record and, when deleteFiles is set, the folder.
func (r *Registry) Delete(name string, deleteFiles bool) error {
	unlock, ok := r.Locks.TryLock(name)
	if !ok {
		return fmt.Errorf("instance %q: %w", name, domain.ErrOperationInProgress)
	}
	defer unlock()

	if r.InUse != nil && r.InUse(name) {
		return fmt.Errorf("stop the server before deleting: %w", domain.ErrAlreadyRunning)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inst, err := r.Get(name)
	if err != nil {
		return err
	}

	if err := r.Store.DeleteInstance(name); err != nil {
		return fmt.Errorf("error deleting instance from database: %w", err)
	}

	if deleteFiles {
		if err := os.RemoveAll(inst.Dir); err != nil {
			return fmt.Errorf("error deleting instance files: %w", err)
		}
	}

	log.Info().Str("instance", name).Bool("files", deleteFiles).Msg("instance deleted")
	return nil
}

// Rename moves the folder and the record together. If the record cannot be
// updated the folder is moved back.
func (r *Registry) Rename(name, newName string) (*domain.Instance, error) {
	clean, err := SanitizeName(newName)
	if err != nil {
		return nil, err
	}

	unlock, ok := r.Locks.TryLock(name)
	if !ok {
		return nil, fmt.Errorf("instance %q: %w", name, domain.ErrOperationInProgress)
	}
	defer unlock()

	if r.InUse != nil && r.InUse(name) {
		return nil, fmt.Errorf("stop the server before renaming: %w", domain.ErrAlreadyRunning)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	inst, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if clean == name {
		return inst, nil
	}
	if existing, err := r.Store.GetInstance(clean); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, fmt.Errorf("instance %q: %w", clean, domain.ErrNameTaken)
	}

	newDir := filepath.Join(filepath.Dir(inst.Dir), clean)
	if fsutil.Exists(newDir) {
		return nil, fmt.Errorf("folder %q already exists: %w", clean, domain.ErrNameTaken)
	}

	moved := false
	if fsutil.Exists(inst.Dir) {
		if err := os.Rename(inst.Dir, newDir); err != nil {
			return nil, fmt.Errorf("rename folder: %w", err)
		}
		moved = true
	}

	if err := r.Store.RenameInstance(name, clean, newDir); err != nil {
		if moved {
			if rbErr := os.Rename(newDir, inst.Dir); rbErr != nil {
				log.Error().Err(rbErr).Str("instance", name).Msg("rename rollback failed")
			}
		}
		return nil, fmt.Errorf("rename record: %w", err)
	}

	log.Info().Str("instance", name).Str("new_name", clean).Msg("instance renamed")
	return r.Get(clean)
}

func (r *Registry) SetActive(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.Get(name); err != nil {
		return err
	}
	return r.Store.SetActiveInstance(name)
}

func (r *Registry) Active() (*domain.Instance, error) {
	return r.Resolve("")
}

// Reorder stores a new display order. names must contain every instance
// exactly once.
func (r *Registry) Reorder(names []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	list, err := r.Store.ListInstances()
	if err != nil {
		return err
	}
	want := make([]string, 0, len(list))
	for _, inst := range list {
		want = append(want, inst.Name)
	}
	got := append([]string(nil), names...)
	sort.Strings(want)
	sort.Strings(got)
	if strings.Join(want, "\x00") != strings.Join(got, "\x00") {
		return fmt.Errorf("order must list every instance exactly once")
	}
	return r.Store.SetOrder(names)
}

// AssignPorts sets explicit ports. A nil port leaves that assignment
// unchanged.
func (r *Registry) AssignPorts(name string, game, web *int) (*domain.Instance, error) {
	unlock, ok := r.Locks.TryLock(name)
	if !ok {
		return nil, fmt.Errorf("instance %q: %w", name, domain.ErrOperationInProgress)
	}
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	inst, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	list, err := r.Store.ListInstances()
	if err != nil {
		return nil, err
	}

	if game == nil {
		game = inst.GamePort
	}
	if web == nil {
		web = inst.WebPort
	}
	if err := CheckConflicts(list, name, game, web); err != nil {
		return nil, err
	}

	if err := r.Store.UpdatePorts(name, game, web); err != nil {
		return nil, err
	}
	return r.Get(name)
}

// EnsurePorts allocates ports for an instance that has none yet.
func (r *Registry) EnsurePorts(name string) (*domain.Instance, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	inst, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	if inst.GamePort != nil {
		if inst.WebPort == nil {
			web := *inst.GamePort + r.Ports.WebOffset
			inst.WebPort = &web
			if err := r.Store.UpdatePorts(name, inst.GamePort, inst.WebPort); err != nil {
				return nil, err
			}
		}
		return inst, nil
	}

	list, err := r.Store.ListInstances()
	if err != nil {
		return nil, err
	}
	game, web, err := r.policy().Allocate(list)
	if err != nil {
		return nil, err
	}
	if err := r.Store.UpdatePorts(name, game, web); err != nil {
		return nil, err
	}
	inst.GamePort, inst.WebPort = game, web
	return inst, nil
}

// SetVersion records a new installed version on disk and in the store.
func (r *Registry) SetVersion(name, ver string, ch domain.Channel) error {
	inst, err := r.Get(name)
	if err != nil {
		return err
	}
	if err := WriteMarkers(inst.Dir, ver, ch); err != nil {
		return fmt.Errorf("write version markers: %w", err)
	}
	return r.Store.UpdateVersion(name, ver, ch)
}

// SyncMarkers reloads the version markers from disk into the store, used
// after a restore replaced them.
func (r *Registry) SyncMarkers(name string) (*domain.Instance, error) {
	inst, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	ver, ch := ReadMarkers(inst.Dir)
	if err := r.Store.UpdateVersion(name, ver, ch); err != nil {
		return nil, err
	}
	inst.Version, inst.Channel = ver, ch
	return inst, nil
}

func (r *Registry) SetDegraded(name string, degraded bool) error {
	return r.Store.SetDegraded(name, degraded)
}

func (r *Registry) UpdateStartup(name string, args domain.StartupArgs) error {
	if _, err := r.Get(name); err != nil {
		return err
	}
	if args.MinRAM < 0 || args.MaxRAM < 0 || (args.MaxRAM > 0 && args.MinRAM > args.MaxRAM) {
		return fmt.Errorf("memory limits %d/%d MB: %w", args.MinRAM, args.MaxRAM, domain.ErrInvalidStartup)
	}
	switch args.Launcher {
	case "", "java", "script":
	default:
		return fmt.Errorf("launcher %q: %w", args.Launcher, domain.ErrInvalidStartup)
	}
	return r.Store.UpdateStartup(name, args)
}
