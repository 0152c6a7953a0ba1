package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/backup"
	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/downloader"
	"github.com/Stormster/hytale-server-manager-sub000/internal/events"
	"github.com/Stormster/hytale-server-manager-sub000/internal/fsutil"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/Stormster/hytale-server-manager-sub000/internal/metrics"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

const progressEvery = 250 * time.Millisecond

// Operation is one running install or update.
type Operation struct {
	ID        string         `json:"id"`
	Instance  string         `json:"instance"`
	Channel   domain.Channel `json:"patchline"`
	StartedAt time.Time      `json:"started_at"`
	Stream    *events.Stream `json:"-"`

	cancel   context.CancelFunc
	swapping atomic.Bool
}

// Swapping reports whether live files are being replaced. From that point
// the operation ignores cancellation.
func (op *Operation) Swapping() bool {
	return op.swapping.Load()
}

// Orchestrator installs and updates instances. At most one operation runs
// per instance; different instances proceed independently.
type Orchestrator struct {
	Registry *instance.Registry
	Backups  *backup.Store
	Tool     downloader.Tool
	CacheDir string

	// Servers lets an update see, stop and restart server processes.
	Servers ServerControl

	group singleflight.Group
	cache *cache

	mu        sync.Mutex
	ops       map[string]*Operation
	updateAll *events.Stream

	wait func(ctx context.Context, d time.Duration) error
	// beforeLock, when set, runs between resolving and locking an instance.
	beforeLock func(name string)
}

func New(registry *instance.Registry, backups *backup.Store, tool downloader.Tool, cacheDir string) *Orchestrator {
	return &Orchestrator{
		Registry: registry,
		Backups:  backups,
		Tool:     tool,
		CacheDir: cacheDir,
		cache:    newCache(cacheDir),
		ops:      make(map[string]*Operation),
		wait:     sleepCtx,
	}
}

// Active reports whether name has an install or update in flight.
func (o *Orchestrator) Active(name string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.ops[name]
	return ok
}

func (o *Orchestrator) Operation(name string) (*Operation, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	op, ok := o.ops[name]
	return op, ok
}

func (o *Orchestrator) Operations() []*Operation {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*Operation, 0, len(o.ops))
	for _, op := range o.ops {
		out = append(out, op)
	}
	return out
}

// Cancel asks the operation on name to stop. It returns false when there
// is nothing to cancel or the swap has already begun.
func (o *Orchestrator) Cancel(name string) bool {
	op, ok := o.Operation(name)
	if !ok || op.Swapping() {
		return false
	}
	op.cancel()
	log.Info().Str("instance", name).Str("op", op.ID).Msg("update cancellation requested")
	return true
}

// CleanupStale removes per-operation work directories left by a previous
// process that did not shut down cleanly.
func (o *Orchestrator) CleanupStale() {
	if err := os.RemoveAll(o.cache.workRoot()); err != nil {
		log.Warn().Err(err).Msg("could not clean stale update work dirs")
	}
}

// InstallOrUpdate starts installing the newest build of ch into the named
// instance. Refusals are returned here; everything after that is reported
// on the operation's stream, which always ends with exactly one done event.
// The operation outlives the caller's context.
//
// A running server refuses the update unless opts.StopRunning is set, in
// which case it is stopped before the backup and started again afterwards.
func (o *Orchestrator) InstallOrUpdate(name string, ch domain.Channel, opts Options) (*Operation, error) {
	inst, err := o.Registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	name = inst.Name
	if o.beforeLock != nil {
		o.beforeLock(name)
	}

	unlock, ok := o.Registry.Locks.TryLock(name)
	if !ok {
		return nil, fmt.Errorf("instance %q: %w", name, domain.ErrOperationInProgress)
	}
	// A rename may have finished between Resolve and TryLock.
	if inst, err = o.Registry.Get(name); err != nil {
		unlock()
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	op := &Operation{
		ID:        uuid.New().String(),
		Instance:  name,
		Channel:   ch,
		StartedAt: time.Now(),
		Stream:    events.NewStream(),
		cancel:    cancel,
	}

	o.mu.Lock()
	if _, busy := o.ops[name]; busy {
		o.mu.Unlock()
		cancel()
		unlock()
		return nil, fmt.Errorf("instance %q: %w", name, domain.ErrOperationInProgress)
	}
	o.ops[name] = op
	o.mu.Unlock()

	// The op is registered before this check, and the supervisor registers
	// its start before checking Active, so one of the two always sees the
	// other.
	running := o.Servers != nil && o.Servers.IsRunning(name)
	if running && !opts.StopRunning {
		o.finish(op)
		cancel()
		unlock()
		return nil, fmt.Errorf("stop the server before updating: %w", domain.ErrAlreadyRunning)
	}

	go func() {
		res := o.run(ctx, op, inst, running, opts)
		cancel()
		o.finish(op)
		unlock()
		if res.restart {
			res.message += o.restart(name, op.Stream)
		}
		op.Stream.Done(res.ok, res.message)
	}()

	return op, nil
}

func (o *Orchestrator) finish(op *Operation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.ops[op.Instance] == op {
		delete(o.ops, op.Instance)
	}
}

// outcome carries what a failed run needs to tell the user.
type outcome struct {
	backupFolder string
	touched      bool
}

func (oc outcome) suffix() string {
	switch {
	case oc.touched && oc.backupFolder != "":
		return fmt.Sprintf(" The instance may be incomplete and is marked degraded. Restore backup %s to recover.", oc.backupFolder)
	case oc.touched:
		return " The instance may be incomplete and is marked degraded."
	case oc.backupFolder != "":
		return fmt.Sprintf(" Server files were not changed. Backup %s is available.", oc.backupFolder)
	}
	return " Nothing was changed."
}

// result is what run hands back for the done event.
type result struct {
	ok      bool
	message string
	// restart is set when run stopped the server and its files are usable.
	restart bool
}

func (o *Orchestrator) run(ctx context.Context, op *Operation, inst *domain.Instance, running bool, opts Options) result {
	start := time.Now()
	logger := log.With().Str("instance", inst.Name).Str("op", op.ID).Str("patchline", string(op.Channel)).Logger()
	stream := op.Stream
	var oc outcome
	var stopped bool

	fail := func(step string, err error) result {
		var msg string
		if errors.Is(err, context.Canceled) && !oc.touched {
			msg = "Update cancelled." + oc.suffix()
			logger.Info().Str("step", step).Msg("update cancelled")
		} else {
			msg = describe(step, err) + "." + oc.suffix()
			logger.Error().Err(err).Str("step", step).Bool("touched", oc.touched).Str("backup", oc.backupFolder).Msg("update failed")
		}
		metrics.UpdateFinished(false, time.Since(start).Seconds())
		return result{message: msg, restart: stopped && !oc.touched}
	}

	workDir := o.cache.workDir(op.ID)
	defer func() {
		if err := os.RemoveAll(workDir); err != nil {
			logger.Warn().Err(err).Msg("could not remove work dir")
		}
	}()

	// Checking setup.
	stream.Status("Checking downloader setup...")
	if err := o.Tool.Preflight(ctx); err != nil {
		return fail("setup", err)
	}

	stream.Status(fmt.Sprintf("Checking latest %s version...", op.Channel))
	target, err := o.Tool.PrintVersion(ctx, op.Channel)
	if err != nil {
		return fail("version check", err)
	}

	// Stopping the server.
	if running {
		if err := o.stopForUpdate(ctx, inst.Name, opts, stream); err != nil {
			return fail("stop", err)
		}
		stopped = true
	}

	// Backing up.
	installed := instance.IsInstalled(inst.Dir)
	fromVer, fromCh := instance.ReadMarkers(inst.Dir)
	if installed {
		stream.Status("Creating backup before update...")
		b, err := o.Backups.Create(ctx, inst.Dir, backup.CreateOptions{
			Type:          domain.BackupPreUpdate,
			FromVersion:   fromVer,
			FromPatchline: fromCh,
			ToVersion:     target,
			ToPatchline:   op.Channel,
		}, throttled(stream, "Backing up"))
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("%w: %v", domain.ErrBackupFailed, err)
			}
			return fail("backup", err)
		}
		oc.backupFolder = b.Folder
		metrics.BackupCreated(string(domain.BackupPreUpdate))
	}

	// Downloading, extracting and validating.
	staging := filepath.Join(workDir, "staging")
	if err := o.cache.fetch(ctx, o.Tool, op.Channel, target, workDir, staging, stream); err != nil {
		return fail("download", err)
	}

	// Swapping. No cancellation from here on.
	if ctx.Err() != nil {
		return fail("swap", ctx.Err())
	}
	op.swapping.Store(true)
	oc.touched = true
	stream.Status("Installing server files...")
	if err := swap(staging, inst.Dir); err != nil {
		if derr := o.Registry.SetDegraded(inst.Name, true); derr != nil {
			logger.Error().Err(derr).Msg("could not mark instance degraded")
		}
		return fail("swap", err)
	}

	// Updating the registry.
	if err := o.Registry.SetVersion(inst.Name, target, op.Channel); err != nil {
		if derr := o.Registry.SetDegraded(inst.Name, true); derr != nil {
			logger.Error().Err(derr).Msg("could not mark instance degraded")
		}
		return fail("registry", err)
	}
	if err := o.Registry.SetDegraded(inst.Name, false); err != nil {
		logger.Warn().Err(err).Msg("could not clear degraded flag")
	}

	verb := "Update"
	if !installed {
		verb = "Setup"
	}
	metrics.UpdateFinished(true, time.Since(start).Seconds())
	logger.Info().Str("from", fromVer).Str("to", target).Dur("took", time.Since(start)).Msg("update finished")
	return result{
		ok:      true,
		message: fmt.Sprintf("%s complete! Version: %s", verb, target),
		restart: stopped,
	}
}

func describe(step string, err error) string {
	switch {
	case errors.Is(err, domain.ErrDownloaderMissing):
		return "The Hytale downloader is not installed"
	case errors.Is(err, domain.ErrAuthExpired):
		return "Downloader authentication expired, refresh authentication and retry"
	case errors.Is(err, domain.ErrBackupFailed):
		return fmt.Sprintf("Backup failed, update aborted (%v)", err)
	case errors.Is(err, domain.ErrCorruptArchive):
		return fmt.Sprintf("Downloaded archive is invalid (%v)", err)
	case errors.Is(err, domain.ErrConnection):
		return fmt.Sprintf("Could not reach the download service (%v)", err)
	case step == "stop":
		return fmt.Sprintf("Could not stop the server for the update (%v)", err)
	}
	return fmt.Sprintf("Update failed during %s: %v", step, err)
}

// Files a build replaces. Everything else in the instance is user data.
var (
	serverFiles = []string{instance.ServerJar, instance.ServerAOT}
	rootFiles   = []string{instance.AssetsFile, "start.sh", "start.bat"}
)

const licensesDir = "Licenses"

// swap copies the binary subset of staging over dir, one file at a time
// through a temporary name.
func swap(staging, dir string) error {
	liveServer := filepath.Join(dir, instance.ServerDir)
	stagedServer := filepath.Join(staging, instance.ServerDir)
	if err := os.MkdirAll(liveServer, 0755); err != nil {
		return err
	}

	for _, name := range serverFiles {
		src := filepath.Join(stagedServer, name)
		if !fsutil.IsFile(src) {
			continue
		}
		if err := fsutil.ReplaceFile(src, filepath.Join(liveServer, name)); err != nil {
			return fmt.Errorf("replace %s: %w", name, err)
		}
	}

	if src := filepath.Join(stagedServer, licensesDir); fsutil.IsDir(src) {
		if err := fsutil.ReplaceDir(context.Background(), src, filepath.Join(liveServer, licensesDir)); err != nil {
			return fmt.Errorf("replace %s: %w", licensesDir, err)
		}
	}

	for _, name := range rootFiles {
		src := filepath.Join(staging, name)
		if !fsutil.IsFile(src) {
			continue
		}
		if err := fsutil.ReplaceFile(src, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("replace %s: %w", name, err)
		}
	}
	return nil
}

// throttled returns a progress callback that forwards at most a few events
// per second, always including completion.
func throttled(stream *events.Stream, detail string) domain.ProgressFunc {
	limiter := rate.NewLimiter(rate.Every(progressEvery), 1)
	return func(ev domain.ProgressEvent) {
		if ev.Percent < 100 && !limiter.Allow() {
			return
		}
		stream.Progress(ev.Percent, detail)
	}
}
