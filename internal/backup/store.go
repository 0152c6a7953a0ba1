package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/fsutil"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/rs/zerolog/log"
)

const (
	metaFile     = "backup_info.json"
	stagingExt   = ".tmp"
	folderLayout = "backup_2006-01-02_150405"

	defaultLabel   = "Manual backup"
	preUpdateLabel = "Pre-update backup"
)

// Files copied next to Server/ in every backup and restored with it.
var rootFiles = []string{
	instance.AssetsFile,
	"start.sh",
	"start.bat",
	instance.VersionFile,
	instance.PatchlineFile,
}

var updateLabelRe = regexp.MustCompile(`(?i)update from\s+(\S+)\s+\(([^)]+)\)\s+to\s+(\S+)\s+\(([^)]+)\)`)

type meta struct {
	Type          domain.BackupType `json:"type"`
	Label         string            `json:"label"`
	Created       time.Time         `json:"created"`
	FromVersion   string            `json:"from_version,omitempty"`
	FromPatchline string            `json:"from_patchline,omitempty"`
	ToVersion     string            `json:"to_version,omitempty"`
	ToPatchline   string            `json:"to_patchline,omitempty"`
}

type CreateOptions struct {
	Type          domain.BackupType
	Label         string
	FromVersion   string
	FromPatchline domain.Channel
	ToVersion     string
	ToPatchline   domain.Channel
}

// UpdateLabel is the label given to pre-update backups.
func UpdateLabel(fromVer string, fromCh domain.Channel, toVer string, toCh domain.Channel) string {
	return fmt.Sprintf("update from %s (%s) to %s (%s)", fromVer, fromCh, toVer, toCh)
}

// Store keeps backups as plain folders under <instance>/backups.
type Store struct {
	// Retention is the number of backups kept per instance; 0 keeps all.
	Retention int
	now       func() time.Time
}

func NewStore(retention int) *Store {
	return &Store{Retention: retention, now: time.Now}
}

func backupRoot(dir string) string {
	return filepath.Join(dir, instance.BackupsDir)
}

func (s *Store) resolve(dir, folder string) (string, error) {
	if folder == "" || strings.ContainsAny(folder, `/\`) || folder == "." || folder == ".." {
		return "", fmt.Errorf("invalid backup name %q: %w", folder, domain.ErrInvalidPath)
	}
	path := filepath.Join(backupRoot(dir), folder)
	if !fsutil.IsDir(path) {
		return "", fmt.Errorf("backup %q: %w", folder, domain.ErrNotFound)
	}
	return path, nil
}

// Create copies the live server state of dir into a new backup folder.
// progress, if set, receives the bytes copied so far.
func (s *Store) Create(ctx context.Context, dir string, opts CreateOptions, progress domain.ProgressFunc) (*domain.Backup, error) {
	serverDir := filepath.Join(dir, instance.ServerDir)
	if !fsutil.IsDir(serverDir) {
		return nil, domain.ErrNoServerState
	}

	root := backupRoot(dir)
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("could not create backups directory: %w", err)
	}

	now := s.now()
	folder := s.freeFolder(root, now.Format(folderLayout))
	dest := filepath.Join(root, folder)
	staging := filepath.Join(root, "."+folder+stagingExt)

	total := fsutil.DirSize(serverDir)
	var copied int64
	onFile := func(size int64) {
		copied += size
		if progress != nil && total > 0 {
			progress(domain.ProgressEvent{
				Message:      "Backing up server files",
				Percent:      float64(copied) / float64(total) * 100,
				CurrentBytes: copied,
				TotalBytes:   total,
			})
		}
	}

	if err := s.fill(ctx, dir, staging, onFile); err != nil {
		os.RemoveAll(staging)
		return nil, err
	}

	m := metaFor(opts, now)
	if err := writeMeta(staging, m); err != nil {
		os.RemoveAll(staging)
		return nil, err
	}

	if err := os.Rename(staging, dest); err != nil {
		os.RemoveAll(staging)
		return nil, fmt.Errorf("error finalizing backup: %w", err)
	}

	log.Info().Str("backup", folder).Str("dir", dir).Str("type", string(m.Type)).Msg("backup created")

	if s.Retention > 0 {
		s.prune(dir, folder)
	}

	return load(dest), nil
}

func (s *Store) fill(ctx context.Context, dir, staging string, onFile func(int64)) error {
	if err := fsutil.CopyDir(ctx, filepath.Join(dir, instance.ServerDir), filepath.Join(staging, instance.ServerDir), onFile); err != nil {
		return fmt.Errorf("error copying server files: %w", err)
	}
	for _, name := range rootFiles {
		src := filepath.Join(dir, name)
		if !fsutil.IsFile(src) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fsutil.CopyFile(src, filepath.Join(staging, name)); err != nil {
			return fmt.Errorf("error copying %s: %w", name, err)
		}
	}
	return nil
}

func (s *Store) freeFolder(root, base string) string {
	name := base
	for n := 1; ; n++ {
		if !fsutil.Exists(filepath.Join(root, name)) && !fsutil.Exists(filepath.Join(root, "."+name+stagingExt)) {
			return name
		}
		name = base + "_" + strconv.Itoa(n)
	}
}

func metaFor(opts CreateOptions, now time.Time) meta {
	m := meta{
		Type:          opts.Type,
		Label:         strings.TrimSpace(opts.Label),
		Created:       now,
		FromVersion:   opts.FromVersion,
		FromPatchline: string(opts.FromPatchline),
		ToVersion:     opts.ToVersion,
		ToPatchline:   string(opts.ToPatchline),
	}
	if m.Type == "" {
		m.Type = domain.BackupManual
	}
	if m.Type == domain.BackupPreUpdate && m.FromVersion != "" && m.Label == "" {
		m.Label = UpdateLabel(opts.FromVersion, opts.FromPatchline, opts.ToVersion, opts.ToPatchline)
	}
	if m.Label == "" {
		m.Label = defaultLabel
	}
	return m
}

func writeMeta(dir string, m meta) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := filepath.Join(dir, metaFile+".new")
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(dir, metaFile))
}

// load reads a backup folder. Folders without a sidecar are described from
// their name and modification time.
func load(path string) *domain.Backup {
	b := &domain.Backup{
		Folder:    filepath.Base(path),
		Type:      domain.BackupManual,
		Label:     defaultLabel,
		HasServer: fsutil.IsDir(filepath.Join(path, instance.ServerDir)),
	}
	if info, err := os.Stat(path); err == nil {
		b.Created = info.ModTime()
	}

	data, err := os.ReadFile(filepath.Join(path, metaFile))
	if err != nil {
		parseLegacy(b)
		return b
	}

	var m meta
	if err := json.Unmarshal(data, &m); err != nil {
		log.Warn().Err(err).Str("backup", b.Folder).Msg("unreadable backup metadata")
		parseLegacy(b)
		return b
	}
	if m.Type != "" {
		b.Type = m.Type
	}
	if m.Label != "" {
		b.Label = m.Label
	}
	if !m.Created.IsZero() {
		b.Created = m.Created
	}
	b.FromVersion = m.FromVersion
	b.FromPatchline = m.FromPatchline
	b.ToVersion = m.ToVersion
	b.ToPatchline = m.ToPatchline
	return b
}

func parseLegacy(b *domain.Backup) {
	match := updateLabelRe.FindStringSubmatch(b.Folder)
	if match == nil {
		return
	}
	b.Type = domain.BackupPreUpdate
	b.Label = preUpdateLabel
	b.FromVersion = match[1]
	b.FromPatchline = match[2]
	b.ToVersion = match[3]
	b.ToPatchline = match[4]
}

// List returns the backups of dir, newest first.
func (s *Store) List(dir string) ([]domain.Backup, error) {
	entries, err := os.ReadDir(backupRoot(dir))
	if os.IsNotExist(err) {
		return []domain.Backup{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read backups directory: %w", err)
	}

	backups := make([]domain.Backup, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		backups = append(backups, *load(filepath.Join(backupRoot(dir), e.Name())))
	}

	sort.SliceStable(backups, func(i, j int) bool {
		return backups[i].Created.After(backups[j].Created)
	})
	return backups, nil
}

// Get describes a single backup, including its size on disk.
func (s *Store) Get(dir, folder string) (*domain.Backup, error) {
	path, err := s.resolve(dir, folder)
	if err != nil {
		return nil, err
	}
	b := load(path)
	b.Size = fsutil.DirSize(path)
	return b, nil
}

func (s *Store) Latest(dir string) *time.Time {
	backups, err := s.List(dir)
	if err != nil || len(backups) == 0 {
		return nil
	}
	t := backups[0].Created
	return &t
}

func (s *Store) Rename(dir, folder, label string) (*domain.Backup, error) {
	path, err := s.resolve(dir, folder)
	if err != nil {
		return nil, err
	}
	current := load(path)

	label = strings.TrimSpace(label)
	if label == "" {
		label = defaultLabel
	}
	m := meta{
		Type:          current.Type,
		Label:         label,
		Created:       current.Created,
		FromVersion:   current.FromVersion,
		FromPatchline: current.FromPatchline,
		ToVersion:     current.ToVersion,
		ToPatchline:   current.ToPatchline,
	}
	if err := writeMeta(path, m); err != nil {
		return nil, fmt.Errorf("error writing backup metadata: %w", err)
	}
	return load(path), nil
}

func (s *Store) Delete(dir, folder string) error {
	path, err := s.resolve(dir, folder)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return fmt.Errorf("error deleting backup: %w", err)
	}
	log.Info().Str("backup", folder).Str("dir", dir).Msg("backup deleted")
	return nil
}

// Restore puts the server state of a backup back in place. The live state
// is left alone when the backup is unusable.
func (s *Store) Restore(ctx context.Context, dir, folder string) error {
	path, err := s.resolve(dir, folder)
	if err != nil {
		return err
	}
	src := filepath.Join(path, instance.ServerDir)
	if !fsutil.IsDir(src) {
		return fmt.Errorf("backup %q has no Server folder: %w", folder, domain.ErrInvalidBackup)
	}

	if err := fsutil.ReplaceDir(ctx, src, filepath.Join(dir, instance.ServerDir)); err != nil {
		return fmt.Errorf("error restoring server files: %w", err)
	}
	for _, name := range rootFiles {
		from := filepath.Join(path, name)
		if !fsutil.IsFile(from) {
			continue
		}
		if err := fsutil.ReplaceFile(from, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("error restoring %s: %w", name, err)
		}
	}

	log.Info().Str("backup", folder).Str("dir", dir).Msg("backup restored")
	return nil
}

// Export writes a backup to w as a zip archive rooted at the folder name.
func (s *Store) Export(ctx context.Context, dir, folder string, w io.Writer) error {
	path, err := s.resolve(dir, folder)
	if err != nil {
		return err
	}
	return fsutil.ZipDir(ctx, path, folder, w)
}

// prune removes the oldest backups beyond Retention, never touching keep.
func (s *Store) prune(dir, keep string) {
	backups, err := s.List(dir)
	if err != nil || len(backups) <= s.Retention {
		return
	}
	for _, b := range backups[s.Retention:] {
		if b.Folder == keep {
			continue
		}
		if err := os.RemoveAll(filepath.Join(backupRoot(dir), b.Folder)); err != nil {
			log.Warn().Err(err).Str("backup", b.Folder).Msg("retention cleanup failed")
			continue
		}
		log.Info().Str("backup", b.Folder).Int("retention", s.Retention).Msg("old backup pruned")
	}
}
