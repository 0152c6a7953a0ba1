package instance

import (
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/fsutil"
)

// MaxFileSize bounds reads and writes through the file editor.
const MaxFileSize = 10 << 20

type FileEntry struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	IsDirectory  bool      `json:"isDirectory"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

func (r *Registry) resolvePath(name, rel string) (root, full string, err error) {
	inst, err := r.Get(name)
	if err != nil {
		return "", "", err
	}
	full, err = fsutil.Within(inst.Dir, rel)
	return inst.Dir, full, err
}

func (r *Registry) stat(name, rel string) (string, os.FileInfo, error) {
	_, full, err := r.resolvePath(name, rel)
	if err != nil {
		return "", nil, err
	}
	info, err := os.Stat(full)
	return full, info, err
}

// IsDir reports whether rel names a directory of the instance.
func (r *Registry) IsDir(name, rel string) (bool, error) {
	_, info, err := r.stat(name, rel)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}

// ListFiles lists one directory of an instance's folder, directories first
// and then case-insensitively by name.
func (r *Registry) ListFiles(name, rel string) ([]FileEntry, error) {
	full, info, err := r.stat(name, rel)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a file", domain.ErrInvalidPath, rel)
	}
	dirents, err := os.ReadDir(full)
	if err != nil {
		return nil, err
	}

	base := path.Join("/", filepath.ToSlash(rel))
	out := make([]FileEntry, 0, len(dirents))
	for _, d := range dirents {
		fi, err := d.Info()
		if err != nil {
			continue
		}
		out = append(out, FileEntry{
			Name:         d.Name(),
			Path:         path.Join(base, d.Name()),
			IsDirectory:  d.IsDir(),
			Size:         fi.Size(),
			LastModified: fi.ModTime(),
		})
	}
	slices.SortFunc(out, func(a, b FileEntry) int {
		if a.IsDirectory != b.IsDirectory {
			if a.IsDirectory {
				return -1
			}
			return 1
		}
		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})
	return out, nil
}

// ReadFile returns the raw bytes of a file. Contents are never interpreted.
func (r *Registry) ReadFile(name, rel string) ([]byte, error) {
	full, info, err := r.stat(name, rel)
	if err != nil {
		return nil, err
	}
	switch {
	case info.IsDir():
		return nil, fmt.Errorf("%w: %s is a directory", domain.ErrInvalidPath, rel)
	case info.Size() > MaxFileSize:
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrInvalidPath, rel, MaxFileSize)
	}
	return os.ReadFile(full)
}

// WriteFile replaces a file with content, creating parent directories. The
// old file stays intact if the write fails.
func (r *Registry) WriteFile(name, rel string, content io.Reader) error {
	_, full, err := r.resolvePath(name, rel)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(full), "."+filepath.Base(full)+".*")
	if err != nil {
		return err
	}
	n, err := io.Copy(f, io.LimitReader(content, MaxFileSize+1))
	if err == nil && n > MaxFileSize {
		err = fmt.Errorf("%w: content exceeds %d bytes", domain.ErrInvalidPath, MaxFileSize)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(f.Name(), full)
	}
	if err != nil {
		os.Remove(f.Name())
	}
	return err
}

// DeleteFile removes a file or directory tree. The instance root itself
// cannot be deleted this way.
func (r *Registry) DeleteFile(name, rel string) error {
	root, full, err := r.resolvePath(name, rel)
	if err != nil {
		return err
	}
	if filepath.Clean(full) == filepath.Clean(root) {
		return fmt.Errorf("%w: cannot delete the instance folder", domain.ErrInvalidPath)
	}
	return os.RemoveAll(full)
}
