package fsutil

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// Exists reports whether path exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsDir reports whether path exists and is a directory.
func IsDir(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.IsDir()
}

// IsFile reports whether path exists and is a regular file.
func IsFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// DirSize returns the total size of regular files under root.
func DirSize(root string) int64 {
	var total int64
	_ = filepath.WalkDir(root, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.Type().IsRegular() {
			if info, err := d.Info(); err == nil {
				total += info.Size()
			}
		}
		return nil
	})
	return total
}

// CopyFile copies src to dst, creating parent directories and keeping the
// file mode.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// ReplaceFile copies src next to dst under a temporary name and renames it
// over dst, so dst is never observed half-written.
func ReplaceFile(src, dst string) error {
	tmp := dst + ".new"
	if err := CopyFile(src, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// CopyDir recursively copies src into dst. The context is checked between
// files and onFile, if set, is called with the size of every copied file.
// Symlinks are skipped.
func CopyDir(ctx context.Context, src, dst string, onFile func(size int64)) error {
	src = filepath.Clean(src)
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		switch {
		case d.IsDir():
			return os.MkdirAll(target, 0755)
		case d.Type()&fs.ModeSymlink != 0:
			return nil
		case !d.Type().IsRegular():
			return nil
		}

		if err := CopyFile(path, target); err != nil {
			return fmt.Errorf("copy %s: %w", rel, err)
		}
		if onFile != nil {
			if info, err := d.Info(); err == nil {
				onFile(info.Size())
			}
		}
		return nil
	})
}

// ReplaceDir puts a copy of src at dst. The copy is staged beside dst and
// swapped in with renames; the previous dst is removed afterwards.
func ReplaceDir(ctx context.Context, src, dst string) error {
	staging := siblingPath(dst, ".incoming")
	old := siblingPath(dst, ".previous")
	_ = os.RemoveAll(staging)
	_ = os.RemoveAll(old)

	if err := CopyDir(ctx, src, staging, nil); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	hadOld := Exists(dst)
	if hadOld {
		if err := os.Rename(dst, old); err != nil {
			_ = os.RemoveAll(staging)
			return err
		}
	}
	if err := os.Rename(staging, dst); err != nil {
		if hadOld {
			_ = os.Rename(old, dst)
		}
		_ = os.RemoveAll(staging)
		return err
	}
	if hadOld {
		_ = os.RemoveAll(old)
	}
	return nil
}

func siblingPath(path, suffix string) string {
	dir, base := filepath.Split(filepath.Clean(path))
	return filepath.Join(dir, "."+base+suffix)
}

// Within joins rel onto root and rejects results that escape root.
func Within(root, rel string) (string, error) {
	root = filepath.Clean(root)
	cleaned := filepath.Clean("/" + filepath.ToSlash(rel))
	cleaned = strings.TrimPrefix(cleaned, "/")
	full := filepath.Join(root, filepath.FromSlash(cleaned))
	if full != root && !strings.HasPrefix(full, root+string(os.PathSeparator)) {
		return "", errors.New("path escapes root")
	}
	return full, nil
}
