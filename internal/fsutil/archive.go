package fsutil

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Unzip extracts src into dest. Entries that would land outside dest are
// rejected. onEntry, if set, receives the number of entries done and the
// total.
func Unzip(ctx context.Context, src, dest string, onEntry func(done, total int)) error {
	r, err := zip.OpenReader(src)
	if err != nil {
		return err
	}
	defer r.Close()

	dest = filepath.Clean(dest)
	total := len(r.File)
	for i, f := range r.File {
		if err := ctx.Err(); err != nil {
			return err
		}

		fpath := filepath.Join(dest, f.Name)
		if fpath != dest && !strings.HasPrefix(fpath, dest+string(os.PathSeparator)) {
			return fmt.Errorf("%s: illegal file path", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return err
			}
			continue
		}

		if err := extractZipFile(f, fpath); err != nil {
			return err
		}
		if onEntry != nil {
			onEntry(i+1, total)
		}
	}
	return nil
}

func extractZipFile(f *zip.File, fpath string) error {
	if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
		return err
	}

	mode := f.Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	outFile, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		outFile.Close()
		return err
	}

	_, err = io.Copy(outFile, rc)
	rc.Close()
	if cerr := outFile.Close(); err == nil {
		err = cerr
	}
	return err
}

// Untar extracts a gzip compressed tarball into dest.
func Untar(src, dest string) error {
	file, err := os.Open(src)
	if err != nil {
		return err
	}
	defer file.Close()

	gz, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer gz.Close()

	dest = filepath.Clean(dest)
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		fpath := filepath.Join(dest, hdr.Name)
		if fpath != dest && !strings.HasPrefix(fpath, dest+string(os.PathSeparator)) {
			return fmt.Errorf("%s: illegal file path", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(fpath, 0755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(fpath), 0755); err != nil {
				return err
			}
			out, err := os.OpenFile(fpath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			target := filepath.Join(filepath.Dir(fpath), hdr.Linkname)
			if !strings.HasPrefix(filepath.Clean(target), dest+string(os.PathSeparator)) {
				continue
			}
			_ = os.Symlink(hdr.Linkname, fpath)
		}
	}
}

// ZipDir writes the contents of root to w as a zip archive. Paths inside the
// archive are relative to root and prefixed with prefix when it is set.
func ZipDir(ctx context.Context, root, prefix string, w io.Writer) error {
	zw := zip.NewWriter(w)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		if info.Mode()&os.ModeSymlink != 0 {
			return nil
		}

		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(relPath)
		if prefix != "" {
			header.Name = prefix + "/" + header.Name
		}

		if info.IsDir() {
			header.Name += "/"
		} else {
			header.Method = zip.Deflate
		}

		writer, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()
		_, err = io.Copy(writer, file)
		return err
	})

	if cerr := zw.Close(); err == nil {
		err = cerr
	}
	return err
}
