package downloader

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/fsutil"
	"github.com/rs/zerolog/log"
)

var httpClient = &http.Client{Timeout: 5 * time.Minute}

// EnsureTool downloads the tool archive from c.URL and installs the binary
// for this platform at c.Path, unless it is already there.
func (c *Client) EnsureTool(ctx context.Context) error {
	if c.Installed() {
		return nil
	}
	if c.URL == "" {
		return fmt.Errorf("no downloader URL configured")
	}

	log.Info().Str("url", c.URL).Str("dest", c.Path).Msg("fetching downloader")

	header := http.Header{}
	header.Set("User-Agent", "hytale-server-manager")
	header.Set("Accept", "application/zip,*/*")
	tmpPath, err := fsutil.FetchToTemp(ctx, httpClient, c.URL, "hytale-downloader-*.zip", header)
	if err != nil {
		return fmt.Errorf("downloader fetch failed: %w", err)
	}
	defer os.Remove(tmpPath)

	return installFromZip(tmpPath, c.Path)
}

func installFromZip(zipPath, dest string) error {
	r, err := zip.OpenReader(zipPath)
	if err != nil {
		return fmt.Errorf("downloader archive unreadable: %w", err)
	}
	defer r.Close()

	entry := pickBinary(r.File)
	if entry == nil {
		return fmt.Errorf("no downloader binary for %s/%s in archive", runtime.GOOS, runtime.GOARCH)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return err
	}

	rc, err := entry.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	tmp := dest + ".new"
	out, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0755)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, dest); err != nil {
		os.Remove(tmp)
		return err
	}

	log.Info().Str("entry", entry.Name).Str("dest", dest).Msg("downloader installed")
	return nil
}

// pickBinary prefers the exact platform name and falls back to any entry
// mentioning both the OS and the architecture.
func pickBinary(files []*zip.File) *zip.File {
	want := BinaryName()
	var fallback *zip.File
	for _, f := range files {
		if f.FileInfo().IsDir() {
			continue
		}
		base := path.Base(f.Name)
		if base == want {
			return f
		}
		lower := strings.ToLower(base)
		if strings.Contains(lower, runtime.GOOS) && strings.Contains(lower, runtime.GOARCH) && fallback == nil {
			fallback = f
		}
	}
	return fallback
}
