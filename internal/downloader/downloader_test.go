package downloader

import (
	"archive/zip"
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProgress(t *testing.T) {
	pct, detail, ok := ParseProgress("[=====     ] 42.5% (1.2 GB / 2.9 GB)")
	require.True(t, ok)
	assert.InDelta(t, 42.5, pct, 0.0001)
	assert.Equal(t, "1.2 GB / 2.9 GB", detail)

	pct, _, ok = ParseProgress("100% (done)")
	require.True(t, ok)
	assert.Equal(t, 100.0, pct)

	_, _, ok = ParseProgress("validating checksum")
	assert.False(t, ok)
}

func TestScanLines_SplitsCarriageReturns(t *testing.T) {
	sc := bufio.NewScanner(strings.NewReader("a\r10% (x)\r20% (y)\r\nlast"))
	sc.Split(ScanLines)
	var got []string
	for sc.Scan() {
		got = append(got, sc.Text())
	}
	assert.Equal(t, []string{"a", "10% (x)", "20% (y)", "last"}, got)
}

type recordingSink struct {
	statuses []string
	percents []float64
}

func (s *recordingSink) Status(msg string) { s.statuses = append(s.statuses, msg) }
func (s *recordingSink) Progress(p float64, _ string) { s.percents = append(s.percents, p) }

func TestProgressAdapter_ThrottlesButKeepsFinal(t *testing.T) {
	sink := &recordingSink{}
	a := NewProgressAdapter(sink, time.Hour)

	a.Line("starting download")
	a.Line("1% (a)")
	a.Line("2% (b)")
	a.Line("3% (c)")
	a.Line("100% (done)")

	assert.Equal(t, []string{"starting download"}, sink.statuses)
	assert.Equal(t, []float64{1, 100}, sink.percents)
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(dir, "fake-downloader")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func TestClient_PrintVersion(t *testing.T) {
	dir := t.TempDir()
	c := &Client{Path: writeScript(t, dir, `echo "checking..."; echo "2026.01.20-abc123"`), WorkDir: dir}

	v, err := c.PrintVersion(context.Background(), domain.ChannelRelease)
	require.NoError(t, err)
	assert.Equal(t, "2026.01.20-abc123", v)
}

func TestClient_PrintVersionErrors(t *testing.T) {
	dir := t.TempDir()

	c := &Client{Path: writeScript(t, dir, `echo "[ERROR] token expired, please login"`), WorkDir: dir}
	_, err := c.PrintVersion(context.Background(), domain.ChannelRelease)
	assert.ErrorIs(t, err, domain.ErrAuthExpired)

	c = &Client{Path: writeScript(t, dir, `echo "network unreachable"; exit 3`), WorkDir: dir}
	_, err = c.PrintVersion(context.Background(), domain.ChannelRelease)
	assert.ErrorIs(t, err, domain.ErrConnection)

	c = &Client{Path: filepath.Join(dir, "missing"), WorkDir: dir}
	_, err = c.PrintVersion(context.Background(), domain.ChannelRelease)
	assert.ErrorIs(t, err, domain.ErrDownloaderMissing)
}

func TestClient_DownloadStreamsLines(t *testing.T) {
	dir := t.TempDir()
	script := `
while [ $# -gt 0 ]; do
  if [ "$1" = "-download-path" ]; then dest="$2"; fi
  shift
done
printf 'downloading\r10%% (1/10)\r100%% (10/10)\n'
echo zip > "$dest"
`
	c := &Client{Path: writeScript(t, dir, script), WorkDir: dir}

	var lines []string
	dest := filepath.Join(dir, "server.zip")
	require.NoError(t, c.Download(context.Background(), domain.ChannelRelease, dest, func(l string) {
		lines = append(lines, l)
	}))
	assert.Equal(t, []string{"downloading", "10% (1/10)", "100% (10/10)"}, lines)
	assert.FileExists(t, dest)
}

func TestClient_Preflight(t *testing.T) {
	dir := t.TempDir()
	c := &Client{Path: filepath.Join(dir, "tool"), WorkDir: dir}
	assert.ErrorIs(t, c.Preflight(context.Background()), domain.ErrDownloaderMissing)

	require.NoError(t, os.WriteFile(c.Path, []byte("x"), 0755))
	assert.ErrorIs(t, c.Preflight(context.Background()), domain.ErrAuthExpired)

	require.NoError(t, os.WriteFile(c.CredentialsPath(), []byte("{}"), 0600))
	assert.NoError(t, c.Preflight(context.Background()))
}

func TestClient_EnsureTool(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		zw := zip.NewWriter(w)
		f, _ := zw.Create("QUICKSTART.md")
		_, _ = f.Write([]byte("readme"))
		f, _ = zw.Create(BinaryName())
		_, _ = f.Write([]byte("binary"))
		_ = zw.Close()
	}))
	defer srv.Close()

	dir := t.TempDir()
	c := NewClient("", filepath.Join(dir, "tools"), dir, srv.URL)
	require.NoError(t, c.EnsureTool(context.Background()))

	data, err := os.ReadFile(c.Path)
	require.NoError(t, err)
	assert.Equal(t, "binary", string(data))
}
