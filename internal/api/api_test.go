package api

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/app"
	"github.com/Stormster/hytale-server-manager-sub000/internal/config"
	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/events"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/Stormster/hytale-server-manager-sub000/internal/runner/strategy"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeJava struct{}

func (fakeJava) Resolve(ctx context.Context) (string, error) { return "/usr/bin/java", nil }

type shellRunner struct{ script string }

func (r shellRunner) BuildCommand(spec strategy.LaunchSpec) (*exec.Cmd, error) {
	cmd := exec.Command("/bin/sh", "-c", r.script)
	cmd.Dir = spec.InstanceDir
	return cmd, nil
}

type failingTool struct{ err error }

func (f failingTool) Preflight(ctx context.Context) error { return f.err }

func (f failingTool) PrintVersion(ctx context.Context, ch domain.Channel) (string, error) {
	return "", f.err
}

func (f failingTool) Download(ctx context.Context, ch domain.Channel, destZip string, onLine func(string)) error {
	return f.err
}

type testEnv struct {
	container *app.Container
	api       *Server
	srv       *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	cfg, err := config.LoadConfig(t.TempDir())
	require.NoError(t, err)
	cfg.StopTimeout = "2s"

	c, err := app.New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	c.Registry.Ports.Available = func(int) bool { return true }
	c.Supervisor.JVM = fakeJava{}
	c.Supervisor.Players = nil
	c.Supervisor.LauncherFor = func(string) strategy.ServerRunner {
		return shellRunner{script: `echo ready
while read line; do
  echo "got $line"
  if [ "$line" = "stop" ]; then exit 0; fi
done`}
	}
	c.Updater.Tool = failingTool{err: domain.ErrAuthExpired}

	api := NewAPIServer(c, "")
	srv := httptest.NewServer(api.Handler())
	t.Cleanup(func() {
		srv.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		c.Supervisor.StopAll(ctx)
	})
	return &testEnv{container: c, api: api, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, r)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func (e *testEnv) installFiles(t *testing.T, name string) string {
	t.Helper()
	inst, err := e.container.Registry.Get(name)
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Join(inst.Dir, instance.ServerDir, "universe"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(inst.Dir, instance.ServerDir, instance.ServerJar), []byte("jar"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(inst.Dir, instance.ServerDir, "universe", "world.dat"), []byte("world"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(inst.Dir, instance.AssetsFile), []byte("zip"), 0644))
	require.NoError(t, e.container.Registry.SetVersion(name, "2025.01.10-abc", domain.ChannelRelease))
	return inst.Dir
}

func TestInstancesLifecycle(t *testing.T) {
	e := newTestEnv(t)

	resp := e.do(t, http.MethodPost, "/api/instances", map[string]string{"name": "Alpha"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var created domain.Instance
	decodeBody(t, resp, &created)
	require.NotNil(t, created.GamePort)
	assert.Equal(t, 5520, *created.GamePort)

	resp = e.do(t, http.MethodPost, "/api/instances", map[string]string{"name": "Alpha"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/instances", map[string]string{"name": "Beta"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/instances", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []domain.InstanceSummary
	decodeBody(t, resp, &list)
	require.Len(t, list, 2)
	assert.Equal(t, "Alpha", list[0].Name)
	assert.True(t, list[0].Active)
	assert.False(t, list[0].Installed)

	resp = e.do(t, http.MethodPut, "/api/instances/Beta/ports", map[string]int{"game_port": 5520})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPut, "/api/instances/active", map[string]string{"name": "Beta"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPut, "/api/instances/Beta/rename", map[string]string{"new_name": "Gamma"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	active, err := e.container.Registry.Active()
	require.NoError(t, err)
	assert.Equal(t, "Gamma", active.Name)

	resp = e.do(t, http.MethodPut, "/api/instances/Gamma/startup", map[string]interface{}{"min_ram_mb": 4096, "max_ram_mb": 1024})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/instances/Gamma?delete_files=true", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/instances/Gamma", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServerLifecycle(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires /bin/sh")
	}
	e := newTestEnv(t)
	_, err := e.container.Registry.Create("Alpha")
	require.NoError(t, err)

	resp := e.do(t, http.MethodPost, "/api/server/start", map[string]string{})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	e.installFiles(t, "Alpha")
	resp = e.do(t, http.MethodPost, "/api/server/start", map[string]string{})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/server/start", map[string]string{"instance": "Alpha"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/server/status?instance=Alpha", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st domain.ServerStatus
	decodeBody(t, resp, &st)
	assert.True(t, st.Running)
	assert.Equal(t, "Alpha", st.RunningInstance)

	resp = e.do(t, http.MethodPost, "/api/updater/update?instance=Alpha", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp = e.do(t, http.MethodPost, "/api/updater/update?instance=Alpha&graceful_minutes=99", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp = e.do(t, http.MethodPost, "/api/updater/update?instance=Alpha&stop_running=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The downloader fails its setup check, so the server is never stopped.
	resp = e.do(t, http.MethodPost, "/api/updater/update?instance=Alpha&stop_running=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	update, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(update), `"ok":false`)
	assert.True(t, e.container.Supervisor.IsRunning("Alpha"))

	console, err := http.Get(e.srv.URL + "/api/server/console?instance=Alpha")
	require.NoError(t, err)
	defer console.Body.Close()
	assert.Equal(t, "text/event-stream", console.Header.Get("Content-Type"))

	resp = e.do(t, http.MethodPost, "/api/server/command", map[string]string{"command": "say hi"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/server/stop", map[string]string{"instance": "Alpha"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var res struct {
		Exited bool `json:"exited"`
		Forced bool `json:"forced"`
	}
	decodeBody(t, resp, &res)
	assert.True(t, res.Exited)
	assert.False(t, res.Forced)

	body, err := io.ReadAll(console.Body)
	require.NoError(t, err)
	text := string(body)
	assert.Contains(t, text, "event:output")
	assert.Contains(t, text, `"line":"got say hi"`)
	assert.Contains(t, text, "event:done")
	assert.Contains(t, text, `"code":0`)

	resp = e.do(t, http.MethodPost, "/api/server/command", map[string]string{"command": "say hi"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestUpdateStreamEndsWithDone(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.container.Registry.Create("Alpha")
	require.NoError(t, err)

	resp := e.do(t, http.MethodPost, "/api/updater/setup?patchline=release", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	text := string(body)
	assert.Contains(t, text, "event:done")
	assert.Contains(t, text, `"ok":false`)
	assert.Equal(t, 1, strings.Count(text, "event:done"))

	resp = e.do(t, http.MethodPost, "/api/updater/setup?patchline=beta", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/updater/setup-ready", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var ready struct {
		OK    bool   `json:"ok"`
		Error string `json:"error"`
	}
	decodeBody(t, resp, &ready)
	assert.False(t, ready.OK)
	assert.NotEmpty(t, ready.Error)

	resp = e.do(t, http.MethodGet, "/api/updater/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st map[string]interface{}
	decodeBody(t, resp, &st)
	assert.Equal(t, "unknown", st["installed_version"])
}

func TestBackupsEndpoints(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.container.Registry.Create("Alpha")
	require.NoError(t, err)

	resp := e.do(t, http.MethodPost, "/api/backups", map[string]string{"label": "first"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	dir := e.installFiles(t, "Alpha")
	resp = e.do(t, http.MethodPost, "/api/backups", map[string]string{"label": "first"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var b domain.Backup
	decodeBody(t, resp, &b)
	assert.Equal(t, "first", b.Label)
	assert.Equal(t, domain.BackupManual, b.Type)

	resp = e.do(t, http.MethodPut, "/api/backups/"+b.Folder+"/rename", map[string]string{"label": "renamed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/backups", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var list []domain.Backup
	decodeBody(t, resp, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "renamed", list[0].Label)

	resp = e.do(t, http.MethodGet, "/api/backups/"+b.Folder+"/archive", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	archive, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	require.NoError(t, err)
	assert.NotEmpty(t, zr.File)

	world := filepath.Join(dir, instance.ServerDir, "universe", "world.dat")
	require.NoError(t, os.WriteFile(world, []byte("changed"), 0644))

	resp = e.do(t, http.MethodPost, "/api/backups/"+b.Folder+"/restore", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data, err := os.ReadFile(world)
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	resp = e.do(t, http.MethodPost, "/api/backups/backup_missing/restore", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/backups/"+b.Folder, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestFilesEndpoints(t *testing.T) {
	e := newTestEnv(t)
	_, err := e.container.Registry.Create("Alpha")
	require.NoError(t, err)
	e.installFiles(t, "Alpha")

	req, err := http.NewRequest(http.MethodPut, e.srv.URL+"/api/instances/Alpha/files?path=Server/config.json", strings.NewReader(`{"MaxPlayers": 20}`))
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/instances/Alpha/files?path=Server/config.json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	content, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"MaxPlayers": 20}`, string(content))

	resp = e.do(t, http.MethodGet, "/api/instances/Alpha/files?path=Server", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []instance.FileEntry
	decodeBody(t, resp, &entries)
	assert.NotEmpty(t, entries)

	resp = e.do(t, http.MethodGet, "/api/instances/Alpha/files?path=../../etc/passwd", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAuthMiddleware(t *testing.T) {
	e := newTestEnv(t)
	e.api.Token = "secret"

	resp := e.do(t, http.MethodGet, "/api/instances", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/instances", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp2, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp2.Body.Close()
	assert.Equal(t, http.StatusOK, resp2.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/instances?token=secret", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestTickets(t *testing.T) {
	e := newTestEnv(t)
	e.api.Token = "secret"

	req, err := http.NewRequest(http.MethodPost, e.srv.URL+"/api/auth/ticket", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr ticketResponse
	decodeBody(t, resp, &tr)
	require.NotEmpty(t, tr.Ticket)

	ok := e.do(t, http.MethodGet, "/api/instances?token="+tr.Ticket, nil)
	assert.Equal(t, http.StatusOK, ok.StatusCode)

	// tickets only open GET streams
	denied := e.do(t, http.MethodPost, "/api/instances?token="+tr.Ticket, map[string]string{"name": "X"})
	assert.Equal(t, http.StatusUnauthorized, denied.StatusCode)

	expired, err := e.api.issueTicket(time.Now().Add(-2 * ticketTTL))
	require.NoError(t, err)
	assert.False(t, e.api.validTicket(expired.Ticket))

	other := &Server{Token: "different"}
	forged, err := other.issueTicket(time.Now())
	require.NoError(t, err)
	assert.False(t, e.api.validTicket(forged.Ticket))
}

func TestInfoAndMetrics(t *testing.T) {
	e := newTestEnv(t)
	e.api.JVM = nil

	resp := e.do(t, http.MethodGet, "/api/info", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info infoResponse
	decodeBody(t, resp, &info)
	assert.NotEmpty(t, info.ManagerVersion)
	assert.False(t, info.DownloaderPresent)
	assert.Empty(t, info.RunningInstances)

	resp = e.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStreamEvents_Ping(t *testing.T) {
	old := PingInterval
	PingInterval = 20 * time.Millisecond
	defer func() { PingInterval = old }()

	ch := make(chan events.Event)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		streamEvents(w, r, ch)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	go func() {
		time.Sleep(100 * time.Millisecond)
		ch <- events.Done(true, "finished")
	}()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), ": ping")
	assert.Contains(t, string(body), `"message":"finished"`)
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{domain.ErrNotFound, http.StatusNotFound},
		{os.ErrNotExist, http.StatusNotFound},
		{domain.ErrInvalidName, http.StatusBadRequest},
		{domain.ErrNameTaken, http.StatusConflict},
		{domain.ErrOperationInProgress, http.StatusConflict},
		{domain.ErrUpdateInProgress, http.StatusConflict},
		{domain.ErrStopTimeout, http.StatusConflict},
		{domain.ErrNotInstalled, http.StatusUnprocessableEntity},
		{domain.ErrInvalidBackup, http.StatusUnprocessableEntity},
		{domain.ErrAuthExpired, http.StatusFailedDependency},
		{domain.ErrConnection, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, statusFor(tc.err), tc.err.Error())
	}
}
