package sdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_SendsTokenAndDecodes(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "/api/instances", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `[{"name":"Alpha","installed":true,"active":true}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", "secret")
	list, err := c.ListInstances(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Alpha", list[0].Name)
	assert.True(t, list[0].Installed)
}

func TestClient_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":"server is already running"}`)
	}))
	defer srv.Close()

	err := NewClient(srv.URL, "").StartServer(context.Background(), "Alpha")
	require.Error(t, err)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusConflict, apiErr.Status)
	assert.Equal(t, "server is already running", apiErr.Message)
	assert.ErrorIs(t, err, domain.ErrAlreadyRunning)
	assert.NotErrorIs(t, err, domain.ErrNotFound)
}

func TestClient_QueryAndBody(t *testing.T) {
	var gotPath, gotQuery, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotQuery = r.URL.Path, r.URL.RawQuery
		data, _ := io.ReadAll(r.Body)
		gotBody = string(data)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	require.NoError(t, c.WriteFile(context.Background(), "My World", "Server/config.json", `{"a":1}`))
	assert.Equal(t, "/api/instances/My World/files", gotPath)
	assert.Equal(t, "path=Server%2Fconfig.json", gotQuery)
	assert.Equal(t, `{"a":1}`, gotBody)

	require.NoError(t, c.DeleteBackup(context.Background(), "", "backup_2026-01-01_10-00-00"))
	assert.Equal(t, "/api/backups/backup_2026-01-01_10-00-00", gotPath)
	assert.Empty(t, gotQuery)
}

func TestClient_ConnectionError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url, "").ServerStatus(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrConnection)
}

func TestStream_DeliversEventsUntilDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "release", r.URL.Query().Get("patchline"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping - now\n\n")
		fmt.Fprint(w, "event:status\ndata:{\"message\":\"Downloading\"}\n\n")
		fmt.Fprint(w, "event:progress\ndata:{\"percent\":42.5,\"detail\":\"1 MB / 2 MB\"}\n\n")
		fmt.Fprint(w, "event:done\ndata:{\"ok\":true,\"message\":\"Updated\"}\n\n")
	}))
	defer srv.Close()

	var got []Event
	err := NewClient(srv.URL, "").Update(context.Background(), "Alpha", "release", UpdateOptions{}, func(ev Event) {
		got = append(got, ev)
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, EventStatus, got[0].Type)
	assert.Equal(t, "Downloading", got[0].Message)
	assert.Equal(t, 42.5, got[1].Percent)
	assert.Equal(t, EventDone, got[2].Type)
	assert.True(t, got[2].OK)
}

func TestStream_BrokenConnectionEndsWithFailedDone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:status\ndata:{\"message\":\"Starting\"}\n\n")
	}))
	defer srv.Close()

	var got []Event
	err := NewClient(srv.URL, "").UpdateAll(context.Background(), []string{"a", "b"}, UpdateOptions{}, func(ev Event) {
		got = append(got, ev)
	})
	assert.ErrorIs(t, err, domain.ErrConnection)
	require.Len(t, got, 2)
	last := got[len(got)-1]
	assert.Equal(t, EventDone, last.Type)
	assert.False(t, last.OK)
	assert.Contains(t, last.Message, "Connection lost")
}

func TestStream_RefusedBeforeStreaming(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":"operation in progress"}`)
	}))
	defer srv.Close()

	var calls int
	err := NewClient(srv.URL, "").Install(context.Background(), "Alpha", "", func(Event) { calls++ })
	assert.ErrorIs(t, err, domain.ErrOperationInProgress)
	assert.Zero(t, calls)
}

func TestReadEvents_ConsoleExit(t *testing.T) {
	input := "event:output\ndata:{\"line\":\"hello\"}\n\nevent:done\ndata:{\"code\":8}\n\n"
	var got []Event
	done, err := readEvents(strings.NewReader(input), func(ev Event) { got = append(got, ev) })
	require.NoError(t, err)
	assert.True(t, done)
	require.Len(t, got, 2)
	assert.Equal(t, "hello", got[0].Line)
	require.NotNil(t, got[1].Code)
	assert.Equal(t, 8, *got[1].Code)
}

func TestExportBackup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/backups/b1/archive", r.URL.Path)
		w.Header().Set("Content-Type", "application/zip")
		fmt.Fprint(w, "PK-data")
	}))
	defer srv.Close()

	var buf bytes.Buffer
	n, err := NewClient(srv.URL, "").ExportBackup(context.Background(), "", "b1", &buf)
	require.NoError(t, err)
	assert.EqualValues(t, 7, n)
	assert.Equal(t, "PK-data", buf.String())
}

func TestGetWebSocketURL(t *testing.T) {
	c := NewClient("https://host:8742", "tok")
	u, err := c.GetWebSocketURL("/ws/instances/Alpha/console")
	require.NoError(t, err)
	assert.Equal(t, "wss://host:8742/ws/instances/Alpha/console?token=tok", u)

	u, err = NewClient("http://host:8742", "").ConsoleURL(context.Background(), "My World")
	require.NoError(t, err)
	assert.Equal(t, "ws://host:8742/ws/instances/My%20World/console", u)
}

func TestConsoleURL_UsesTicket(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/auth/ticket", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"ticket":"jwt-abc","expires_at":"2030-01-01T00:00:00Z"}`)
	}))
	defer srv.Close()

	u, err := NewClient(srv.URL, "tok").ConsoleURL(context.Background(), "Alpha")
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u, "/ws/instances/Alpha/console?token=jwt-abc"), u)
	assert.True(t, strings.HasPrefix(u, "ws://"), u)
}

func TestUpdate_SendsStopOptions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/updater/update", r.URL.Path)
		assert.Equal(t, "Alpha", r.URL.Query().Get("instance"))
		assert.Equal(t, "true", r.URL.Query().Get("stop_running"))
		assert.Equal(t, "5", r.URL.Query().Get("graceful_minutes"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "event:done\ndata:{\"ok\":true,\"message\":\"Update complete! Server restarted.\"}\n\n")
	}))
	defer srv.Close()

	var last Event
	err := NewClient(srv.URL, "").Update(context.Background(), "Alpha", "",
		UpdateOptions{StopRunning: true, GraceMinutes: 5}, func(ev Event) { last = ev })
	require.NoError(t, err)
	assert.True(t, last.OK)
}
