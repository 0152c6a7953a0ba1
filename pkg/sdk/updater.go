package sdk

import (
	"context"
	"net/http"
	"strconv"
	"strings"
)

func (c *Client) UpdaterStatus(ctx context.Context, name string) (*InstalledStatus, error) {
	var st InstalledStatus
	err := c.get(ctx, "/api/updater/status"+query("instance", name), &st)
	return &st, err
}

func (c *Client) CheckUpdate(ctx context.Context, name string) (*Availability, error) {
	var a Availability
	err := c.post(ctx, "/api/updater/check"+query("instance", name), nil, &a)
	return &a, err
}

func (c *Client) CheckAll(ctx context.Context) (*AllAvailability, error) {
	var all AllAvailability
	err := c.get(ctx, "/api/updater/check-all", &all)
	return &all, err
}

func (c *Client) SetupReady(ctx context.Context) (*Readiness, error) {
	var r Readiness
	err := c.get(ctx, "/api/updater/setup-ready", &r)
	return &r, err
}

// Install downloads the newest build of patchline into a fresh instance.
// Progress arrives on fn, ending with exactly one done event.
func (c *Client) Install(ctx context.Context, name, patchline string, fn EventHandler) error {
	return c.stream(ctx, http.MethodPost, "/api/updater/setup"+query("instance", name, "patchline", patchline), nil, fn)
}

// optionPairs renders opts as query pairs; zero values are left out.
func optionPairs(opts UpdateOptions) []string {
	var pairs []string
	if opts.StopRunning {
		pairs = append(pairs, "stop_running", "true")
	}
	if opts.GraceMinutes > 0 {
		pairs = append(pairs, "graceful_minutes", strconv.Itoa(opts.GraceMinutes))
	}
	return pairs
}

// Update moves an installed instance to the newest build of patchline, or
// of its current channel when patchline is empty. With opts.StopRunning a
// running server is stopped first and started again afterwards.
func (c *Client) Update(ctx context.Context, name, patchline string, opts UpdateOptions, fn EventHandler) error {
	q := query(append([]string{"instance", name, "patchline", patchline}, optionPairs(opts)...)...)
	return c.stream(ctx, http.MethodPost, "/api/updater/update"+q, nil, fn)
}

// UpdateAll updates the named instances, or every installed one when names
// is empty.
func (c *Client) UpdateAll(ctx context.Context, names []string, opts UpdateOptions, fn EventHandler) error {
	q := query(append([]string{"instances", strings.Join(names, ",")}, optionPairs(opts)...)...)
	return c.stream(ctx, http.MethodPost, "/api/updater/update-all"+q, nil, fn)
}

func (c *Client) CancelUpdate(ctx context.Context, name string) (bool, error) {
	var res struct {
		Cancelled bool `json:"cancelled"`
	}
	err := c.post(ctx, "/api/updater/cancel"+query("instance", name), nil, &res)
	return res.Cancelled, err
}

// Authenticate runs the downloader login. Status events include the device
// URL the user has to visit.
func (c *Client) Authenticate(ctx context.Context, fn EventHandler) error {
	return c.stream(ctx, http.MethodPost, "/api/updater/authenticate", nil, fn)
}
