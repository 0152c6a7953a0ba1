package sdk

import (
	"context"
	"net/http"
	"net/url"
)

type serverRequest struct {
	Instance string `json:"instance,omitempty"`
	Force    bool   `json:"force,omitempty"`
}

// Every server call takes an instance name; an empty name means the active
// instance.

func (c *Client) ServerStatus(ctx context.Context, name string) (*ServerStatus, error) {
	var st ServerStatus
	err := c.get(ctx, "/api/server/status"+query("instance", name), &st)
	return &st, err
}

func (c *Client) ServerStatusAll(ctx context.Context) ([]ServerStatus, error) {
	var all []ServerStatus
	err := c.get(ctx, "/api/server/status-all", &all)
	return all, err
}

func (c *Client) StartServer(ctx context.Context, name string) error {
	return c.post(ctx, "/api/server/start", serverRequest{Instance: name}, nil)
}

func (c *Client) StopServer(ctx context.Context, name string, force bool) (*StopResult, error) {
	var res StopResult
	err := c.post(ctx, "/api/server/stop", serverRequest{Instance: name, Force: force}, &res)
	return &res, err
}

func (c *Client) RestartServer(ctx context.Context, name string) error {
	return c.post(ctx, "/api/server/restart", serverRequest{Instance: name}, nil)
}

func (c *Client) SendCommand(ctx context.Context, name, command string) error {
	payload := map[string]string{"instance": name, "command": command}
	return c.post(ctx, "/api/server/command", payload, nil)
}

// StreamConsole follows the console of a running server until it exits or
// ctx ends. The final event is a done event carrying the exit code.
func (c *Client) StreamConsole(ctx context.Context, name string, fn EventHandler) error {
	return c.stream(ctx, http.MethodGet, "/api/server/console"+query("instance", name), nil, fn)
}

// ConsoleURL is the websocket endpoint for an interactive console. When
// the client has a token the URL carries a fresh ticket rather than the
// token itself.
func (c *Client) ConsoleURL(ctx context.Context, name string) (string, error) {
	path := "/ws/instances/" + url.PathEscape(name) + "/console"
	if c.token == "" {
		return c.wsURL(path, "")
	}
	ticket, err := c.Ticket(ctx)
	if err != nil {
		return "", err
	}
	return c.wsURL(path, ticket)
}
