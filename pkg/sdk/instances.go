package sdk

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
)

func instancePath(name string) string {
	return "/api/instances/" + url.PathEscape(name)
}

func (c *Client) ListInstances(ctx context.Context) ([]InstanceSummary, error) {
	var list []InstanceSummary
	err := c.get(ctx, "/api/instances", &list)
	return list, err
}

func (c *Client) GetInstance(ctx context.Context, name string) (*Instance, error) {
	var inst Instance
	err := c.get(ctx, instancePath(name), &inst)
	return &inst, err
}

func (c *Client) CreateInstance(ctx context.Context, name string) (*Instance, error) {
	var inst Instance
	err := c.post(ctx, "/api/instances", map[string]string{"name": name}, &inst)
	return &inst, err
}

// ImportInstance registers a copy of an existing server folder on the
// manager's host.
func (c *Client) ImportInstance(ctx context.Context, name, sourcePath string) (*Instance, error) {
	var inst Instance
	payload := map[string]string{"name": name, "source_path": sourcePath}
	err := c.post(ctx, "/api/instances/import", payload, &inst)
	return &inst, err
}

func (c *Client) SetActiveInstance(ctx context.Context, name string) error {
	return c.put(ctx, "/api/instances/active", map[string]string{"name": name}, nil)
}

func (c *Client) ReorderInstances(ctx context.Context, names []string) error {
	return c.put(ctx, "/api/instances/reorder", map[string][]string{"names": names}, nil)
}

func (c *Client) RenameInstance(ctx context.Context, name, newName string) (*Instance, error) {
	var inst Instance
	err := c.put(ctx, instancePath(name)+"/rename", map[string]string{"new_name": newName}, &inst)
	return &inst, err
}

func (c *Client) AssignPorts(ctx context.Context, name string, req AssignPortsRequest) (*Instance, error) {
	var inst Instance
	err := c.put(ctx, instancePath(name)+"/ports", req, &inst)
	return &inst, err
}

func (c *Client) UpdateStartup(ctx context.Context, name string, args StartupArgs) (*Instance, error) {
	var inst Instance
	err := c.put(ctx, instancePath(name)+"/startup", args, &inst)
	return &inst, err
}

func (c *Client) DeleteInstance(ctx context.Context, name string, deleteFiles bool) error {
	path := instancePath(name)
	if deleteFiles {
		path += "?delete_files=true"
	}
	return c.delete(ctx, path)
}

func (c *Client) ListFiles(ctx context.Context, name, dir string) ([]FileEntry, error) {
	var entries []FileEntry
	err := c.get(ctx, instancePath(name)+"/files"+query("path", dir), &entries)
	return entries, err
}

func (c *Client) ReadFile(ctx context.Context, name, path string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, instancePath(name)+"/files"+query("path", path), nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

func (c *Client) WriteFile(ctx context.Context, name, path, content string) error {
	return c.put(ctx, instancePath(name)+"/files"+query("path", path), strings.NewReader(content), nil)
}

func (c *Client) DeleteFile(ctx context.Context, name, path string) error {
	return c.delete(ctx, instancePath(name)+"/files"+query("path", path))
}
