package sdk

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

func backupPath(folder string) string {
	return "/api/backups/" + url.PathEscape(folder)
}

func (c *Client) ListBackups(ctx context.Context, name string) ([]Backup, error) {
	var backups []Backup
	err := c.get(ctx, "/api/backups"+query("instance", name), &backups)
	return backups, err
}

func (c *Client) CreateBackup(ctx context.Context, name, label string) (*Backup, error) {
	var b Backup
	payload := map[string]string{"instance": name, "label": label}
	err := c.post(ctx, "/api/backups", payload, &b)
	return &b, err
}

func (c *Client) RenameBackup(ctx context.Context, name, folder, label string) (*Backup, error) {
	var b Backup
	err := c.put(ctx, backupPath(folder)+"/rename"+query("instance", name), map[string]string{"label": label}, &b)
	return &b, err
}

// RestoreBackup replaces the instance's server state with the backup and
// returns the instance as recorded afterwards.
func (c *Client) RestoreBackup(ctx context.Context, name, folder string) (*Instance, error) {
	var inst Instance
	err := c.post(ctx, backupPath(folder)+"/restore"+query("instance", name), nil, &inst)
	return &inst, err
}

func (c *Client) DeleteBackup(ctx context.Context, name, folder string) error {
	return c.delete(ctx, backupPath(folder)+query("instance", name))
}

// ExportBackup copies the zip archive of a backup to w.
func (c *Client) ExportBackup(ctx context.Context, name, folder string, w io.Writer) (int64, error) {
	resp, err := c.send(ctx, http.MethodGet, backupPath(folder)+"/archive"+query("instance", name), nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return io.Copy(w, resp.Body)
}
