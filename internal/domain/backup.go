package domain

import "time"

type BackupType string

const (
	BackupManual    BackupType = "manual"
	BackupPreUpdate BackupType = "pre-update"
)

type Backup struct {
	Folder        string     `json:"folder"`
	Label         string     `json:"label"`
	Type          BackupType `json:"type"`
	Created       time.Time  `json:"created"`
	FromVersion   string     `json:"from_version,omitempty"`
	FromPatchline string     `json:"from_patchline,omitempty"`
	ToVersion     string     `json:"to_version,omitempty"`
	ToPatchline   string     `json:"to_patchline,omitempty"`
	HasServer     bool       `json:"has_server"`
	Size          int64      `json:"size"`
}
