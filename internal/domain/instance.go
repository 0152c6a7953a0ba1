package domain

import "time"

type Channel string

const (
	ChannelRelease    Channel = "release"
	ChannelPrerelease Channel = "pre-release"
)

// UnknownVersion is written to the version marker of an instance whose
// installed build could not be determined.
const UnknownVersion = "unknown"

type StartupArgs struct {
	MinRAM     int    `json:"min_ram_mb"`
	MaxRAM     int    `json:"max_ram_mb"`
	JVMArgs    string `json:"jvm_args"`
	ServerArgs string `json:"server_args"`
	Launcher   string `json:"launcher"`
	DisableAOT bool   `json:"disable_aot"`
}

type Instance struct {
	Name      string      `json:"name"`
	Dir       string      `json:"path"`
	Version   string      `json:"version"`
	Channel   Channel     `json:"patchline"`
	GamePort  *int        `json:"game_port"`
	WebPort   *int        `json:"webserver_port"`
	Order     int         `json:"order"`
	Degraded  bool        `json:"degraded"`
	Startup   StartupArgs `json:"startup"`
	CreatedAt time.Time   `json:"created_at"`
}

type InstanceSummary struct {
	Instance
	Installed         bool       `json:"installed"`
	Active            bool       `json:"active"`
	LastBackupCreated *time.Time `json:"last_backup_created"`
}

type ProgressEvent struct {
	Message      string  `json:"message"`
	Percent      float64 `json:"percent"`
	Detail       string  `json:"detail,omitempty"`
	CurrentBytes int64   `json:"currentBytes"`
	TotalBytes   int64   `json:"totalBytes"`
}

// ProgressFunc receives progress while a long copy or extraction runs. It
// may be nil.
type ProgressFunc func(ProgressEvent)
