package sdk

import (
	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/Stormster/hytale-server-manager-sub000/internal/updater"
)

type (
	Instance        = domain.Instance
	InstanceSummary = domain.InstanceSummary
	StartupArgs     = domain.StartupArgs
	ServerStatus    = domain.ServerStatus
	RunningInstance = domain.RunningInstance
	Backup          = domain.Backup
	FileEntry       = instance.FileEntry
	Availability    = updater.Availability
	AllAvailability = updater.AllAvailability
	InstalledStatus = updater.InstalledStatus
	Readiness       = updater.Readiness
	UpdateOptions   = updater.Options
	ManagerRelease  = updater.ManagerRelease
)

type StopResult struct {
	Exited  bool   `json:"exited"`
	Forced  bool   `json:"forced"`
	Message string `json:"message"`
}

type PortRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type Info struct {
	ManagerVersion     string          `json:"manager_version"`
	OS                 string          `json:"os"`
	Arch               string          `json:"arch"`
	JavaPath           string          `json:"java_path,omitempty"`
	JavaError          string          `json:"java_error,omitempty"`
	DownloaderPath     string          `json:"downloader_path"`
	DownloaderPresent  bool            `json:"downloader_installed"`
	DownloaderLoggedIn bool            `json:"downloader_authenticated"`
	RunningInstances   []string        `json:"running_instances"`
	ManagerRelease     *ManagerRelease `json:"manager_release,omitempty"`
}

type AssignPortsRequest struct {
	GamePort *int `json:"game_port,omitempty"`
	WebPort  *int `json:"webserver_port,omitempty"`
}
