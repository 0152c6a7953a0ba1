package domain

import "time"

type RunningInstance struct {
	Name          string  `json:"name"`
	GamePort      *int    `json:"game_port"`
	UptimeSeconds float64 `json:"uptime_seconds"`
	RAMMB         float64 `json:"ram_mb"`
	CPUPercent    float64 `json:"cpu_percent"`
}

type ServerStatus struct {
	Instance         string            `json:"instance"`
	Installed        bool              `json:"installed"`
	Running          bool              `json:"running"`
	RunningInstance  string            `json:"running_instance"`
	RunningInstances []RunningInstance `json:"running_instances"`
	UptimeSeconds    *float64          `json:"uptime_seconds"`
	LastExitTime     *time.Time        `json:"last_exit_time"`
	LastExitCode     *int              `json:"last_exit_code"`
	RAMMB            *float64          `json:"ram_mb"`
	CPUPercent       *float64          `json:"cpu_percent"`
	Players          *int              `json:"players"`
	UpdateInProgress bool              `json:"update_in_progress"`
}

type ServerStats struct {
	CPU float64 `json:"cpu"`
	RAM uint64  `json:"ram"`
}
