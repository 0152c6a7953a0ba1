package strategy

import (
	"os/exec"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
)

// LaunchSpec is everything a launcher needs to build the server command.
type LaunchSpec struct {
	JavaPath    string
	InstanceDir string
	GamePort    int
	Startup     domain.StartupArgs
}

type ServerRunner interface {
	BuildCommand(spec LaunchSpec) (*exec.Cmd, error)
}
