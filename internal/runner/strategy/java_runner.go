package strategy

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

const (
	serverDir  = "Server"
	serverJar  = "HytaleServer.jar"
	serverAOT  = "HytaleServer.aot"
	assetsPath = "../Assets.zip"
)

// JavaRunner launches HytaleServer.jar directly from the Server folder.
type JavaRunner struct{}

func (r *JavaRunner) BuildCommand(spec LaunchSpec) (*exec.Cmd, error) {
	absServerDir := filepath.Join(spec.InstanceDir, serverDir)

	jarFull := filepath.Join(absServerDir, serverJar)
	if _, err := os.Stat(jarFull); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("server jar not found at %s", jarFull)
		}
		return nil, fmt.Errorf("error accessing %s: %w", jarFull, err)
	}

	var args []string
	if spec.Startup.MinRAM > 0 {
		args = append(args, fmt.Sprintf("-Xms%dM", spec.Startup.MinRAM))
	}
	if spec.Startup.MaxRAM > 0 {
		args = append(args, fmt.Sprintf("-Xmx%dM", spec.Startup.MaxRAM))
	}
	if !spec.Startup.DisableAOT {
		if _, err := os.Stat(filepath.Join(absServerDir, serverAOT)); err == nil {
			args = append(args, "-XX:AOTCache="+serverAOT)
		}
	}
	if spec.Startup.JVMArgs != "" {
		args = append(args, strings.Fields(spec.Startup.JVMArgs)...)
	}

	args = append(args, "-jar", serverJar, "--assets", assetsPath)
	args = append(args, serverArgs(spec)...)

	cmd := exec.Command(spec.JavaPath, args...)
	cmd.Dir = absServerDir
	return cmd, nil
}

func serverArgs(spec LaunchSpec) []string {
	args := []string{"--bind", fmt.Sprintf("0.0.0.0:%d", spec.GamePort)}
	if spec.Startup.ServerArgs != "" {
		args = append(args, strings.Fields(spec.Startup.ServerArgs)...)
	}
	return args
}
