package strategy

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
)

// ScriptRunner runs the start script shipped next to the server files. The
// resolved Java runtime is put first on PATH so the script picks it up.
type ScriptRunner struct{}

func scriptName() string {
	if runtime.GOOS == "windows" {
		return "start.bat"
	}
	return "start.sh"
}

func (r *ScriptRunner) BuildCommand(spec LaunchSpec) (*exec.Cmd, error) {
	script := filepath.Join(spec.InstanceDir, scriptName())
	if _, err := os.Stat(script); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("start script not found at %s", script)
		}
		return nil, fmt.Errorf("error accessing %s: %w", script, err)
	}

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.Command("cmd", append([]string{"/C", script}, serverArgs(spec)...)...)
	} else {
		cmd = exec.Command("/bin/sh", append([]string{script}, serverArgs(spec)...)...)
	}
	cmd.Dir = spec.InstanceDir

	env := os.Environ()
	if spec.JavaPath != "" {
		javaDir := filepath.Dir(spec.JavaPath)
		env = append(env,
			"JAVA_HOME="+filepath.Dir(javaDir),
			"PATH="+javaDir+string(os.PathListSeparator)+os.Getenv("PATH"),
		)
	}
	if opts := javaOptions(spec); opts != "" {
		env = append(env, "JAVA_TOOL_OPTIONS="+opts)
	}
	cmd.Env = env
	return cmd, nil
}

func javaOptions(spec LaunchSpec) string {
	var opts []string
	if spec.Startup.MinRAM > 0 {
		opts = append(opts, fmt.Sprintf("-Xms%dM", spec.Startup.MinRAM))
	}
	if spec.Startup.MaxRAM > 0 {
		opts = append(opts, fmt.Sprintf("-Xmx%dM", spec.Startup.MaxRAM))
	}
	if spec.Startup.JVMArgs != "" {
		opts = append(opts, strings.Fields(spec.Startup.JVMArgs)...)
	}
	return strings.Join(opts, " ")
}
