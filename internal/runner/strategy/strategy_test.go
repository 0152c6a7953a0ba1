package strategy

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serverFixture(t *testing.T, aot bool) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, serverDir), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, serverDir, serverJar), []byte("jar"), 0644))
	if aot {
		require.NoError(t, os.WriteFile(filepath.Join(dir, serverDir, serverAOT), []byte("aot"), 0644))
	}
	return dir
}

func TestGetRunner(t *testing.T) {
	assert.IsType(t, &JavaRunner{}, GetRunner(""))
	assert.IsType(t, &JavaRunner{}, GetRunner(LauncherJava))
	assert.IsType(t, &ScriptRunner{}, GetRunner(LauncherScript))
}

func TestJavaRunner_BuildCommand(t *testing.T) {
	dir := serverFixture(t, true)

	cmd, err := (&JavaRunner{}).BuildCommand(LaunchSpec{
		JavaPath:    "/opt/java/bin/java",
		InstanceDir: dir,
		GamePort:    5521,
		Startup: domain.StartupArgs{
			MinRAM:     1024,
			MaxRAM:     4096,
			JVMArgs:    "-XX:+UseG1GC",
			ServerArgs: "--auth-mode offline",
		},
	})
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, serverDir), cmd.Dir)
	assert.Equal(t, []string{
		"/opt/java/bin/java",
		"-Xms1024M", "-Xmx4096M",
		"-XX:AOTCache=HytaleServer.aot",
		"-XX:+UseG1GC",
		"-jar", "HytaleServer.jar",
		"--assets", "../Assets.zip",
		"--bind", "0.0.0.0:5521",
		"--auth-mode", "offline",
	}, cmd.Args)
}

func TestJavaRunner_AOTOnlyWhenPresentAndEnabled(t *testing.T) {
	without := serverFixture(t, false)
	cmd, err := (&JavaRunner{}).BuildCommand(LaunchSpec{JavaPath: "java", InstanceDir: without, GamePort: 5520})
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(cmd.Args, " "), "AOTCache")

	with := serverFixture(t, true)
	cmd, err = (&JavaRunner{}).BuildCommand(LaunchSpec{
		JavaPath:    "java",
		InstanceDir: with,
		GamePort:    5520,
		Startup:     domain.StartupArgs{DisableAOT: true},
	})
	require.NoError(t, err)
	assert.NotContains(t, strings.Join(cmd.Args, " "), "AOTCache")
}

func TestJavaRunner_MissingJar(t *testing.T) {
	_, err := (&JavaRunner{}).BuildCommand(LaunchSpec{JavaPath: "java", InstanceDir: t.TempDir()})
	assert.ErrorContains(t, err, "server jar not found")
}

func TestScriptRunner_BuildCommand(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix start script")
	}
	dir := t.TempDir()
	_, err := (&ScriptRunner{}).BuildCommand(LaunchSpec{InstanceDir: dir})
	assert.ErrorContains(t, err, "start script not found")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "start.sh"), []byte("#!/bin/sh\n"), 0755))
	cmd, err := (&ScriptRunner{}).BuildCommand(LaunchSpec{
		JavaPath:    "/opt/java/bin/java",
		InstanceDir: dir,
		GamePort:    5530,
		Startup:     domain.StartupArgs{MaxRAM: 2048},
	})
	require.NoError(t, err)

	assert.Equal(t, dir, cmd.Dir)
	assert.Equal(t, []string{"/bin/sh", filepath.Join(dir, "start.sh"), "--bind", "0.0.0.0:5530"}, cmd.Args)
	assert.Contains(t, cmd.Env, "JAVA_HOME=/opt/java")
	assert.Contains(t, cmd.Env, "JAVA_TOOL_OPTIONS=-Xmx2048M")
}
