package instance

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/fsutil"
	"github.com/Stormster/hytale-server-manager-sub000/internal/version"
)

// Files that make up an installed instance.
const (
	VersionFile   = "server_version.txt"
	PatchlineFile = "server_patchline.txt"
	ServerDir     = "Server"
	ServerJar     = "HytaleServer.jar"
	ServerAOT     = "HytaleServer.aot"
	AssetsFile    = "Assets.zip"
	BackupsDir    = "backups"
)

// ReadMarkers returns the version and channel recorded in dir. Missing or
// unreadable markers yield the unknown version and the release channel.
func ReadMarkers(dir string) (string, domain.Channel) {
	ver := domain.UnknownVersion
	if data, err := os.ReadFile(filepath.Join(dir, VersionFile)); err == nil {
		if v := strings.TrimSpace(string(data)); v != "" {
			ver = v
		}
	}

	ch := domain.ChannelRelease
	if data, err := os.ReadFile(filepath.Join(dir, PatchlineFile)); err == nil {
		if parsed, err := version.ParseChannel(string(data)); err == nil {
			ch = parsed
		}
	}
	return ver, ch
}

// WriteMarkers records the installed version and channel in dir.
func WriteMarkers(dir, ver string, ch domain.Channel) error {
	if err := writeAtomic(filepath.Join(dir, VersionFile), ver+"\n"); err != nil {
		return err
	}
	return writeAtomic(filepath.Join(dir, PatchlineFile), string(ch)+"\n")
}

func writeAtomic(path, content string) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// IsInstalled reports whether dir holds a server jar.
func IsInstalled(dir string) bool {
	return fsutil.IsFile(filepath.Join(dir, ServerDir, ServerJar))
}

// IsRunnable reports whether dir has everything needed to launch.
func IsRunnable(dir string) bool {
	return IsInstalled(dir) && fsutil.IsFile(filepath.Join(dir, AssetsFile))
}
