package jvm

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/Stormster/hytale-server-manager-sub000/internal/fsutil"
	"github.com/rs/zerolog/log"
)

// Manager finds or installs a Java runtime new enough for the server.
type Manager struct {
	RuntimesPath string
	// JavaPath, when set, is tried before anything else.
	JavaPath string
	Version  int

	adoptiumURL string
	mu          sync.Mutex
	resolved    string
}

func NewManager(runtimesPath, javaPath string, version int) *Manager {
	return &Manager{
		RuntimesPath: runtimesPath,
		JavaPath:     javaPath,
		Version:      version,
		adoptiumURL:  "https://api.adoptium.net",
	}
}

func javaBinName() string {
	if runtime.GOOS == "windows" {
		return "java.exe"
	}
	return "java"
}

// Resolve returns a java binary for m.Version, installing one if needed.
// The answer is cached for the life of the manager.
func (m *Manager) Resolve(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.resolved != "" && fsutil.IsFile(m.resolved) {
		return m.resolved, nil
	}
	path, err := m.EnsureJava(ctx, m.Version)
	if err != nil {
		return "", err
	}
	m.resolved = path
	return path, nil
}

// EnsureJava returns the first usable java of at least the given major
// version: the configured path, then PATH, then a managed runtime under
// RuntimesPath. When none qualify a JRE is installed from Adoptium.
func (m *Manager) EnsureJava(ctx context.Context, version int) (string, error) {
	installDir := filepath.Join(m.RuntimesPath, fmt.Sprintf("java-%d", version))

	for _, c := range m.candidates(installDir) {
		bin := c.find()
		if bin == "" {
			continue
		}
		if javaMajor(ctx, bin) >= version {
			log.Debug().Str("source", c.source).Str("java", bin).Msg("java resolved")
			return bin, nil
		}
		log.Warn().Str("source", c.source).Str("java", bin).Int("required", version).Msg("java too old or unusable")
	}

	log.Info().Int("version", version).Str("os", runtime.GOOS).Str("arch", runtime.GOARCH).Msg("installing managed java runtime")
	if err := m.install(ctx, version, installDir); err != nil {
		_ = os.RemoveAll(installDir)
		return "", err
	}

	bin, err := findJavaBin(installDir, javaBinName())
	if err != nil {
		return "", err
	}
	if bin, err = filepath.Abs(bin); err != nil {
		return "", err
	}
	if runtime.GOOS != "windows" {
		_ = os.Chmod(bin, 0755)
	}
	log.Info().Int("version", version).Str("java", bin).Msg("managed java runtime ready")
	return bin, nil
}

type candidate struct {
	source string
	find   func() string
}

func (m *Manager) candidates(installDir string) []candidate {
	return []candidate{
		{"config", func() string { return m.JavaPath }},
		{"path", func() string {
			p, _ := exec.LookPath(javaBinName())
			return p
		}},
		{"managed", func() string {
			if !fsutil.IsDir(installDir) {
				return ""
			}
			p, err := findJavaBin(installDir, javaBinName())
			if err != nil {
				return ""
			}
			abs, _ := filepath.Abs(p)
			return abs
		}},
	}
}

// releasePlatform maps GOOS/GOARCH onto Adoptium's names and archive type.
func releasePlatform() (osName, arch, ext string, err error) {
	osNames := map[string]string{"windows": "windows", "darwin": "mac", "linux": "linux"}
	archs := map[string]string{"amd64": "x64", "arm64": "aarch64"}

	osName, ok := osNames[runtime.GOOS]
	if !ok {
		return "", "", "", fmt.Errorf("no java runtime published for %s", runtime.GOOS)
	}
	arch, ok = archs[runtime.GOARCH]
	if !ok {
		return "", "", "", fmt.Errorf("no java runtime published for %s", runtime.GOARCH)
	}
	ext = ".tar.gz"
	if runtime.GOOS == "windows" {
		ext = ".zip"
	}
	return osName, arch, ext, nil
}

func (m *Manager) install(ctx context.Context, version int, destDir string) error {
	osName, arch, ext, err := releasePlatform()
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/v3/binary/latest/%d/ga/%s/%s/jre/hotspot/normal/eclipse",
		m.adoptiumURL, version, osName, arch)

	log.Info().Str("url", url).Msg("downloading java runtime")
	archive, err := fsutil.FetchToTemp(ctx, nil, url, "jre-*"+ext, nil)
	if err != nil {
		return fmt.Errorf("java runtime download: %w", err)
	}
	defer os.Remove(archive)

	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}
	if ext == ".zip" {
		err = fsutil.Unzip(ctx, archive, destDir, nil)
	} else {
		err = fsutil.Untar(archive, destDir)
	}
	if err != nil {
		return fmt.Errorf("java runtime extract: %w", err)
	}
	return nil
}

// findJavaBin returns the first executable named binName inside a bin/
// directory under root.
func findJavaBin(root, binName string) (string, error) {
	var found string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil || found != "" {
			return err
		}
		if d.IsDir() || d.Name() != binName || filepath.Base(filepath.Dir(p)) != "bin" {
			return nil
		}
		if runtime.GOOS != "windows" {
			info, err := d.Info()
			if err != nil || info.Mode()&0111 == 0 {
				return nil
			}
		}
		found = p
		return fs.SkipAll
	})
	if err != nil {
		return "", fmt.Errorf("searching %s: %w", root, err)
	}
	if found == "" {
		return "", fmt.Errorf("no %s binary under %s", binName, root)
	}
	return found, nil
}

var (
	versionRe = regexp.MustCompile(`version\s+"([^"]+)"`)
	digitsRe  = regexp.MustCompile(`\d+`)
)

// ParseMajor extracts the major version from `java -version` output,
// handling both the legacy "1.8.0" and the modern "25.0.1" forms.
func ParseMajor(output string) int {
	m := versionRe.FindStringSubmatch(output)
	if len(m) < 2 {
		return 0
	}
	parts := strings.Split(m[1], ".")
	field := parts[0]
	if parts[0] == "1" && len(parts) > 1 {
		field = parts[1]
	}
	major, _ := strconv.Atoi(digitsRe.FindString(field))
	return major
}

// javaMajor runs `java -version` and returns the major version, or 0 when
// the binary cannot be run.
func javaMajor(ctx context.Context, javaPath string) int {
	out, err := exec.CommandContext(ctx, javaPath, "-version").CombinedOutput()
	if err != nil {
		return 0
	}
	return ParseMajor(string(out))
}
