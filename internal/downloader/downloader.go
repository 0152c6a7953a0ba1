// Package downloader drives the official Hytale downloader, an external
// command-line tool that resolves and fetches server builds per channel.
package downloader

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/fsutil"
	"github.com/rs/zerolog/log"
)

const (
	CredentialsFile = ".hytale-downloader-credentials.json"

	printVersionTimeout = 30 * time.Second
	errorPrefix         = "[ERROR]"
)

// Tool is what the update orchestrator needs from the downloader.
type Tool interface {
	PrintVersion(ctx context.Context, ch domain.Channel) (string, error)
	Download(ctx context.Context, ch domain.Channel, destZip string, onLine func(string)) error
	Preflight(ctx context.Context) error
}

// Client runs the downloader binary at Path. The tool keeps its credentials
// in its working directory, WorkDir.
type Client struct {
	Path    string
	WorkDir string
	URL     string
}

var _ Tool = (*Client)(nil)

// BinaryName is the executable name published for the running platform.
func BinaryName() string {
	name := fmt.Sprintf("hytale-downloader-%s-%s", runtime.GOOS, runtime.GOARCH)
	if runtime.GOOS == "windows" {
		name += ".exe"
	}
	return name
}

// NewClient uses path when set and otherwise expects the tool in toolsDir.
func NewClient(path, toolsDir, workDir, url string) *Client {
	if path == "" {
		path = filepath.Join(toolsDir, BinaryName())
	}
	return &Client{Path: path, WorkDir: workDir, URL: url}
}

func (c *Client) CredentialsPath() string {
	return filepath.Join(c.WorkDir, CredentialsFile)
}

func (c *Client) Installed() bool {
	return fsutil.IsFile(c.Path)
}

func (c *Client) HasCredentials() bool {
	return fsutil.IsFile(c.CredentialsPath())
}

// Preflight checks that the tool and its credentials are present.
func (c *Client) Preflight(ctx context.Context) error {
	if !c.Installed() {
		return domain.ErrDownloaderMissing
	}
	if !c.HasCredentials() {
		return domain.ErrAuthExpired
	}
	return ctx.Err()
}

func (c *Client) command(ctx context.Context, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, c.Path, args...)
	cmd.Dir = c.WorkDir
	cmd.WaitDelay = 5 * time.Second
	return cmd
}

// PrintVersion asks the tool for the newest version on ch.
func (c *Client) PrintVersion(ctx context.Context, ch domain.Channel) (string, error) {
	if !c.Installed() {
		return "", domain.ErrDownloaderMissing
	}

	ctx, cancel := context.WithTimeout(ctx, printVersionTimeout)
	defer cancel()

	var out bytes.Buffer
	cmd := c.command(ctx, "-print-version", "-patchline", string(ch), "-skip-update-check")
	cmd.Stdout = &out
	cmd.Stderr = &out

	err := cmd.Run()
	text := strings.TrimSpace(out.String())

	if ctx.Err() == context.DeadlineExceeded {
		return "", fmt.Errorf("version check timed out: %w", domain.ErrConnection)
	}
	if err != nil || strings.HasPrefix(text, errorPrefix) {
		return "", classify(text, err)
	}

	ver := lastLine(text)
	if ver == "" {
		return "", fmt.Errorf("downloader printed no version: %w", domain.ErrConnection)
	}
	return ver, nil
}

// Download fetches the current build of ch into destZip. Every line the tool
// prints, split on CR as well as LF, is handed to onLine.
func (c *Client) Download(ctx context.Context, ch domain.Channel, destZip string, onLine func(string)) error {
	if !c.Installed() {
		return domain.ErrDownloaderMissing
	}

	pr, pw := io.Pipe()
	cmd := c.command(ctx, "-download-path", destZip, "-patchline", string(ch), "-skip-update-check")
	cmd.Stdout = pw
	cmd.Stderr = pw

	if err := cmd.Start(); err != nil {
		pw.Close()
		return fmt.Errorf("failed to start downloader: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waitErr <- err
	}()

	var last string
	scanner := bufio.NewScanner(pr)
	scanner.Split(ScanLines)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		last = line
		if onLine != nil {
			onLine(line)
		}
	}
	// Keep the pipe drained if the scanner gave up on an oversized token.
	_, _ = io.Copy(io.Discard, pr)

	err := <-waitErr
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil || strings.HasPrefix(last, errorPrefix) {
		return classify(last, err)
	}
	if !fsutil.IsFile(destZip) {
		return fmt.Errorf("downloader finished without writing %s: %w", filepath.Base(destZip), domain.ErrCorruptArchive)
	}
	return nil
}

// Authenticate discards stored credentials and runs the tool so it can
// start its device login. The lines it prints contain the login URL.
func (c *Client) Authenticate(ctx context.Context, onLine func(string)) error {
	if !c.Installed() {
		return domain.ErrDownloaderMissing
	}
	if err := os.MkdirAll(c.WorkDir, 0755); err != nil {
		return err
	}
	if err := os.Remove(c.CredentialsPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("could not remove old credentials: %w", err)
	}

	pr, pw := io.Pipe()
	cmd := c.command(ctx, "-print-version", "-skip-update-check")
	cmd.Stdout = pw
	cmd.Stderr = pw
	if err := cmd.Start(); err != nil {
		pw.Close()
		return err
	}
	go func() {
		_ = cmd.Wait()
		pw.Close()
	}()

	scanner := bufio.NewScanner(pr)
	scanner.Split(ScanLines)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" && onLine != nil {
			onLine(line)
		}
	}
	_, _ = io.Copy(io.Discard, pr)

	if !c.HasCredentials() {
		return domain.ErrAuthExpired
	}
	log.Info().Msg("downloader credentials refreshed")
	return nil
}

var authHints = []string{"auth", "login", "credential", "token", "unauthorized", "expired", "401", "403"}

// classify maps tool output to a domain error.
func classify(output string, err error) error {
	msg := strings.TrimSpace(strings.TrimPrefix(lastLine(output), errorPrefix))
	lower := strings.ToLower(output)
	for _, hint := range authHints {
		if strings.Contains(lower, hint) {
			return fmt.Errorf("%s: %w", orDefault(msg, "authentication required"), domain.ErrAuthExpired)
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("downloader exited with code %d: %s: %w", exitErr.ExitCode(), orDefault(msg, "no output"), domain.ErrConnection)
	}
	if err != nil {
		return fmt.Errorf("downloader failed: %v: %w", err, domain.ErrConnection)
	}
	return fmt.Errorf("%s: %w", orDefault(msg, "downloader reported an error"), domain.ErrConnection)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexAny(s, "\r\n"); i >= 0 {
		return strings.TrimSpace(s[i+1:])
	}
	return s
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// ScanLines is bufio.ScanLines that also breaks on a bare carriage return,
// which the tool uses to redraw its progress bar.
func ScanLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance = i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
