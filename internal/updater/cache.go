package updater

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/downloader"
	"github.com/Stormster/hytale-server-manager-sub000/internal/events"
	"github.com/Stormster/hytale-server-manager-sub000/internal/fsutil"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/rs/zerolog/log"
)

const (
	cacheZip     = "server.zip"
	cacheVersion = "version.txt"
	workDirName  = "work"
)

// cache keeps the last downloaded archive per channel so several instances
// on the same channel download it once. Readers share a channel; replacing
// its archive is exclusive.
type cache struct {
	root string

	mu    sync.Mutex
	locks map[domain.Channel]*sync.RWMutex
}

func newCache(root string) *cache {
	return &cache{root: root, locks: make(map[domain.Channel]*sync.RWMutex)}
}

func (c *cache) lock(ch domain.Channel) *sync.RWMutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[ch]
	if !ok {
		l = &sync.RWMutex{}
		c.locks[ch] = l
	}
	return l
}

func (c *cache) workRoot() string {
	return filepath.Join(c.root, workDirName)
}

func (c *cache) workDir(opID string) string {
	return filepath.Join(c.workRoot(), opID)
}

func (c *cache) channelDir(ch domain.Channel) string {
	return filepath.Join(c.root, string(ch))
}

func (c *cache) cachedVersion(ch domain.Channel) string {
	data, err := os.ReadFile(filepath.Join(c.channelDir(ch), cacheVersion))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// fetch leaves the build for target extracted in staging, from the cache
// when it holds that exact version and from the downloader otherwise.
func (c *cache) fetch(ctx context.Context, tool downloader.Tool, ch domain.Channel, target, workDir, staging string, stream *events.Stream) error {
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return err
	}

	hit, err := c.extractCached(ctx, ch, target, staging, stream)
	if hit || err != nil {
		return err
	}

	stream.Status(fmt.Sprintf("Downloading %s %s...", ch, target))
	zipPath := filepath.Join(workDir, cacheZip)
	adapter := downloader.NewProgressAdapter(stream, progressEvery)
	if err := tool.Download(ctx, ch, zipPath, adapter.Line); err != nil {
		return err
	}

	if err := extract(ctx, zipPath, staging, stream); err != nil {
		return err
	}
	if err := validate(staging, stream); err != nil {
		return err
	}

	c.promote(ch, target, zipPath)
	return nil
}

// validate checks that staging holds a runnable server.
func validate(staging string, stream *events.Stream) error {
	stream.Status("Validating server files...")
	if !fsutil.IsFile(filepath.Join(staging, instance.ServerDir, instance.ServerJar)) {
		return fmt.Errorf("archive has no %s/%s: %w", instance.ServerDir, instance.ServerJar, domain.ErrCorruptArchive)
	}
	return nil
}

func (c *cache) extractCached(ctx context.Context, ch domain.Channel, target, staging string, stream *events.Stream) (bool, error) {
	l := c.lock(ch)
	l.RLock()
	defer l.RUnlock()

	zipPath := filepath.Join(c.channelDir(ch), cacheZip)
	if c.cachedVersion(ch) != target || !fsutil.IsFile(zipPath) {
		return false, nil
	}

	stream.Status("Using cached download...")
	err := extract(ctx, zipPath, staging, stream)
	if err == nil {
		err = validate(staging, stream)
	}
	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		// A damaged cache entry falls back to a fresh download.
		log.Warn().Err(err).Str("patchline", string(ch)).Msg("cached archive unusable")
		_ = os.RemoveAll(staging)
		return false, nil
	}
	return true, nil
}

// promote moves a download that passed validate into the cache. Failure only costs a
// future download.
func (c *cache) promote(ch domain.Channel, target, zipPath string) {
	l := c.lock(ch)
	l.Lock()
	defer l.Unlock()

	dir := c.channelDir(ch)
	if err := os.MkdirAll(dir, 0755); err != nil {
		log.Warn().Err(err).Msg("could not create cache dir")
		return
	}
	_ = os.Remove(filepath.Join(dir, cacheVersion))
	if err := os.Rename(zipPath, filepath.Join(dir, cacheZip)); err != nil {
		log.Warn().Err(err).Str("patchline", string(ch)).Msg("could not cache download")
		return
	}
	if err := os.WriteFile(filepath.Join(dir, cacheVersion), []byte(target), 0644); err != nil {
		log.Warn().Err(err).Str("patchline", string(ch)).Msg("could not record cached version")
	}
}

func extract(ctx context.Context, zipPath, staging string, stream *events.Stream) error {
	stream.Status("Extracting server files...")
	limiter := throttled(stream, "Extracting")
	err := fsutil.Unzip(ctx, zipPath, staging, func(done, total int) {
		if total > 0 {
			limiter(domain.ProgressEvent{Percent: float64(done) / float64(total) * 100})
		}
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", domain.ErrCorruptArchive, err)
	}
	return nil
}
