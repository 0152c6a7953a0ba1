package updater

import (
	"context"
	"errors"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/Stormster/hytale-server-manager-sub000/internal/version"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Availability is what an instance could move to. A nil remote version
// means that channel could not be queried.
type Availability struct {
	InstalledVersion              string         `json:"installed_version"`
	InstalledChannel              domain.Channel `json:"installed_patchline"`
	RemoteRelease                 *string        `json:"remote_release"`
	RemotePrerelease              *string        `json:"remote_prerelease"`
	UpdateAvailable               bool           `json:"update_available"`
	CanSwitchRelease              bool           `json:"can_switch_release"`
	CanSwitchPrerelease           bool           `json:"can_switch_prerelease"`
	SwitchToReleaseIsDowngrade    bool           `json:"switch_to_release_is_downgrade"`
	SwitchToPrereleaseIsDowngrade bool           `json:"switch_to_prerelease_is_downgrade"`
}

type AllAvailability struct {
	Instances        map[string]Availability `json:"instances"`
	RemoteRelease    *string                 `json:"remote_release"`
	RemotePrerelease *string                 `json:"remote_prerelease"`
}

type InstalledStatus struct {
	InstalledVersion string         `json:"installed_version"`
	InstalledChannel domain.Channel `json:"installed_patchline"`
	Installed        bool           `json:"installed"`
	Degraded         bool           `json:"degraded"`
}

type Readiness struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type remotes struct {
	release    *string
	prerelease *string
}

func (r remotes) of(ch domain.Channel) *string {
	if ch == domain.ChannelPrerelease {
		return r.prerelease
	}
	return r.release
}

// fetchRemote queries one channel. Concurrent callers for the same channel
// share a single downloader invocation.
func (o *Orchestrator) fetchRemote(ctx context.Context, ch domain.Channel) (string, error) {
	v, err, _ := o.group.Do(string(ch), func() (interface{}, error) {
		return o.Tool.PrintVersion(ctx, ch)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// fetchRemotes queries both channels concurrently. A failed channel is left
// nil and does not affect the other.
func (o *Orchestrator) fetchRemotes(ctx context.Context) remotes {
	var out remotes
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range []domain.Channel{domain.ChannelRelease, domain.ChannelPrerelease} {
		ch := ch
		g.Go(func() error {
			v, err := o.fetchRemote(gctx, ch)
			if err != nil {
				log.Warn().Err(err).Str("patchline", string(ch)).Msg("remote version check failed")
				return nil
			}
			if !version.IsKnown(v) {
				return nil
			}
			if ch == domain.ChannelPrerelease {
				out.prerelease = &v
			} else {
				out.release = &v
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func evaluate(installed bool, ver string, ch domain.Channel, r remotes) Availability {
	a := Availability{
		InstalledVersion: ver,
		InstalledChannel: ch,
		RemoteRelease:    r.release,
		RemotePrerelease: r.prerelease,
	}
	if !installed {
		a.InstalledVersion = domain.UnknownVersion
		return a
	}

	if same := r.of(ch); same != nil {
		a.UpdateAvailable = version.IsUpdateAvailable(ver, *same)
	}

	other := version.Other(ch)
	if remote := r.of(other); remote != nil && version.IsCrossChannelSwitchEligible(ch, ver, *remote) {
		downgrade := version.IsDowngrade(*remote, ver)
		if other == domain.ChannelRelease {
			a.CanSwitchRelease = true
			a.SwitchToReleaseIsDowngrade = downgrade
		} else {
			a.CanSwitchPrerelease = true
			a.SwitchToPrereleaseIsDowngrade = downgrade
		}
	}
	return a
}

// CheckAvailable compares an instance against freshly fetched remote
// versions. It changes nothing.
func (o *Orchestrator) CheckAvailable(ctx context.Context, name string) (*Availability, error) {
	inst, err := o.Registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	r := o.fetchRemotes(ctx)
	a := evaluate(instance.IsInstalled(inst.Dir), inst.Version, inst.Channel, r)
	return &a, nil
}

// CheckAll evaluates every installed instance against one remote fetch.
func (o *Orchestrator) CheckAll(ctx context.Context) (*AllAvailability, error) {
	list, err := o.Registry.List()
	if err != nil {
		return nil, err
	}
	r := o.fetchRemotes(ctx)

	out := &AllAvailability{
		Instances:        make(map[string]Availability, len(list)),
		RemoteRelease:    r.release,
		RemotePrerelease: r.prerelease,
	}
	for _, inst := range list {
		if !instance.IsInstalled(inst.Dir) {
			continue
		}
		out.Instances[inst.Name] = evaluate(true, inst.Version, inst.Channel, r)
	}
	return out, nil
}

// Status reports the installed version without touching the network.
func (o *Orchestrator) Status(name string) (*InstalledStatus, error) {
	inst, err := o.Registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	installed := instance.IsInstalled(inst.Dir)
	ver := inst.Version
	if !installed || ver == "" {
		ver = domain.UnknownVersion
	}
	return &InstalledStatus{
		InstalledVersion: ver,
		InstalledChannel: inst.Channel,
		Installed:        installed,
		Degraded:         inst.Degraded,
	}, nil
}

type toolFetcher interface {
	EnsureTool(ctx context.Context) error
}

// SetupReady runs the downloader preflight. A missing tool is fetched once
// when the tool knows how to.
func (o *Orchestrator) SetupReady(ctx context.Context) Readiness {
	err := o.Tool.Preflight(ctx)
	if errors.Is(err, domain.ErrDownloaderMissing) {
		if f, ok := o.Tool.(toolFetcher); ok {
			if ferr := f.EnsureTool(ctx); ferr != nil {
				log.Warn().Err(ferr).Msg("could not fetch downloader")
			} else {
				err = o.Tool.Preflight(ctx)
			}
		}
	}
	if err != nil {
		return Readiness{OK: false, Error: preflightMessage(err)}
	}
	return Readiness{OK: true}
}

func preflightMessage(err error) string {
	switch {
	case errors.Is(err, domain.ErrDownloaderMissing):
		return "The Hytale downloader is not installed."
	case errors.Is(err, domain.ErrAuthExpired):
		return "Downloader authentication is missing or expired. Refresh authentication and try again."
	}
	return err.Error()
}
