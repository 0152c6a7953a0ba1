package updater

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/events"
	"github.com/rs/zerolog/log"
)

// MaxGraceMinutes bounds the in-game shutdown warning period.
const MaxGraceMinutes = 60

const (
	restartTimeout = 5 * time.Minute
	shutdownNotice = "/say Server will shut down in %s to update. Please update your client to rejoin."
)

// Warning marks inside a grace period, largest first.
var graceMarks = []time.Duration{
	10 * time.Minute, 5 * time.Minute, 2 * time.Minute, time.Minute,
	30 * time.Second, 10 * time.Second,
}

// Options tune one install or update.
type Options struct {
	// StopRunning stops a running server before the update and starts it
	// again afterwards. Without it a running server refuses the update.
	StopRunning bool `json:"stop_running"`
	// GraceMinutes, with StopRunning, warns players in game and waits this
	// long before stopping. Zero stops at once.
	GraceMinutes int `json:"graceful_minutes"`
}

func (o Options) Validate() error {
	if o.GraceMinutes < 0 || o.GraceMinutes > MaxGraceMinutes {
		return fmt.Errorf("graceful_minutes must be between 0 and %d", MaxGraceMinutes)
	}
	return nil
}

// ServerControl is the part of the supervisor an update needs.
type ServerControl interface {
	IsRunning(name string) bool
	// StopAndWait returns once the process has exited, or an error when it
	// did not exit in time.
	StopAndWait(ctx context.Context, name string) error
	Start(ctx context.Context, name string) error
	SendCommand(name, command string) error
}

func (o *Orchestrator) stopForUpdate(ctx context.Context, name string, opts Options, stream *events.Stream) error {
	if opts.GraceMinutes > 0 {
		grace := time.Duration(opts.GraceMinutes) * time.Minute
		if err := o.announceShutdown(ctx, name, grace, stream); err != nil {
			return err
		}
	}
	if !o.Servers.IsRunning(name) {
		return nil
	}
	stream.Status("Stopping server for update...")
	err := o.Servers.StopAndWait(ctx, name)
	if errors.Is(err, domain.ErrNotRunning) {
		return nil
	}
	return err
}

// announceShutdown warns players at each mark of the grace period and
// returns when it has elapsed or the server has exited on its own.
func (o *Orchestrator) announceShutdown(ctx context.Context, name string, grace time.Duration, stream *events.Stream) error {
	say := func(left time.Duration) {
		stream.Status(fmt.Sprintf("Server stops for the update in %s...", humanDuration(left)))
		if err := o.Servers.SendCommand(name, fmt.Sprintf(shutdownNotice, humanDuration(left))); err != nil {
			log.Warn().Err(err).Str("instance", name).Msg("could not announce shutdown")
		}
	}

	left := grace
	say(left)
	for _, mark := range graceMarks {
		if mark >= left {
			continue
		}
		if err := o.wait(ctx, left-mark); err != nil {
			return err
		}
		left = mark
		if !o.Servers.IsRunning(name) {
			return nil
		}
		say(left)
	}
	return o.wait(ctx, left)
}

// restart starts a server the update stopped and returns a note for the
// done message.
func (o *Orchestrator) restart(name string, stream *events.Stream) string {
	stream.Status("Restarting server...")
	ctx, cancel := context.WithTimeout(context.Background(), restartTimeout)
	defer cancel()
	if err := o.Servers.Start(ctx, name); err != nil {
		log.Error().Err(err).Str("instance", name).Msg("could not restart server after update")
		return fmt.Sprintf(" The server could not be restarted: %v.", err)
	}
	log.Info().Str("instance", name).Msg("server restarted after update")
	return " Server restarted."
}

func humanDuration(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		if m := int(d / time.Minute); m != 1 {
			return fmt.Sprintf("%d minutes", m)
		}
		return "1 minute"
	}
	return fmt.Sprintf("%d seconds", int(d/time.Second))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
