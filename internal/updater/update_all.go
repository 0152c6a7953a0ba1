package updater

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/events"
	"github.com/rs/zerolog/log"
)

// UpdateAll updates every installed instance that has an update on its own
// channel, one at a time, reporting into a single stream. When filter is
// non-empty only the named instances are considered. Instances sharing a
// channel reuse the cached download. opts applies to every instance, so a
// running server is stopped and restarted around its own update.
func (o *Orchestrator) UpdateAll(ctx context.Context, filter []string, opts Options) (*events.Stream, error) {
	o.mu.Lock()
	if o.updateAll != nil && !o.updateAll.Finished() {
		o.mu.Unlock()
		return nil, fmt.Errorf("update all: %w", domain.ErrOperationInProgress)
	}
	stream := events.NewStream()
	o.updateAll = stream
	o.mu.Unlock()

	go o.runUpdateAll(context.WithoutCancel(ctx), stream, filter, opts)
	return stream, nil
}

func (o *Orchestrator) runUpdateAll(ctx context.Context, stream *events.Stream, filter []string, opts Options) {
	stream.Status("Checking for updates...")
	all, err := o.CheckAll(ctx)
	if err != nil {
		stream.Done(false, fmt.Sprintf("Could not check for updates: %v. Nothing was changed.", err))
		return
	}

	wanted := make(map[string]bool, len(filter))
	for _, n := range filter {
		wanted[n] = true
	}

	var names []string
	for name, a := range all.Instances {
		if !a.UpdateAvailable || (len(wanted) > 0 && !wanted[name]) {
			continue
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		stream.Done(true, "All instances are already up to date.")
		return
	}
	// Group by channel so each channel is downloaded once, then by name.
	sort.Slice(names, func(i, j int) bool {
		ci, cj := all.Instances[names[i]].InstalledChannel, all.Instances[names[j]].InstalledChannel
		if ci != cj {
			return ci < cj
		}
		return names[i] < names[j]
	})

	var updated int
	var failures []string
	for _, name := range names {
		a := all.Instances[name]
		stream.Status(fmt.Sprintf("Updating %s...", name))

		op, err := o.InstallOrUpdate(name, a.InstalledChannel, opts)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}

		for ev := range op.Stream.Subscribe(ctx) {
			switch ev.Type {
			case events.TypeStatus:
				stream.Status(name + ": " + ev.Message)
			case events.TypeProgress:
				stream.Progress(ev.Percent, name+": "+ev.Detail)
			case events.TypeDone:
				if ev.OK {
					updated++
				} else {
					failures = append(failures, name+": "+ev.Message)
				}
			}
		}
	}

	msg := fmt.Sprintf("Updated %d instance(s).", updated)
	if len(failures) > 0 {
		msg += " " + strings.Join(failures, "; ")
	}
	log.Info().Int("updated", updated).Int("failed", len(failures)).Msg("update all finished")
	stream.Done(updated > 0 && len(failures) == 0, msg)
}
