package instance

import (
	"fmt"
	"net"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
)

// PortPolicy describes where game ports are taken from. The web port of an
// instance sits WebOffset above its game port.
type PortPolicy struct {
	Start     int
	End       int
	WebOffset int

	// Available probes the host. Nil means isPortAvailable.
	Available func(port int) bool
}

func (p PortPolicy) available(port int) bool {
	if p.Available != nil {
		return p.Available(port)
	}
	return isPortAvailable(port)
}

// Allocate picks the first game port in range that no instance claims
// (as game or web port) and that is free on the host.
func (p PortPolicy) Allocate(existing []domain.Instance) (*int, *int, error) {
	used := usedPorts(existing, "")

	for port := p.Start; port <= p.End; port++ {
		web := port + p.WebOffset
		if used[port] || used[web] {
			continue
		}
		if !p.available(port) {
			continue
		}
		game := port
		return &game, &web, nil
	}

	return nil, nil, fmt.Errorf("no free ports in range %d-%d: %w", p.Start, p.End, domain.ErrPortConflict)
}

func usedPorts(list []domain.Instance, except string) map[int]string {
	used := make(map[int]string)
	for _, inst := range list {
		if inst.Name == except {
			continue
		}
		if inst.GamePort != nil {
			used[*inst.GamePort] = inst.Name
		}
		if inst.WebPort != nil {
			used[*inst.WebPort] = inst.Name
		}
	}
	return used
}

// CheckConflicts reports whether game or web collides with a port already
// claimed by another instance.
func CheckConflicts(list []domain.Instance, name string, game, web *int) error {
	if game != nil && web != nil && *game == *web {
		return fmt.Errorf("game and web port are both %d: %w", *game, domain.ErrPortConflict)
	}
	used := usedPorts(list, name)
	for _, p := range []*int{game, web} {
		if p == nil {
			continue
		}
		if *p < 1 || *p > 65535 {
			return fmt.Errorf("port %d out of range", *p)
		}
		if owner, ok := used[*p]; ok {
			return fmt.Errorf("port %d is used by %q: %w", *p, owner, domain.ErrPortConflict)
		}
	}
	return nil
}

// Hytale speaks QUIC, so the game port is probed over UDP.
func isPortAvailable(port int) bool {
	conn, err := net.ListenPacket("udp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
