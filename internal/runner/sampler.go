package runner

import (
	"context"
	"sync"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/metrics"
	"github.com/shirou/gopsutil/v3/process"
)

// Usage is the last resource sample of a server process tree.
type Usage struct {
	RAMMB      float64
	CPUPercent float64
	SampledAt  time.Time
}

// sampler polls a process and its children. CPU percentages are deltas
// between polls, so the handles are kept across ticks.
type sampler struct {
	instance string
	pid      int32

	mu    sync.RWMutex
	last  *Usage
	procs map[int32]*process.Process
}

func newSampler(instance string, pid int) *sampler {
	return &sampler{
		instance: instance,
		pid:      int32(pid),
		procs:    make(map[int32]*process.Process),
	}
}

func (s *sampler) run(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	s.sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample(ctx)
		}
	}
}

func (s *sampler) tree(ctx context.Context) []*process.Process {
	root, ok := s.procs[s.pid]
	if !ok {
		p, err := process.NewProcessWithContext(ctx, s.pid)
		if err != nil {
			return nil
		}
		root = p
		s.procs[s.pid] = p
	}

	seen := map[int32]bool{s.pid: true}
	out := []*process.Process{root}
	children, _ := root.ChildrenWithContext(ctx)
	for len(children) > 0 {
		var next []*process.Process
		for _, c := range children {
			if seen[c.Pid] {
				continue
			}
			seen[c.Pid] = true
			if kept, ok := s.procs[c.Pid]; ok {
				c = kept
			} else {
				s.procs[c.Pid] = c
			}
			out = append(out, c)
			grand, _ := c.ChildrenWithContext(ctx)
			next = append(next, grand...)
		}
		children = next
	}

	for pid := range s.procs {
		if !seen[pid] {
			delete(s.procs, pid)
		}
	}
	return out
}

func (s *sampler) sample(ctx context.Context) {
	var rss uint64
	var cpu float64
	procs := s.tree(ctx)
	if len(procs) == 0 {
		return
	}
	for _, p := range procs {
		if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
			rss += mem.RSS
		}
		if pct, err := p.PercentWithContext(ctx, 0); err == nil {
			cpu += pct
		}
	}

	u := &Usage{
		RAMMB:      round1(float64(rss) / (1024 * 1024)),
		CPUPercent: round1(cpu),
		SampledAt:  time.Now(),
	}
	s.mu.Lock()
	s.last = u
	s.mu.Unlock()

	metrics.ObserveResources(s.instance, u.RAMMB, u.CPUPercent)
}

func (s *sampler) usage() *Usage {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func round1(v float64) float64 {
	return float64(int64(v*10+0.5)) / 10
}
