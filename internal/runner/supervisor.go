package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Stormster/hytale-server-manager-sub000/internal/domain"
	"github.com/Stormster/hytale-server-manager-sub000/internal/events"
	"github.com/Stormster/hytale-server-manager-sub000/internal/instance"
	"github.com/Stormster/hytale-server-manager-sub000/internal/metrics"
	"github.com/Stormster/hytale-server-manager-sub000/internal/runner/strategy"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
)

const (
	// RestartExitCode is returned by the server when it wants to be
	// relaunched, for example after staging an update of its own.
	RestartExitCode = 8

	defaultStopTimeout = 8 * time.Second
	outputDrainTimeout = 2 * time.Second
	pidFile            = ".server.pid"
)

// JavaResolver finds the java executable used to launch servers.
type JavaResolver interface {
	Resolve(ctx context.Context) (string, error)
}

// UpdateGuard reports whether an install or update owns an instance.
type UpdateGuard interface {
	Active(name string) bool
}

// StopResult describes how a stop request ended. Exited is false when the
// process was still alive at the deadline and was left running.
type StopResult struct {
	Exited  bool   `json:"exited"`
	Forced  bool   `json:"forced"`
	Message string `json:"message"`
}

type Supervisor struct {
	Registry   *instance.Registry
	JVM        JavaResolver
	HubManager *events.HubManager
	Updates    UpdateGuard

	StopTimeout        time.Duration
	ForceKillOnTimeout bool
	StatsInterval      time.Duration

	// LauncherFor picks the launch strategy for an instance.
	LauncherFor func(launcher string) strategy.ServerRunner
	// Players, when set, is asked for the player count of running servers.
	Players PlayerQuery

	processes map[string]*ActiveProcess
	lastExit  map[string]exitRecord
	mu        sync.Mutex
}

// ActiveProcess is a server process owned by the supervisor. An entry with
// no Cmd is a start that is still being prepared.
type ActiveProcess struct {
	Cmd       *exec.Cmd
	Stdin     io.WriteCloser
	StartedAt time.Time
	GamePort  *int
	Dir       string

	hub        *events.Hub
	sampler    *sampler
	waitOutput func()
	exited     chan struct{}
	stopping   atomic.Bool
	killed     atomic.Bool
	stdinMu    sync.Mutex
}

type exitRecord struct {
	At   time.Time
	Code *int
}

func NewSupervisor(registry *instance.Registry, jvm JavaResolver, hubManager *events.HubManager) *Supervisor {
	return &Supervisor{
		Registry:           registry,
		JVM:                jvm,
		HubManager:         hubManager,
		StopTimeout:        defaultStopTimeout,
		ForceKillOnTimeout: true,
		StatsInterval:      2 * time.Second,
		LauncherFor:        strategy.GetRunner,
		Players:            QueryNitradoPlayers,
		processes:          make(map[string]*ActiveProcess),
		lastExit:           make(map[string]exitRecord),
	}
}

// IsRunning reports whether name has a live or starting server process.
func (s *Supervisor) IsRunning(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.processes[name]
	return ok
}

// Running returns the names of all instances with a server process.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.processes))
	for name, proc := range s.processes {
		if proc.Cmd != nil {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func (s *Supervisor) get(name string) *ActiveProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	proc := s.processes[name]
	if proc == nil || proc.Cmd == nil {
		return nil
	}
	return proc
}

func (s *Supervisor) release(name string, proc *ActiveProcess) {
	s.mu.Lock()
	if s.processes[name] == proc {
		delete(s.processes, name)
	}
	s.mu.Unlock()
}

// Start launches the server of an instance. The process keeps running after
// ctx ends; ctx only bounds the preparation.
func (s *Supervisor) Start(ctx context.Context, name string) error {
	inst, err := s.Registry.Resolve(name)
	if err != nil {
		return err
	}
	name = inst.Name

	proc := &ActiveProcess{exited: make(chan struct{})}
	s.mu.Lock()
	if _, exists := s.processes[name]; exists {
		s.mu.Unlock()
		return fmt.Errorf("instance %q: %w", name, domain.ErrAlreadyRunning)
	}
	s.processes[name] = proc
	s.mu.Unlock()

	started := false
	defer func() {
		if !started {
			s.release(name, proc)
		}
	}()

	// The placeholder is visible before this check, so an update that
	// registers concurrently sees the instance as running.
	if s.Updates != nil && s.Updates.Active(name) {
		return fmt.Errorf("instance %q: %w", name, domain.ErrUpdateInProgress)
	}
	// A restore or rename holding the lock has already checked IsRunning.
	unlock, ok := s.Registry.Locks.TryLock(name)
	if !ok {
		return fmt.Errorf("instance %q: %w", name, domain.ErrOperationInProgress)
	}
	unlock()
	if !instance.IsRunnable(inst.Dir) {
		return fmt.Errorf("instance %q: %w", name, domain.ErrNotInstalled)
	}
	if inst.Degraded {
		return fmt.Errorf("instance %q: %w", name, domain.ErrDegraded)
	}

	inst, err = s.Registry.EnsurePorts(name)
	if err != nil {
		return fmt.Errorf("error allocating ports: %w", err)
	}

	javaPath, err := s.JVM.Resolve(ctx)
	if err != nil {
		if inst.Startup.Launcher != strategy.LauncherScript {
			return fmt.Errorf("error preparing Java: %w", err)
		}
		log.Warn().Err(err).Str("instance", name).Msg("no managed java runtime, start script uses its own")
		javaPath = ""
	}

	hub := s.HubManager.Open(name)
	proc.hub = hub
	proc.Dir = inst.Dir
	proc.GamePort = inst.GamePort

	if err := s.launch(proc, inst, javaPath); err != nil {
		s.HubManager.RemoveHub(name, hub)
		return err
	}
	started = true

	s.mu.Lock()
	running := len(s.processes)
	s.mu.Unlock()
	metrics.SetRunning(running)

	go s.supervise(name, proc, inst, javaPath)
	return nil
}

// launch starts one server process for proc. Output of stdout and stderr is
// merged and broadcast line by line.
func (s *Supervisor) launch(proc *ActiveProcess, inst *domain.Instance, javaPath string) error {
	spec := strategy.LaunchSpec{
		JavaPath:    javaPath,
		InstanceDir: inst.Dir,
		Startup:     inst.Startup,
	}
	if inst.GamePort != nil {
		spec.GamePort = *inst.GamePort
	}

	cmd, err := s.LauncherFor(inst.Startup.Launcher).BuildCommand(spec)
	if err != nil {
		return err
	}
	prepareCommand(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	r, w, err := os.Pipe()
	if err != nil {
		return err
	}
	cmd.Stdout = w
	cmd.Stderr = w

	proc.hub.Broadcast(events.Output(fmt.Sprintf("[Launcher] Starting %s on port %d...", inst.Name, spec.GamePort)))
	proc.hub.Broadcast(events.Output("[Launcher] Running: " + strings.Join(cmd.Args, " ")))

	if err := cmd.Start(); err != nil {
		r.Close()
		w.Close()
		return fmt.Errorf("failed to start: %w", err)
	}
	w.Close()

	s.mu.Lock()
	proc.Cmd = cmd
	proc.Stdin = stdin
	proc.StartedAt = time.Now()
	s.mu.Unlock()

	writePID(inst.Dir, cmd.Process.Pid)
	log.Info().Str("instance", inst.Name).Int("pid", cmd.Process.Pid).Int("port", spec.GamePort).Msg("server started")
	s.follow(inst.Name, proc, r)
	return nil
}

// follow attaches the output reader and resource sampler to a freshly
// started process.
func (s *Supervisor) follow(name string, proc *ActiveProcess, out io.ReadCloser) {
	readerDone := make(chan struct{})
	go func() {
		defer close(readerDone)
		defer out.Close()
		scanner := bufio.NewScanner(out)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			proc.hub.Broadcast(events.Output(scanner.Text()))
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	smp := newSampler(name, proc.Cmd.Process.Pid)
	go smp.run(ctx, s.StatsInterval)

	s.mu.Lock()
	proc.sampler = smp
	s.mu.Unlock()

	proc.waitOutput = func() {
		cancel()
		select {
		case <-readerDone:
		case <-time.After(outputDrainTimeout):
		}
	}
}

// supervise waits for the process and relaunches it while the server asks
// for a restart.
func (s *Supervisor) supervise(name string, proc *ActiveProcess, inst *domain.Instance, javaPath string) {
	var code *int
	for {
		err := proc.Cmd.Wait()
		proc.waitOutput()
		code = exitCode(err)

		if code != nil && *code == RestartExitCode && !proc.stopping.Load() {
			proc.hub.Broadcast(events.Output("[Launcher] Server requested restart for update. Restarting..."))
			log.Info().Str("instance", name).Msg("server requested restart")
			metrics.ProcessExited(name, "restart")
			if err := s.launch(proc, inst, javaPath); err != nil {
				proc.hub.Broadcast(events.Output("[ERROR] " + err.Error()))
				log.Error().Err(err).Str("instance", name).Msg("restart failed")
				unknown := -1
				code = &unknown
				break
			}
			continue
		}
		break
	}

	removePID(proc.Dir)

	outcome := "exited"
	switch {
	case proc.killed.Load():
		outcome = "forced_kill"
		log.Warn().Str("instance", name).Msg("server forced kill completed")
	case code != nil && *code == 0:
		outcome = "clean"
		log.Info().Str("instance", name).Msg("server exited gracefully")
	default:
		outcome = "crashed"
		ev := log.Warn().Str("instance", name)
		if code != nil {
			ev = ev.Int("code", *code)
		}
		ev.Msg("server exited with error")
	}

	s.mu.Lock()
	if s.processes[name] == proc {
		delete(s.processes, name)
	}
	s.lastExit[name] = exitRecord{At: time.Now(), Code: code}
	running := len(s.processes)
	s.mu.Unlock()

	metrics.SetRunning(running)
	metrics.ProcessExited(name, outcome)
	metrics.ForgetInstance(name)

	proc.hub.Broadcast(events.Exited(code))
	s.HubManager.RemoveHub(name, proc.hub)
	close(proc.exited)
}

func exitCode(err error) *int {
	code := 0
	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil
		}
		code = exitErr.ExitCode()
		if code < 0 {
			return nil
		}
	}
	return &code
}

// Stop asks the server to shut down with its own stop command and waits up
// to StopTimeout. A process still alive at the deadline is killed when force
// is set or ForceKillOnTimeout is on.
func (s *Supervisor) Stop(ctx context.Context, name string, force bool) (StopResult, error) {
	inst, err := s.Registry.Resolve(name)
	if err != nil {
		return StopResult{}, err
	}
	name = inst.Name

	proc := s.get(name)
	if proc == nil {
		return StopResult{}, fmt.Errorf("instance %q: %w", name, domain.ErrNotRunning)
	}

	proc.stopping.Store(true)
	if err := s.write(proc, "stop\n"); err != nil {
		log.Warn().Err(err).Str("instance", name).Msg("could not send stop command")
	}

	timer := time.NewTimer(s.stopTimeout())
	defer timer.Stop()

	select {
	case <-proc.exited:
		return StopResult{Exited: true, Message: "stopped"}, nil
	case <-ctx.Done():
		return StopResult{Message: "stop requested"}, ctx.Err()
	case <-timer.C:
	}

	if !force && !s.ForceKillOnTimeout {
		log.Warn().Str("instance", name).Dur("timeout", s.stopTimeout()).Msg("server did not exit in time, stop requested")
		return StopResult{Message: "stop requested"}, nil
	}

	osProc := s.osProcess(proc)
	log.Warn().Str("instance", name).Int("pid", osProc.Pid).Msg("forced kill after stop timeout")
	proc.killed.Store(true)
	killTree(osProc.Pid)
	if err := osProc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return StopResult{}, fmt.Errorf("kill server: %w", err)
	}

	select {
	case <-proc.exited:
		return StopResult{Exited: true, Forced: true, Message: "killed"}, nil
	case <-time.After(outputDrainTimeout * 2):
		return StopResult{Forced: true, Message: "kill requested"}, nil
	}
}

// StopAndWait stops the server and reports domain.ErrStopTimeout when it
// has not exited by the end of Stop.
func (s *Supervisor) StopAndWait(ctx context.Context, name string) error {
	res, err := s.Stop(ctx, name, false)
	if err != nil {
		return err
	}
	if !res.Exited {
		return fmt.Errorf("instance %q: %w (%s)", name, domain.ErrStopTimeout, res.Message)
	}
	return nil
}

// osProcess returns the current process of proc, which changes when the
// server restarts itself.
func (s *Supervisor) osProcess(proc *ActiveProcess) *os.Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return proc.Cmd.Process
}

func (s *Supervisor) stopTimeout() time.Duration {
	if s.StopTimeout <= 0 {
		return defaultStopTimeout
	}
	return s.StopTimeout
}

// killTree kills the descendants of pid, deepest first. A start script may
// leave the java process as a child that outlives the script itself.
func killTree(pid int) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return
	}
	children, _ := p.Children()
	for _, c := range children {
		killTree(int(c.Pid))
		_ = c.Kill()
	}
}

func (s *Supervisor) Restart(ctx context.Context, name string) error {
	inst, err := s.Registry.Resolve(name)
	if err != nil {
		return err
	}
	if s.get(inst.Name) != nil {
		res, err := s.Stop(ctx, inst.Name, false)
		if err != nil && !errors.Is(err, domain.ErrNotRunning) {
			return err
		}
		if err == nil && !res.Exited {
			return fmt.Errorf("instance %q did not stop in time: %w", inst.Name, domain.ErrAlreadyRunning)
		}
	}
	return s.Start(ctx, inst.Name)
}

// StopAll stops every running server in parallel and force-kills whatever
// is left when ctx ends.
func (s *Supervisor) StopAll(ctx context.Context) {
	var wg sync.WaitGroup
	for _, name := range s.Running() {
		wg.Add(1)
		go func(name string) {
			defer wg.Done()
			if _, err := s.Stop(ctx, name, true); err != nil && !errors.Is(err, domain.ErrNotRunning) {
				log.Warn().Err(err).Str("instance", name).Msg("error stopping server")
			}
		}(name)
	}
	wg.Wait()

	for _, name := range s.Running() {
		if proc := s.get(name); proc != nil {
			log.Warn().Str("instance", name).Msg("forced kill on shutdown")
			proc.killed.Store(true)
			osProc := s.osProcess(proc)
			killTree(osProc.Pid)
			_ = osProc.Kill()
		}
	}
}

func (s *Supervisor) write(proc *ActiveProcess, text string) error {
	s.mu.Lock()
	stdin := proc.Stdin
	s.mu.Unlock()
	if stdin == nil {
		return io.ErrClosedPipe
	}

	proc.stdinMu.Lock()
	defer proc.stdinMu.Unlock()
	_, err := io.WriteString(stdin, text)
	return err
}

// SendCommand writes one console command to the server.
func (s *Supervisor) SendCommand(name, command string) error {
	inst, err := s.Registry.Resolve(name)
	if err != nil {
		return err
	}
	proc := s.get(inst.Name)
	if proc == nil {
		return fmt.Errorf("instance %q: %w", inst.Name, domain.ErrNotRunning)
	}
	command = strings.TrimRight(command, "\r\n")
	if err := s.write(proc, command + "\n"); err != nil {
		return fmt.Errorf("instance %q: %w", inst.Name, domain.ErrNotRunning)
	}
	return nil
}

// Subscribe follows the console of a running server. The channel closes
// after the exit event.
func (s *Supervisor) Subscribe(name string) (<-chan events.Event, func(), error) {
	hub, ok := s.HubManager.GetHub(name)
	if !ok || s.get(name) == nil {
		return nil, nil, fmt.Errorf("instance %q: %w", name, domain.ErrNotRunning)
	}
	sub := hub.Subscribe()
	if sub == nil {
		return nil, nil, fmt.Errorf("instance %q: %w", name, domain.ErrNotRunning)
	}
	return sub.C, sub.Close, nil
}

// Status reports the server state of one instance; name may be empty for
// the active instance.
func (s *Supervisor) Status(ctx context.Context, name string) (*domain.ServerStatus, error) {
	inst, err := s.Registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return s.status(ctx, inst), nil
}

// StatusAll reports every registered instance.
func (s *Supervisor) StatusAll(ctx context.Context) ([]domain.ServerStatus, error) {
	list, err := s.Registry.List()
	if err != nil {
		return nil, err
	}
	out := make([]domain.ServerStatus, 0, len(list))
	for i := range list {
		out = append(out, *s.status(ctx, &list[i]))
	}
	return out, nil
}

func (s *Supervisor) status(ctx context.Context, inst *domain.Instance) *domain.ServerStatus {
	st := &domain.ServerStatus{
		Instance:         inst.Name,
		Installed:        instance.IsInstalled(inst.Dir),
		RunningInstances: s.runningInstances(),
	}
	if len(st.RunningInstances) > 0 {
		st.RunningInstance = st.RunningInstances[0].Name
	}
	if s.Updates != nil {
		st.UpdateInProgress = s.Updates.Active(inst.Name)
	}

	s.mu.Lock()
	if rec, ok := s.lastExit[inst.Name]; ok {
		at := rec.At
		st.LastExitTime = &at
		st.LastExitCode = rec.Code
	}
	s.mu.Unlock()

	for _, ri := range st.RunningInstances {
		if ri.Name != inst.Name {
			continue
		}
		st.Running = true
		uptime := ri.UptimeSeconds
		st.UptimeSeconds = &uptime
		if s.usage(inst.Name) != nil {
			ram, cpu := ri.RAMMB, ri.CPUPercent
			st.RAMMB = &ram
			st.CPUPercent = &cpu
		}
		if s.Players != nil {
			st.Players = s.Players(ctx, inst.Dir)
		}
	}
	return st
}

func (s *Supervisor) runningInstances() []domain.RunningInstance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.RunningInstance, 0, len(s.processes))
	for name, proc := range s.processes {
		if proc.Cmd == nil {
			continue
		}
		ri := domain.RunningInstance{
			Name:          name,
			GamePort:      proc.GamePort,
			UptimeSeconds: time.Since(proc.StartedAt).Seconds(),
		}
		if proc.sampler != nil {
			if u := proc.sampler.usage(); u != nil {
				ri.RAMMB = u.RAMMB
				ri.CPUPercent = u.CPUPercent
			}
		}
		out = append(out, ri)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// usage returns the latest sample for name. The sampler is replaced on every
// relaunch, so it is read under s.mu.
func (s *Supervisor) usage(name string) *Usage {
	s.mu.Lock()
	var smp *sampler
	if proc, ok := s.processes[name]; ok {
		smp = proc.sampler
	}
	s.mu.Unlock()
	if smp == nil {
		return nil
	}
	return smp.usage()
}

// ResetRunningStates cleans up after a previous daemon that did not shut
// down its servers. Server processes it left behind are killed so their
// ports are free again.
func (s *Supervisor) ResetRunningStates() {
	list, err := s.Registry.List()
	if err != nil {
		log.Warn().Err(err).Msg("could not list instances to reset running states")
		return
	}
	for _, inst := range list {
		pid, ok := readPID(inst.Dir)
		if !ok {
			continue
		}
		removePID(inst.Dir)
		p, err := process.NewProcess(int32(pid))
		if err != nil {
			continue
		}
		cmdline, _ := p.Cmdline()
		if !strings.Contains(cmdline, "HytaleServer") && !strings.Contains(cmdline, "start.") {
			continue
		}
		log.Warn().Str("instance", inst.Name).Int("pid", pid).Msg("killing orphaned server process")
		killTree(pid)
		_ = p.Kill()
	}
}

func writePID(dir string, pid int) {
	if err := os.WriteFile(filepath.Join(dir, pidFile), []byte(strconv.Itoa(pid)), 0644); err != nil {
		log.Debug().Err(err).Msg("could not write pid file")
	}
}

func readPID(dir string) (int, bool) {
	data, err := os.ReadFile(filepath.Join(dir, pidFile))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	return pid, true
}

func removePID(dir string) {
	_ = os.Remove(filepath.Join(dir, pidFile))
}
