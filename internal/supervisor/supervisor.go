// Package supervisor owns the lifecycle of the managed bb services: the
// layered status check, state reconciliation, and start/stop orchestration.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/Beyond-Better/bb/internal/config"
	"github.com/Beyond-Better/bb/internal/health"
	"github.com/Beyond-Better/bb/internal/history"
	"github.com/Beyond-Better/bb/internal/metrics"
	"github.com/Beyond-Better/bb/internal/pidfile"
	"github.com/Beyond-Better/bb/internal/probe"
	"github.com/Beyond-Better/bb/internal/retry"
	"github.com/Beyond-Better/bb/internal/service"
)

// ServiceStatus is the transient result of one layered status check. It is
// computed fresh on every call and never cached.
type ServiceStatus struct {
	PID             int    `json:"pid,omitempty"`
	PIDExists       bool   `json:"pid_exists"`
	ProcessResponds bool   `json:"process_responds"`
	ServiceResponds bool   `json:"service_responds"`
	Error           string `json:"error,omitempty"`
}

// StartResult reports the outcome of a start attempt. RequiresSettings
// distinguishes "the binary is not installed" from transient failures so
// the caller can prompt for configuration instead of retrying.
type StartResult struct {
	Success          bool   `json:"success"`
	PID              int    `json:"pid,omitempty"`
	Error            string `json:"error,omitempty"`
	RequiresSettings bool   `json:"requires_settings"`
}

// HealthChecker probes a service's status endpoint.
type HealthChecker interface {
	Check(ctx context.Context, hostname string, port int, useTLS bool) bool
}

// Supervisor coordinates PID files, process probing, and health checks for
// the managed services. Status is read-only and may run concurrently;
// Start and Stop are serialized per service.
type Supervisor struct {
	RuntimeDir string
	Resolver   service.Resolver
	Probe      probe.Probe
	Health     HealthChecker
	Spawner    Spawner
	History    history.Store // optional

	// Health polling and termination tuning. The defaults match the
	// behavior the services were built against; tests shrink them.
	HealthAttempts int
	HealthInterval time.Duration
	Grace          time.Duration
	SettleDelay    time.Duration

	cfg func() config.GlobalConfig

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New returns a Supervisor with OS-backed probing and spawning. cfg is
// called on every operation so configuration changes take effect without
// a restart.
func New(runtimeDir string, cfg func() config.GlobalConfig) *Supervisor {
	return &Supervisor{
		RuntimeDir:     runtimeDir,
		Resolver:       service.NewResolver(),
		Probe:          probe.OS{},
		Health:         health.NewChecker(),
		Spawner:        ExecSpawner{},
		HealthAttempts: 10,
		HealthInterval: 500 * time.Millisecond,
		Grace:          2 * time.Second,
		SettleDelay:    500 * time.Millisecond,
		cfg:            cfg,
		locks:          make(map[string]*sync.Mutex),
	}
}

func (s *Supervisor) serviceLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.locks == nil {
		s.locks = make(map[string]*sync.Mutex)
	}
	l, ok := s.locks[name]
	if !ok {
		l = &sync.Mutex{}
		s.locks[name] = l
	}
	return l
}

// Status performs the layered check: PID file, then process existence,
// then the HTTP status endpoint. Each level short-circuits: without a PID
// file no process is probed, and without a live process no network call
// is made.
func (s *Supervisor) Status(ctx context.Context, name string) (ServiceStatus, error) {
	desc, err := s.Resolver.Resolve(name, s.cfg())
	if err != nil {
		return ServiceStatus{}, err
	}
	ps := pidfile.New(s.RuntimeDir, name)
	pid, ok := ps.Read()
	if !ok {
		return ServiceStatus{}, nil
	}
	st := ServiceStatus{PID: pid}
	if !s.Probe.Exists(pid) {
		return st, nil
	}
	st.PIDExists = true
	responds := s.Health.Check(ctx, desc.Hostname, desc.Port, desc.UseTLS)
	metrics.IncHealthCheck(name, responds)
	st.ProcessResponds = responds
	st.ServiceResponds = responds
	return st, nil
}

// Reconcile repairs inconsistencies between the PID file and reality.
// Exactly one corrective branch runs per call:
//   - a PID file referencing a dead process is deleted;
//   - a live but unresponsive process is logged, never auto-restarted;
//   - a responding service with no PID file gets its discovered PID
//     persisted, recovering bookkeeping lost to a supervisor crash.
func (s *Supervisor) Reconcile(ctx context.Context, name string) error {
	desc, err := s.Resolver.Resolve(name, s.cfg())
	if err != nil {
		return err
	}
	ps := pidfile.New(s.RuntimeDir, name)
	st, err := s.Status(ctx, name)
	if err != nil {
		return err
	}
	switch {
	case ps.Exists() && !st.PIDExists:
		slog.Info("removing stale pid file", "service", name, "pid", st.PID)
		return ps.Remove()
	case st.PIDExists && !st.ServiceResponds:
		slog.Warn("service process alive but not responding", "service", name, "pid", st.PID)
	case !ps.Exists():
		if !s.Health.Check(ctx, desc.Hostname, desc.Port, desc.UseTLS) {
			return nil
		}
		pids, err := s.Probe.FindByName(desc.BinaryName)
		if err != nil {
			return fmt.Errorf("discover %s processes: %w", name, err)
		}
		if len(pids) > 0 {
			slog.Info("recovering pid file from running process", "service", name, "pid", pids[0])
			return ps.Write(pids[0])
		}
	}
	return nil
}

// ReconcileAll reconciles every known service, returning the first error.
func (s *Supervisor) ReconcileAll(ctx context.Context) error {
	for _, name := range []string{service.API, service.BUI} {
		if err := s.Reconcile(ctx, name); err != nil {
			return err
		}
	}
	return nil
}

// Start launches the named service unless it is already responding.
// The spawned PID is persisted before health confirmation so a supervisor
// crash mid-start never orphans an unreferenced process.
func (s *Supervisor) Start(ctx context.Context, name string) StartResult {
	lock := s.serviceLock(name)
	lock.Lock()
	defer lock.Unlock()

	desc, err := s.Resolver.Resolve(name, s.cfg())
	if err != nil {
		return StartResult{Error: err.Error()}
	}
	exe, err := s.Resolver.FindExecutable(name)
	if err != nil {
		return StartResult{Error: err.Error()}
	}
	if exe == "" {
		return StartResult{
			RequiresSettings: true,
			Error:            fmt.Sprintf("%s executable not found in install directories", desc.BinaryName),
		}
	}

	if err := s.Reconcile(ctx, name); err != nil {
		slog.Warn("reconcile before start failed", "service", name, "error", err)
	}
	st, err := s.Status(ctx, name)
	if err != nil {
		return StartResult{Error: err.Error()}
	}
	if st.ServiceResponds {
		slog.Info("service already running", "service", name, "pid", st.PID)
		return StartResult{Success: true, PID: st.PID}
	}

	if dir := filepath.Dir(desc.LogPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return StartResult{Error: fmt.Sprintf("create log dir: %v", err)}
		}
	}
	args := []string{
		"--hostname", desc.Hostname,
		"--port", strconv.Itoa(desc.Port),
		"--use-tls", strconv.FormatBool(desc.UseTLS),
		"--log-file", desc.LogPath,
	}
	pid, err := s.Spawner.Spawn(exe, args)
	if err != nil {
		return StartResult{Error: fmt.Sprintf("spawn %s: %v", desc.BinaryName, err)}
	}
	slog.Info("spawned service", "service", name, "pid", pid, "exe", exe)
	ps := pidfile.New(s.RuntimeDir, name)
	if err := ps.Write(pid); err != nil {
		slog.Error("persist pid failed", "service", name, "pid", pid, "error", err)
	}
	metrics.IncServiceStart(name)
	s.record(ctx, history.Event{Service: name, Type: history.EventStart, PID: pid})

	healthy := retry.Until(ctx, s.HealthAttempts, s.HealthInterval, func() bool {
		ok := s.Health.Check(ctx, desc.Hostname, desc.Port, desc.UseTLS)
		metrics.IncHealthCheck(name, ok)
		return ok
	})
	if !healthy {
		return StartResult{
			PID:   pid,
			Error: fmt.Sprintf("%s did not become healthy after %d attempts", name, s.HealthAttempts),
		}
	}
	return StartResult{Success: true, PID: pid}
}

// Stop terminates every process matching the service's binary name, not
// just the one the PID file references, since crashed prior sessions can
// leave extra instances behind. The PID file is removed unconditionally.
// It reports whether no matching process remains after a settling delay.
func (s *Supervisor) Stop(ctx context.Context, name string) (bool, error) {
	lock := s.serviceLock(name)
	lock.Lock()
	defer lock.Unlock()

	desc, err := s.Resolver.Resolve(name, s.cfg())
	if err != nil {
		return false, err
	}
	pids, err := s.Probe.FindByName(desc.BinaryName)
	if err != nil {
		return false, fmt.Errorf("discover %s processes: %w", name, err)
	}
	for _, pid := range pids {
		if !s.Probe.Terminate(pid, s.Grace) {
			slog.Warn("process did not terminate", "service", name, "pid", pid)
		}
	}

	ps := pidfile.New(s.RuntimeDir, name)
	if err := ps.Remove(); err != nil {
		slog.Warn("remove pid file failed", "service", name, "error", err)
	}
	metrics.IncServiceStop(name)
	s.record(ctx, history.Event{Service: name, Type: history.EventStop, Detail: fmt.Sprintf("terminated %d", len(pids))})

	if s.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.SettleDelay):
		}
	}
	remaining, err := s.Probe.FindByName(desc.BinaryName)
	if err != nil {
		return false, fmt.Errorf("verify %s stopped: %w", name, err)
	}
	if len(remaining) > 0 {
		slog.Warn("processes still running after stop", "service", name, "pids", remaining)
		return false, nil
	}
	return true, nil
}

func (s *Supervisor) record(ctx context.Context, e history.Event) {
	if s.History == nil {
		return
	}
	if err := s.History.Record(ctx, e); err != nil {
		slog.Warn("record lifecycle event failed", "service", e.Service, "type", e.Type, "error", err)
	}
}
