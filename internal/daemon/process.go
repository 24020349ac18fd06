package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/kalambet/vnhook/internal/artifact"
	"github.com/kalambet/vnhook/internal/settings"
)

// RuntimeDirEnv tells the daemon where to find the runtime artifact.
const RuntimeDirEnv = "VNHOOK_RUNTIME_DIR"

const (
	defaultStopTimeout = 3 * time.Second
	defaultStartGrace  = 300 * time.Millisecond
	pollInterval       = 50 * time.Millisecond
)

// Options configures a ProcessSupervisor.
type Options struct {
	// Executable overrides executable discovery when set.
	Executable string
	// Args are passed to the daemon.
	Args []string
	// Env is appended to the inherited environment.
	Env []string
	// StopTimeout bounds the wait between terminate and kill.
	StopTimeout time.Duration
	// StartGrace is how long a fresh daemon must stay up to count as started.
	StartGrace time.Duration
}

// ProcessSupervisor runs the hook as a separate OS process, tracked by a pid
// file in the runtime directory.
type ProcessSupervisor struct {
	opts   Options
	files  *artifact.Writer
	ops    *semaphore.Weighted
	logger *slog.Logger

	// overridable in tests
	selfExe  func() (string, error)
	lookPath func(string) (string, error)

	mu     sync.Mutex
	child  *exec.Cmd
	exited chan struct{}
}

// NewProcessSupervisor returns a supervisor using files for the runtime
// directory.
func NewProcessSupervisor(files *artifact.Writer, opts Options) *ProcessSupervisor {
	if opts.StopTimeout <= 0 {
		opts.StopTimeout = defaultStopTimeout
	}
	if opts.StartGrace <= 0 {
		opts.StartGrace = defaultStartGrace
	}
	return &ProcessSupervisor{
		opts:     opts,
		files:    files,
		ops:      semaphore.NewWeighted(1),
		logger:   slog.Default(),
		selfExe:  os.Executable,
		lookPath: exec.LookPath,
	}
}

func (s *ProcessSupervisor) IsSupported() bool { return true }

func (s *ProcessSupervisor) pidPath() string {
	return filepath.Join(s.files.Dir(), PIDFile)
}

// ResolveExecutablePath looks for the daemon at the configured path, then
// next to the running executable, then on PATH.
func (s *ProcessSupervisor) ResolveExecutablePath() (string, error) {
	if s.opts.Executable != "" {
		if isExecutableFile(s.opts.Executable) {
			return s.opts.Executable, nil
		}
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, s.opts.Executable)
	}
	if self, err := s.selfExe(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), executableName)
		if isExecutableFile(candidate) {
			return candidate, nil
		}
	}
	if p, err := s.lookPath(executableName); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("%w: %s is not installed next to this program or on PATH", ErrExecutableNotFound, executableName)
}

func isExecutableFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// IsRunning reports whether the process named in the pid file is alive. It
// is false whenever the executable cannot be resolved.
func (s *ProcessSupervisor) IsRunning(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}
	if _, err := s.ResolveExecutablePath(); err != nil {
		return false
	}
	return s.runningPID() > 0
}

// runningPID returns the pid from the pid file when that process is alive
// and is the daemon. A pid reused by another process counts as not running
// and is never signaled.
func (s *ProcessSupervisor) runningPID() int {
	rec, err := readPIDFile(s.pidPath())
	if err != nil || !processAlive(rec.PID) {
		return 0
	}
	if !s.ownsProcess(rec) {
		s.logger.Warn("pid file names a process that is not the daemon, ignoring it", "pid", rec.PID)
		return 0
	}
	return rec.PID
}

// ownsProcess checks rec against our own child, then against the process
// executable, then against the pid the daemon wrote into its status file.
func (s *ProcessSupervisor) ownsProcess(rec pidRecord) bool {
	s.mu.Lock()
	child := s.child
	s.mu.Unlock()
	if child != nil && child.Process.Pid == rec.PID {
		return true
	}

	if rec.Exe != "" {
		if exe, err := processExe(rec.PID); err == nil {
			return sameExecutable(exe, rec.Exe)
		}
	}
	st, ok, err := s.files.ReadStatus()
	return err == nil && ok && st.PID == rec.PID
}

// ReadReportedLanguageMode reads the status file written by the daemon. A
// report from a process that is no longer alive is ignored.
func (s *ProcessSupervisor) ReadReportedLanguageMode() (settings.Language, bool) {
	st, present, err := s.files.ReadStatus()
	if err != nil {
		s.logger.Debug("daemon status unreadable", "error", err)
		return 0, false
	}
	if !present {
		return 0, false
	}
	if st.PID > 0 && !processAlive(st.PID) {
		return 0, false
	}
	return st.Language, true
}

func (s *ProcessSupervisor) TryStart(ctx context.Context) Result {
	if err := s.ops.Acquire(ctx, 1); err != nil {
		return failResult(fmt.Sprintf("start cancelled: %v", err))
	}
	defer s.ops.Release(1)

	exe, err := s.ResolveExecutablePath()
	if err != nil {
		return failResult(err.Error())
	}
	return s.start(ctx, exe)
}

func (s *ProcessSupervisor) TryStop(ctx context.Context) Result {
	if err := s.ops.Acquire(ctx, 1); err != nil {
		return failResult(fmt.Sprintf("stop cancelled: %v", err))
	}
	defer s.ops.Release(1)
	return s.stop(ctx)
}

// TryRestart resolves the executable before touching the running daemon, so
// a missing binary never turns a working hook into no hook at all.
func (s *ProcessSupervisor) TryRestart(ctx context.Context) Result {
	if err := s.ops.Acquire(ctx, 1); err != nil {
		return failResult(fmt.Sprintf("restart cancelled: %v", err))
	}
	defer s.ops.Release(1)

	exe, err := s.ResolveExecutablePath()
	if err != nil {
		return failResult(fmt.Sprintf("restart skipped, previous daemon left running: %v", err))
	}
	if r := s.stop(ctx); !r.OK {
		return failResult("restart aborted: " + r.Message)
	}
	r := s.start(ctx, exe)
	if !r.OK {
		return failResult("daemon stopped but did not come back: " + r.Message)
	}
	return okResult("daemon restarted: " + r.Message)
}

func (s *ProcessSupervisor) start(ctx context.Context, exe string) Result {
	if pid := s.runningPID(); pid > 0 {
		return okResult(fmt.Sprintf("already running (PID %d)", pid))
	}

	if err := s.files.ClearStatus(); err != nil {
		s.logger.Warn("could not remove stale daemon status", "error", err)
	}
	if err := os.MkdirAll(s.files.Dir(), 0o700); err != nil {
		return failResult(fmt.Sprintf("creating runtime dir: %v", err))
	}

	cmd := exec.Command(exe, s.opts.Args...)
	cmd.Env = append(os.Environ(), RuntimeDirEnv+"="+s.files.Dir())
	cmd.Env = append(cmd.Env, s.opts.Env...)
	cmd.SysProcAttr = detachAttr()
	if err := cmd.Start(); err != nil {
		return failResult(fmt.Sprintf("starting %s: %v", exe, err))
	}
	pid := cmd.Process.Pid

	exited := make(chan struct{})
	s.mu.Lock()
	s.child, s.exited = cmd, exited
	s.mu.Unlock()

	if err := writePIDFile(s.pidPath(), pidRecord{PID: pid, Exe: exe}); err != nil {
		s.logger.Warn("could not write daemon pid file", "error", err)
	}

	go s.reap(cmd, exited)

	grace := time.NewTimer(s.opts.StartGrace)
	defer grace.Stop()
	select {
	case <-exited:
		removePIDFile(s.pidPath())
		return failResult(fmt.Sprintf("%s exited right after starting", filepath.Base(exe)))
	case <-grace.C:
	case <-ctx.Done():
	}

	s.logger.Info("daemon started", "pid", pid, "exe", exe)
	return okResult(fmt.Sprintf("started (PID %d)", pid))
}

// reap waits for a started daemon. If it is still the current child its pid
// file goes with it, so a later process reusing the pid is not mistaken for
// the daemon.
func (s *ProcessSupervisor) reap(cmd *exec.Cmd, exited chan struct{}) {
	err := cmd.Wait()
	s.logger.Info("daemon exited", "pid", cmd.Process.Pid, "error", err)

	s.mu.Lock()
	if s.child == cmd {
		removePIDFile(s.pidPath())
		s.child, s.exited = nil, nil
	}
	s.mu.Unlock()
	close(exited)
}

func (s *ProcessSupervisor) stop(ctx context.Context) Result {
	pid := s.runningPID()
	if pid == 0 {
		removePIDFile(s.pidPath())
		return okResult("not running")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return failResult(fmt.Sprintf("finding daemon (PID %d): %v", pid, err))
	}

	if err := terminate(proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("terminate failed, killing", "pid", pid, "error", err)
	}
	if !s.waitExit(ctx, pid, s.opts.StopTimeout) {
		s.logger.Warn("daemon did not exit in time, killing", "pid", pid)
		if err := proc.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return failResult(fmt.Sprintf("killing daemon (PID %d): %v", pid, err))
		}
		if !s.waitExit(ctx, pid, time.Second) {
			return failResult(fmt.Sprintf("daemon (PID %d) is still running", pid))
		}
	}

	removePIDFile(s.pidPath())
	s.logger.Info("daemon stopped", "pid", pid)
	return okResult(fmt.Sprintf("stopped (PID %d)", pid))
}

// waitExit polls until pid is gone or timeout elapses. A child started by
// this supervisor is awaited through its reaper instead, since an unreaped
// child still answers liveness probes.
func (s *ProcessSupervisor) waitExit(ctx context.Context, pid int, timeout time.Duration) bool {
	s.mu.Lock()
	var exited chan struct{}
	if s.child != nil && s.child.Process.Pid == pid {
		exited = s.exited
	}
	s.mu.Unlock()

	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	tick := time.NewTicker(pollInterval)
	defer tick.Stop()
	for {
		if exited == nil && !processAlive(pid) {
			return true
		}
		select {
		case <-exited:
			return true
		case <-tick.C:
		case <-deadline.C:
			return false
		case <-ctx.Done():
			return false
		}
	}
}
