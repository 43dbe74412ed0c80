package process

import (
	"bytes"
	"context"
	"errors"
	"os"
	"runtime"
	"strconv"
	"sync"
	"syscall"
	"time"
)

// Handle is a spawned subprocess as seen by its owner. Liveness is always
// probed, never assumed from cached state.
type Handle interface {
	PID() int
	StartedAt() time.Time
	// Alive is a non-blocking liveness probe.
	Alive() bool
	// Terminate asks the process group to exit and returns without waiting
	// for the exit; the group is killed if it is still up after grace.
	Terminate(grace time.Duration) error
	// ExitErr reports how the process ended; nil while running or on a clean exit.
	ExitErr() error
}

// Spawner starts a subprocess described by spec.
type Spawner func(spec Spec) (Handle, error)

var ErrNotStarted = errors.New("process not started")

// Process is the os/exec backed Handle.
type Process struct {
	mu        sync.Mutex
	pid       int
	startedAt time.Time
	pidFile   string
	exitErr   error
	done      chan struct{} // closed once cmd.Wait returns
}

// Spawn is the default Spawner.
func Spawn(spec Spec) (Handle, error) {
	p, err := Start(spec)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Start runs spec in its own process group and reaps it in the background.
func Start(spec Spec) (*Process, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(spec.Env) > 0 {
		cmd.Env = spec.Env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if spec.Stdin != nil {
		cmd.Stdin = spec.Stdin
	}
	if spec.Stdout != nil {
		cmd.Stdout = spec.Stdout
	}
	if spec.Stderr != nil {
		cmd.Stderr = spec.Stderr
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &Process{
		pid:       cmd.Process.Pid,
		startedAt: time.Now(),
		pidFile:   spec.PIDFile,
		done:      make(chan struct{}),
	}
	p.writePIDFile()
	go func() {
		err := cmd.Wait()
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		p.removePIDFile()
		close(p.done)
	}()
	return p, nil
}

func (p *Process) PID() int             { return p.pid }
func (p *Process) StartedAt() time.Time { return p.startedAt }

func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Done is closed once the process has been reaped.
func (p *Process) Done() <-chan struct{} { return p.done }

// Wait blocks until the process has been reaped or ctx ends.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return p.ExitErr()
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Process) Alive() bool {
	if p == nil || p.pid <= 0 {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
	}
	// On Linux a quickly-exiting child can linger as a zombie until reaped.
	if runtime.GOOS == "linux" && isZombieLinux(p.pid) {
		return false
	}
	return syscall.Kill(p.pid, 0) == nil
}

func (p *Process) Terminate(grace time.Duration) error {
	if p == nil || p.pid <= 0 {
		return ErrNotStarted
	}
	if !p.Alive() {
		return nil
	}
	if err := syscall.Kill(-p.pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return err
	}
	go func() {
		select {
		case <-p.done:
		case <-time.After(grace):
			_ = syscall.Kill(-p.pid, syscall.SIGKILL)
		}
	}()
	return nil
}

// isZombieLinux returns true if /proc/<pid>/status reports a zombie state (Z).
func isZombieLinux(pid int) bool {
	b, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return false
	}
	return bytes.Contains(b, []byte("State:\tZ"))
}
