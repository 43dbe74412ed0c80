// Package crawler supervises the single external crawler process.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loykin/crawlpost/internal/history"
	"github.com/loykin/crawlpost/internal/metrics"
	"github.com/loykin/crawlpost/internal/process"
)

var (
	ErrAlreadyRunning = errors.New("crawler is already running")
	ErrNotRunning     = errors.New("no crawler is running")
)

const (
	defaultStopWait = 10 * time.Second
	// reapWait bounds how long a reap waits for output pipes to drain.
	reapWait = 500 * time.Millisecond
)

// Config describes how the crawler is launched.
type Config struct {
	Command   string
	WorkDir   string
	Env       []string
	StopWait  time.Duration
	LogBuffer int
	PIDFile   string
	// Stdout and Stderr additionally receive the raw process output.
	Stdout io.Writer
	Stderr io.Writer
}

// Started is returned by a successful Start.
type Started struct {
	PID         int       `json:"pid"`
	StartedAt   time.Time `json:"startedAt"`
	AcceptedAt  time.Time `json:"acceptedAt"`
	ClientJobID string    `json:"clientJobId,omitempty"`
	Args        []string  `json:"args"`
}

// Status is a freshly probed view of the supervisor.
type Status struct {
	Status       string         `json:"status"`
	Running      bool           `json:"running"`
	PID          int            `json:"pid,omitempty"`
	StartedAt    *time.Time     `json:"startedAt,omitempty"`
	Platform     string         `json:"platform,omitempty"`
	CrawlerType  string         `json:"crawlerType,omitempty"`
	ClientJobID  string         `json:"clientJobId,omitempty"`
	Args         []string       `json:"args,omitempty"`
	ErrorMessage string         `json:"errorMessage,omitempty"`
	Usage        *metrics.Usage `json:"usage,omitempty"`
}

// Supervisor owns at most one crawler process. Every operation re-probes
// liveness under the lock instead of trusting earlier observations.
type Supervisor struct {
	mu      sync.Mutex
	handle  process.Handle
	req     StartRequest
	args    []string
	lastErr string
	stdout  *process.LineWriter
	stderr  *process.LineWriter

	cfg      Config
	spawn    process.Spawner
	logs     *LogBuffer
	logger   *slog.Logger
	recorder *history.Recorder
	onExit   func(platform string)
	now      func() time.Time
}

type Option func(*Supervisor)

// WithSpawner replaces the os/exec based spawner.
func WithSpawner(sp process.Spawner) Option { return func(s *Supervisor) { s.spawn = sp } }

func WithLogger(l *slog.Logger) Option { return func(s *Supervisor) { s.logger = l } }

func WithRecorder(r *history.Recorder) Option { return func(s *Supervisor) { s.recorder = r } }

// WithExitHook registers fn to run, under the supervisor lock, whenever a
// crawler run ends by stop or exit. fn must not call back into s.
func WithExitHook(fn func(platform string)) Option { return func(s *Supervisor) { s.onExit = fn } }

func New(cfg Config, opts ...Option) *Supervisor {
	if cfg.StopWait <= 0 {
		cfg.StopWait = defaultStopWait
	}
	s := &Supervisor{
		cfg:    cfg,
		spawn:  process.Spawn,
		logs:   NewLogBuffer(cfg.LogBuffer),
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Start launches the crawler unless one is alive. Concurrent callers are
// serialized; exactly one of them can win.
func (s *Supervisor) Start(ctx context.Context, req StartRequest) (Started, error) {
	if err := req.Normalize(); err != nil {
		return Started{}, err
	}
	accepted := s.now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		if s.handle.Alive() {
			metrics.IncCrawlerConflict("start")
			return Started{}, ErrAlreadyRunning
		}
		s.reapLocked()
	}
	if s.handle == nil && s.cfg.PIDFile != "" {
		// A crawler left behind by an earlier daemon still counts.
		if pid, alive, _ := process.DetectPIDFile(s.cfg.PIDFile); alive {
			metrics.IncCrawlerConflict("start")
			return Started{}, fmt.Errorf("%w: pid %d from an earlier run", ErrAlreadyRunning, pid)
		}
	}

	args := req.Args()
	s.logs.Reset()
	s.stdout = process.NewLineWriter(s.logs.appendLine)
	s.stderr = process.NewLineWriter(s.logs.appendLine)
	spec := process.Spec{
		Name:    "crawler",
		Command: s.cfg.Command,
		Args:    args,
		WorkDir: s.cfg.WorkDir,
		Env:     s.cfg.Env,
		PIDFile: s.cfg.PIDFile,
		Stdout:  tee(s.stdout, s.cfg.Stdout),
		Stderr:  tee(s.stderr, s.cfg.Stderr),
	}
	h, err := s.spawn(spec)
	if err != nil {
		s.logs.Append("error", "failed to start crawler: "+err.Error())
		s.logger.Error("crawler start failed", "platform", req.Platform, "error", err)
		return Started{}, fmt.Errorf("start crawler: %w", err)
	}

	s.handle, s.req, s.args, s.lastErr = h, req, args, ""
	s.logs.Append("info", fmt.Sprintf("crawler started (pid %d): %s", h.PID(), strings.Join(args, " ")))
	s.logger.Info("crawler started", "pid", h.PID(), "platform", req.Platform, "type", req.CrawlerType, "job", req.ClientJobID)
	metrics.IncCrawlerStart(req.Platform)
	metrics.SetCrawlerRunning(true)
	s.recorder.Record(history.Event{
		Kind:   history.KindCrawler,
		Type:   history.EventStart,
		Record: history.Record{Name: "crawler", PID: h.PID(), Platform: req.Platform, Status: "running", Detail: req.ClientJobID},
	})

	return Started{
		PID:         h.PID(),
		StartedAt:   h.StartedAt(),
		AcceptedAt:  accepted,
		ClientJobID: req.ClientJobID,
		Args:        args,
	}, nil
}

// Stop signals the running crawler and returns without waiting for it to
// exit; the process group is killed if it outlives the configured stop wait.
func (s *Supervisor) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		metrics.IncCrawlerConflict("stop")
		return ErrNotRunning
	}
	if !s.handle.Alive() {
		s.reapLocked()
		metrics.IncCrawlerConflict("stop")
		return ErrNotRunning
	}
	pid := s.handle.PID()
	if err := s.handle.Terminate(s.cfg.StopWait); err != nil {
		s.logger.Error("crawler stop failed", "pid", pid, "error", err)
		return fmt.Errorf("stop crawler: %w", err)
	}
	s.logs.Append("info", fmt.Sprintf("stop requested (pid %d)", pid))
	s.logger.Info("crawler stop requested", "pid", pid)
	s.handle = nil
	s.lastErr = ""
	metrics.IncCrawlerStop()
	metrics.SetCrawlerRunning(false)
	s.recorder.Record(history.Event{
		Kind:   history.KindCrawler,
		Type:   history.EventStop,
		Record: history.Record{Name: "crawler", PID: pid, Platform: s.req.Platform, Status: "stopped"},
	})
	s.exited()
	return nil
}

// Status never fails; a dead process is reaped and reported as idle.
func (s *Supervisor) Status(ctx context.Context) Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil && !s.handle.Alive() {
		s.reapLocked()
	}
	if s.handle == nil {
		return Status{Status: "idle", ErrorMessage: s.lastErr}
	}
	started := s.handle.StartedAt()
	st := Status{
		Status:      "running",
		Running:     true,
		PID:         s.handle.PID(),
		StartedAt:   &started,
		Platform:    s.req.Platform,
		CrawlerType: s.req.CrawlerType,
		ClientJobID: s.req.ClientJobID,
		Args:        append([]string(nil), s.args...),
	}
	if u, err := metrics.SampleUsage(st.PID); err == nil {
		st.Usage = &u
		metrics.SetCrawlerUsage(u)
	}
	return st
}

// Logs returns the most recent limit entries; limit <= 0 returns all.
func (s *Supervisor) Logs(limit int) []LogEntry {
	return s.logs.Tail(limit)
}

// Close stops a running crawler, if any.
func (s *Supervisor) Close(ctx context.Context) error {
	if err := s.Stop(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
		return err
	}
	return nil
}

// reapLocked clears a handle whose process has exited and keeps its exit
// error for the next status report.
func (s *Supervisor) reapLocked() {
	h := s.handle
	s.handle = nil
	if w, ok := h.(interface{ Done() <-chan struct{} }); ok {
		select {
		case <-w.Done():
		case <-time.After(reapWait):
		}
	}
	if s.stdout != nil {
		s.stdout.Flush()
		s.stderr.Flush()
	}
	detail := "exited"
	s.lastErr = ""
	if err := h.ExitErr(); err != nil {
		s.lastErr = err.Error()
		detail = err.Error()
		s.logs.Append("error", fmt.Sprintf("crawler exited (pid %d): %s", h.PID(), detail))
	} else {
		s.logs.Append("info", fmt.Sprintf("crawler exited (pid %d)", h.PID()))
	}
	s.logger.Info("crawler exited", "pid", h.PID(), "detail", detail)
	metrics.SetCrawlerRunning(false)
	s.recorder.Record(history.Event{
		Kind:   history.KindCrawler,
		Type:   history.EventExit,
		Record: history.Record{Name: "crawler", PID: h.PID(), Platform: s.req.Platform, Status: "exited", Detail: detail},
	})
	s.exited()
}

func (s *Supervisor) exited() {
	if s.onExit != nil {
		s.onExit(s.req.Platform)
	}
}

func tee(primary io.Writer, extra io.Writer) io.Writer {
	if extra == nil {
		return primary
	}
	return io.MultiWriter(primary, extra)
}
