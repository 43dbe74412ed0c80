// Package login runs browser login flows in the background and lets
// callers poll their progress.
package login

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/crawlpost/internal/history"
	"github.com/loykin/crawlpost/internal/metrics"
)

var (
	ErrSessionNotFound     = errors.New("login session not found")
	ErrUnsupportedPlatform = errors.New("unsupported login platform")
	ErrClosed              = errors.New("login registry closed")
)

// DefaultReclaimDelay is how long a finished session stays pollable.
const DefaultReclaimDelay = 60 * time.Second

// Flow performs one login for account, reporting progress into sink.
type Flow interface {
	Login(ctx context.Context, account string, sink Sink) error
}

// FlowFunc adapts a function to Flow.
type FlowFunc func(ctx context.Context, account string, sink Sink) error

func (f FlowFunc) Login(ctx context.Context, account string, sink Sink) error {
	return f(ctx, account, sink)
}

// Platform types as stored in the account table.
var platformTypes = map[string]int{
	"xiaohongshu": 1,
	"douyin":      3,
}

// PlatformType returns the account-store type code for a login platform.
func PlatformType(platform string) (int, bool) {
	t, ok := platformTypes[platform]
	return t, ok
}

type session struct {
	id        string
	platform  string
	account   string
	createdAt time.Time
	ch        *Channel
	cancel    context.CancelFunc

	mu        sync.Mutex // serializes drains and status updates
	status    Status
	failed    bool // the worker returned an error or panicked
	done      bool
	cancelled bool
	reclaim   *time.Timer
}

// Snapshot is the result of a poll.
type Snapshot struct {
	SessionID   string    `json:"sessionId"`
	Status      Status    `json:"status"`
	Platform    string    `json:"platform"`
	AccountName string    `json:"accountName"`
	Messages    []string  `json:"messages"`
	CreatedAt   time.Time `json:"createdAt"`
	Done        bool      `json:"done"`
}

// Registry owns all live sessions.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*session
	flows    map[string]Flow
	closed   bool

	reclaimDelay time.Duration
	logger       *slog.Logger
	recorder     *history.Recorder
	newID        func() string
	afterFunc    func(time.Duration, func()) *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Registry)

func WithReclaimDelay(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.reclaimDelay = d
		}
	}
}

func WithLogger(l *slog.Logger) Option { return func(r *Registry) { r.logger = l } }

func WithRecorder(rec *history.Recorder) Option { return func(r *Registry) { r.recorder = rec } }

// New builds a registry serving the given per-platform flows.
func New(flows map[string]Flow, opts ...Option) *Registry {
	ctx, cancel := context.WithCancel(context.Background())
	r := &Registry{
		sessions:     make(map[string]*session),
		flows:        make(map[string]Flow, len(flows)),
		reclaimDelay: DefaultReclaimDelay,
		logger:       slog.Default(),
		newID:        uuid.NewString,
		afterFunc:    time.AfterFunc,
		ctx:          ctx,
		cancel:       cancel,
	}
	for p, f := range flows {
		r.flows[p] = f
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Platforms lists the platforms with a registered flow.
func (r *Registry) Platforms() []string {
	out := make([]string, 0, len(r.flows))
	for p := range r.flows {
		out = append(out, p)
	}
	return out
}

// DefaultAccountName is used when a login request names no account.
func DefaultAccountName() string {
	return "account_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Create registers a pending session and starts its worker. It does not
// wait for the login to progress.
func (r *Registry) Create(platform, account string) (Snapshot, error) {
	flow, ok := r.flows[platform]
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
	}
	if strings.TrimSpace(account) == "" {
		account = DefaultAccountName()
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return Snapshot{}, ErrClosed
	}
	ctx, cancel := context.WithCancel(r.ctx)
	s := &session{
		id:        r.newID(),
		platform:  platform,
		account:   account,
		createdAt: time.Now().UTC(),
		ch:        &Channel{},
		cancel:    cancel,
		status:    StatusPending,
	}
	r.sessions[s.id] = s
	r.wg.Add(1)
	r.mu.Unlock()

	metrics.IncLoginSession(platform)
	r.logger.Info("login session created", "session", s.id, "platform", platform, "account", account)
	go r.work(ctx, s, flow)

	return Snapshot{
		SessionID:   s.id,
		Status:      StatusPending,
		Platform:    platform,
		AccountName: account,
		Messages:    []string{},
		CreatedAt:   s.createdAt,
	}, nil
}

// work runs the flow; errors and panics become a failure message and mark
// the session failed regardless of the message text.
func (r *Registry) work(ctx context.Context, s *session, flow Flow) {
	defer r.wg.Done()
	defer r.finish(s)
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("login worker panic", "session", s.id, "panic", p)
			s.fail(fmt.Sprintf("error: login failed: panic: %v", p))
		}
	}()
	if err := flow.Login(ctx, s.account, s.ch); err != nil {
		r.logger.Warn("login flow failed", "session", s.id, "platform", s.platform, "error", err)
		s.fail("error: login failed: " + err.Error())
	}
}

// fail queues msg and flags the failure in one step, so a poll sees both
// or neither.
func (s *session) fail(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ch.Push(msg)
	s.failed = true
}

// fold applies batch to the session status. A worker failure outranks
// whatever the batch says. Callers hold s.mu.
func (s *session) fold(batch []string) Status {
	if s.failed && !s.status.Terminal() {
		return StatusFailed
	}
	return Fold(s.status, batch)
}

// finish starts the reclamation window of a completed session.
func (r *Registry) finish(s *session) {
	s.mu.Lock()
	s.done = true
	outcome := s.fold(s.ch.Pending())
	cancelled := s.cancelled
	s.mu.Unlock()
	s.cancel()
	if cancelled {
		return
	}

	metrics.IncLoginOutcome(s.platform, string(outcome))
	r.recorder.Record(history.Event{
		Kind:   history.KindLogin,
		Type:   history.EventFinished,
		Record: history.Record{Name: s.account, SessionID: s.id, Platform: s.platform, Status: string(outcome)},
	})
	r.logger.Info("login session finished", "session", s.id, "outcome", outcome)

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.sessions[s.id] != s {
		return
	}
	s.mu.Lock()
	s.reclaim = r.afterFunc(r.reclaimDelay, func() { r.remove(s) })
	s.mu.Unlock()
}

func (r *Registry) remove(s *session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
		metrics.DecLiveSessions()
	}
}

// Poll drains the session's queued messages and folds them into its status.
// Messages are delivered exactly once.
func (r *Registry) Poll(id string) (Snapshot, error) {
	r.mu.Lock()
	s, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return Snapshot{}, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.ch.Drain()
	s.status = s.fold(msgs)
	return Snapshot{
		SessionID:   s.id,
		Status:      s.status,
		Platform:    s.platform,
		AccountName: s.account,
		Messages:    msgs,
		CreatedAt:   s.createdAt,
		Done:        s.done,
	}, nil
}

// Cancel removes the session at once and cancels its worker's context.
// Later progress from the worker is discarded.
func (r *Registry) Cancel(id string) error {
	r.mu.Lock()
	s, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	s.cancelled = true
	s.status = StatusCancelled
	if s.reclaim != nil {
		s.reclaim.Stop()
	}
	s.mu.Unlock()
	s.ch.Close()
	s.cancel()

	metrics.DecLiveSessions()
	r.recorder.Record(history.Event{
		Kind:   history.KindLogin,
		Type:   history.EventStop,
		Record: history.Record{Name: s.account, SessionID: s.id, Platform: s.platform, Status: string(StatusCancelled)},
	})
	r.logger.Info("login session cancelled", "session", s.id)
	return nil
}

// Len returns the number of sessions currently held.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// Close cancels every worker, drops all sessions and waits for workers to
// return or ctx to end.
func (r *Registry) Close(ctx context.Context) error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	for id, s := range r.sessions {
		s.mu.Lock()
		if s.reclaim != nil {
			s.reclaim.Stop()
		}
		s.mu.Unlock()
		s.ch.Close()
		delete(r.sessions, id)
		metrics.DecLiveSessions()
	}
	r.mu.Unlock()
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
