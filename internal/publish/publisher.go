// Package publish resolves publish requests into upload tasks and hands
// them to per-platform uploaders in the background.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/crawlpost/internal/history"
	"github.com/loykin/crawlpost/internal/metrics"
	"github.com/loykin/crawlpost/internal/schedule"
	"github.com/loykin/crawlpost/internal/store"
)

// Config controls staging and the default publish schedule.
type Config struct {
	MediaDir string
	ImageDir string
	Default  ScheduleOptions
	// UploadTimeout bounds one upload; zero means no limit.
	UploadTimeout time.Duration
}

// DefaultSchedule is used when neither the request nor the config set one.
var DefaultSchedule = ScheduleOptions{DailyQuota: 1, DailyTimes: []string{"10:00"}, StartDays: 0}

// Publisher turns requests into Tasks. It is safe for concurrent use.
type Publisher struct {
	accounts  store.AccountStore
	uploaders map[string]Uploader
	cfg       Config
	logger    *slog.Logger
	recorder  *history.Recorder
	now       func() time.Time

	mu     sync.Mutex
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type Option func(*Publisher)

func WithLogger(l *slog.Logger) Option { return func(p *Publisher) { p.logger = l } }

func WithRecorder(r *history.Recorder) Option { return func(p *Publisher) { p.recorder = r } }

func WithClock(now func() time.Time) Option { return func(p *Publisher) { p.now = now } }

// New builds a Publisher. uploaders is keyed by platform name.
func New(accounts store.AccountStore, uploaders map[string]Uploader, cfg Config, opts ...Option) *Publisher {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Publisher{
		accounts:  accounts,
		uploaders: make(map[string]Uploader, len(uploaders)),
		cfg:       cfg,
		logger:    slog.Default(),
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	for k, u := range uploaders {
		p.uploaders[k] = u
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Platforms lists the publish targets.
func (p *Publisher) Platforms() []PlatformInfo {
	return append([]PlatformInfo(nil), platforms...)
}

// Accounts lists stored accounts, optionally filtered by platform name.
func (p *Publisher) Accounts(ctx context.Context, platform string) ([]store.Account, error) {
	typ := 0
	if platform != "" {
		t, ok := store.TypeOf(platform)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, platform)
		}
		typ = t
	}
	return p.accounts.List(ctx, typ)
}

// PublishVideo validates req, stages its files and dispatches one task.
func (p *Publisher) PublishVideo(ctx context.Context, platform string, req VideoRequest) (Accepted, error) {
	info, err := p.target(platform, KindVideo)
	if err != nil {
		return Accepted{}, err
	}
	refs := req.refs()
	if req.AccountID <= 0 || len(refs) == 0 {
		return Accepted{}, fmt.Errorf("%w: accountId and videoUrl are required", ErrInvalidRequest)
	}
	acct, err := p.accounts.Get(ctx, req.AccountID, info.Type)
	if err != nil {
		return Accepted{}, err
	}
	files, err := p.stageAll(p.cfg.MediaDir, refs)
	if err != nil {
		return Accepted{}, err
	}
	at, err := p.plan(req.ScheduledTime, req.Schedule, len(files))
	if err != nil {
		return Accepted{}, err
	}
	t := Task{
		ID:          uuid.NewString(),
		Platform:    platform,
		Kind:        KindVideo,
		AccountID:   acct.ID,
		AccountFile: acct.FilePath,
		Title:       req.Title,
		Tags:        req.Tags,
		Files:       files,
		PublishAt:   at,
	}
	if platform == "douyin" {
		t.ProductLink = req.ProductLink
		t.ProductTitle = req.ProductTitle
		if req.ThumbnailURL != "" {
			thumb, err := stage(p.cfg.ImageDir, req.ThumbnailURL)
			if err != nil {
				return Accepted{}, err
			}
			t.Thumbnail = thumb
		}
	}
	if err := p.dispatch(t); err != nil {
		return Accepted{}, err
	}
	return Accepted{
		TaskID:      t.ID,
		AccountID:   acct.ID,
		Platform:    platform,
		Status:      "processing",
		ScheduledAt: scheduled(at),
	}, nil
}

// PublishImages dispatches an image note. All images share one publish time.
func (p *Publisher) PublishImages(ctx context.Context, platform string, req ImageRequest) (Accepted, error) {
	info, err := p.target(platform, KindImage)
	if err != nil {
		return Accepted{}, err
	}
	refs := req.refs()
	if req.AccountID <= 0 || len(refs) == 0 {
		return Accepted{}, fmt.Errorf("%w: accountId and imageUrls are required", ErrInvalidRequest)
	}
	acct, err := p.accounts.Get(ctx, req.AccountID, info.Type)
	if err != nil {
		return Accepted{}, err
	}
	files, err := p.stageAll(p.cfg.ImageDir, refs)
	if err != nil {
		return Accepted{}, err
	}
	at, err := p.plan(req.ScheduledTime, req.Schedule, 1)
	if err != nil {
		return Accepted{}, err
	}
	t := Task{
		ID:          uuid.NewString(),
		Platform:    platform,
		Kind:        KindImage,
		AccountID:   acct.ID,
		AccountFile: acct.FilePath,
		Title:       req.Title,
		Description: req.Description,
		Tags:        req.Tags,
		Files:       files,
		PublishAt:   at,
	}
	if err := p.dispatch(t); err != nil {
		return Accepted{}, err
	}
	return Accepted{
		TaskID:      t.ID,
		AccountID:   acct.ID,
		Platform:    platform,
		Status:      "processing",
		Type:        KindImage,
		ImageCount:  len(files),
		ScheduledAt: scheduled(at),
	}, nil
}

// Close cancels in-flight uploads and waits for them until ctx ends.
func (p *Publisher) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
	p.cancel()
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Publisher) target(platform string, k Kind) (PlatformInfo, error) {
	info, ok := platformInfo(platform)
	if !ok || !info.supports(k) {
		return PlatformInfo{}, fmt.Errorf("%w: %s %s", ErrUnsupportedPlatform, platform, k)
	}
	if _, ok := p.uploaders[platform]; !ok {
		return PlatformInfo{}, fmt.Errorf("%w: no uploader for %s", ErrUnsupportedPlatform, platform)
	}
	return info, nil
}

func (p *Publisher) stageAll(dir string, refs []string) ([]string, error) {
	out := make([]string, 0, len(refs))
	for _, r := range refs {
		r = strings.TrimSpace(r)
		if r == "" {
			continue
		}
		s, err := stage(dir, r)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: no media given", ErrInvalidRequest)
	}
	return out, nil
}

// plan schedules n items when a scheduled time was supplied; the time value
// itself only switches scheduling on.
func (p *Publisher) plan(scheduledTime *string, override *ScheduleOverride, n int) ([]time.Time, error) {
	enabled := scheduledTime != nil && strings.TrimSpace(*scheduledTime) != ""
	opts := p.cfg.Default.or(DefaultSchedule)
	if override != nil {
		var err error
		if opts, err = override.apply(opts); err != nil {
			return nil, err
		}
	}
	at, err := schedule.Plan(enabled, p.now(), schedule.Request{
		ItemCount:      n,
		DailyQuota:     opts.DailyQuota,
		DailyTimes:     opts.DailyTimes,
		StartDayOffset: opts.StartDays,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return at, nil
}

// or fills unset quota and slots of o from def. StartDays is taken as is.
func (o ScheduleOptions) or(def ScheduleOptions) ScheduleOptions {
	if o.DailyQuota <= 0 {
		o.DailyQuota = def.DailyQuota
	}
	if len(o.DailyTimes) == 0 {
		o.DailyTimes = def.DailyTimes
	}
	return o
}

func (o ScheduleOverride) apply(def ScheduleOptions) (ScheduleOptions, error) {
	if o.DailyQuota != 0 {
		def.DailyQuota = o.DailyQuota
	}
	if len(o.DailyTimes) > 0 {
		def.DailyTimes = o.DailyTimes
	}
	if o.StartDays != nil {
		if *o.StartDays < 0 {
			return def, fmt.Errorf("%w: startDays must not be negative", ErrInvalidRequest)
		}
		def.StartDays = *o.StartDays
	}
	return def, nil
}

func (p *Publisher) dispatch(t Task) error {
	up := p.uploaders[t.Platform]
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.Unlock()
	p.recorder.Record(history.Event{
		Kind: history.KindPublish, Type: history.EventDispatched,
		Record: history.Record{Name: t.ID, Platform: t.Platform, Status: "processing", Detail: string(t.Kind)},
	})
	p.logger.Info("publish task dispatched", "task", t.ID, "platform", t.Platform, "kind", t.Kind,
		"account", t.AccountID, "files", len(t.Files))
	go func() {
		defer p.wg.Done()
		ctx := p.ctx
		if p.cfg.UploadTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, p.cfg.UploadTimeout)
			defer cancel()
		}
		err := p.upload(ctx, up, t)
		if err != nil {
			metrics.IncPublish(t.Platform, string(t.Kind), "error")
			p.logger.Error("publish task failed", "task", t.ID, "platform", t.Platform, "error", err)
			p.recorder.Record(history.Event{
				Kind: history.KindPublish, Type: history.EventFailed,
				Record: history.Record{Name: t.ID, Platform: t.Platform, Status: "failed", Detail: err.Error()},
			})
			return
		}
		metrics.IncPublish(t.Platform, string(t.Kind), "ok")
		p.logger.Info("publish task finished", "task", t.ID, "platform", t.Platform)
		p.recorder.Record(history.Event{
			Kind: history.KindPublish, Type: history.EventFinished,
			Record: history.Record{Name: t.ID, Platform: t.Platform, Status: "published"},
		})
	}()
	return nil
}

func (p *Publisher) upload(ctx context.Context, up Uploader, t Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("uploader panic: %v", r)
		}
	}()
	return up.Upload(ctx, t)
}

// scheduled drops publish-now sentinels from the response.
func scheduled(at []time.Time) []time.Time {
	var out []time.Time
	for _, t := range at {
		if !schedule.IsImmediate(t) {
			out = append(out, t)
		}
	}
	return out
}
