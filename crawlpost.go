// Package crawlpost wires the crawler supervisor, login registry, cookie
// checker and publish pipeline behind one HTTP API.
package crawlpost

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/crawlpost/internal/automation"
	cfg "github.com/loykin/crawlpost/internal/config"
	"github.com/loykin/crawlpost/internal/cookie"
	"github.com/loykin/crawlpost/internal/crawler"
	"github.com/loykin/crawlpost/internal/history"
	hfactory "github.com/loykin/crawlpost/internal/history/factory"
	"github.com/loykin/crawlpost/internal/logger"
	"github.com/loykin/crawlpost/internal/login"
	"github.com/loykin/crawlpost/internal/metrics"
	"github.com/loykin/crawlpost/internal/publish"
	"github.com/loykin/crawlpost/internal/schedule"
	iapi "github.com/loykin/crawlpost/internal/server"
	"github.com/loykin/crawlpost/internal/store"
	sfactory "github.com/loykin/crawlpost/internal/store/factory"
	itls "github.com/loykin/crawlpost/internal/tls"
)

// Re-export the types embedders need.

type Config = cfg.Config

type ScheduleRequest = schedule.Request

// LoadConfig reads a TOML config file; an empty path yields the defaults.
func LoadConfig(path string) (*Config, error) { return cfg.LoadConfig(path) }

// CalculateSchedule exposes the publish-time calculator.
func CalculateSchedule(now time.Time, req ScheduleRequest) ([]time.Time, error) {
	return schedule.Calculate(now, req)
}

const shutdownTimeout = 10 * time.Second

// Orchestrator owns every component built from one Config. It holds no
// package-level state, so several can coexist in one process.
type Orchestrator struct {
	cfg     *Config
	logger  *slog.Logger
	version string

	recorder  *history.Recorder
	accounts  store.AccountStore
	crawler   *crawler.Supervisor
	logins    *login.Registry
	cookies   *cookie.CachedChecker
	publisher *publish.Publisher
	media     *publish.MediaStore
	writers   []io.Closer
}

type options struct {
	logger     *slog.Logger
	version    string
	registerer prometheus.Registerer
}

type Option func(*options)

// WithLogger overrides the logger built from the [log] section.
func WithLogger(l *slog.Logger) Option { return func(o *options) { o.logger = l } }

func WithVersion(v string) Option { return func(o *options) { o.version = v } }

// WithRegisterer registers metrics somewhere other than the default registry.
func WithRegisterer(r prometheus.Registerer) Option { return func(o *options) { o.registerer = r } }

// New builds every component. On error the parts already opened are closed.
func New(ctx context.Context, c *Config, opts ...Option) (*Orchestrator, error) {
	if c == nil {
		c = cfg.Default()
	}
	o := options{version: "dev", registerer: prometheus.DefaultRegisterer}
	for _, fn := range opts {
		fn(&o)
	}
	if o.logger == nil {
		o.logger = logger.New(c.Log)
	}
	orc := &Orchestrator{cfg: c, logger: o.logger, version: o.version}
	if err := orc.build(ctx, o.registerer); err != nil {
		_ = orc.Close(context.Background())
		return nil, err
	}
	return orc, nil
}

func (o *Orchestrator) build(ctx context.Context, reg prometheus.Registerer) error {
	c := o.cfg
	if c.Metrics.Enabled {
		if err := metrics.Register(reg); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}

	sinks, err := hfactory.NewSinks(c.History.Sinks)
	if err != nil {
		return err
	}
	o.recorder = history.NewRecorder(o.logger, sinks...)

	accounts, err := sfactory.NewFromDSN(c.Store.DSN)
	if err != nil {
		return fmt.Errorf("open account store: %w", err)
	}
	o.accounts = accounts
	if err := accounts.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("account store schema: %w", err)
	}

	base, err := c.ProcessEnv()
	if err != nil {
		return err
	}

	stdout, stderr, err := c.Log.ProcessWriters("crawler")
	if err != nil {
		return err
	}
	cc := crawler.Config{
		Command:   c.Crawler.Command,
		WorkDir:   c.Crawler.WorkDir,
		Env:       base.Merge(c.Crawler.Env),
		StopWait:  c.Crawler.StopWait,
		LogBuffer: c.Crawler.LogBuffer,
		PIDFile:   c.Crawler.PIDFile,
	}
	if stdout != nil {
		cc.Stdout = stdout
		o.writers = append(o.writers, stdout)
	}
	if stderr != nil {
		cc.Stderr = stderr
		o.writers = append(o.writers, stderr)
	}
	o.cookies = cookie.NewCached(cookie.New(c.Cookies.BrowserDataDir, o.logger), c.Cookies.CacheTTL)
	o.crawler = crawler.New(cc,
		crawler.WithLogger(o.logger.With("component", "crawler")),
		crawler.WithRecorder(o.recorder),
		crawler.WithExitHook(o.cookies.Invalidate))

	o.logins = login.New(automation.Flows(c.Login.Flows, base, o.logger),
		login.WithReclaimDelay(c.Login.ReclaimDelay),
		login.WithLogger(o.logger.With("component", "login")),
		login.WithRecorder(o.recorder))

	o.publisher = publish.New(accounts, automation.Uploaders(c.Publish.Uploaders, base, o.logger),
		publish.Config{
			MediaDir: c.Publish.MediaDir,
			ImageDir: c.Publish.ImageDir,
			Default: publish.ScheduleOptions{
				DailyQuota: c.Publish.DailyQuota,
				DailyTimes: c.Publish.DailyTimes,
				StartDays:  c.Publish.StartDays,
			},
			UploadTimeout: c.Publish.UploadTimeout,
		},
		publish.WithLogger(o.logger.With("component", "publish")),
		publish.WithRecorder(o.recorder))
	o.media = publish.NewMediaStore(c.Publish.MediaDir)
	return nil
}

// Crawler returns the crawler supervisor.
func (o *Orchestrator) Crawler() *crawler.Supervisor { return o.crawler }

// Logins returns the login-session registry.
func (o *Orchestrator) Logins() *login.Registry { return o.logins }

func (o *Orchestrator) Publisher() *publish.Publisher { return o.publisher }

func (o *Orchestrator) Accounts() store.AccountStore { return o.accounts }

// Handler returns the API handler mounted at the configured base path.
func (o *Orchestrator) Handler() http.Handler {
	return iapi.NewRouter(o.deps(), o.cfg.Server.BasePath).Handler()
}

func (o *Orchestrator) deps() iapi.Deps {
	return iapi.Deps{
		Crawler:   o.crawler,
		Logins:    o.logins,
		Cookies:   o.cookies,
		Publisher: o.publisher,
		Media:     o.media,
		Logger:    o.logger,
		Version:   o.version,
	}
}

// NewServer builds the API server, with TLS configured when [server.tls] is enabled.
func (o *Orchestrator) NewServer() (*http.Server, error) {
	s := o.cfg.Server
	srv := iapi.NewServer(s.Listen, s.BasePath, o.deps(), s.ReadTimeout, s.WriteTimeout)
	tc, err := itls.Setup(s.TLS)
	if err != nil {
		return nil, fmt.Errorf("tls: %w", err)
	}
	srv.TLSConfig = tc
	return srv, nil
}

// Serve runs the API server, and the metrics listener when enabled, until
// ctx is cancelled or a listener fails.
func (o *Orchestrator) Serve(ctx context.Context) error {
	srv, err := o.NewServer()
	if err != nil {
		return err
	}
	errCh := make(chan error, 2)
	go func() {
		proto := "http"
		if srv.TLSConfig != nil {
			proto = "https"
		}
		o.logger.Info("api server listening", "addr", srv.Addr, "protocol", proto, "base_path", o.cfg.Server.BasePath)
		if srv.TLSConfig != nil {
			errCh <- srv.ListenAndServeTLS("", "")
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	var msrv *http.Server
	if o.cfg.Metrics.Enabled && o.cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		msrv = &http.Server{Addr: o.cfg.Metrics.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			o.logger.Info("metrics server listening", "addr", msrv.Addr)
			errCh <- msrv.ListenAndServe()
		}()
	}

	var serveErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	errs := []error{serveErr, srv.Shutdown(sctx)}
	if msrv != nil {
		errs = append(errs, msrv.Shutdown(sctx))
	}
	return errors.Join(errs...)
}

// Close stops the crawler, cancels login sessions and uploads, then closes
// the stores. It is safe on a partially built Orchestrator.
func (o *Orchestrator) Close(ctx context.Context) error {
	var errs []error
	if o.crawler != nil {
		errs = append(errs, o.crawler.Close(ctx))
	}
	if o.logins != nil {
		errs = append(errs, o.logins.Close(ctx))
	}
	if o.publisher != nil {
		errs = append(errs, o.publisher.Close(ctx))
	}
	if o.cookies != nil {
		o.cookies.Close()
	}
	if o.accounts != nil {
		errs = append(errs, o.accounts.Close())
	}
	errs = append(errs, o.recorder.Close())
	for _, w := range o.writers {
		errs = append(errs, w.Close())
	}
	return errors.Join(errs...)
}
