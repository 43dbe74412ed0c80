package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/loykin/crawlpost/internal/cookie"
	"github.com/loykin/crawlpost/internal/crawler"
	"github.com/loykin/crawlpost/internal/login"
	"github.com/loykin/crawlpost/internal/publish"
	"github.com/loykin/crawlpost/internal/store"
)

// Crawler is the subset of *crawler.Supervisor the API uses.
type Crawler interface {
	Start(ctx context.Context, req crawler.StartRequest) (crawler.Started, error)
	Stop(ctx context.Context) error
	Status(ctx context.Context) crawler.Status
	Logs(limit int) []crawler.LogEntry
}

// Logins is the subset of *login.Registry the API uses.
type Logins interface {
	Create(platform, account string) (login.Snapshot, error)
	Poll(id string) (login.Snapshot, error)
	Cancel(id string) error
}

// Cookies reports stored login state per platform.
type Cookies interface {
	Check(ctx context.Context, platform string) cookie.Result
}

// Publisher is the subset of *publish.Publisher the API uses.
type Publisher interface {
	PublishVideo(ctx context.Context, platform string, req publish.VideoRequest) (publish.Accepted, error)
	PublishImages(ctx context.Context, platform string, req publish.ImageRequest) (publish.Accepted, error)
	Platforms() []publish.PlatformInfo
	Accounts(ctx context.Context, platform string) ([]store.Account, error)
}

// Deps are the components served by the router. Nil components leave their
// routes unregistered.
type Deps struct {
	Crawler   Crawler
	Logins    Logins
	Cookies   Cookies
	Publisher Publisher
	Media     *publish.MediaStore
	Logger    *slog.Logger
	Version   string
}

// Router exposes the automation API.
// Endpoints (relative to basePath):
//
//	GET  /health
//	POST /crawler/start               body: crawler.StartRequest
//	POST /crawler/stop
//	GET  /crawler/status
//	GET  /crawler/logs?limit=N
//	GET  /crawler/login-status/:platform
//	POST /login/init                  body: {platform, accountName?}
//	GET  /login/status/:id
//	POST /login/cancel/:id
//	GET  /platforms
//	GET  /accounts?platform=
//	POST /:platform/publish           body: publish.VideoRequest
//	POST /:platform/publish-image     body: publish.ImageRequest
//	POST /media/upload                multipart field "file"
//	GET  /media/:filename
type Router struct {
	deps     Deps
	basePath string
}

// NewRouter constructs a Router; basePath may be empty or start with '/'.
func NewRouter(deps Deps, basePath string) *Router {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Version == "" {
		deps.Version = "dev"
	}
	return &Router{deps: deps, basePath: sanitizeBase(basePath)}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.Use(gin.Recovery())
	group := g.Group(r.basePath)
	group.GET("/health", r.handleHealth)
	if r.deps.Crawler != nil {
		cg := group.Group("/crawler")
		cg.POST("/start", r.handleCrawlerStart)
		cg.POST("/stop", r.handleCrawlerStop)
		cg.GET("/status", r.handleCrawlerStatus)
		cg.GET("/logs", r.handleCrawlerLogs)
	}
	if r.deps.Cookies != nil {
		group.GET("/crawler/login-status/:platform", r.handleLoginState)
	}
	if r.deps.Logins != nil {
		lg := group.Group("/login")
		lg.POST("/init", r.handleLoginInit)
		lg.GET("/status/:id", r.handleLoginStatus)
		lg.POST("/cancel/:id", r.handleLoginCancel)
	}
	if r.deps.Publisher != nil {
		group.GET("/platforms", r.handlePlatforms)
		group.GET("/accounts", r.handleAccounts)
		group.POST("/:platform/publish", r.handlePublishVideo)
		group.POST("/:platform/publish-image", r.handlePublishImages)
	}
	if r.deps.Media != nil {
		group.POST("/media/upload", r.handleMediaUpload)
		group.GET("/media/:filename", r.handleMediaGet)
	}
	return g
}

// NewServer builds an *http.Server for the router. The caller runs it.
func NewServer(addr, basePath string, deps Deps, readTimeout, writeTimeout time.Duration) *http.Server {
	if readTimeout <= 0 {
		readTimeout = 15 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 15 * time.Second
	}
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(deps, basePath).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}
}

type errorResp struct {
	Detail string `json:"detail"`
}

type healthResp struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
}

func (r *Router) handleHealth(c *gin.Context) {
	writeJSON(c, http.StatusOK, healthResp{Status: "healthy", Service: "crawlpost", Version: r.deps.Version})
}

// statusFor maps domain errors onto HTTP codes; unexpected errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, crawler.ErrAlreadyRunning),
		errors.Is(err, crawler.ErrNotRunning),
		errors.Is(err, crawler.ErrInvalidRequest),
		errors.Is(err, login.ErrUnsupportedPlatform),
		errors.Is(err, publish.ErrInvalidRequest),
		errors.Is(err, publish.ErrUnsupportedPlatform),
		errors.Is(err, publish.ErrInvalidMediaName):
		return http.StatusBadRequest
	case errors.Is(err, login.ErrSessionNotFound),
		errors.Is(err, store.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, login.ErrClosed),
		errors.Is(err, publish.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
