// Package config loads the daemon configuration from TOML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/loykin/crawlpost/internal/automation"
	"github.com/loykin/crawlpost/internal/env"
	"github.com/loykin/crawlpost/internal/logger"
	"github.com/loykin/crawlpost/internal/schedule"
	itls "github.com/loykin/crawlpost/internal/tls"
)

// EnvPrefix prefixes environment overrides, e.g. CRAWLPOST_SERVER_LISTEN.
const EnvPrefix = "CRAWLPOST"

type Config struct {
	Env      []string `mapstructure:"env"`
	EnvFiles []string `mapstructure:"env_files"`
	UseOSEnv bool     `mapstructure:"use_os_env"`

	Server  ServerConfig  `mapstructure:"server"`
	Log     logger.Config `mapstructure:"log"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Login   LoginConfig   `mapstructure:"login"`
	Cookies CookieConfig  `mapstructure:"cookies"`
	Publish PublishConfig `mapstructure:"publish"`
	Store   StoreConfig   `mapstructure:"store"`
	History HistoryConfig `mapstructure:"history"`
	Metrics MetricsConfig `mapstructure:"metrics"`

	dir string // directory of the loaded file; relative paths resolve against it
}

type ServerConfig struct {
	Listen       string         `mapstructure:"listen"`
	BasePath     string         `mapstructure:"base_path"`
	ReadTimeout  time.Duration  `mapstructure:"read_timeout"`
	WriteTimeout time.Duration  `mapstructure:"write_timeout"`
	TLS          *itls.Settings `mapstructure:"tls"`
}

// CrawlerConfig describes the supervised crawler process. The start
// request's arguments are appended to Command.
type CrawlerConfig struct {
	Command   string        `mapstructure:"command"`
	WorkDir   string        `mapstructure:"work_dir"`
	Env       []string      `mapstructure:"env"`
	StopWait  time.Duration `mapstructure:"stop_wait"`
	LogBuffer int           `mapstructure:"log_buffer"`
	PIDFile   string        `mapstructure:"pid_file"`
}

type LoginConfig struct {
	ReclaimDelay time.Duration                 `mapstructure:"reclaim_delay"`
	Flows        map[string]automation.Command `mapstructure:"flows"`
}

type CookieConfig struct {
	BrowserDataDir string        `mapstructure:"browser_data_dir"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
}

type PublishConfig struct {
	Uploaders     map[string]automation.Command `mapstructure:"uploaders"`
	MediaDir      string                        `mapstructure:"media_dir"`
	ImageDir      string                        `mapstructure:"image_dir"`
	DailyQuota    int                           `mapstructure:"daily_quota"`
	DailyTimes    []string                      `mapstructure:"daily_times"`
	StartDays     int                           `mapstructure:"start_days"`
	UploadTimeout time.Duration                 `mapstructure:"upload_timeout"`
}

// StoreConfig points at the account database, see store/factory for DSN forms.
type StoreConfig struct {
	DSN string `mapstructure:"dsn"`
}

// HistoryConfig lists history sink DSNs, see history/factory.
type HistoryConfig struct {
	Sinks []string `mapstructure:"sinks"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("use_os_env", true)
	v.SetDefault("server.listen", "127.0.0.1:8080")
	v.SetDefault("server.base_path", "/")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("log.slog.level", "info")
	v.SetDefault("log.slog.format", "text")
	v.SetDefault("log.file.dir", "")
	v.SetDefault("crawler.command", "")
	v.SetDefault("crawler.work_dir", "")
	v.SetDefault("crawler.stop_wait", "10s")
	v.SetDefault("crawler.log_buffer", 1000)
	v.SetDefault("crawler.pid_file", "")
	v.SetDefault("login.reclaim_delay", "60s")
	v.SetDefault("cookies.browser_data_dir", "browser_data")
	v.SetDefault("cookies.cache_ttl", "0s")
	v.SetDefault("publish.media_dir", "videoFile")
	v.SetDefault("publish.image_dir", "imageFile")
	v.SetDefault("publish.daily_quota", 1)
	v.SetDefault("publish.daily_times", []string{"10:00"})
	v.SetDefault("publish.start_days", 0)
	v.SetDefault("publish.upload_timeout", "0s")
	v.SetDefault("store.dsn", "db/database.db")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", "127.0.0.1:9090")
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	c, err := LoadConfig("")
	if err != nil {
		// Defaults alone always decode; only a bad environment override fails.
		c = &Config{}
		c.applyDefaults()
	}
	return c
}

// LoadConfig reads path (TOML) when non-empty, applies CRAWLPOST_* overrides,
// fills defaults and validates the result.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	var dir string
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
		if abs, err := filepath.Abs(path); err == nil {
			dir = filepath.Dir(abs)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.dir = dir
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8080"
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/"
	}
	if c.Crawler.StopWait <= 0 {
		c.Crawler.StopWait = 10 * time.Second
	}
	if c.Crawler.LogBuffer == 0 {
		c.Crawler.LogBuffer = 1000
	}
	if c.Login.ReclaimDelay <= 0 {
		c.Login.ReclaimDelay = 60 * time.Second
	}
	if c.Publish.DailyQuota <= 0 {
		c.Publish.DailyQuota = 1
	}
	if len(c.Publish.DailyTimes) == 0 {
		c.Publish.DailyTimes = []string{"10:00"}
	}
	if c.Metrics.Listen == "" {
		c.Metrics.Listen = "127.0.0.1:9090"
	}
	c.Cookies.BrowserDataDir = c.Resolve(c.Cookies.BrowserDataDir)
	c.Publish.MediaDir = c.Resolve(c.Publish.MediaDir)
	c.Publish.ImageDir = c.Resolve(c.Publish.ImageDir)
	c.Crawler.WorkDir = c.Resolve(c.Crawler.WorkDir)
	c.Crawler.PIDFile = c.Resolve(c.Crawler.PIDFile)
	c.Store.DSN = c.Resolve(c.Store.DSN)
	c.Log.File.Dir = c.Resolve(c.Log.File.Dir)
	c.Log.File.StdoutPath = c.Resolve(c.Log.File.StdoutPath)
	c.Log.File.StderrPath = c.Resolve(c.Log.File.StderrPath)
	for i, s := range c.History.Sinks {
		c.History.Sinks[i] = c.Resolve(s)
	}
	if t := c.Server.TLS; t != nil {
		t.CertFile = c.Resolve(t.CertFile)
		t.KeyFile = c.Resolve(t.KeyFile)
		t.Dir = c.Resolve(t.Dir)
	}
}

// Validate reports configuration errors that would only surface at request time.
func (c *Config) Validate() error {
	var errs []error
	if c.Crawler.LogBuffer < 0 {
		errs = append(errs, fmt.Errorf("crawler.log_buffer must not be negative"))
	}
	if c.Publish.StartDays < 0 {
		errs = append(errs, fmt.Errorf("publish.start_days must not be negative"))
	}
	if len(c.Publish.DailyTimes) < c.Publish.DailyQuota {
		errs = append(errs, fmt.Errorf("publish: %w", schedule.ErrInsufficientSlots))
	}
	for _, s := range c.Publish.DailyTimes {
		if _, err := schedule.ParseSlot(s); err != nil {
			errs = append(errs, fmt.Errorf("publish.daily_times: %w", err))
		}
	}
	if t := c.Server.TLS; t != nil && t.Enabled && (t.CertFile == "") != (t.KeyFile == "") {
		errs = append(errs, fmt.Errorf("server.tls: cert_file and key_file must be set together"))
	}
	for p, cmd := range c.Login.Flows {
		if strings.TrimSpace(cmd.Command) == "" {
			errs = append(errs, fmt.Errorf("login.flows.%s requires command", p))
		}
	}
	for p, cmd := range c.Publish.Uploaders {
		if strings.TrimSpace(cmd.Command) == "" {
			errs = append(errs, fmt.Errorf("publish.uploaders.%s requires command", p))
		}
	}
	return errors.Join(errs...)
}

// Resolve makes a relative path relative to the config file's directory.
// Empty paths, DSNs and paths without a loaded file are returned unchanged.
func (c *Config) Resolve(p string) string {
	if p == "" || c.dir == "" || filepath.IsAbs(p) || strings.HasPrefix(p, ":") || strings.Contains(p, "://") {
		return p
	}
	return filepath.Join(c.dir, p)
}

// ProcessEnv composes the environment for automation subprocesses:
// the OS environment (when use_os_env), then env_files, then env.
func (c *Config) ProcessEnv() (*env.Env, error) {
	e := env.New()
	if !c.UseOSEnv {
		e = env.Isolated()
	}
	files := make([]string, 0, len(c.EnvFiles))
	for _, f := range c.EnvFiles {
		files = append(files, c.Resolve(f))
	}
	e, err := e.WithFiles(files...)
	if err != nil {
		return nil, err
	}
	return e.WithPairs(c.Env), nil
}
