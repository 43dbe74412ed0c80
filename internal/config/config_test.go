package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeTOML(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "crawlpost.toml")
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write toml: %v", err)
	}
	return p
}

func TestLoadConfig_Defaults(t *testing.T) {
	c, err := LoadConfig("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Listen != "127.0.0.1:8080" || c.Server.BasePath != "/" {
		t.Fatalf("unexpected server defaults: %+v", c.Server)
	}
	if c.Crawler.StopWait != 10*time.Second || c.Crawler.LogBuffer != 1000 {
		t.Fatalf("unexpected crawler defaults: %+v", c.Crawler)
	}
	if c.Login.ReclaimDelay != time.Minute {
		t.Fatalf("reclaim delay: %v", c.Login.ReclaimDelay)
	}
	if c.Publish.DailyQuota != 1 || len(c.Publish.DailyTimes) != 1 || c.Publish.DailyTimes[0] != "10:00" {
		t.Fatalf("unexpected publish defaults: %+v", c.Publish)
	}
	if !c.UseOSEnv {
		t.Fatalf("use_os_env should default to true")
	}
	if c.Store.DSN != "db/database.db" {
		t.Fatalf("store dsn: %q", c.Store.DSN)
	}
}

func TestLoadConfig_Full(t *testing.T) {
	p := writeTOML(t, `
env = ["A=1"]

[server]
listen = ":9999"
base_path = "/api"
read_timeout = "3s"

[log.slog]
level = "debug"
format = "json"

[crawler]
command = "python main.py"
work_dir = "/srv/crawler"
env = ["PYTHONUNBUFFERED=1"]
stop_wait = "2s"
log_buffer = 50

[login]
reclaim_delay = "5s"
  [login.flows.douyin]
  command = "python login.py douyin"
  [login.flows.xiaohongshu]
  command = "python login.py xhs"
  args = ["--headless"]

[cookies]
browser_data_dir = "/data/browser"
cache_ttl = "30s"

[publish]
media_dir = "media"
daily_quota = 2
daily_times = ["09:00", "18:30"]
start_days = 1
  [publish.uploaders.douyin]
  command = "python upload.py"

[store]
dsn = "postgres://u:p@localhost/db"

[history]
sinks = ["sqlite:///tmp/h.db", "clickhouse://localhost:9000"]

[metrics]
enabled = true
listen = ":9100"
`)
	c, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Listen != ":9999" || c.Server.BasePath != "/api" || c.Server.ReadTimeout != 3*time.Second {
		t.Fatalf("server: %+v", c.Server)
	}
	if c.Log.Slog.Level != "debug" || c.Log.Slog.Format != "json" {
		t.Fatalf("log: %+v", c.Log)
	}
	if c.Crawler.Command != "python main.py" || c.Crawler.StopWait != 2*time.Second || c.Crawler.LogBuffer != 50 {
		t.Fatalf("crawler: %+v", c.Crawler)
	}
	if len(c.Login.Flows) != 2 || c.Login.Flows["xiaohongshu"].Args[0] != "--headless" {
		t.Fatalf("flows: %+v", c.Login.Flows)
	}
	if c.Cookies.BrowserDataDir != "/data/browser" || c.Cookies.CacheTTL != 30*time.Second {
		t.Fatalf("cookies: %+v", c.Cookies)
	}
	if c.Publish.MediaDir != filepath.Join(filepath.Dir(p), "media") {
		t.Fatalf("media dir not resolved against config dir: %q", c.Publish.MediaDir)
	}
	if c.Publish.DailyQuota != 2 || c.Publish.StartDays != 1 || c.Publish.Uploaders["douyin"].Command != "python upload.py" {
		t.Fatalf("publish: %+v", c.Publish)
	}
	if c.Store.DSN != "postgres://u:p@localhost/db" {
		t.Fatalf("store dsn must not be resolved: %q", c.Store.DSN)
	}
	if len(c.History.Sinks) != 2 || !c.Metrics.Enabled || c.Metrics.Listen != ":9100" {
		t.Fatalf("history/metrics: %+v %+v", c.History, c.Metrics)
	}
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	p := writeTOML(t, "[server]\nlisten = \":1\"\n")
	t.Setenv("CRAWLPOST_SERVER_LISTEN", ":2")
	t.Setenv("CRAWLPOST_CRAWLER_STOP_WAIT", "250ms")
	c, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.Listen != ":2" {
		t.Fatalf("env should override file, got %q", c.Server.Listen)
	}
	if c.Crawler.StopWait != 250*time.Millisecond {
		t.Fatalf("stop wait: %v", c.Crawler.StopWait)
	}
}

func TestProcessEnv(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.env"), []byte("FROM_FILE=1\nSHARED=file\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	p := filepath.Join(dir, "c.toml")
	data := `
use_os_env = false
env_files = ["a.env"]
env = ["SHARED=inline", "REF=${FROM_FILE}-x"]
`
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	c, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	e, err := c.ProcessEnv()
	if err != nil {
		t.Fatalf("process env: %v", err)
	}
	got := strings.Join(e.Merge(nil), ",")
	if got != "FROM_FILE=1,REF=1-x,SHARED=inline" {
		t.Fatalf("unexpected env: %s", got)
	}
}

func TestLoadConfig_TLSPathsResolved(t *testing.T) {
	p := writeTOML(t, "[server.tls]\nenabled = true\nauto_generate = true\ndir = \"certs\"\n")
	c, err := LoadConfig(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Server.TLS == nil || !c.Server.TLS.Enabled || !c.Server.TLS.AutoGenerate {
		t.Fatalf("tls: %+v", c.Server.TLS)
	}
	if c.Server.TLS.Dir != filepath.Join(filepath.Dir(p), "certs") {
		t.Fatalf("tls dir not resolved: %q", c.Server.TLS.Dir)
	}
}
