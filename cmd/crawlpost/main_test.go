package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

func fakeDaemon(t *testing.T) (*httptest.Server, *atomic.Value) {
	t.Helper()
	var lastStart atomic.Value
	polls := atomic.Int32{}
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "healthy", "service": "crawlpost"})
	})
	mux.HandleFunc("/crawler/start", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		lastStart.Store(body)
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "accepted", "pid": 77, "clientJobId": body["clientJobId"]})
	})
	mux.HandleFunc("/crawler/stop", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]string{"detail": "crawler is not running"})
	})
	mux.HandleFunc("/crawler/status", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"status": "running", "running": true, "pid": 77})
	})
	mux.HandleFunc("/crawler/logs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("limit = %q", r.URL.Query().Get("limit"))
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"logs": []map[string]any{
			{"id": 1, "timestamp": "2024-05-01T10:00:00Z", "level": "info", "message": "page 1 done"},
		}})
	})
	mux.HandleFunc("/crawler/login-status/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"hasValidLogin": true, "platform": "xhs", "recommendation": "headless"})
	})
	mux.HandleFunc("/login/init", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"sessionId": "s1", "platform": "douyin"})
	})
	mux.HandleFunc("/login/status/s1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) == 1 {
			_ = json.NewEncoder(w).Encode(map[string]any{"sessionId": "s1", "status": "waiting_scan", "messages": []string{"scan qrcode"}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"sessionId": "s1", "status": "success", "messages": []string{"login success"}, "done": true})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &lastStart
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := buildRoot()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestHelp(t *testing.T) {
	out, err := run(t, "--help")
	if err != nil {
		t.Fatalf("help should succeed: %v", err)
	}
	if !strings.Contains(out, "crawlpost") {
		t.Fatalf("unexpected help output: %s", out)
	}
}

func TestCrawlerStartSendsFlags(t *testing.T) {
	srv, last := fakeDaemon(t)
	out, err := run(t, "crawler", "start", "--api-url", srv.URL, "--platform", "xhs", "--keywords", "coffee", "--job-id", "j1", "--headless")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	body := last.Load().(map[string]any)
	if body["platform"] != "xhs" || body["keywords"] != "coffee" || body["headless"] != true || body["crawlerType"] != "search" {
		t.Fatalf("unexpected request body: %v", body)
	}
	if !strings.Contains(out, `"pid": 77`) {
		t.Fatalf("unexpected output: %s", out)
	}
}

func TestCrawlerStartRequiresPlatform(t *testing.T) {
	srv, _ := fakeDaemon(t)
	if _, err := run(t, "crawler", "start", "--api-url", srv.URL); err == nil {
		t.Fatalf("expected missing --platform error")
	}
}

func TestCrawlerStopSurfacesDetail(t *testing.T) {
	srv, _ := fakeDaemon(t)
	_, err := run(t, "crawler", "stop", "--api-url", srv.URL)
	if err == nil || !strings.Contains(err.Error(), "not running") {
		t.Fatalf("expected not running error, got %v", err)
	}
}

func TestCrawlerStatusAndLogs(t *testing.T) {
	srv, _ := fakeDaemon(t)
	out, err := run(t, "crawler", "status", "--api-url", srv.URL)
	if err != nil || !strings.Contains(out, `"running": true`) {
		t.Fatalf("status: err=%v out=%s", err, out)
	}
	out, err = run(t, "crawler", "logs", "--limit", "5", "--api-url", srv.URL)
	if err != nil || !strings.Contains(out, "[info] page 1 done") {
		t.Fatalf("logs: err=%v out=%s", err, out)
	}
	out, err = run(t, "crawler", "login-status", "xhs", "--api-url", srv.URL)
	if err != nil || !strings.Contains(out, `"hasValidLogin": true`) {
		t.Fatalf("login-status: err=%v out=%s", err, out)
	}
}

func TestLoginFollowsSession(t *testing.T) {
	srv, _ := fakeDaemon(t)
	out, err := run(t, "login", "douyin", "--account", "a", "--interval", "10ms", "--api-url", srv.URL)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	for _, want := range []string{"session s1 started", "scan qrcode", "login success", `"status": "success"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in output: %s", want, out)
		}
	}
}

func TestDaemonUnreachable(t *testing.T) {
	_, err := run(t, "crawler", "status", "--api-url", "http://127.0.0.1:1", "--api-timeout", "200ms")
	if err == nil || !strings.Contains(err.Error(), "not reachable") {
		t.Fatalf("expected unreachable error, got %v", err)
	}
}

func TestScheduleCommand(t *testing.T) {
	out, err := run(t, "schedule", "--count", "3", "--quota", "2", "--times", "09:00,18:30", "--start-days", "1", "--from", "2024-05-01 08:00:00")
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	want := "1\t2024-05-02 09:00:00\n2\t2024-05-02 18:30:00\n3\t2024-05-03 09:00:00\n"
	if out != want {
		t.Fatalf("got %q want %q", out, want)
	}
}

func TestScheduleRejectsShortSlots(t *testing.T) {
	if _, err := run(t, "schedule", "--count", "2", "--quota", "3", "--times", "09:00"); err == nil {
		t.Fatalf("expected insufficient slots error")
	}
}

func TestChildArgsDropDaemonFlags(t *testing.T) {
	got := childArgs([]string{"serve", "c.toml", "--daemonize", "--logfile", "x.log", "--pidfile", "p", "--logfile=y"})
	want := []string{"serve", "c.toml", "--pidfile", "p"}
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Fatalf("got %v want %v", got, want)
	}
}
