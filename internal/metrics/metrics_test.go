package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestRegisterIdempotentAndCountersWork(t *testing.T) {
	reg := prometheus.NewRegistry()
	regOK.Store(false)
	if err := Register(reg); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}

	IncCrawlerStart("xhs")
	IncCrawlerStop()
	IncCrawlerConflict("start")
	SetCrawlerRunning(true)
	SetCrawlerUsage(Usage{CPUPercent: 12.5, MemoryRSS: 1 << 20})
	IncLoginSession("douyin")
	IncLoginOutcome("douyin", "success")
	DecLiveSessions()
	IncPublish("douyin", "video", "ok")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	wantNames := map[string]bool{
		"crawlpost_crawler_starts_total":     false,
		"crawlpost_crawler_stops_total":      false,
		"crawlpost_crawler_conflicts_total":  false,
		"crawlpost_crawler_running":          false,
		"crawlpost_crawler_cpu_percent":      false,
		"crawlpost_crawler_memory_rss_bytes": false,
		"crawlpost_login_sessions_total":     false,
		"crawlpost_login_outcomes_total":     false,
		"crawlpost_login_live_sessions":      false,
		"crawlpost_publish_dispatches_total": false,
	}
	for _, mf := range mfs {
		n := mf.GetName()
		if _, ok := wantNames[n]; ok {
			wantNames[n] = true
			if len(mf.GetMetric()) == 0 {
				t.Fatalf("metric %s has no samples", n)
			}
		}
	}
	for n, ok := range wantNames {
		if !ok {
			t.Fatalf("expected to find metric %s", n)
		}
	}
}

func TestHandlerServesMetrics(t *testing.T) {
	regOK.Store(false)
	if err := Register(prometheus.DefaultRegisterer); err != nil {
		t.Fatal(err)
	}

	srv := httptest.NewServer(Handler())
	defer srv.Close()

	IncCrawlerStart("dy")

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != 200 {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	b, _ := io.ReadAll(resp.Body)
	s := string(b)
	if !strings.Contains(s, "crawlpost_crawler_starts_total") {
		t.Fatalf("metrics output missing starts_total: %s", s[:min(200, len(s))])
	}
}

func TestConcurrentIncrements(t *testing.T) {
	reg := prometheus.NewRegistry()
	regOK.Store(false)
	if err := Register(reg); err != nil {
		t.Fatal(err)
	}
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			IncLoginSession("xiaohongshu")
			IncLoginOutcome("xiaohongshu", "failed")
			DecLiveSessions()
		}()
	}
	wg.Wait()
	if _, err := reg.Gather(); err != nil {
		t.Fatalf("gather: %v", err)
	}
}

func TestMetricsBeforeRegister(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	// no-ops, must not panic
	IncCrawlerStart("x")
	IncCrawlerStop()
	SetCrawlerRunning(false)
	IncLoginSession("x")
	IncPublish("x", "image", "error")
}

func TestRegisterError(t *testing.T) {
	originalState := regOK.Load()
	regOK.Store(false)
	defer regOK.Store(originalState)

	err := Register(&errorRegisterer{})
	if err == nil {
		t.Fatal("Register should return error from failing registerer")
	}
	if err.Error() != "test registration error" {
		t.Fatalf("unexpected error: %v", err)
	}
	if regOK.Load() {
		t.Fatal("failed registration must keep helpers disabled")
	}
}

func TestSampleUsageSelf(t *testing.T) {
	u, err := SampleUsage(os.Getpid())
	if err != nil {
		t.Fatalf("sample self: %v", err)
	}
	if u.MemoryRSS == 0 || u.MemoryMB <= 0 {
		t.Fatalf("expected non-zero RSS, got %+v", u)
	}
}

func TestSampleUsageMissingProcess(t *testing.T) {
	if _, err := SampleUsage(1 << 30); err == nil {
		t.Fatal("expected error for nonexistent pid")
	}
}

type errorRegisterer struct{}

func (e *errorRegisterer) Register(prometheus.Collector) error {
	return errors.New("test registration error")
}
func (e *errorRegisterer) MustRegister(...prometheus.Collector) {}
func (e *errorRegisterer) Unregister(prometheus.Collector) bool { return false }
