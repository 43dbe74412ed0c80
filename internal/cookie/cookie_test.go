package cookie

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)

// chromium converts a wall-clock time to an expires_utc value.
func chromium(t time.Time) int64 {
	return (t.Unix() + windowsToUnixEpochSeconds) * 1_000_000
}

func writeStore(t *testing.T, path string, rows []Record) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer func() { _ = db.Close() }()
	_, err = db.Exec(`CREATE TABLE cookies (name TEXT, host_key TEXT, expires_utc INTEGER)`)
	require.NoError(t, err)
	for _, r := range rows {
		_, err = db.Exec(`INSERT INTO cookies(name, host_key, expires_utc) VALUES(?, ?, ?)`, r.Name, r.HostKey, r.ExpiresRaw)
		require.NoError(t, err)
	}
}

func newTestChecker(base string) *Checker {
	c := New(base, nil)
	c.now = func() time.Time { return fixedNow }
	return c
}

func TestExpiresAtEpochConversion(t *testing.T) {
	assert.Equal(t, int64(0), ExpiresAt(windowsToUnixEpochSeconds*1_000_000).Unix())
	ts := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.True(t, ExpiresAt(chromium(ts)).Equal(ts))
}

func TestRecordValidity(t *testing.T) {
	assert.True(t, Record{ExpiresRaw: 0}.Valid(fixedNow), "session cookie")
	assert.True(t, Record{ExpiresRaw: 0}.Valid(fixedNow.AddDate(100, 0, 0)), "session cookie never expires")
	assert.False(t, Record{ExpiresRaw: chromium(fixedNow.Add(-time.Second))}.Valid(fixedNow))
	assert.False(t, Record{ExpiresRaw: chromium(fixedNow)}.Valid(fixedNow), "expiry must be strictly in the future")
	assert.True(t, Record{ExpiresRaw: chromium(fixedNow.Add(time.Hour))}.Valid(fixedNow))
}

func TestUnsupportedPlatformSkipsFilesystem(t *testing.T) {
	c := newTestChecker(t.TempDir())
	c.stat = func(string) (os.FileInfo, error) {
		t.Fatalf("filesystem touched for unsupported platform")
		return nil, nil
	}
	res := c.Check(context.Background(), "myspace")
	assert.False(t, res.HasValidLogin)
	assert.Equal(t, RecommendHeaded, res.Recommendation)
	assert.Equal(t, "Unsupported platform: myspace", res.Message)
	assert.Empty(t, res.CookiesFound)
}

func TestCheckFindsValidCookies(t *testing.T) {
	base := t.TempDir()
	c := newTestChecker(base)
	writeStore(t, c.cookiePath("xhs", false), []Record{
		{Name: "web_session", HostKey: ".xiaohongshu.com", ExpiresRaw: chromium(fixedNow.Add(24 * time.Hour))},
		{Name: "a1", HostKey: ".xiaohongshu.com", ExpiresRaw: 0},
		{Name: "a1", HostKey: "www.xiaohongshu.com", ExpiresRaw: 0},
		{Name: "web_session", HostKey: ".evil.com", ExpiresRaw: 0},
		{Name: "unrelated", HostKey: ".xiaohongshu.com", ExpiresRaw: 0},
	})

	res := c.Check(context.Background(), "xhs")
	assert.True(t, res.HasValidLogin)
	assert.Equal(t, RecommendHeadless, res.Recommendation)
	assert.Equal(t, []string{"web_session", "a1"}, res.CookiesFound)
	assert.False(t, res.CDPMode)
	require.NotNil(t, res.LastModified)
	assert.Equal(t, "Valid login state found. Cookies: web_session, a1", res.Message)

	upper := c.Check(context.Background(), "XHS")
	assert.True(t, upper.HasValidLogin)
	assert.Equal(t, "xhs", upper.Platform)
}

func TestCheckExpiredCookiesAreIgnored(t *testing.T) {
	base := t.TempDir()
	c := newTestChecker(base)
	writeStore(t, c.cookiePath("bili", false), []Record{
		{Name: "SESSDATA", HostKey: ".bilibili.com", ExpiresRaw: chromium(fixedNow.Add(-time.Hour))},
	})
	res := c.Check(context.Background(), "bili")
	assert.False(t, res.HasValidLogin)
	assert.Equal(t, RecommendHeaded, res.Recommendation)
	assert.Equal(t, "No valid login state found. QR code login required.", res.Message)
}

func TestCheckPrefersCDPProfile(t *testing.T) {
	base := t.TempDir()
	c := newTestChecker(base)
	writeStore(t, c.cookiePath("dy", true), []Record{{Name: "ttwid", HostKey: ".douyin.com"}})
	writeStore(t, c.cookiePath("dy", false), []Record{{Name: "sessionid", HostKey: ".tiktok.com"}})

	res := c.Check(context.Background(), "dy")
	assert.True(t, res.CDPMode)
	assert.Equal(t, []string{"ttwid"}, res.CookiesFound)
	assert.Equal(t, filepath.Join(base, "cdp_dy_user_data_dir"), res.UserDataDir)
}

func TestCheckFallsBackWhenCDPStoreCorrupt(t *testing.T) {
	base := t.TempDir()
	c := newTestChecker(base)
	bad := c.cookiePath("zhihu", true)
	require.NoError(t, os.MkdirAll(filepath.Dir(bad), 0o755))
	require.NoError(t, os.WriteFile(bad, []byte("not a database"), 0o644))
	writeStore(t, c.cookiePath("zhihu", false), []Record{{Name: "z_c0", HostKey: ".zhihu.com"}})

	res := c.Check(context.Background(), "zhihu")
	assert.True(t, res.HasValidLogin)
	assert.False(t, res.CDPMode)
}

func TestCheckMissingStores(t *testing.T) {
	res := newTestChecker(t.TempDir()).Check(context.Background(), "wb")
	assert.False(t, res.HasValidLogin)
	assert.Equal(t, RecommendHeaded, res.Recommendation)
	assert.NotNil(t, res.CookiesFound)
}

type countingSource struct{ n int }

func (s *countingSource) Check(_ context.Context, p string) Result {
	s.n++
	return Result{Platform: p}
}

func TestCachedChecker(t *testing.T) {
	src := &countingSource{}
	c := NewCached(src, time.Minute)
	defer c.Close()
	c.Check(context.Background(), "xhs")
	c.Check(context.Background(), "xhs")
	assert.Equal(t, 1, src.n)
	c.Check(context.Background(), "XHS")
	assert.Equal(t, 1, src.n, "cache key ignores case")
	c.Invalidate("Xhs")
	c.Check(context.Background(), "xhs")
	assert.Equal(t, 2, src.n)

	pass := NewCached(src, 0)
	defer pass.Close()
	pass.Check(context.Background(), "xhs")
	pass.Check(context.Background(), "xhs")
	assert.Equal(t, 4, src.n)
}

func TestReadRecordsMissingTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Cookies")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE other (x INTEGER)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = ReadRecords(context.Background(), path)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, os.ErrNotExist))
}
