// Package cookie inspects the Chromium cookie databases left behind by the
// crawler's browser profiles and decides whether a platform login is still
// usable.
package cookie

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Chromium stores expires_utc as microseconds since 1601-01-01.
const windowsToUnixEpochSeconds = 11644473600

const (
	RecommendHeadless = "headless"
	RecommendHeaded   = "headed"
)

// Result is the outcome of a login check.
type Result struct {
	HasValidLogin  bool       `json:"hasValidLogin"`
	Platform       string     `json:"platform"`
	CookiesFound   []string   `json:"cookiesFound"`
	LastModified   *time.Time `json:"lastModified,omitempty"`
	Recommendation string     `json:"recommendation"`
	Message        string     `json:"message"`
	UserDataDir    string     `json:"userDataDir,omitempty"`
	CDPMode        bool       `json:"cdpMode"`
}

// Record is one cookie row as read from the store.
type Record struct {
	Name       string
	HostKey    string
	ExpiresRaw int64
}

// Valid reports whether the record has not expired at now. Zero means a
// session cookie, which is always valid.
func (r Record) Valid(now time.Time) bool {
	if r.ExpiresRaw == 0 {
		return true
	}
	return ExpiresAt(r.ExpiresRaw).After(now)
}

// ExpiresAt converts a Chromium expires_utc value to wall-clock time.
func ExpiresAt(raw int64) time.Time {
	sec := raw/1_000_000 - windowsToUnixEpochSeconds
	usec := raw % 1_000_000
	return time.Unix(sec, usec*1000)
}

// Checker reads cookie stores under BaseDir.
type Checker struct {
	baseDir string
	logger  *slog.Logger
	now     func() time.Time
	stat    func(string) (os.FileInfo, error)
}

func New(baseDir string, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{baseDir: baseDir, logger: logger, now: time.Now, stat: os.Stat}
}

// UserDataDir returns the browser profile directory for a platform.
func (c *Checker) UserDataDir(platformName string, cdp bool) string {
	prefix := ""
	if cdp {
		prefix = "cdp_"
	}
	return filepath.Join(c.baseDir, prefix+platformName+"_user_data_dir")
}

func (c *Checker) cookiePath(platformName string, cdp bool) string {
	return filepath.Join(c.UserDataDir(platformName, cdp), "Default", "Network", "Cookies")
}

// Check inspects the CDP profile first, then the plain one. The first
// profile with at least one valid required cookie wins.
func (c *Checker) Check(ctx context.Context, platformName string) Result {
	platformName = strings.ToLower(platformName)
	p, ok := platforms[platformName]
	if !ok {
		return Result{
			Platform:       platformName,
			CookiesFound:   []string{},
			Recommendation: RecommendHeaded,
			Message:        "Unsupported platform: " + platformName,
		}
	}
	for _, cdp := range []bool{true, false} {
		path := c.cookiePath(platformName, cdp)
		fi, err := c.stat(path)
		if err != nil {
			continue
		}
		found := c.scan(ctx, path, p)
		if len(found) == 0 {
			continue
		}
		mod := fi.ModTime()
		return Result{
			HasValidLogin:  true,
			Platform:       platformName,
			CookiesFound:   found,
			LastModified:   &mod,
			Recommendation: RecommendHeadless,
			Message:        "Valid login state found. Cookies: " + strings.Join(found, ", "),
			UserDataDir:    c.UserDataDir(platformName, cdp),
			CDPMode:        cdp,
		}
	}
	return Result{
		Platform:       platformName,
		CookiesFound:   []string{},
		Recommendation: RecommendHeaded,
		Message:        "No valid login state found. QR code login required.",
	}
}

// scan returns the distinct required cookie names that are valid, in the
// order first seen. Read errors yield an empty result.
func (c *Checker) scan(ctx context.Context, path string, p platform) []string {
	records, err := ReadRecords(ctx, path)
	if err != nil {
		c.logger.Debug("cookie store unreadable", "path", path, "error", err)
		return nil
	}
	now := c.now()
	seen := map[string]bool{}
	var found []string
	for _, r := range records {
		if !p.wants(r.Name) || !p.matchesHost(r.HostKey) || !r.Valid(now) {
			continue
		}
		if !seen[r.Name] {
			seen[r.Name] = true
			found = append(found, r.Name)
		}
	}
	return found
}

// ReadRecords opens the cookie database read-only and returns every row.
func ReadRecords(ctx context.Context, path string) ([]Record, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?mode=ro&_pragma=busy_timeout(500)")
	if err != nil {
		return nil, err
	}
	defer func() { _ = db.Close() }()
	rows, err := db.QueryContext(ctx, `SELECT name, host_key, expires_utc FROM cookies`)
	if err != nil {
		return nil, fmt.Errorf("query cookies: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.Name, &r.HostKey, &r.ExpiresRaw); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
