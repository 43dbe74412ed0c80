package factory

import (
	"errors"
	"strings"

	"github.com/loykin/crawlpost/internal/store"
	pg "github.com/loykin/crawlpost/internal/store/postgres"
	sq "github.com/loykin/crawlpost/internal/store/sqlite"
)

// NewFromDSN selects an account store implementation based on DSN.
// Supported:
//   - sqlite:  "sqlite:///<path>" or bare filepath (treated as sqlite)
//   - postgres: DSN starting with "postgres://" or "postgresql://"
func NewFromDSN(dsn string) (store.AccountStore, error) {
	d := strings.TrimSpace(dsn)
	ld := strings.ToLower(d)
	if ld == "" {
		return nil, errors.New("empty DSN")
	}
	if strings.HasPrefix(ld, "postgres://") || strings.HasPrefix(ld, "postgresql://") {
		return pg.New(d)
	}
	if strings.HasPrefix(ld, "sqlite://") {
		return sq.New(d[len("sqlite://"):])
	}
	if strings.Contains(d, "://") {
		return nil, errors.New("unsupported account store DSN scheme")
	}
	return sq.New(d)
}
