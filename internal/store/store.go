package store

import (
	"context"
	"errors"
	"time"
)

var ErrAccountNotFound = errors.New("account not found")

// Account types as stored in user_info.type.
const (
	TypeXiaohongshu = 1
	TypeWeixin      = 2
	TypeDouyin      = 3
	TypeKuaishou    = 4
)

var platformByType = map[int]string{
	TypeXiaohongshu: "xiaohongshu",
	TypeWeixin:      "weixin",
	TypeDouyin:      "douyin",
	TypeKuaishou:    "kuaishou",
}

// PlatformName maps an account type to its platform name, "unknown" if unmapped.
func PlatformName(typ int) string {
	if p, ok := platformByType[typ]; ok {
		return p
	}
	return "unknown"
}

// TypeOf maps a platform name to its account type.
func TypeOf(platform string) (int, bool) {
	for t, p := range platformByType {
		if p == platform {
			return t, true
		}
	}
	return 0, false
}

// Account is one logged-in uploader identity. FilePath points at the
// browser storage state the uploader reuses.
type Account struct {
	ID        int64     `json:"id"`
	Type      int       `json:"type"`
	FilePath  string    `json:"filePath"`
	UserName  string    `json:"userName"`
	Status    int       `json:"status"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Platform is the platform name derived from Type.
func (a Account) Platform() string { return PlatformName(a.Type) }

// AccountStore persists uploader accounts. Implementations are safe for
// concurrent use.
type AccountStore interface {
	EnsureSchema(ctx context.Context) error
	// Get returns the account with id and type, or ErrAccountNotFound.
	Get(ctx context.Context, id int64, typ int) (Account, error)
	// List returns accounts of typ ordered by id; typ 0 lists all.
	List(ctx context.Context, typ int) ([]Account, error)
	// Save inserts a new account when ID is 0, otherwise updates it.
	Save(ctx context.Context, a Account) (Account, error)
	SetStatus(ctx context.Context, id int64, status int) error
	Close() error
}
