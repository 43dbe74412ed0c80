package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/loykin/crawlpost/internal/store"
)

// DB implements store.AccountStore for SQLite (modernc.org/sqlite driver, CGO-free).
// DSN is a filesystem path to the SQLite database file. Use ":memory:" for in-memory.
type DB struct {
	db *sql.DB
}

var _ store.AccountStore = (*DB)(nil)

// New opens a SQLite database at path.
func New(path string) (*DB, error) {
	p := strings.TrimSpace(path)
	if p == "" {
		return nil, errors.New("empty sqlite path")
	}
	if p != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			return nil, err
		}
	}
	d, err := sql.Open("sqlite", p)
	if err != nil {
		return nil, err
	}
	if p == ":memory:" {
		d.SetMaxOpenConns(1)
	}
	// busy timeout helps with short concurrent locks
	_, _ = d.Exec("PRAGMA busy_timeout=3000;")
	return &DB{db: d}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_info(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			type INTEGER NOT NULL,
			filePath TEXT NOT NULL,
			userName TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMP NOT NULL DEFAULT (CURRENT_TIMESTAMP)
		);`)
	return err
}

func (s *DB) Close() error { return s.db.Close() }

func (s *DB) Get(ctx context.Context, id int64, typ int) (store.Account, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, type, filePath, userName, status, updated_at FROM user_info WHERE id = ? AND type = ?`, id, typ)
	a, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, store.ErrAccountNotFound
	}
	return a, err
}

func (s *DB) List(ctx context.Context, typ int) ([]store.Account, error) {
	q := `SELECT id, type, filePath, userName, status, updated_at FROM user_info`
	var args []any
	if typ != 0 {
		q += ` WHERE type = ?`
		args = append(args, typ)
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := []store.Account{}
	for rows.Next() {
		a, err := scan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *DB) Save(ctx context.Context, a store.Account) (store.Account, error) {
	a.UpdatedAt = time.Now().UTC()
	if a.ID == 0 {
		res, err := s.db.ExecContext(ctx,
			`INSERT INTO user_info(type, filePath, userName, status, updated_at) VALUES(?, ?, ?, ?, ?)`,
			a.Type, a.FilePath, a.UserName, a.Status, a.UpdatedAt)
		if err != nil {
			return store.Account{}, err
		}
		a.ID, err = res.LastInsertId()
		return a, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_info SET type = ?, filePath = ?, userName = ?, status = ?, updated_at = ? WHERE id = ?`,
		a.Type, a.FilePath, a.UserName, a.Status, a.UpdatedAt, a.ID)
	if err != nil {
		return store.Account{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.Account{}, store.ErrAccountNotFound
	}
	return a, nil
}

func (s *DB) SetStatus(ctx context.Context, id int64, status int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_info SET status = ?, updated_at = ? WHERE id = ?`, status, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrAccountNotFound
	}
	return nil
}

type scanner interface{ Scan(dest ...any) error }

func scan(r scanner) (store.Account, error) {
	var a store.Account
	err := r.Scan(&a.ID, &a.Type, &a.FilePath, &a.UserName, &a.Status, &a.UpdatedAt)
	return a, err
}
