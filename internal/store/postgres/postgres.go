package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/loykin/crawlpost/internal/store"
)

// DB implements store.AccountStore for PostgreSQL via pgx stdlib.
type DB struct {
	db *sql.DB
}

var _ store.AccountStore = (*DB)(nil)

func New(dsn string) (*DB, error) {
	d := strings.TrimSpace(dsn)
	if d == "" {
		return nil, errors.New("empty postgres DSN")
	}
	db, err := sql.Open("pgx", d)
	if err != nil {
		return nil, err
	}
	return &DB{db: db}, nil
}

func (s *DB) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_info(
			id BIGSERIAL PRIMARY KEY,
			type INTEGER NOT NULL,
			"filePath" TEXT NOT NULL,
			"userName" TEXT NOT NULL,
			status INTEGER NOT NULL DEFAULT 0,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`)
	return err
}

func (s *DB) Close() error { return s.db.Close() }

const selectCols = `SELECT id, type, "filePath", "userName", status, updated_at FROM user_info`

func (s *DB) Get(ctx context.Context, id int64, typ int) (store.Account, error) {
	row := s.db.QueryRowContext(ctx, selectCols+` WHERE id = $1 AND type = $2`, id, typ)
	a, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Account{}, store.ErrAccountNotFound
	}
	return a, err
}

func (s *DB) List(ctx context.Context, typ int) ([]store.Account, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if typ != 0 {
		rows, err = s.db.QueryContext(ctx, selectCols+` WHERE type = $1 ORDER BY id`, typ)
	} else {
		rows, err = s.db.QueryContext(ctx, selectCols+` ORDER BY id`)
	}
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
		err := s.db.QueryRowContext(ctx, `
			INSERT INTO user_info(type, "filePath", "userName", status, updated_at)
			VALUES($1, $2, $3, $4, $5) RETURNING id`,
			a.Type, a.FilePath, a.UserName, a.Status, a.UpdatedAt).Scan(&a.ID)
		return a, err
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE user_info SET type = $1, "filePath" = $2, "userName" = $3, status = $4, updated_at = $5
		WHERE id = $6`,
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
		`UPDATE user_info SET status = $1, updated_at = NOW() WHERE id = $2`, status, id)
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
