// Package sqlite is the embedded kvstore backend. One database file is one
// storage scope; the schema is migrated on Migrate.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"

	"github.com/fastprodman/QuantumCredits/internal/infra/dbutils"
	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore"

	"github.com/golang-migrate/migrate/v4"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var _ kvstore.Store = (*Store)(nil)

type Store struct{ db *sql.DB }

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Migrate brings the kv schema up to date.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("iofs source: %w", err)
	}

	driver, err := migratesqlite.WithInstance(db, &migratesqlite.Config{})
	if err != nil {
		return fmt.Errorf("init sqlite driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("m.Up: %w", err)
	}

	return nil
}

func (s *Store) Get(ctx context.Context, key string) (kvstore.Entry, error) {
	var (
		value   string
		version int64
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT value, version FROM kv WHERE key = ?`, key,
	).Scan(&value, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return kvstore.Entry{}, kvstore.ErrNotFound
		}

		return kvstore.Entry{}, fmt.Errorf("get %q: %w", key, err)
	}

	return kvstore.Entry{Key: key, Value: []byte(value), Version: version}, nil
}

func (s *Store) PutAll(ctx context.Context, puts []kvstore.Put) error {
	err := dbutils.WithTx(ctx, s.db, nil, func(tx *sql.Tx) error {
		for _, p := range puts {
			var (
				res sql.Result
				err error
			)

			if p.Version == 0 {
				res, err = tx.ExecContext(ctx,
					`INSERT INTO kv (key, value, version) VALUES (?, ?, 1) ON CONFLICT (key) DO NOTHING`,
					p.Key, string(p.Value))
			} else {
				res, err = tx.ExecContext(ctx,
					`UPDATE kv
					SET value = ?, version = version + 1, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now')
					WHERE key = ? AND version = ?`,
					string(p.Value), p.Key, p.Version)
			}

			if err != nil {
				return fmt.Errorf("put %q: %w", p.Key, err)
			}

			affected, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("rows affected: %w", err)
			}

			if affected == 0 {
				return fmt.Errorf("put %q at version %d: %w", p.Key, p.Version, kvstore.ErrVersionConflict)
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("put all: %w", err)
	}

	return nil
}
