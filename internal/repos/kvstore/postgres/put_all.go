package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/QuantumCredits/internal/infra/dbutils"
	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore"
	"github.com/jackc/pgx/v5/pgconn"
)

// PutAll writes every put inside one DB transaction. Version 0 inserts,
// anything else is a guarded update; a miss on either rolls back the batch.
func (r *kvRepo) PutAll(ctx context.Context, puts []kvstore.Put) error {
	err := dbutils.WithTx(ctx, r.db, nil, func(tx *sql.Tx) error {
		for _, p := range puts {
			err := putOne(ctx, tx, p)
			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("put all: %w", err)
	}

	return nil
}

func putOne(ctx context.Context, tx *sql.Tx, p kvstore.Put) error {
	var (
		res sql.Result
		err error
	)

	if p.Version == 0 {
		res, err = tx.ExecContext(ctx, `
			INSERT INTO kv (key, value, version)
			VALUES ($1, $2, 1)
			ON CONFLICT (key) DO NOTHING
		`, p.Key, string(p.Value))
	} else {
		res, err = tx.ExecContext(ctx, `
			UPDATE kv
			SET value = $2, version = version + 1, updated_at = now()
			WHERE key = $1
			  AND version = $3
		`, p.Key, string(p.Value), p.Version)
	}

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "40001" { // serialization_failure
			return fmt.Errorf("put %q: %w", p.Key, kvstore.ErrVersionConflict)
		}

		return fmt.Errorf("put %q: %w", p.Key, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}

	if affected == 0 {
		return fmt.Errorf("put %q at version %d: %w", p.Key, p.Version, kvstore.ErrVersionConflict)
	}

	return nil
}
