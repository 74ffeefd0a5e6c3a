package kvstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore"
)

func (r *kvRepo) Get(ctx context.Context, key string) (kvstore.Entry, error) {
	var (
		value   string
		version int64
	)

	err := r.db.QueryRowContext(ctx, `
		SELECT value, version
		FROM kv
		WHERE key = $1
	`, key).Scan(&value, &version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return kvstore.Entry{}, kvstore.ErrNotFound
		}

		return kvstore.Entry{}, fmt.Errorf("get %q: %w", key, err)
	}

	return kvstore.Entry{Key: key, Value: []byte(value), Version: version}, nil
}
