package kvstore

import (
	"database/sql"

	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore"
)

var _ kvstore.Store = (*kvRepo)(nil)

type kvRepo struct{ db *sql.DB }

func New(db *sql.DB) *kvRepo {
	return &kvRepo{db: db}
}
