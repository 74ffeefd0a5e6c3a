package kvstore

import (
	"context"
	"errors"
)

// Logical keys of the credits storage scope.
const (
	KeyCredits      = "credits"
	KeyTransactions = "transactions"
)

var (
	ErrNotFound        = errors.New("key not found")
	ErrVersionConflict = errors.New("version conflict")
)

// Entry is a stored value together with its version. Versions start at 1
// and grow by one on every write.
type Entry struct {
	Key     string
	Value   []byte
	Version int64
}

// Put writes Value under Key only if the stored version still equals
// Version. Version 0 means the key must not exist yet.
type Put struct {
	Key     string
	Value   []byte
	Version int64
}

type Store interface {
	Get(ctx context.Context, key string) (Entry, error)
	// PutAll applies puts in order as one unit. If any version check
	// fails nothing is written and ErrVersionConflict is returned.
	PutAll(ctx context.Context, puts []Put) error
}
