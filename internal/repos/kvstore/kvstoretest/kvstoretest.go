// Package kvstoretest holds behaviour tests shared by every kvstore backend.
package kvstoretest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fastprodman/QuantumCredits/internal/repos/kvstore"
)

// Run exercises a backend. newStore must return an empty store.
//
//nolint:gocognit
func Run(t *testing.T, newStore func(t *testing.T) kvstore.Store) {
	t.Helper()

	t.Run("get_missing_key", func(t *testing.T) {
		s := newStore(t)

		_, err := s.Get(ctx(t), kvstore.KeyCredits)
		if !errors.Is(err, kvstore.ErrNotFound) {
			t.Fatalf("want ErrNotFound, got %v", err)
		}
	})

	t.Run("insert_then_update", func(t *testing.T) {
		s := newStore(t)

		err := s.PutAll(ctx(t), []kvstore.Put{
			{Key: kvstore.KeyTransactions, Value: []byte(`[]`), Version: 0},
			{Key: kvstore.KeyCredits, Value: []byte(`0`), Version: 0},
		})
		if err != nil {
			t.Fatalf("insert: %v", err)
		}

		err = s.PutAll(ctx(t), []kvstore.Put{
			{Key: kvstore.KeyCredits, Value: []byte(`7`), Version: 1},
		})
		if err != nil {
			t.Fatalf("update: %v", err)
		}

		got, err := s.Get(ctx(t), kvstore.KeyCredits)
		if err != nil {
			t.Fatalf("get: %v", err)
		}

		if string(got.Value) != "7" || got.Version != 2 {
			t.Fatalf("credits: got value=%q version=%d, want 7 at 2", got.Value, got.Version)
		}
	})

	t.Run("stale_version_rejected", func(t *testing.T) {
		s := newStore(t)

		err := s.PutAll(ctx(t), []kvstore.Put{{Key: kvstore.KeyCredits, Value: []byte(`5`)}})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}

		err = s.PutAll(ctx(t), []kvstore.Put{{Key: kvstore.KeyCredits, Value: []byte(`9`)}})
		if !errors.Is(err, kvstore.ErrVersionConflict) {
			t.Fatalf("second insert: want ErrVersionConflict, got %v", err)
		}

		err = s.PutAll(ctx(t), []kvstore.Put{{Key: kvstore.KeyCredits, Value: []byte(`9`), Version: 3}})
		if !errors.Is(err, kvstore.ErrVersionConflict) {
			t.Fatalf("wrong version: want ErrVersionConflict, got %v", err)
		}

		got, err := s.Get(ctx(t), kvstore.KeyCredits)
		if err != nil {
			t.Fatalf("get: %v", err)
		}

		if string(got.Value) != "5" {
			t.Fatalf("value changed by rejected put: %q", got.Value)
		}
	})

	t.Run("conflict_rolls_back_whole_batch", func(t *testing.T) {
		s := newStore(t)

		err := s.PutAll(ctx(t), []kvstore.Put{{Key: kvstore.KeyCredits, Value: []byte(`1`)}})
		if err != nil {
			t.Fatalf("seed: %v", err)
		}

		// the first put is valid, the second is stale
		err = s.PutAll(ctx(t), []kvstore.Put{
			{Key: kvstore.KeyTransactions, Value: []byte(`[{"id":"x"}]`), Version: 0},
			{Key: kvstore.KeyCredits, Value: []byte(`2`), Version: 0},
		})
		if !errors.Is(err, kvstore.ErrVersionConflict) {
			t.Fatalf("want ErrVersionConflict, got %v", err)
		}

		_, err = s.Get(ctx(t), kvstore.KeyTransactions)
		if !errors.Is(err, kvstore.ErrNotFound) {
			t.Fatalf("transactions written despite conflict: %v", err)
		}
	})
}

func ctx(t *testing.T) context.Context {
	t.Helper()

	c, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	t.Cleanup(cancel)

	return c
}
