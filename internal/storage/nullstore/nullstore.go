// Package nullstore implements the trivial backend: every tile is
// absent, every write and expire request reports success without
// persisting anything. It is grounded on the original null_storage,
// whose only job is to give callers a safe default when no real
// backend is configured.
package nullstore

import (
	"context"

	"github.com/MeKo-Tech/tilestore/internal/config"
	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// TypeTag is the "type" config value selecting this backend.
const TypeTag = "null"

func init() {
	storage.Default.Register(TypeTag, func(cfg config.Tree, factory *storage.Factory) (storage.Storage, error) {
		return New(), nil
	})
}

// Store is the null backend. Its zero value is ready to use.
type Store struct{}

// New returns a Store.
func New() *Store { return &Store{} }

func (s *Store) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	return storage.NullHandle, nil
}

func (s *Store) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	return nil, false, nil
}

func (s *Store) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	return true, nil
}

func (s *Store) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	return true, nil
}
