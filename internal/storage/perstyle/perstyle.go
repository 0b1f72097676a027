// Package perstyle implements the per-style composite: an exact
// lookup from a tile's style to a dedicated child backend, falling
// back to a default child for any style not explicitly listed. Every
// operation touches exactly one child. It is grounded on the original
// per_style_storage.
package perstyle

import (
	"context"
	"fmt"
	"strings"

	"github.com/MeKo-Tech/tilestore/internal/config"
	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// TypeTag is the "type" config value selecting this backend.
const TypeTag = "per_style"

func init() {
	storage.Default.Register(TypeTag, func(cfg config.Tree, factory *storage.Factory) (storage.Storage, error) {
		names, ok := cfg.Get("styles")
		if !ok {
			return nil, fmt.Errorf("perstyle: config key %q is required", "styles")
		}

		styles := make(map[string]storage.Storage)
		for _, name := range splitNames(names) {
			child, err := factory.CreateChild(cfg, name)
			if err != nil {
				return nil, err
			}
			styles[name] = child
		}

		def, err := factory.CreateChild(cfg, "default")
		if err != nil {
			return nil, fmt.Errorf("perstyle: default: %w", err)
		}

		return New(styles, def), nil
	})
}

func splitNames(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' '
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

// Store routes each operation to the child registered for the tile's
// style, or to the default child if the style is not listed.
type Store struct {
	byStyle map[string]storage.Storage
	def     storage.Storage
}

// New returns a per-style router over byStyle, falling back to def.
func New(byStyle map[string]storage.Storage, def storage.Storage) *Store {
	return &Store{byStyle: byStyle, def: def}
}

func (s *Store) child(style string) storage.Storage {
	if c, ok := s.byStyle[style]; ok {
		return c
	}
	return s.def
}

func (s *Store) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	return s.child(tile.Style).Get(ctx, tile)
}

func (s *Store) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	return s.child(tile.Style).GetMeta(ctx, tile)
}

func (s *Store) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	return s.child(tile.Style).PutMeta(ctx, tile, buf)
}

func (s *Store) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	return s.child(tile.Style).Expire(ctx, tile)
}
