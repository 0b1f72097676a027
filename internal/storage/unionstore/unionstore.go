// Package unionstore implements the union composite: an ordered list
// of child backends used to ease migration between storage backends.
// Reads try each child in declaration order and return the first
// success; writes fan out to every child unconditionally. It is
// grounded on the original union_storage, with the write fan-out
// adapted to run concurrently in the shape of the teacher's worker
// pool rather than the original's sequential BOOST_FOREACH loop.
package unionstore

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/MeKo-Tech/tilestore/internal/config"
	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// TypeTag is the "type" config value selecting this backend.
const TypeTag = "union"

func init() {
	storage.Default.Register(TypeTag, func(cfg config.Tree, factory *storage.Factory) (storage.Storage, error) {
		names, ok := cfg.Get("storages")
		if !ok {
			return nil, fmt.Errorf("unionstore: config key %q is required", "storages")
		}
		children := make([]storage.Storage, 0, len(names))
		for _, name := range splitNames(names) {
			child, err := factory.CreateChild(cfg, name)
			if err != nil {
				return nil, err
			}
			children = append(children, child)
		}
		if len(children) == 0 {
			return nil, fmt.Errorf("unionstore: %q resolved to no children", names)
		}
		return New(children...), nil
	})
}

// splitNames splits a comma-or-space separated name list, dropping
// empty items produced by repeated separators.
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

// Store fans reads out to the first child with an answer, and writes
// out to every child unconditionally.
type Store struct {
	children []storage.Storage
}

// New returns a union of the given children, tried in the given order
// for reads.
func New(children ...storage.Storage) *Store {
	return &Store{children: children}
}

func (s *Store) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	for _, child := range s.children {
		h, err := child.Get(ctx, tile)
		if err != nil {
			return nil, err
		}
		if h.Exists() {
			return h, nil
		}
	}
	return storage.NullHandle, nil
}

func (s *Store) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	for _, child := range s.children {
		buf, ok, err := child.GetMeta(ctx, tile)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return buf, true, nil
		}
	}
	return nil, false, nil
}

// PutMeta writes buf to every child, regardless of whether earlier
// children failed, and reports success only if all of them did. The
// children run concurrently since writes are typically I/O-bound and
// independent of one another.
func (s *Store) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	results := s.fanOut(func(child storage.Storage) (bool, error) {
		return child.PutMeta(ctx, tile, buf)
	})
	return reduceAnd(results)
}

// Expire marks the metatile expired in every child unconditionally,
// succeeding only if all children succeeded.
func (s *Store) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	results := s.fanOut(func(child storage.Storage) (bool, error) {
		return child.Expire(ctx, tile)
	})
	return reduceAnd(results)
}

type childResult struct {
	ok  bool
	err error
}

// fanOut runs op against every child concurrently and waits for all of
// them to finish before returning. No child's failure short-circuits
// the others; every child is always invoked.
func (s *Store) fanOut(op func(storage.Storage) (bool, error)) []childResult {
	results := make([]childResult, len(s.children))

	var wg sync.WaitGroup
	wg.Add(len(s.children))
	for i, child := range s.children {
		go func(i int, child storage.Storage) {
			defer wg.Done()
			ok, err := op(child)
			results[i] = childResult{ok: ok, err: err}
		}(i, child)
	}
	wg.Wait()

	return results
}

func reduceAnd(results []childResult) (bool, error) {
	ok := true
	var firstErr error
	for _, r := range results {
		if r.err != nil && firstErr == nil {
			firstErr = r.err
		}
		ok = ok && r.ok
	}
	return ok, firstErr
}
