// Package storage defines the tile storage contract implemented by
// every leaf and composite backend in this module: get, get_meta,
// put_meta and expire, plus the handle type used to answer cheap
// existence/freshness queries without necessarily paying for the full
// tile payload.
package storage

import (
	"context"
	"time"

	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// Handle answers queries about a single tile without requiring the
// caller to have already fetched its data. Implementations may buffer
// the underlying fetch so that Exists, LastModified, Data and Expired
// are all cheap once the handle has been obtained.
type Handle interface {
	// Exists reports whether the tile is present in storage.
	Exists() bool

	// LastModified returns the time the tile was last written. The
	// value is unspecified when Exists reports false.
	LastModified() time.Time

	// Data returns the tile's encoded bytes and whether the copy
	// succeeded. This is the single tile's bytes, not the whole
	// metatile; callers that need the metatile should use GetMeta.
	Data() ([]byte, bool)

	// Expired reports whether the tile has been marked dirty. An
	// expired tile may still be present and worth serving.
	Expired() bool
}

// nullHandle is the universal non-existence sentinel. Leaf backends
// return this exact value (never an error) when a tile is absent; a
// composite may return it wrapped (see NullHandle).
type nullHandle struct{}

func (nullHandle) Exists() bool            { return false }
func (nullHandle) LastModified() time.Time { return time.Time{} }
func (nullHandle) Data() ([]byte, bool)    { return nil, false }
func (nullHandle) Expired() bool           { return false }

// NullHandle is the shared instance returned whenever a tile does not
// exist. Callers may compare a Handle against this value with ==, but
// should prefer calling Exists() since a composite backend may wrap it.
var NullHandle Handle = nullHandle{}

// simpleHandle is a plain, eagerly-populated Handle used by backends
// whose fetch is already cheap or already completed by the time the
// handle is constructed.
type simpleHandle struct {
	lastModified time.Time
	data         []byte
	expired      bool
}

// NewHandle builds a Handle around already-fetched tile bytes.
func NewHandle(lastModified time.Time, data []byte, expired bool) Handle {
	return &simpleHandle{lastModified: lastModified, data: data, expired: expired}
}

func (h *simpleHandle) Exists() bool            { return true }
func (h *simpleHandle) LastModified() time.Time { return h.lastModified }
func (h *simpleHandle) Data() ([]byte, bool)    { return h.data, h.data != nil }
func (h *simpleHandle) Expired() bool           { return h.expired }

// Storage is the interface every leaf and composite tile backend
// implements. Get returns a nil Handle only together with a non-nil
// error (composites pass a child's error through); absence is
// communicated by returning NullHandle, not an error.
type Storage interface {
	// Get returns a handle describing a single tile within the
	// metatile addressed by tile.
	Get(ctx context.Context, tile tilekey.Address) (Handle, error)

	// GetMeta reads a full, encoded metatile into buf. The returned
	// bool reports whether the read succeeded; it is not an error for
	// a metatile to be absent.
	GetMeta(ctx context.Context, tile tilekey.Address) (buf []byte, ok bool, err error)

	// PutMeta writes buf, an encoded metatile, to storage. The
	// returned bool reports whether the write succeeded.
	PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error)

	// Expire marks every tile in the metatile addressed by tile as
	// expired, such that a subsequent Get still succeeds but reports
	// Expired() true.
	Expire(ctx context.Context, tile tilekey.Address) (bool, error)
}
