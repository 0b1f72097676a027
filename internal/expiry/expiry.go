// Package expiry defines the remote expiry-service collaborator that
// expiryoverlay delegates freshness decisions to (spec §4.7, §1): an
// external authority queried with is_expired / set_expired, decoupled
// from wherever the tile bytes themselves live.
package expiry

import (
	"context"

	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// Service is the external authority for a metatile's freshness.
// expiryoverlay is the sole caller; once a storage is wrapped in an
// overlay, the child's own expiry bits are never consulted again
// (spec §4.7 invariant).
type Service interface {
	// IsExpired reports whether tile's covering metatile is marked
	// dirty. Implementations must never panic; an unreachable remote
	// falls back to its own conservative default (see HTTPService).
	IsExpired(ctx context.Context, tile tilekey.Address) bool

	// SetExpired marks (or clears) the dirty flag for tile's covering
	// metatile and reports whether the write succeeded.
	SetExpired(ctx context.Context, tile tilekey.Address, expired bool) bool
}

// key identifies a metatile's expiry state independent of its format;
// expiry is metatile-wide, not per-format, since a single put_meta can
// cover several formats at once.
type key struct {
	style string
	z, x, y int32
}

func keyOf(tile tilekey.Address) key {
	x, y := tile.MetaOrigin()
	return key{style: tile.Style, z: tile.Z, x: x, y: y}
}
