// Package expiryoverlay implements the expiry-overlay composite: tile
// data is delegated entirely to a child storage, but freshness is
// delegated to a separate expiry.Service. After construction the
// child's own expiry bits are never consulted externally — the overlay
// is the sole authority (spec §4.7).
package expiryoverlay

import (
	"context"
	"fmt"

	"github.com/MeKo-Tech/tilestore/internal/config"
	"github.com/MeKo-Tech/tilestore/internal/expiry"
	"github.com/MeKo-Tech/tilestore/internal/storage"
	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// TypeTag is the "type" config value selecting this backend.
const TypeTag = "expiry_overlay"

func init() {
	storage.Default.Register(TypeTag, func(cfg config.Tree, factory *storage.Factory) (storage.Storage, error) {
		child, err := factory.CreateChild(cfg, "storage")
		if err != nil {
			return nil, fmt.Errorf("expiryoverlay: storage: %w", err)
		}

		svcCfg := cfg.Subtree("expiry_service")
		var svc expiry.Service
		if base := svcCfg.GetString("base_url", ""); base != "" {
			svc = expiry.NewHTTPService(base, 0)
		} else {
			svc = expiry.NewMemoryService()
		}

		return New(child, svc), nil
	})
}

// Store delegates data operations to child and freshness decisions to
// service.
type Store struct {
	child   storage.Storage
	service expiry.Service
}

// New returns an expiry overlay over child, authoritative through
// service.
func New(child storage.Storage, service expiry.Service) *Store {
	return &Store{child: child, service: service}
}

// overlayHandle forwards Exists/LastModified/Data to the wrapped child
// handle but substitutes Expired with the overlay's queried value, so
// the child's own notion of expiry is never observed externally.
type overlayHandle struct {
	storage.Handle
	expired bool
}

func (h overlayHandle) Expired() bool { return h.expired }

func (s *Store) Get(ctx context.Context, tile tilekey.Address) (storage.Handle, error) {
	h, err := s.child.Get(ctx, tile)
	if err != nil {
		return nil, err
	}
	expired := s.service.IsExpired(ctx, tile)
	return overlayHandle{Handle: h, expired: expired}, nil
}

func (s *Store) GetMeta(ctx context.Context, tile tilekey.Address) ([]byte, bool, error) {
	return s.child.GetMeta(ctx, tile)
}

// PutMeta writes through to child and, on success, clears the overlay's
// expiry flag — a successful write always produces a fresh metatile.
func (s *Store) PutMeta(ctx context.Context, tile tilekey.Address, buf []byte) (bool, error) {
	ok, err := s.child.PutMeta(ctx, tile, buf)
	if err != nil {
		return false, err
	}
	if ok {
		s.service.SetExpired(ctx, tile, false)
	}
	return ok, nil
}

// Expire marks the metatile dirty through the expiry service only; the
// child's local expiry state (if it even has one) is never touched.
func (s *Store) Expire(ctx context.Context, tile tilekey.Address) (bool, error) {
	return s.service.SetExpired(ctx, tile, true), nil
}
