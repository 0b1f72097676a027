package expiry

import (
	"context"
	"sync"

	"github.com/MeKo-Tech/tilestore/internal/tilekey"
)

// MemoryService is an in-process Service backed by a mutex-guarded map.
// It is the default when no remote expiry service is configured, and
// is convenient for tests that need a Service without a network.
type MemoryService struct {
	mu      sync.RWMutex
	expired map[key]bool
}

// NewMemoryService returns an empty MemoryService; every tile starts
// fresh.
func NewMemoryService() *MemoryService {
	return &MemoryService{expired: make(map[key]bool)}
}

func (s *MemoryService) IsExpired(_ context.Context, tile tilekey.Address) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.expired[keyOf(tile)]
}

func (s *MemoryService) SetExpired(_ context.Context, tile tilekey.Address, expired bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expired[keyOf(tile)] = expired
	return true
}
