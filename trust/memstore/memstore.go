// Package memstore is an in-memory trust.Store for single-process
// deployments and tests.
package memstore

import (
	"context"
	"sync"

	"github.com/ethgate-dev/ethgate/trust"
)

// Store holds trust grants in a mutex-guarded set.
type Store struct {
	mu     sync.RWMutex
	grants map[string]struct{}
}

var _ trust.Store = (*Store)(nil)

func New() *Store {
	return &Store{grants: make(map[string]struct{})}
}

func (s *Store) Trusted(_ context.Context, origin string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.grants[origin]
	return ok, nil
}

func (s *Store) Grant(_ context.Context, origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.grants[origin] = struct{}{}
	return nil
}

func (s *Store) Revoke(_ context.Context, origin string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.grants, origin)
	return nil
}
