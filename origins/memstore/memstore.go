// Package memstore is an in-memory origins.Store for single-process
// deployments and tests.
package memstore

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/ethgate-dev/ethgate/jsonrpc"
	"github.com/ethgate-dev/ethgate/origins"
)

const defaultChain = "0x1"

// Store tracks origin records in a mutex-guarded map.
type Store struct {
	log   *slog.Logger
	chain string

	mu   sync.Mutex
	recs map[string]*record
}

type record struct {
	chainID  string
	active   bool
	lastSeen time.Time
}

var _ origins.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithDefaultChain overrides the chain assigned to origins that never
// selected one. Default is 0x1.
func WithDefaultChain(chainID string) Option {
	return func(s *Store) {
		if chainID != "" {
			s.chain = chainID
		}
	}
}

// WithLogger sets a custom logger for the Store.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		log:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		chain: defaultChain,
		recs:  make(map[string]*record),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Store) UpdateOrigin(ctx context.Context, p *jsonrpc.Payload, identity string, handshake bool) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[identity]
	if !ok {
		rec = &record{chainID: s.chain}
		// Connection probes must not leave origin state behind.
		if !handshake {
			s.recs[identity] = rec
		}
	}
	if !handshake {
		rec.active = true
		rec.lastSeen = time.Now()
	}

	chain := p.ChainID
	if chain == "" {
		chain = rec.chainID
		p.ChainID = chain
	}
	p.Origin = identity

	return chain, nil
}

func (s *Store) EndSession(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.recs[identity]; ok && rec.active {
		rec.active = false
		s.log.Debug("origin session ended", slog.String("origin", identity))
	}
	return nil
}

// SetChain selects the chain used for the origin's requests that do not
// declare one, creating the origin record if needed.
func (s *Store) SetChain(identity, chainID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[identity]
	if !ok {
		rec = &record{}
		s.recs[identity] = rec
	}
	rec.chainID = chainID
}

// Active reports whether the origin has a live session.
func (s *Store) Active(identity string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recs[identity]
	return ok && rec.active
}
