// Package seller implements the seller-side live-auction protocol (spec
// §4.4): the price-increment driver, withdraw/finish, and the
// reconciliation loop that keeps the local mirror in sync with the
// Platform. Grounded in original_source/seller.py's Data/Seller classes,
// generalized from PyQt signals + grpc stubs to a plain Go store guarded
// by one mutex and net/rpc stubs from internal/transport.
package seller

import (
	"sort"
	"sync"

	"github.com/tao-l/CS262-project/internal/auction"
)

// Store is the seller process's local mirror of the auctions it owns,
// the direct analogue of original_source/seller.py's Data class minus the
// rpc_stubs map (moved to internal/transport.StubCache) and the Qt
// signals (moved to internal/uiobserver.Server.Notify).
type Store struct {
	mu       sync.Mutex
	username string
	auctions map[int]*auction.Auction
	resume   map[int]bool
}

// NewStore builds an empty store for username.
func NewStore(username string) *Store {
	return &Store{
		username: username,
		auctions: make(map[int]*auction.Auction),
		resume:   make(map[int]bool),
	}
}

// Username returns the owning seller's username.
func (s *Store) Username() string {
	return s.username
}

// Get returns a deep copy of auction id, or nil if unknown.
func (s *Store) Get(id int) *auction.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil
	}
	return a.Clone()
}

// Put installs a into the store, replacing any prior record for the same
// id wholesale.
func (s *Store) Put(a *auction.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = a.Clone()
}

// Has reports whether id is already mirrored locally.
func (s *Store) Has(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.auctions[id]
	return ok
}

// MarkResume flags id as resumed (UI hint, per spec §4.5's "resume=true").
func (s *Store) MarkResume(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resume[id] = true
}

// ClearResume drops the resume flag once the driver has picked the
// auction back up.
func (s *Store) ClearResume(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.resume, id)
}

// Mutate applies fn to auction id under the store lock and returns a
// clone of the result. Reports false if id is unknown, in which case fn
// is not called. This is the single choke point every withdraw/finish/
// driver-tick mutation goes through, matching the
// "one mutex per stateful component, no RPC issued while held" rule.
func (s *Store) Mutate(id int, fn func(*auction.Auction)) (*auction.Auction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.auctions[id]
	if !ok {
		return nil, false
	}
	fn(a)
	return a.Clone(), true
}

// Snapshot returns every owned auction, ordered by id, for the UI
// observer's /auctions endpoint and the reconciliation loop.
func (s *Store) Snapshot() []*auction.Auction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auction.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		out = append(out, a.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
