// Package buyer implements the buyer-side live-auction protocol (spec
// §4.4): the idempotent announce_price/finish_auction handlers,
// buyer-initiated withdraw, and the reconciliation loop. Grounded in
// original_source/buyer.py's Data/Buyer classes.
package buyer

import (
	"sort"
	"sync"

	"github.com/tao-l/CS262-project/internal/auction"
)

// Store is the buyer process's local mirror of every auction it knows
// about, the analogue of original_source/buyer.py's Data class.
type Store struct {
	mu       sync.Mutex
	username string
	auctions map[int]*auction.Auction
}

// NewStore builds an empty store for username.
func NewStore(username string) *Store {
	return &Store{username: username, auctions: make(map[int]*auction.Auction)}
}

// Username returns the owning buyer's username.
func (s *Store) Username() string { return s.username }

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

// Put installs a wholesale, replacing any prior record.
func (s *Store) Put(a *auction.Auction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.auctions[a.ID] = a.Clone()
}

// Has reports whether id is mirrored locally.
func (s *Store) Has(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.auctions[id]
	return ok
}

// Mutate applies fn to auction id under the store lock and returns a
// clone of the result; reports false if id is unknown.
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

// Snapshot returns every known auction, ordered by id.
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

// replaceBuyers overwrites a's Buyers slice wholesale from status, per
// spec §4.4's announce_price/finish_auction handlers ("replace the
// buyers map wholesale from the incoming buyer_status list").
func replaceBuyers(a *auction.Auction, status []auction.BuyerStatus) {
	a.Buyers = append([]auction.BuyerStatus(nil), status...)
}
