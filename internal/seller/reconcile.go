package seller

import (
	"time"

	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
)

// ReconcileInterval is the 1-second period named in spec §4.5.
const ReconcileInterval = 1 * time.Second

// RunReconciler runs the seller's 1-second loop until stop is closed:
// fetch this seller's auctions from the Platform, merge per spec §4.5's
// three-way rule, refresh buyer stubs, and resume any driver that needs
// restarting after a crash. Grounded in
// original_source/seller.py's fetch_auctions_from_server_and_update and
// update_buyer_stubs_in_auction, run on the same ticker.
func (s *Seller) RunReconciler(stop <-chan struct{}) {
	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s.reconcileOnce()
		}
	}
}

func (s *Seller) reconcileOnce() {
	reply, err := s.client.Submit(auction.Command{Op: auction.OpSellerFetchAuctions, Username: s.store.Username()})
	if err != nil || !reply.Success {
		s.logger.Debug("reconcile: fetch failed", zap.Error(err))
		return
	}

	for _, platformAuction := range reply.Auctions {
		s.mergeOne(platformAuction)
	}

	for _, a := range s.store.Snapshot() {
		for _, b := range a.Buyers {
			s.refreshBuyerStub(b.Username)
		}
	}
}

// mergeOne applies spec §4.5's merge rule for a single auction id.
func (s *Seller) mergeOne(platformAuction *auction.Auction) {
	if !s.store.Has(platformAuction.ID) {
		s.store.Put(platformAuction)
		if platformAuction.Started && !platformAuction.Finished {
			s.store.MarkResume(platformAuction.ID)
			go s.resumeDriver(platformAuction)
		}
		return
	}

	switch {
	case platformAuction.Finished:
		s.store.Put(platformAuction)
	case !platformAuction.Started:
		s.store.Put(platformAuction)
	default:
		// started && !finished: the seller owns live state, leave it alone.
	}
}

// resumeDriver restarts the price-increment driver for an auction this
// process did not itself start (found live via reconciliation after a
// restart), preserving the Platform-reported round_id/current_price as
// the starting point, per spec §4.5's resume behavior.
func (s *Seller) resumeDriver(a *auction.Auction) {
	s.mu.Lock()
	_, running := s.drivers[a.ID]
	s.mu.Unlock()
	if running {
		return
	}
	s.logger.Info("resuming price-increment driver", zap.Int("auction_id", a.ID))
	s.runDriver(a.ID)
}

func (s *Seller) refreshBuyerStub(username string) {
	reply, err := s.client.Submit(auction.Command{Op: auction.OpGetUserAddress, Username: username})
	if err != nil || !reply.Success {
		return
	}
	s.stubs.SetAddress(username, reply.Message)
}
