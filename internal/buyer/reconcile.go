package buyer

import (
	"time"

	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
)

// ReconcileInterval is the 1-second period named in spec §4.5.
const ReconcileInterval = 1 * time.Second

// RunReconciler runs the buyer's 1-second loop until stop is closed: fetch
// every auction this buyer has visibility into, merge per spec §4.5's
// three-way rule, and refresh the seller stub cache. Grounded in
// original_source/buyer.py's fetch_auctions_from_server_and_update.
func (b *Buyer) RunReconciler(stop <-chan struct{}) {
	ticker := time.NewTicker(ReconcileInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			b.reconcileOnce()
		}
	}
}

func (b *Buyer) reconcileOnce() {
	reply, err := b.client.Submit(auction.Command{Op: auction.OpBuyerFetchAuctions, Username: b.store.Username()})
	if err != nil || !reply.Success {
		b.logger.Debug("reconcile: fetch failed", zap.Error(err))
		return
	}

	for _, a := range reply.Auctions {
		b.mergeOne(a)
	}

	for _, a := range b.store.Snapshot() {
		b.refreshSellerStub(a.SellerUsername)
	}
}

// mergeOne applies spec §4.5's merge rule for a single auction id: the
// same rule the seller side applies, since the rule is symmetric in who's
// "owner" of the live in-memory state (here, announce_price/finish_auction
// deliveries own it instead of a local driver).
func (b *Buyer) mergeOne(platformAuction *auction.Auction) {
	if !b.store.Has(platformAuction.ID) {
		b.store.Put(platformAuction)
		return
	}

	switch {
	case platformAuction.Finished:
		b.store.Put(platformAuction)
	case !platformAuction.Started:
		b.store.Put(platformAuction)
	default:
		// started && !finished: the live announce/finish stream owns this
		// state, leave it alone.
	}
}

func (b *Buyer) refreshSellerStub(username string) {
	reply, err := b.client.Submit(auction.Command{Op: auction.OpGetUserAddress, Username: username})
	if err != nil || !reply.Success {
		return
	}
	b.stubs.SetAddress(username, reply.Message)
}
