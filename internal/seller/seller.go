package seller

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
	"github.com/tao-l/CS262-project/internal/transport"
	"github.com/tao-l/CS262-project/internal/uiobserver"
)

// PlatformClient is the narrow slice of *platform.Client the seller
// needs: submit a command, get back a reply. Accepting the interface
// rather than the concrete type keeps this package's tests free of a
// dependency on real listening sockets.
type PlatformClient interface {
	Submit(cmd auction.Command) (auction.Reply, error)
}

// Seller is the process-level object tying together the local store, the
// Platform client, the buyer stub cache, and the UI observer. It is the
// Go analogue of original_source/seller.py's Seller class with the PyQt
// UI surface replaced by internal/uiobserver.Server.
type Seller struct {
	store   *Store
	client  PlatformClient
	stubs   *transport.StubCache
	ui      *uiobserver.Server
	logger  *zap.Logger
	address string

	mu      sync.Mutex
	drivers map[int]chan struct{} // auction id -> stop channel
}

// New builds a Seller. address is this process's own buyer/seller RPC
// listen address, reported to the Platform on login so buyers can find
// it (spec §4.4's seller RPC endpoint).
func New(store *Store, client PlatformClient, stubs *transport.StubCache, ui *uiobserver.Server, logger *zap.Logger, address string) *Seller {
	return &Seller{
		store:   store,
		client:  client,
		stubs:   stubs,
		ui:      ui,
		logger:  logger,
		address: address,
		drivers: make(map[int]chan struct{}),
	}
}

// Login registers this seller's username/address with the Platform.
func (s *Seller) Login() error {
	reply, err := s.client.Submit(auction.Command{Op: auction.OpLogin, Username: s.store.Username(), Address: s.address})
	if err != nil {
		return err
	}
	if !reply.Success {
		return fmt.Errorf("seller: login failed: %s", reply.Message)
	}
	return nil
}

// CreateAuction submits SELLER_CREATE_AUCTION and, on success, mirrors
// the new auction locally.
func (s *Seller) CreateAuction(name, itemName, itemDescription string, basePrice, period, increment int) (*auction.Auction, error) {
	reply, err := s.client.Submit(auction.Command{
		Op:                   auction.OpSellerCreateAuction,
		SellerUsername:       s.store.Username(),
		AuctionName:          name,
		ItemName:             itemName,
		ItemDescription:      itemDescription,
		BasePrice:            basePrice,
		PriceIncrementPeriod: period,
		Increment:            increment,
	})
	if err != nil {
		return nil, err
	}
	if !reply.Success {
		return nil, fmt.Errorf("seller: create auction: %s", reply.Message)
	}
	s.store.Put(reply.Auction)
	return reply.Auction, nil
}

// StartAuction submits SELLER_START_AUCTION and, unless resume, resets
// round_id=0 / current_price=base_price locally before spawning the
// price-increment driver. If resume is true the caller is expected to
// have already set up the local record's round_id/current_price from the
// Platform's stale copy (internal/seller/reconcile.go does this).
func (s *Seller) StartAuction(auctionID int, resume bool) error {
	reply, err := s.client.Submit(auction.Command{Op: auction.OpSellerStartAuction, SellerUsername: s.store.Username(), AuctionID: auctionID})
	if err != nil {
		return err
	}
	if !reply.Success {
		return fmt.Errorf("seller: start auction: %s", reply.Message)
	}

	if !resume {
		s.store.Mutate(auctionID, func(a *auction.Auction) {
			a.Started = true
			a.RoundID = 0
			a.CurrentPrice = a.BasePrice
		})
	} else {
		s.store.ClearResume(auctionID)
	}

	s.runDriver(auctionID)
	return nil
}

// runDriver spawns the price-increment driver goroutine for auctionID if
// one is not already running.
func (s *Seller) runDriver(auctionID int) {
	s.mu.Lock()
	if _, ok := s.drivers[auctionID]; ok {
		s.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	s.drivers[auctionID] = stop
	s.mu.Unlock()

	go s.driverLoop(auctionID, stop)
}

// driverLoop implements spec §4.4's "Seller's price-increment driver":
// announce (requiring ack), sleep, increment, repeat until finished.
func (s *Seller) driverLoop(auctionID int, stop chan struct{}) {
	for {
		a := s.store.Get(auctionID)
		if a == nil || a.Finished {
			s.stopDriver(auctionID)
			return
		}

		s.announceToAll(auctionID, a.RoundID, a.CurrentPrice, a.Buyers, true)
		if s.ui != nil {
			s.ui.Notify(auctionID, "announce")
		}

		select {
		case <-time.After(time.Duration(a.PriceIncrementPeriod) * time.Millisecond):
		case <-stop:
			return
		}

		next, ok := s.store.Mutate(auctionID, func(a *auction.Auction) {
			if !a.Finished {
				a.RoundID++
				a.CurrentPrice += a.Increment
			}
		})
		if !ok || next.Finished {
			s.stopDriver(auctionID)
			return
		}
	}
}

func (s *Seller) stopDriver(auctionID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.drivers, auctionID)
}

// announceToAll fans out announce_price concurrently to every buyer in
// status. When requireAck is true (the driver's own tick), an
// unresponsive buyer is treated as an implicit withdrawal, per spec
// §4.4's "Announce-price acknowledgement policy".
func (s *Seller) announceToAll(auctionID, roundID, price int, status []auction.BuyerStatus, requireAck bool) {
	args := auction.AnnouncePriceArgs{AuctionID: auctionID, RoundID: roundID, Price: price, BuyerStatus: status}
	for _, b := range status {
		go func(buyer string) {
			var reply auction.AnnouncePriceReply
			err := s.stubs.Call(buyer, "BuyerService.AnnouncePrice", args, &reply)
			if err != nil && requireAck {
				s.logger.Info("buyer did not ack announce_price, withdrawing", zap.String("buyer", buyer), zap.Int("auction_id", auctionID))
				s.Withdraw(auctionID, buyer)
			}
		}(b.Username)
	}
}

// Withdraw implements spec §4.4's withdraw semantics, atomic under the
// store's per-auction mutation. Used both by the seller's own RPC
// endpoint (buyer-initiated) and by announceToAll's implicit-withdrawal
// path.
func (s *Seller) Withdraw(auctionID int, username string) (bool, string) {
	a := s.store.Get(auctionID)
	if a == nil || a.SellerUsername != s.store.Username() {
		return false, "this seller does not have this auction"
	}
	if !a.HasBuyer(username) {
		return false, fmt.Sprintf("buyer %s did not join this auction", username)
	}

	var success bool
	var message string
	var becameFinished bool

	result, _ := s.store.Mutate(auctionID, func(a *auction.Auction) {
		if a.Finished {
			success, message = false, "this auction has finished"
			return
		}
		if !a.Started {
			success, message = false, "this auction has not started"
			return
		}
		if !a.IsActive(username) {
			success, message = true, "buyer withdrew previously"
			return
		}
		if name, ok := a.SoleActiveBuyer(); ok && name == username {
			success, message = false, "cannot withdraw: only active buyer (winner) in the auction"
			a.Finished = true
			becameFinished = true
			return
		}
		a.Withdraw(username)
		success, message = true, "success"
		if a.NumActiveBuyers() == 1 {
			becameFinished = true
		}
	})

	if becameFinished {
		go s.Finish(auctionID)
	}
	if result != nil {
		s.announceToAll(auctionID, result.RoundID, result.CurrentPrice, result.Buyers, false)
		if s.ui != nil {
			s.ui.Notify(auctionID, "withdraw")
		}
	}
	return success, message
}

// Finish implements spec §4.4's "Finish": set the terminal fields,
// broadcast finish_auction to every buyer best-effort, and retry
// SELLER_FINISH_AUCTION against the Platform until it is acknowledged.
func (s *Seller) Finish(auctionID int) {
	result, ok := s.store.Mutate(auctionID, func(a *auction.Auction) {
		a.Finished = true
		if winner, ok := a.SoleActiveBuyer(); ok {
			a.WinnerUsername = winner
			a.TransactionPrice = a.CurrentPrice
		} else {
			a.WinnerUsername = ""
			a.TransactionPrice = a.BasePrice
		}
	})
	if !ok {
		return
	}

	args := auction.FinishAuctionArgs{
		AuctionID:      auctionID,
		WinnerUsername: result.WinnerUsername,
		Price:          result.TransactionPrice,
		BuyerStatus:    result.Buyers,
	}
	for _, b := range result.Buyers {
		go func(buyer string) {
			var reply auction.FinishAuctionReply
			s.stubs.Call(buyer, "BuyerService.FinishAuction", args, &reply)
		}(b.Username)
	}

	go s.tellPlatformFinished(result)

	if s.ui != nil {
		s.ui.Notify(auctionID, "finish")
	}
}

// tellPlatformFinished retries SELLER_FINISH_AUCTION until the Platform
// acknowledges, per spec §4.4's "retrying until the Platform acknowledges".
func (s *Seller) tellPlatformFinished(a *auction.Auction) {
	for {
		reply, err := s.client.Submit(auction.Command{Op: auction.OpSellerFinishAuction, Auction: a})
		if err == nil && reply.Success {
			return
		}
		s.logger.Warn("retrying SELLER_FINISH_AUCTION", zap.Int("auction_id", a.ID), zap.Error(err))
		time.Sleep(200 * time.Millisecond)
	}
}

// Store exposes the underlying store, for reconcile.go and tests.
func (s *Seller) Store() *Store { return s.store }

// Client exposes the Platform client, for reconcile.go.
func (s *Seller) Client() PlatformClient { return s.client }

// Stubs exposes the stub cache, for reconcile.go.
func (s *Seller) Stubs() *transport.StubCache { return s.stubs }
