package buyer

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
	"github.com/tao-l/CS262-project/internal/transport"
	"github.com/tao-l/CS262-project/internal/uiobserver"
)

// PlatformClient is the narrow slice of *platform.Client the buyer needs,
// mirroring internal/seller's interface of the same name and for the same
// reason: tests exercise a fake instead of standing up real listeners.
type PlatformClient interface {
	Submit(cmd auction.Command) (auction.Reply, error)
}

// Buyer is the process-level object tying together the local store, the
// Platform client, the seller stub cache, and the UI observer. The Go
// analogue of original_source/buyer.py's Buyer class.
type Buyer struct {
	store   *Store
	client  PlatformClient
	stubs   *transport.StubCache
	ui      *uiobserver.Server
	logger  *zap.Logger
	address string

	mu sync.Mutex
}

// New builds a Buyer. address is this process's own BuyerService listen
// address, reported to the Platform on login so a seller's announce_price
// and finish_auction calls can find it (spec §4.4).
func New(store *Store, client PlatformClient, stubs *transport.StubCache, ui *uiobserver.Server, logger *zap.Logger, address string) *Buyer {
	return &Buyer{store: store, client: client, stubs: stubs, ui: ui, logger: logger, address: address}
}

// Login registers this buyer's username and address with the Platform.
func (b *Buyer) Login() error {
	reply, err := b.client.Submit(auction.Command{Op: auction.OpLogin, Username: b.store.Username(), Address: b.address})
	if err != nil {
		return err
	}
	if !reply.Success {
		return fmt.Errorf("buyer: login failed: %s", reply.Message)
	}
	return nil
}

// FetchAuctions submits BUYER_FETCH_AUCTIONS and merges the result into the
// local store per spec §4.5's merge rule (mergeOne, reconcile.go).
func (b *Buyer) FetchAuctions() error {
	reply, err := b.client.Submit(auction.Command{Op: auction.OpBuyerFetchAuctions, Username: b.store.Username()})
	if err != nil {
		return err
	}
	if !reply.Success {
		return fmt.Errorf("buyer: fetch auctions: %s", reply.Message)
	}
	for _, a := range reply.Auctions {
		b.mergeOne(a)
	}
	return nil
}

// JoinAuction submits BUYER_JOIN_AUCTION and mirrors the result locally.
func (b *Buyer) JoinAuction(auctionID int) error {
	reply, err := b.client.Submit(auction.Command{Op: auction.OpBuyerJoinAuction, Username: b.store.Username(), AuctionID: auctionID})
	if err != nil {
		return err
	}
	if !reply.Success {
		return fmt.Errorf("buyer: join auction: %s", reply.Message)
	}
	b.store.Put(reply.Auction)
	return nil
}

// QuitAuction submits BUYER_QUIT_AUCTION, for a buyer leaving before the
// auction has started (the Platform enforces the not-started invariant;
// this is distinct from Withdraw, which leaves a live auction).
func (b *Buyer) QuitAuction(auctionID int) error {
	reply, err := b.client.Submit(auction.Command{Op: auction.OpBuyerQuitAuction, Username: b.store.Username(), AuctionID: auctionID})
	if err != nil {
		return err
	}
	if !reply.Success {
		return fmt.Errorf("buyer: quit auction: %s", reply.Message)
	}
	b.store.Put(reply.Auction)
	return nil
}

// Withdraw calls the owning seller's Withdraw RPC directly, per spec §6's
// seller-hosted Withdraw endpoint. The seller's reply is authoritative; this
// process's local mirror catches up on the next announce/reconcile.
func (b *Buyer) Withdraw(auctionID int) (bool, string, error) {
	a := b.store.Get(auctionID)
	if a == nil {
		return false, "", auction.ErrUnknownAuction
	}
	args := auction.WithdrawArgs{AuctionID: auctionID, Username: b.store.Username()}
	var reply auction.WithdrawReply
	if err := b.stubs.Call(a.SellerUsername, "SellerService.Withdraw", args, &reply); err != nil {
		return false, "", fmt.Errorf("%w: %v", auction.ErrTransport, err)
	}
	return reply.Success, reply.Message, nil
}

// Store exposes the underlying store, for reconcile.go, rpc.go and tests.
func (b *Buyer) Store() *Store { return b.store }

// Stubs exposes the seller stub cache, for reconcile.go.
func (b *Buyer) Stubs() *transport.StubCache { return b.stubs }
