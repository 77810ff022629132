package seller

import (
	"net"
	"net/rpc"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
	"github.com/tao-l/CS262-project/internal/transport"
)

// fakeClient is a minimal PlatformClient double: it always succeeds and
// records every submitted command, so tests can assert on what the
// seller tried to persist.
type fakeClient struct {
	mu       sync.Mutex
	commands []auction.Command
}

func (f *fakeClient) Submit(cmd auction.Command) (auction.Reply, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	f.mu.Unlock()
	return auction.Reply{Success: true, Auction: cmd.Auction}, nil
}

func (f *fakeClient) last() auction.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commands[len(f.commands)-1]
}

// fakeBuyerService is an in-process net/rpc buyer endpoint recording
// announce/finish calls, standing in for a real buyer process.
type fakeBuyerService struct {
	mu        sync.Mutex
	announces []auction.AnnouncePriceArgs
	finishes  []auction.FinishAuctionArgs
	refuse    bool
}

func (b *fakeBuyerService) AnnouncePrice(args auction.AnnouncePriceArgs, reply *auction.AnnouncePriceReply) error {
	if b.refuse {
		return assertErr
	}
	b.mu.Lock()
	b.announces = append(b.announces, args)
	b.mu.Unlock()
	reply.Success = true
	return nil
}

func (b *fakeBuyerService) FinishAuction(args auction.FinishAuctionArgs, reply *auction.FinishAuctionReply) error {
	b.mu.Lock()
	b.finishes = append(b.finishes, args)
	b.mu.Unlock()
	reply.Success = true
	return nil
}

var assertErr = &rpcRefusalError{}

type rpcRefusalError struct{}

func (e *rpcRefusalError) Error() string { return "refused" }

func startBuyer(t *testing.T) (*fakeBuyerService, string, func()) {
	t.Helper()
	svc := &fakeBuyerService{}
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("BuyerService", svc))
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go server.ServeConn(conn)
		}
	}()
	return svc, listener.Addr().String(), func() { listener.Close() }
}

func newTestAuction() *auction.Auction {
	return &auction.Auction{
		ID:                   1,
		Name:                 "auction-1",
		SellerUsername:       "alice",
		BasePrice:            1000,
		PriceIncrementPeriod: 50,
		Increment:            100,
		Started:              true,
		RoundID:              0,
		CurrentPrice:         1000,
		Buyers: []auction.BuyerStatus{
			{Username: "bob", Active: true},
			{Username: "carol", Active: true},
		},
		TransactionPrice: -1,
	}
}

func newTestSeller(t *testing.T) (*Seller, *fakeClient) {
	store := NewStore("alice")
	store.Put(newTestAuction())
	client := &fakeClient{}
	stubs := transport.NewStubCache(200 * time.Millisecond)
	s := New(store, client, stubs, nil, zap.NewNop(), "127.0.0.1:0")
	return s, client
}

func TestWithdrawFlipsActive(t *testing.T) {
	s, _ := newTestSeller(t)
	ok, msg := s.Withdraw(1, "bob")
	assert.True(t, ok, msg)

	a := s.Store().Get(1)
	assert.False(t, a.IsActive("bob"))
	assert.True(t, a.IsActive("carol"))
}

func TestWithdrawAlreadyInactiveSucceeds(t *testing.T) {
	s, _ := newTestSeller(t)
	// a third active buyer, so bob's withdrawal does not finish the auction
	s.Store().Mutate(1, func(a *auction.Auction) {
		a.Buyers = append(a.Buyers, auction.BuyerStatus{Username: "dave", Active: true})
	})
	s.Withdraw(1, "bob")
	ok, msg := s.Withdraw(1, "bob")
	assert.True(t, ok)
	assert.Contains(t, msg, "previously")
}

// TestSoleActiveBuyerCannotWithdraw covers E3 and property 8.
func TestSoleActiveBuyerCannotWithdraw(t *testing.T) {
	s, client := newTestSeller(t)
	// make carol the sole active buyer without going through Withdraw, which
	// would already finish the auction
	s.Store().Mutate(1, func(a *auction.Auction) { a.Withdraw("bob") })

	ok, msg := s.Withdraw(1, "carol")
	assert.False(t, ok)
	assert.Contains(t, msg, "only active buyer")

	require.Eventually(t, func() bool {
		a := s.Store().Get(1)
		return a.Finished
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(client.commands) > 0 && client.last().Op == auction.OpSellerFinishAuction
	}, time.Second, 10*time.Millisecond)

	final := client.last()
	assert.Equal(t, "carol", final.Auction.WinnerUsername)
}

func TestWithdrawUnknownBuyer(t *testing.T) {
	s, _ := newTestSeller(t)
	ok, _ := s.Withdraw(1, "dave")
	assert.False(t, ok)
}

func TestAnnounceToAllRequiringAckWithdrawsUnresponsive(t *testing.T) {
	bobSvc, bobAddr, stopBob := startBuyer(t)
	defer stopBob()
	carolSvc, carolAddr, stopCarol := startBuyer(t)
	defer stopCarol()
	carolSvc.refuse = true

	s, _ := newTestSeller(t)
	s.stubs.SetAddress("bob", bobAddr)
	s.stubs.SetAddress("carol", carolAddr)

	a := s.Store().Get(1)
	s.announceToAll(1, a.RoundID, a.CurrentPrice, a.Buyers, true)

	// bob gets the driver's announce plus the catch-up announce that
	// follows carol's implicit withdrawal
	require.Eventually(t, func() bool {
		bobSvc.mu.Lock()
		defer bobSvc.mu.Unlock()
		return len(bobSvc.announces) == 2
	}, time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		return !s.Store().Get(1).IsActive("carol")
	}, time.Second, 10*time.Millisecond)
}
