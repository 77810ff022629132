package platformsm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
)

func newTestMachine() *StateMachine {
	return New(zap.NewNop())
}

func loginSeller(t *testing.T, sm *StateMachine, username string) {
	t.Helper()
	reply := sm.Apply(auction.Command{Op: auction.OpLogin, Username: username, Address: username + ":9000"})
	require.True(t, reply.Success)
}

func createAuction(t *testing.T, sm *StateMachine, seller, name string) auction.Reply {
	t.Helper()
	return sm.Apply(auction.Command{
		Op:                   auction.OpSellerCreateAuction,
		SellerUsername:       seller,
		AuctionName:          name,
		ItemName:             "widget",
		ItemDescription:      "a widget",
		BasePrice:            1000,
		PriceIncrementPeriod: 1000,
		Increment:            100,
	})
}

func TestSellerCreateAuctionAssignsContiguousIDs(t *testing.T) {
	sm := newTestMachine()
	loginSeller(t, sm, "alice")

	r1 := createAuction(t, sm, "alice", "auction-1")
	r2 := createAuction(t, sm, "alice", "auction-2")
	require.True(t, r1.Success)
	require.True(t, r2.Success)

	snap := sm.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, 1, snap[0].ID)
	assert.Equal(t, 2, snap[1].ID)
}

// TestSellerCreateAuctionDuplicateRejected covers property 9.
func TestSellerCreateAuctionDuplicateRejected(t *testing.T) {
	sm := newTestMachine()
	loginSeller(t, sm, "alice")

	r1 := createAuction(t, sm, "alice", "auction-1")
	require.True(t, r1.Success)

	dup := createAuction(t, sm, "alice", "auction-1")
	assert.False(t, dup.Success)

	changed := sm.Apply(auction.Command{
		Op:                   auction.OpSellerCreateAuction,
		SellerUsername:       "alice",
		AuctionName:          "auction-1",
		ItemName:             "widget",
		ItemDescription:      "a widget",
		BasePrice:            1000,
		PriceIncrementPeriod: 1000,
		Increment:            200, // the one changed field
	})
	require.True(t, changed.Success)
	assert.Equal(t, 2, changed.Auction.ID)
}

func TestBuyerFetchAuctionsShieldsNonParticipant(t *testing.T) {
	sm := newTestMachine()
	loginSeller(t, sm, "alice")
	loginSeller(t, sm, "bob")
	loginSeller(t, sm, "carol")

	created := createAuction(t, sm, "alice", "auction-1")
	require.True(t, created.Success)

	join := sm.Apply(auction.Command{Op: auction.OpBuyerJoinAuction, Username: "bob", AuctionID: created.Auction.ID})
	require.True(t, join.Success)

	fetch := sm.Apply(auction.Command{Op: auction.OpBuyerFetchAuctions, Username: "carol"})
	require.True(t, fetch.Success)
	require.Len(t, fetch.Auctions, 1)

	shielded := fetch.Auctions[0]
	assert.Nil(t, shielded.Buyers)
	assert.Equal(t, 0, shielded.CurrentPrice)
	assert.Equal(t, 0, shielded.RoundID)
	assert.Equal(t, "auction-1", shielded.Name) // non-shielded fields survive

	fetchAsParticipant := sm.Apply(auction.Command{Op: auction.OpBuyerFetchAuctions, Username: "bob"})
	require.True(t, fetchAsParticipant.Success)
	require.Len(t, fetchAsParticipant.Auctions, 1)
	assert.NotNil(t, fetchAsParticipant.Auctions[0].Buyers)
}

func TestBuyerJoinQuitRejectedAfterStart(t *testing.T) {
	sm := newTestMachine()
	loginSeller(t, sm, "alice")
	loginSeller(t, sm, "bob")

	created := createAuction(t, sm, "alice", "auction-1")
	sm.Apply(auction.Command{Op: auction.OpBuyerJoinAuction, Username: "bob", AuctionID: created.Auction.ID})
	sm.Apply(auction.Command{Op: auction.OpSellerStartAuction, SellerUsername: "alice", AuctionID: created.Auction.ID})

	late := sm.Apply(auction.Command{Op: auction.OpBuyerJoinAuction, Username: "carol", AuctionID: created.Auction.ID})
	assert.False(t, late.Success)

	quit := sm.Apply(auction.Command{Op: auction.OpBuyerQuitAuction, Username: "bob", AuctionID: created.Auction.ID})
	assert.False(t, quit.Success)
}

func TestSellerStartAuctionIdempotent(t *testing.T) {
	sm := newTestMachine()
	loginSeller(t, sm, "alice")
	created := createAuction(t, sm, "alice", "auction-1")

	first := sm.Apply(auction.Command{Op: auction.OpSellerStartAuction, SellerUsername: "alice", AuctionID: created.Auction.ID})
	second := sm.Apply(auction.Command{Op: auction.OpSellerStartAuction, SellerUsername: "alice", AuctionID: created.Auction.ID})
	assert.True(t, first.Success)
	assert.True(t, second.Success)
}

func TestSellerFinishAuctionOverwritesWholesale(t *testing.T) {
	sm := newTestMachine()
	loginSeller(t, sm, "alice")
	loginSeller(t, sm, "bob")

	created := createAuction(t, sm, "alice", "auction-1")
	sm.Apply(auction.Command{Op: auction.OpBuyerJoinAuction, Username: "bob", AuctionID: created.Auction.ID})
	sm.Apply(auction.Command{Op: auction.OpSellerStartAuction, SellerUsername: "alice", AuctionID: created.Auction.ID})

	final := created.Auction.Clone()
	final.Started = true
	final.Finished = true
	final.WinnerUsername = "bob"
	final.TransactionPrice = 1500
	final.Buyers = []auction.BuyerStatus{{Username: "bob", Active: true}}

	reply := sm.Apply(auction.Command{Op: auction.OpSellerFinishAuction, Auction: final})
	require.True(t, reply.Success)
	assert.True(t, reply.Auction.Finished)
	assert.Equal(t, "bob", reply.Auction.WinnerUsername)
	assert.Equal(t, 1500, reply.Auction.TransactionPrice)

	// idempotent repeat
	repeat := sm.Apply(auction.Command{Op: auction.OpSellerFinishAuction, Auction: final})
	assert.True(t, repeat.Success)
}

// TestApplyDeterminism covers property 10: two independently-built machines
// fed the identical command sequence converge to the same state.
func TestApplyDeterminism(t *testing.T) {
	commands := []auction.Command{
		{Op: auction.OpLogin, Username: "alice", Address: "a:1"},
		{Op: auction.OpLogin, Username: "bob", Address: "b:1"},
		{Op: auction.OpSellerCreateAuction, SellerUsername: "alice", AuctionName: "x", ItemName: "i", ItemDescription: "d", BasePrice: 500, PriceIncrementPeriod: 500, Increment: 50},
		{Op: auction.OpBuyerJoinAuction, Username: "bob", AuctionID: 1},
		{Op: auction.OpSellerStartAuction, SellerUsername: "alice", AuctionID: 1},
	}

	sm1 := newTestMachine()
	sm2 := newTestMachine()
	for _, c := range commands {
		sm1.Apply(c)
		sm2.Apply(c)
	}

	assert.Equal(t, sm1.Snapshot(), sm2.Snapshot())
}

func TestUnsupportedOpFails(t *testing.T) {
	sm := newTestMachine()
	reply := sm.Apply(auction.Command{Op: auction.Op("BOGUS")})
	assert.False(t, reply.Success)
}
