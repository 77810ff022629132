package auction

// Wire contracts for the live-auction RPCs named in spec §6, issued
// directly seller<->buyer over net/rpc, outside the consensus path.

// WithdrawArgs/WithdrawReply is the seller's buyer-initiated withdrawal
// endpoint: withdraw(auction_id, username) -> (success, message).
type WithdrawArgs struct {
	AuctionID int
	Username  string
}

type WithdrawReply struct {
	Success bool
	Message string
}

// AnnouncePriceArgs/AnnouncePriceReply is the buyer's announce_price
// endpoint: the seller's current round snapshot.
type AnnouncePriceArgs struct {
	AuctionID   int
	RoundID     int
	Price       int
	BuyerStatus []BuyerStatus
}

type AnnouncePriceReply struct {
	Success bool
}

// FinishAuctionArgs/FinishAuctionReply is the buyer's finish_auction
// endpoint: the seller's terminal snapshot.
type FinishAuctionArgs struct {
	AuctionID      int
	WinnerUsername string
	Price          int
	BuyerStatus    []BuyerStatus
}

type FinishAuctionReply struct {
	Success bool
}
