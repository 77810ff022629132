package buyer

import (
	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
)

// Service exposes the buyer-side net/rpc endpoints a seller calls,
// registered as "BuyerService". Grounded in
// original_source/buyer.py's handle_announce_price/handle_finish_auction.
type Service struct {
	buyer *Buyer
}

// NewService wraps buyer for RPC registration.
func NewService(buyer *Buyer) *Service {
	return &Service{buyer: buyer}
}

// AnnouncePrice is idempotent and tolerant of out-of-order delivery: an
// announcement whose round_id is older than what's already recorded is
// ignored outright (an equal round_id is applied again), per spec §4.4's "Buyer's announce_price handler".
func (s *Service) AnnouncePrice(args auction.AnnouncePriceArgs, reply *auction.AnnouncePriceReply) error {
	store := s.buyer.store
	_, ok := store.Mutate(args.AuctionID, func(a *auction.Auction) {
		if args.RoundID < a.RoundID {
			return
		}
		if args.RoundID > -1 {
			a.Started = true
		}
		a.RoundID = args.RoundID
		a.CurrentPrice = args.Price
		replaceBuyers(a, args.BuyerStatus)
	})
	if !ok {
		reply.Success = false
		return nil
	}
	if s.buyer.ui != nil {
		s.buyer.ui.Notify(args.AuctionID, "announce")
	}
	reply.Success = true
	return nil
}

// FinishAuction marks the auction terminal and replaces the buyer list
// wholesale from the seller's closing snapshot. Idempotent: a repeated
// finish for an already-finished auction is a no-op success.
func (s *Service) FinishAuction(args auction.FinishAuctionArgs, reply *auction.FinishAuctionReply) error {
	store := s.buyer.store
	_, ok := store.Mutate(args.AuctionID, func(a *auction.Auction) {
		a.Finished = true
		a.WinnerUsername = args.WinnerUsername
		a.TransactionPrice = args.Price
		replaceBuyers(a, args.BuyerStatus)
	})
	if !ok {
		reply.Success = false
		return nil
	}
	if s.buyer.logger != nil {
		s.buyer.logger.Info("auction finished", zap.Int("auction_id", args.AuctionID), zap.String("winner", args.WinnerUsername))
	}
	if s.buyer.ui != nil {
		s.buyer.ui.Notify(args.AuctionID, "finish")
	}
	reply.Success = true
	return nil
}
