package seller

import "github.com/tao-l/CS262-project/internal/auction"

// Service is registered on the seller process's net/rpc listener under
// the name "SellerService", exposing the single buyer-initiated endpoint
// named in spec §6: withdraw(auction_id, username) -> (success, message).
type Service struct {
	seller *Seller
}

// NewService wraps seller for RPC registration.
func NewService(seller *Seller) *Service {
	return &Service{seller: seller}
}

// Withdraw is the RPC method a buyer calls to withdraw itself from a live
// auction (spec §4.4's "Buyer-initiated withdraw").
func (s *Service) Withdraw(args auction.WithdrawArgs, reply *auction.WithdrawReply) error {
	success, message := s.seller.Withdraw(args.AuctionID, args.Username)
	reply.Success = success
	reply.Message = message
	return nil
}
