// Package platformsm implements the deterministic Platform state machine:
// the pure (state, command) -> (state, reply) function fed one committed
// auction.Command at a time by the applier in internal/platform. Grounded
// in the teacher's Calculator.ApplyCommand dispatch-by-method-string
// (_examples/aecra-raft/calculator/calculator.go), generalized to the
// auction domain's richer command envelope, and in
// original_source/server_state_machine.py's handler bodies.
package platformsm

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
)

// StateMachine holds the Platform's entire replicated state: the user
// directory and the ordered auction list. One mutex serializes Apply,
// matching original_source/server_state_machine.py's
// "assert self.lock.locked()" convention on every handler.
type StateMachine struct {
	mu sync.Mutex

	users    map[string]string // username -> address
	auctions []*auction.Auction

	logger *zap.Logger
}

// New returns an empty state machine.
func New(logger *zap.Logger) *StateMachine {
	return &StateMachine{
		users:  make(map[string]string),
		logger: logger,
	}
}

// Apply dispatches cmd by its Op and returns the resulting reply. Safe for
// concurrent use; callers must apply commands in strict log order (the
// applier in internal/platform guarantees this by construction).
func (sm *StateMachine) Apply(cmd auction.Command) auction.Reply {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	switch cmd.Op {
	case auction.OpLogin:
		return sm.login(cmd)
	case auction.OpGetUserAddress:
		return sm.getUserAddress(cmd)
	case auction.OpBuyerFetchAuctions:
		return sm.fetchAuctions(cmd, false)
	case auction.OpSellerFetchAuctions:
		return sm.fetchAuctions(cmd, true)
	case auction.OpBuyerJoinAuction:
		return sm.buyerJoinAuction(cmd)
	case auction.OpBuyerQuitAuction:
		return sm.buyerQuitAuction(cmd)
	case auction.OpSellerCreateAuction:
		return sm.sellerCreateAuction(cmd)
	case auction.OpSellerStartAuction:
		return sm.sellerStartAuction(cmd)
	case auction.OpSellerFinishAuction:
		return sm.sellerFinishAuction(cmd)
	case auction.OpSellerUpdateAuction:
		return sm.sellerUpdateAuction(cmd)
	default:
		sm.logger.Warn("unsupported op applied", zap.String("op", string(cmd.Op)))
		return auction.Reply{Success: false, Message: auction.ErrUnsupportedOp.Error()}
	}
}

func (sm *StateMachine) login(cmd auction.Command) auction.Reply {
	sm.users[cmd.Username] = cmd.Address
	return auction.Reply{Success: true, Message: "logged in"}
}

func (sm *StateMachine) getUserAddress(cmd auction.Command) auction.Reply {
	addr, ok := sm.users[cmd.Username]
	if !ok {
		return auction.Reply{Success: false, Message: auction.ErrUnknownUser.Error()}
	}
	return auction.Reply{Success: true, Message: addr}
}

// fetchAuctions returns every auction, shielded for any requester who is
// not the privileged party (buyer membership, or seller identity).
func (sm *StateMachine) fetchAuctions(cmd auction.Command, sellerView bool) auction.Reply {
	if _, ok := sm.users[cmd.Username]; !ok {
		return auction.Reply{Success: false, Message: auction.ErrUnknownUser.Error()}
	}

	out := make([]*auction.Auction, 0, len(sm.auctions))
	for _, a := range sm.auctions {
		privileged := false
		if sellerView {
			privileged = a.SellerUsername == cmd.Username
		} else {
			privileged = a.IsActive(cmd.Username) || a.HasBuyer(cmd.Username)
		}
		if privileged {
			out = append(out, a.Clone())
		} else {
			out = append(out, a.Shield())
		}
	}
	return auction.Reply{Success: true, Auctions: out}
}

func (sm *StateMachine) buyerJoinAuction(cmd auction.Command) auction.Reply {
	a := sm.findAuction(cmd.AuctionID)
	if a == nil {
		return auction.Reply{Success: false, Message: auction.ErrUnknownAuction.Error()}
	}
	if a.Started || a.Finished {
		return auction.Reply{Success: false, Message: auction.ErrBadLifecycle.Error()}
	}
	if !a.HasBuyer(cmd.Username) {
		a.Buyers = append(a.Buyers, auction.BuyerStatus{Username: cmd.Username, Active: true})
	}
	return auction.Reply{Success: true, Message: "joined", Auction: a.Clone()}
}

func (sm *StateMachine) buyerQuitAuction(cmd auction.Command) auction.Reply {
	a := sm.findAuction(cmd.AuctionID)
	if a == nil {
		return auction.Reply{Success: false, Message: auction.ErrUnknownAuction.Error()}
	}
	if a.Started || a.Finished {
		return auction.Reply{Success: false, Message: auction.ErrBadLifecycle.Error()}
	}
	i := a.IndexOfBuyer(cmd.Username)
	if i < 0 {
		return auction.Reply{Success: false, Message: auction.ErrUnknownUser.Error()}
	}
	a.Buyers = append(a.Buyers[:i], a.Buyers[i+1:]...)
	return auction.Reply{Success: true, Message: "quit", Auction: a.Clone()}
}

func (sm *StateMachine) sellerCreateAuction(cmd auction.Command) auction.Reply {
	if _, ok := sm.users[cmd.SellerUsername]; !ok {
		return auction.Reply{Success: false, Message: auction.ErrUnknownUser.Error()}
	}
	for _, a := range sm.auctions {
		if a.SellerUsername == cmd.SellerUsername &&
			a.Name == cmd.AuctionName &&
			a.Item.Name == cmd.ItemName &&
			a.Item.Description == cmd.ItemDescription &&
			a.BasePrice == cmd.BasePrice &&
			a.PriceIncrementPeriod == cmd.PriceIncrementPeriod &&
			a.Increment == cmd.Increment {
			return auction.Reply{Success: false, Message: "duplicate auction"}
		}
	}

	a := &auction.Auction{
		ID:                   len(sm.auctions) + 1,
		Name:                 cmd.AuctionName,
		SellerUsername:       cmd.SellerUsername,
		Item:                 auction.Item{Name: cmd.ItemName, Description: cmd.ItemDescription},
		BasePrice:            cmd.BasePrice,
		PriceIncrementPeriod: cmd.PriceIncrementPeriod,
		Increment:            cmd.Increment,
		Created:              true,
		RoundID:              -1,
		CurrentPrice:         cmd.BasePrice,
		TransactionPrice:     -1,
	}
	sm.auctions = append(sm.auctions, a)
	return auction.Reply{Success: true, Message: "created", Auction: a.Clone()}
}

func (sm *StateMachine) sellerStartAuction(cmd auction.Command) auction.Reply {
	if _, ok := sm.users[cmd.SellerUsername]; !ok {
		return auction.Reply{Success: false, Message: auction.ErrUnknownUser.Error()}
	}
	a := sm.findAuction(cmd.AuctionID)
	if a == nil {
		return auction.Reply{Success: false, Message: auction.ErrUnknownAuction.Error()}
	}
	if a.Finished {
		return auction.Reply{Success: false, Message: auction.ErrBadLifecycle.Error()}
	}
	a.Started = true
	return auction.Reply{Success: true, Message: "started", Auction: a.Clone()}
}

// sellerFinishAuction overwrites the stored auction wholesale from the
// seller-reported terminal record, per spec §4.2. Idempotent: a repeated
// finish with the same id succeeds without re-checking the payload.
func (sm *StateMachine) sellerFinishAuction(cmd auction.Command) auction.Reply {
	if cmd.Auction == nil {
		return auction.Reply{Success: false, Message: "missing auction payload"}
	}
	a := sm.findAuction(cmd.Auction.ID)
	if a == nil {
		return auction.Reply{Success: false, Message: auction.ErrUnknownAuction.Error()}
	}
	*a = *cmd.Auction.Clone()
	return auction.Reply{Success: true, Message: "finished", Auction: a.Clone()}
}

// sellerUpdateAuction is the periodic seller heartbeat overwrite named in
// original_source/seller.py (seller_update_auction): replace the stored
// record wholesale. No seller-ownership check — only a seller process
// holds the live auction state needed to construct this call.
func (sm *StateMachine) sellerUpdateAuction(cmd auction.Command) auction.Reply {
	if cmd.Auction == nil {
		return auction.Reply{Success: false, Message: "missing auction payload"}
	}
	a := sm.findAuction(cmd.Auction.ID)
	if a == nil {
		return auction.Reply{Success: false, Message: auction.ErrUnknownAuction.Error()}
	}
	*a = *cmd.Auction.Clone()
	return auction.Reply{Success: true, Message: "updated", Auction: a.Clone()}
}

func (sm *StateMachine) findAuction(id int) *auction.Auction {
	for _, a := range sm.auctions {
		if a.ID == id {
			return a
		}
	}
	return nil
}

// Snapshot returns a deep copy of every auction, ordered by id. Used by
// tests asserting property 5 (contiguous ids) and property 10
// (determinism across two independently-applied machines).
func (sm *StateMachine) Snapshot() []*auction.Auction {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	out := make([]*auction.Auction, len(sm.auctions))
	for i, a := range sm.auctions {
		out[i] = a.Clone()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
