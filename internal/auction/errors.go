package auction

import "errors"

// Sentinel errors for the error kinds enumerated in spec §7 that are not
// already fully carried by a reply's (Success, Message) pair. Transport and
// internal-client code returns these (wrapped with fmt.Errorf("...: %w"))
// so callers can branch with errors.Is; wire replies still carry a plain
// human-readable Message for the remote side.
var (
	ErrUnknownUser     = errors.New("unknown user")
	ErrUnknownAuction  = errors.New("unknown auction")
	ErrBadLifecycle    = errors.New("operation not valid in this auction lifecycle state")
	ErrSoleActiveBuyer = errors.New("sole active buyer cannot withdraw")
	ErrTransport       = errors.New("transport failure")
	ErrUnsupportedOp   = errors.New("unsupported operation")
	ErrNotLeader       = errors.New("not the leader")
)
