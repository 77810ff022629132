package buyer

import (
	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/uiobserver"
)

// NewUIServer builds the buyer's local observable HTTP/WS surface (spec
// §2's "[ADDED] UI observability"), snapshotting store on every GET
// /auctions.
func NewUIServer(addr string, store *Store, logger *zap.Logger) (*uiobserver.Server, error) {
	return uiobserver.NewServerWithLogger(addr, func() interface{} {
		return store.Snapshot()
	}, logger)
}
