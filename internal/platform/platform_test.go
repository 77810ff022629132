package platform

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
	"github.com/tao-l/CS262-project/internal/config"
)

// newTestReplicas wires n replicas on loopback with fast timing, suitable
// for an in-process end-to-end test. Mirrors _examples/aecra-raft's
// cluster harness, one layer up: full Replica processes, not bare
// consensus modules.
func newTestReplicas(t *testing.T, n int) (*config.Config, []*Replica, func()) {
	t.Helper()

	dir, err := os.MkdirTemp("", "platform-test-")
	require.NoError(t, err)

	cfg := &config.Config{
		HeartbeatIntervalMS:  10,
		ElectionTimeoutMinMS: 50,
		ElectionTimeoutMaxMS: 100,
		DataDir:              dir,
		RPCTimeoutMS:         500,
	}
	for i := 0; i < n; i++ {
		cfg.Replicas = append(cfg.Replicas, config.ReplicaAddr{
			ID:         i,
			Host:       "127.0.0.1",
			ClientPort: 19100 + i,
			PeerPort:   19200 + i,
		})
	}

	logger := zap.NewNop()
	replicas := make([]*Replica, n)
	for i := 0; i < n; i++ {
		r, err := NewReplica(i, cfg, logger)
		require.NoError(t, err)
		replicas[i] = r
	}
	for _, r := range replicas {
		r.Start()
	}

	cleanup := func() {
		for _, r := range replicas {
			r.Stop()
		}
		os.RemoveAll(dir)
	}
	return cfg, replicas, cleanup
}

func TestEndToEndLoginCreateJoinStart(t *testing.T) {
	cfg, _, cleanup := newTestReplicas(t, 3)
	defer cleanup()

	logger := zap.NewNop()
	client := NewClient(cfg, logger)
	defer client.Close()

	require.Eventually(t, func() bool {
		reply, err := client.Submit(auction.Command{Op: auction.OpLogin, Username: "alice", Address: "alice:1"})
		return err == nil && reply.Success
	}, 3*time.Second, 20*time.Millisecond)

	loginBob, err := client.Submit(auction.Command{Op: auction.OpLogin, Username: "bob", Address: "bob:1"})
	require.NoError(t, err)
	require.True(t, loginBob.Success)

	created, err := client.Submit(auction.Command{
		Op:                   auction.OpSellerCreateAuction,
		SellerUsername:       "alice",
		AuctionName:          "auction-1",
		ItemName:             "widget",
		ItemDescription:      "a widget",
		BasePrice:            1000,
		PriceIncrementPeriod: 1000,
		Increment:            100,
	})
	require.NoError(t, err)
	require.True(t, created.Success)
	require.Equal(t, 1, created.Auction.ID)

	joined, err := client.Submit(auction.Command{Op: auction.OpBuyerJoinAuction, Username: "bob", AuctionID: 1})
	require.NoError(t, err)
	require.True(t, joined.Success)

	started, err := client.Submit(auction.Command{Op: auction.OpSellerStartAuction, SellerUsername: "alice", AuctionID: 1})
	require.NoError(t, err)
	require.True(t, started.Success)
	require.True(t, started.Auction.Started)

	fetched, err := client.Submit(auction.Command{Op: auction.OpBuyerFetchAuctions, Username: "bob"})
	require.NoError(t, err)
	require.True(t, fetched.Success)
	require.Len(t, fetched.Auctions, 1)
	require.True(t, fetched.Auctions[0].HasBuyer("bob"))
}
