package platform

import (
	"encoding/gob"
	"fmt"
	"net/rpc"
	"sync"

	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
	"github.com/tao-l/CS262-project/internal/config"
)

// auction.Command travels inside raft.LogEntry.Command, a field typed
// interface{} so the consensus module stays domain-agnostic; gob requires
// every concrete type that crosses an interface boundary to be registered
// up front, the same role the teacher's main_test.go's
// gob.Register(calculator.Entry{}) plays for its own command type. This
// package is imported by every process kind (cmd/platform, cmd/seller,
// cmd/buyer) and by internal/platform's own tests, so registering here
// once covers every path an auction.Command can take over the wire.
func init() {
	gob.Register(auction.Command{})
}

// Client is the Platform client stub shared by seller and buyer
// processes: it submits a command to one replica and, on a
// not-leader response, retries the next one. Adapted from the teacher's
// cluster.Submit round-robin loop
// (_examples/aecra-raft/cluster/cluster.go), generalized from an
// in-process server slice to real net/rpc dials against configured
// addresses, and from "try every server once" to "remember the last
// known leader and start there" so steady-state traffic doesn't pay a
// full round-robin on every call.
type Client struct {
	addrs []string

	mu         sync.Mutex
	conns      map[string]*rpc.Client
	leaderHint int

	logger *zap.Logger
}

// NewClient builds a client stub against every replica named in cfg.
func NewClient(cfg *config.Config, logger *zap.Logger) *Client {
	addrs := make([]string, len(cfg.Replicas))
	for i, r := range cfg.Replicas {
		addrs[i] = r.ClientAddr()
	}
	return &Client{
		addrs:  addrs,
		conns:  make(map[string]*rpc.Client),
		logger: logger,
	}
}

// Submit tries each replica starting from the last known leader, in
// round-robin order, until one reports IsLeader=true or every replica has
// been tried once. Per spec §7, a TransportFailure against one replica is
// not fatal — the next replica is simply tried.
func (c *Client) Submit(cmd auction.Command) (auction.Reply, error) {
	c.mu.Lock()
	start := c.leaderHint
	c.mu.Unlock()

	var lastErr error
	for i := 0; i < len(c.addrs); i++ {
		idx := (start + i) % len(c.addrs)
		addr := c.addrs[idx]

		var reply auction.Reply
		if err := c.call(addr, cmd, &reply); err != nil {
			lastErr = err
			c.logger.Warn("platform client call failed, trying next replica",
				zap.String("addr", addr), zap.Error(err))
			continue
		}
		if !reply.IsLeader {
			continue
		}

		c.mu.Lock()
		c.leaderHint = idx
		c.mu.Unlock()
		return reply, nil
	}

	if lastErr != nil {
		return auction.Reply{}, fmt.Errorf("platform client: %w: %v", auction.ErrTransport, lastErr)
	}
	return auction.Reply{}, fmt.Errorf("platform client: %w", auction.ErrNotLeader)
}

func (c *Client) call(addr string, cmd auction.Command, reply *auction.Reply) error {
	client, err := c.clientFor(addr)
	if err != nil {
		return err
	}
	if err := client.Call("Facade.Serve", cmd, reply); err != nil {
		c.mu.Lock()
		delete(c.conns, addr)
		c.mu.Unlock()
		return err
	}
	return nil
}

func (c *Client) clientFor(addr string) (*rpc.Client, error) {
	c.mu.Lock()
	if client, ok := c.conns[addr]; ok {
		c.mu.Unlock()
		return client, nil
	}
	c.mu.Unlock()

	client, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.conns[addr] = client
	c.mu.Unlock()
	return client, nil
}

// Close drops every cached connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for addr, client := range c.conns {
		client.Close()
		delete(c.conns, addr)
	}
}
