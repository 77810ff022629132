// Package transport implements the seller/buyer outbound RPC stub cache
// named by spec §4.5 and §9's "stub-cache directory pattern": no process
// holds a long-lived reference to another process's object, only an
// address resolved through the Platform and a lazily-dialed net/rpc
// client keyed by username. Grounded in original_source/seller.py's
// rpc_stubs map and update_buyer_stubs_in_auction, and
// original_source/buyer.py's mirror of the same idea.
package transport

import (
	"fmt"
	"net/rpc"
	"sync"
	"time"
)

// StubCache resolves a username to a dialed *rpc.Client, redialing
// whenever the address changes or the previous call failed. The stored
// address always comes from the Platform's directory (GET_USER_ADDRESS);
// the cache itself never invents or guesses an address.
type StubCache struct {
	mu      sync.Mutex
	addrs   map[string]string
	clients map[string]*rpc.Client
	timeout time.Duration
}

// NewStubCache builds an empty cache. timeout bounds every Call.
func NewStubCache(timeout time.Duration) *StubCache {
	return &StubCache{
		addrs:   make(map[string]string),
		clients: make(map[string]*rpc.Client),
		timeout: timeout,
	}
}

// SetAddress records (or updates) username's known address. If the
// address changed, any cached connection is dropped so the next Call
// redials fresh — this is how a restarted peer on a new ephemeral port
// gets picked up on the next reconciliation tick.
func (c *StubCache) SetAddress(username, addr string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.addrs[username] == addr {
		return
	}
	c.addrs[username] = addr
	if client, ok := c.clients[username]; ok {
		client.Close()
		delete(c.clients, username)
	}
}

// Call invokes method on username's stub with the configured timeout. A
// failure (dial error, call error, or timeout) drops the cached client so
// the next Call redials; the caller sees the error either way and, per
// spec §7, decides what a TransportFailure means in its context (implicit
// withdrawal in the live-auction driver, a retry next tick in
// reconciliation).
func (c *StubCache) Call(username, method string, args, reply interface{}) error {
	client, err := c.clientFor(username)
	if err != nil {
		return err
	}

	call := client.Go(method, args, reply, make(chan *rpc.Call, 1))
	select {
	case result := <-call.Done:
		if result.Error != nil {
			c.drop(username)
			return fmt.Errorf("transport: call %s to %s: %w", method, username, result.Error)
		}
		return nil
	case <-time.After(c.timeout):
		c.drop(username)
		return fmt.Errorf("transport: call %s to %s timed out after %s", method, username, c.timeout)
	}
}

func (c *StubCache) clientFor(username string) (*rpc.Client, error) {
	c.mu.Lock()
	if client, ok := c.clients[username]; ok {
		c.mu.Unlock()
		return client, nil
	}
	addr, ok := c.addrs[username]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("transport: no known address for %s", username)
	}

	client, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s at %s: %w", username, addr, err)
	}

	c.mu.Lock()
	c.clients[username] = client
	c.mu.Unlock()
	return client, nil
}

func (c *StubCache) drop(username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if client, ok := c.clients[username]; ok {
		client.Close()
		delete(c.clients, username)
	}
}

// Close drops every cached connection.
func (c *StubCache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for username, client := range c.clients {
		client.Close()
		delete(c.clients, username)
	}
}
