package raft

import (
	"fmt"
	"net"
	"net/rpc"
	"sync"
)

// PeerTransport implements Transport over net/rpc: one TCP listener serving
// this replica's Module (registered as Go methods, so request_vote/
// append_entries dispatch by method name exactly as spec §4.1 and the
// teacher's cm.server.Call(peerId, "ConsensusModule.AppendEntries", ...)
// call sites assume). The teacher's own server.go implementing this
// listener/dial-cache pattern was not present in the retrieved snapshot;
// this file rebuilds it against the calling convention the rest of the
// teacher's code already depends on. See DESIGN.md entry 3 for why this
// stays on net/rpc rather than a third-party RPC framework.
type PeerTransport struct {
	mu       sync.Mutex
	listener net.Listener
	server   *rpc.Server
	clients  map[int]*rpc.Client
	addrs    map[int]string
}

// NewPeerTransport creates a transport and starts listening on listenAddr
// (host:port). Call Register to expose the Module before peers start
// dialing in.
func NewPeerTransport(listenAddr string) (*PeerTransport, error) {
	l, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("raft: listen on %s: %w", listenAddr, err)
	}
	t := &PeerTransport{
		listener: l,
		server:   rpc.NewServer(),
		clients:  make(map[int]*rpc.Client),
		addrs:    make(map[int]string),
	}
	go t.serve()
	return t, nil
}

// Register exposes m's RPC methods (RequestVote, AppendEntries) under the
// name "Module".
func (t *PeerTransport) Register(m *Module) error {
	return t.server.RegisterName("Module", m)
}

func (t *PeerTransport) serve() {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		go t.server.ServeConn(conn)
	}
}

// Addr returns the address this transport is listening on.
func (t *PeerTransport) Addr() string {
	return t.listener.Addr().String()
}

// ConnectToPeer records peerID's address for later dialing. Dialing itself
// is lazy and happens on first Call, so peers can be registered before
// their listeners are up.
func (t *PeerTransport) ConnectToPeer(peerID int, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.addrs[peerID] = addr
}

// DisconnectPeer drops any cached connection to peerID. The next Call to
// that peer dials again.
func (t *PeerTransport) DisconnectPeer(peerID int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.clients[peerID]; ok {
		c.Close()
		delete(t.clients, peerID)
	}
}

// DisconnectAll drops every cached connection.
func (t *PeerTransport) DisconnectAll() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, c := range t.clients {
		c.Close()
		delete(t.clients, id)
	}
}

// Close stops accepting peer connections.
func (t *PeerTransport) Close() error {
	return t.listener.Close()
}

// Call dials (or reuses a cached dial to) peerID and invokes method
// synchronously. Per spec §4.1's failure semantics, a network error is
// simply returned to the caller, who silently drops it and retries on the
// next heartbeat/election tick — this function never retries internally.
func (t *PeerTransport) Call(peerID int, method string, args, reply interface{}) error {
	client, err := t.clientFor(peerID)
	if err != nil {
		return err
	}
	if err := client.Call(method, args, reply); err != nil {
		t.mu.Lock()
		delete(t.clients, peerID)
		t.mu.Unlock()
		return fmt.Errorf("raft: call %s to peer %d: %w", method, peerID, err)
	}
	return nil
}

func (t *PeerTransport) clientFor(peerID int) (*rpc.Client, error) {
	t.mu.Lock()
	if c, ok := t.clients[peerID]; ok {
		t.mu.Unlock()
		return c, nil
	}
	addr, ok := t.addrs[peerID]
	t.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("raft: no known address for peer %d", peerID)
	}

	client, err := rpc.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("raft: dial peer %d at %s: %w", peerID, addr, err)
	}

	t.mu.Lock()
	t.clients[peerID] = client
	t.mu.Unlock()
	return client, nil
}
