package platform

import (
	"fmt"
	"net"
	"net/rpc"

	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/config"
	"github.com/tao-l/CS262-project/internal/platformsm"
	"github.com/tao-l/CS262-project/internal/raft"
)

// Replica is one running Platform process: a consensus module, a state
// machine, a façade, and the client-facing net/rpc listener the façade is
// registered on. The peer-facing listener lives inside raft.PeerTransport.
type Replica struct {
	ID int

	module    *raft.Module
	transport *raft.PeerTransport
	facade    *Facade
	listener  net.Listener
	server    *rpc.Server

	logger *zap.Logger
}

// NewReplica wires together every component for replica id, per the
// configured replica list. Does not start any goroutines; call Start.
func NewReplica(id int, cfg *config.Config, logger *zap.Logger) (*Replica, error) {
	self, ok := cfg.ReplicaByID(id)
	if !ok {
		return nil, fmt.Errorf("platform: replica id %d not found in config", id)
	}

	peerTransport, err := raft.NewPeerTransport(self.PeerAddr())
	if err != nil {
		return nil, fmt.Errorf("platform: peer transport: %w", err)
	}

	store, err := raft.NewFileStore(fmt.Sprintf("%s/replica-%d.gob", cfg.DataDir, id))
	if err != nil {
		return nil, fmt.Errorf("platform: storage: %w", err)
	}

	heartbeat, electionMin, electionMax := cfg.Timing()
	timing := raft.Timing{
		HeartbeatInterval:  heartbeat,
		ElectionTimeoutMin: electionMin,
		ElectionTimeoutMax: electionMax,
	}

	module, err := raft.New(id, cfg.PeerIDs(id), timing, peerTransport, store, logger)
	if err != nil {
		return nil, fmt.Errorf("platform: consensus module: %w", err)
	}
	if err := peerTransport.Register(module); err != nil {
		return nil, fmt.Errorf("platform: register consensus module: %w", err)
	}
	for _, p := range cfg.Replicas {
		if p.ID != id {
			peerTransport.ConnectToPeer(p.ID, p.PeerAddr())
		}
	}

	sm := platformsm.New(logger)
	facade := New(module, sm, logger)

	clientListener, err := net.Listen("tcp", self.ClientAddr())
	if err != nil {
		return nil, fmt.Errorf("platform: client listener: %w", err)
	}
	rpcServer := rpc.NewServer()
	if err := rpcServer.RegisterName("Facade", facade); err != nil {
		return nil, fmt.Errorf("platform: register facade: %w", err)
	}

	return &Replica{
		ID:        id,
		module:    module,
		transport: peerTransport,
		facade:    facade,
		listener:  clientListener,
		server:    rpcServer,
		logger:    logger,
	}, nil
}

// Start begins serving both the peer-facing and client-facing listeners.
func (r *Replica) Start() {
	r.module.Start()
	r.facade.Start()
	go r.serveClients()
}

func (r *Replica) serveClients() {
	for {
		conn, err := r.listener.Accept()
		if err != nil {
			return
		}
		go r.server.ServeConn(conn)
	}
}

// Stop tears down every component. Not safe to call twice.
func (r *Replica) Stop() {
	r.listener.Close()
	r.facade.Stop()
	r.module.Stop()
	r.transport.Close()
}

// Status exposes the façade's health surface for a process's own startup
// log line.
func (r *Replica) Status() (id, term int, isLeader bool) {
	return r.facade.Status()
}
