// Package platform implements the Platform RPC façade (spec §4.3): the
// client-facing entry point that submits a command to the consensus
// module and, if this replica is leader, blocks until that index is
// applied before replying. Grounded in
// original_source/server.py's rpc_platform_serve/apply_request_loop pair
// (an index-keyed threading.Event map guarded by a lock), translated to
// Go channels.
package platform

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tao-l/CS262-project/internal/auction"
	"github.com/tao-l/CS262-project/internal/platformsm"
	"github.com/tao-l/CS262-project/internal/raft"
)

// applyWaitTimeout bounds how long Serve blocks on an awaiter before
// giving up and reporting failure — guards against a leader that loses
// its term after Submit but before the entry commits (the awaiter would
// otherwise never be signaled).
const applyWaitTimeout = 5 * time.Second

// Facade is registered as a net/rpc service (method name "Facade.Serve")
// on each replica's client-facing listener.
type Facade struct {
	module *raft.Module
	sm     *platformsm.StateMachine
	logger *zap.Logger

	mu       sync.Mutex
	awaiters map[int]chan auction.Reply

	done chan struct{}
}

// New builds a Facade over an already-constructed consensus module and
// state machine. Call Start to launch the applier goroutine before
// accepting RPCs.
func New(module *raft.Module, sm *platformsm.StateMachine, logger *zap.Logger) *Facade {
	return &Facade{
		module:   module,
		sm:       sm,
		logger:   logger,
		awaiters: make(map[int]chan auction.Reply),
		done:     make(chan struct{}),
	}
}

// Start launches the applier loop that drains the consensus module's
// ApplyStream in order, applies each entry to the state machine, and
// wakes any registered awaiter for that index. Entries with no awaiter
// (committed on a follower, or a timed-out leader request) are applied
// silently, per spec §4.3.
func (f *Facade) Start() {
	go f.runApplier()
}

// Stop releases every Serve call still waiting on an awaiter. The applier
// goroutine exits on its own once ApplyStream closes.
func (f *Facade) Stop() {
	close(f.done)
}

func (f *Facade) runApplier() {
	for entry := range f.module.ApplyStream() {
		cmd, ok := entry.Command.(auction.Command)
		if !ok {
			f.logger.Error("applied entry was not an auction.Command")
			continue
		}
		reply := f.sm.Apply(cmd)

		f.mu.Lock()
		ch, ok := f.awaiters[entry.Index]
		if ok {
			delete(f.awaiters, entry.Index)
		}
		f.mu.Unlock()

		if ok {
			select {
			case ch <- reply:
			default:
			}
		}
	}
}

// Serve is the single client-facing RPC entry point named in spec §6:
// submit, and if leader, wait for the submitted index to apply.
func (f *Facade) Serve(cmd auction.Command, reply *auction.Reply) error {
	index, _, isLeader := f.module.Submit(cmd)
	if !isLeader {
		reply.IsLeader = false
		return nil
	}

	ch := make(chan auction.Reply, 1)
	f.mu.Lock()
	f.awaiters[index] = ch
	f.mu.Unlock()

	select {
	case r := <-ch:
		r.IsLeader = true
		*reply = r
	case <-time.After(applyWaitTimeout):
		f.mu.Lock()
		delete(f.awaiters, index)
		f.mu.Unlock()
		reply.Success = false
		reply.Message = "timed out waiting for commit; leadership may have changed"
		reply.IsLeader = false
	case <-f.done:
		reply.Success = false
		reply.Message = "replica shutting down"
		reply.IsLeader = false
	}
	return nil
}

// Status reports this replica's id, term, and leadership belief. It is not
// part of the client-facing wire contract.
func (f *Facade) Status() (id, term int, isLeader bool) {
	return f.module.Report()
}
