// Package raft implements the leader-based replicated-log consensus module
// described in spec §4.1: leader election, log replication, and the four
// safety rules, enforced verbatim. It is generalized from
// _examples/aecra-raft/raft/raft.go's ConsensusModule: that teacher blocks
// Submit on a shared commit-result channel and never persists anything to
// disk. This version splits "accept a command" from "learn it committed"
// (Submit returns immediately; ApplyStream delivers committed entries to
// any consumer) and adds real persistence (persistence.go), because the
// Platform façade in front of this module — not the module itself — is the
// component responsible for matching a commit back to the client that
// submitted it.
package raft

import (
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State is the role a replica currently occupies.
type State int

const (
	Follower State = iota
	Candidate
	Leader
	Dead
)

func (s State) String() string {
	switch s {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	case Dead:
		return "Dead"
	default:
		return "Unknown"
	}
}

// LogEntry is one entry of the replicated log. Index is 1-based; index 0 is
// a reserved sentinel meaning "before the start of the log", matching
// spec §3's "0 reserved for a sentinel".
type LogEntry struct {
	Term    int
	Index   int
	Command interface{}
}

// CommitEntry is what ApplyStream delivers once an entry is known
// committed, in strictly increasing Index order.
type CommitEntry struct {
	Command interface{}
	Index   int
	Term    int
}

// Timing bundles the election/heartbeat windows from spec §4.1 and §6's
// "Replica configuration". Values are deliberately configurable so tests
// can shrink them and production config can widen them.
type Timing struct {
	HeartbeatInterval  time.Duration
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
}

// DefaultTiming matches the windows named in spec §4.1 (200-400ms election,
// 40ms heartbeat).
func DefaultTiming() Timing {
	return Timing{
		HeartbeatInterval:  40 * time.Millisecond,
		ElectionTimeoutMin: 200 * time.Millisecond,
		ElectionTimeoutMax: 400 * time.Millisecond,
	}
}

// Transport is everything the consensus module needs from the network
// layer: call a named RPC method on a peer. Implemented by
// *raft.PeerTransport (transport.go). A narrow interface here keeps the
// module testable without a real listener.
type Transport interface {
	Call(peerID int, method string, args, reply interface{}) error
}

// Storage persists the (term, vote, log) triple. Implemented by
// *raft.FileStore (persistence.go).
type Storage interface {
	Load() (currentTerm int, votedFor int, log []LogEntry, err error)
	Save(currentTerm int, votedFor int, log []LogEntry) error
}

// Module is a single replica's consensus state. All exported behavior is
// safe for concurrent use.
type Module struct {
	mu sync.Mutex

	id      int
	peerIDs []int
	timing  Timing
	logger  *zap.Logger

	transport Transport
	storage   Storage

	// Persistent state (rewritten to storage before any RPC reply that
	// changed it).
	currentTerm int
	votedFor    int // -1 means no vote cast this term
	log         []LogEntry

	// Volatile state, all replicas.
	commitIndex int
	lastApplied int
	state       State
	lastContact time.Time

	// Volatile state, leaders only.
	nextIndex  map[int]int
	matchIndex map[int]int

	newCommitReadyChan chan struct{}
	triggerAEChan      chan struct{}
	applyStream        chan CommitEntry

	rng *rand.Rand

	done chan struct{}
}

// New creates a Module for replica id among peerIDs (excluding id itself),
// wired to transport and storage, and immediately loads any persisted
// state. The module does not start its election timer until Start is
// called, mirroring the teacher's ready-channel gate.
func New(id int, peerIDs []int, timing Timing, transport Transport, storage Storage, logger *zap.Logger) (*Module, error) {
	m := &Module{
		id:                 id,
		peerIDs:            peerIDs,
		timing:             timing,
		logger:             logger,
		transport:          transport,
		storage:            storage,
		votedFor:           -1,
		commitIndex:        0,
		lastApplied:        0,
		state:              Follower,
		nextIndex:          make(map[int]int),
		matchIndex:         make(map[int]int),
		newCommitReadyChan: make(chan struct{}, 16),
		triggerAEChan:      make(chan struct{}, 1),
		applyStream:        make(chan CommitEntry, 256),
		rng:                rand.New(rand.NewSource(time.Now().UnixNano() + int64(id))),
		done:               make(chan struct{}),
	}

	term, votedFor, log, err := storage.Load()
	if err != nil {
		return nil, err
	}
	m.currentTerm = term
	m.votedFor = votedFor
	m.log = log

	return m, nil
}

// Start begins the election timer and the commit-sender goroutine. Safe to
// call once per Module.
func (m *Module) Start() {
	m.mu.Lock()
	m.lastContact = time.Now()
	m.mu.Unlock()

	go m.runElectionTimer()
	go m.commitSender()
}

// Stop marks the module dead; background goroutines observe this and exit.
func (m *Module) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == Dead {
		return
	}
	m.state = Dead
	close(m.done)
}

// ApplyStream returns the channel of committed entries, delivered exactly
// once each, in strictly increasing index order. The Platform façade is the
// sole intended consumer (spec §4.1's "apply_stream").
func (m *Module) ApplyStream() <-chan CommitEntry {
	return m.applyStream
}

// Report returns the replica's id, current term, and whether it believes
// itself leader — used for the façade's own health/status surface.
func (m *Module) Report() (id, term int, isLeader bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.currentTerm, m.state == Leader
}

// Submit appends command as a new log entry if this replica is currently
// leader. It does not wait for the entry to commit: per spec §4.1, "does
// not wait for commit". Callers watch ApplyStream (via the façade's
// index-keyed awaiters) to learn the outcome.
func (m *Module) Submit(command interface{}) (index, term int, isLeader bool) {
	m.mu.Lock()
	if m.state != Leader {
		m.mu.Unlock()
		return 0, 0, false
	}
	entry := LogEntry{Term: m.currentTerm, Index: len(m.log) + 1, Command: command}
	m.log = append(m.log, entry)
	if err := m.persistLocked(); err != nil {
		m.logger.Error("failed to persist new entry", zap.Error(err))
	}
	index = entry.Index
	term = m.currentTerm
	m.mu.Unlock()

	select {
	case m.triggerAEChan <- struct{}{}:
	default:
	}
	return index, term, true
}

// persistLocked writes (currentTerm, votedFor, log) to storage. Callers
// must hold mu.
func (m *Module) persistLocked() error {
	return m.storage.Save(m.currentTerm, m.votedFor, m.log)
}
