package raft

import "go.uber.org/zap"

// RequestVoteArgs/Reply and AppendEntriesArgs/Reply mirror Figure 2 of the
// Raft paper, as the teacher's raft.go already names them; kept here
// unchanged in shape since the wire contract in spec §4.1 is verbatim.

type RequestVoteArgs struct {
	Term         int
	CandidateID  int
	LastLogIndex int
	LastLogTerm  int
}

type RequestVoteReply struct {
	Term        int
	VoteGranted bool
}

type AppendEntriesArgs struct {
	Term     int
	LeaderID int

	PrevLogIndex int
	PrevLogTerm  int
	Entries      []LogEntry
	LeaderCommit int
}

type AppendEntriesReply struct {
	Term    int
	Success bool
}

// RequestVote implements safety rules 1 and 4 from spec §4.1.
func (m *Module) RequestVote(args RequestVoteArgs, reply *RequestVoteReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Dead {
		return nil
	}

	if args.Term > m.currentTerm {
		m.becomeFollowerLocked(args.Term)
	}

	lastIndex, lastTerm := m.lastLogIndexAndTermLocked()

	grant := false
	if args.Term == m.currentTerm &&
		(m.votedFor == -1 || m.votedFor == args.CandidateID) &&
		(args.LastLogTerm > lastTerm ||
			(args.LastLogTerm == lastTerm && args.LastLogIndex >= lastIndex)) {
		grant = true
		m.votedFor = args.CandidateID
		m.lastContact = timeNow()
		if err := m.persistLocked(); err != nil {
			m.logger.Error("persist after granting vote failed", zap.Error(err))
		}
	}

	reply.VoteGranted = grant
	reply.Term = m.currentTerm
	return nil
}

// AppendEntries implements safety rules 1, 2, and 3 from spec §4.1: reject
// stale terms, reject a mismatched prev-entry without mutating, and on
// overlap truncate the follower's log at the first conflicting index
// before appending the leader's suffix.
func (m *Module) AppendEntries(args AppendEntriesArgs, reply *AppendEntriesReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == Dead {
		return nil
	}

	if args.Term > m.currentTerm {
		m.becomeFollowerLocked(args.Term)
	}

	reply.Success = false
	if args.Term == m.currentTerm {
		if m.state != Follower {
			m.becomeFollowerLocked(args.Term)
		}
		m.lastContact = timeNow()

		if args.PrevLogIndex == 0 ||
			(args.PrevLogIndex <= len(m.log) && m.log[args.PrevLogIndex-1].Term == args.PrevLogTerm) {
			reply.Success = true

			insertAt := args.PrevLogIndex
			newAt := 0
			for insertAt < len(m.log) && newAt < len(args.Entries) {
				if m.log[insertAt].Term != args.Entries[newAt].Term {
					break
				}
				insertAt++
				newAt++
			}
			changed := false
			if newAt < len(args.Entries) {
				m.log = append(m.log[:insertAt], args.Entries[newAt:]...)
				changed = true
			}
			if changed {
				if err := m.persistLocked(); err != nil {
					m.logger.Error("persist after append failed", zap.Error(err))
				}
			}

			if args.LeaderCommit > m.commitIndex {
				last := len(m.log)
				if args.LeaderCommit < last {
					m.commitIndex = args.LeaderCommit
				} else {
					m.commitIndex = last
				}
				select {
				case m.newCommitReadyChan <- struct{}{}:
				default:
				}
			}
		}
	}

	reply.Term = m.currentTerm
	return nil
}

// lastLogIndexAndTermLocked returns (0, 0) for an empty log, matching the
// convention that index 0 is the sentinel "before the log" entry.
func (m *Module) lastLogIndexAndTermLocked() (int, int) {
	if len(m.log) == 0 {
		return 0, 0
	}
	last := m.log[len(m.log)-1]
	return last.Index, last.Term
}

// becomeFollowerLocked implements safety rule 1's "step down, adopt term,
// clear vote" half. Callers must hold mu.
func (m *Module) becomeFollowerLocked(term int) {
	wasLeader := m.state == Leader
	m.state = Follower
	m.currentTerm = term
	m.votedFor = -1
	m.lastContact = timeNow()
	if err := m.persistLocked(); err != nil {
		m.logger.Error("persist on step-down failed", zap.Error(err))
	}
	if wasLeader {
		// the heartbeat goroutine notices state != Leader on its next tick
		// and exits on its own; no explicit signal needed.
	}
	go m.runElectionTimer()
}

var timeNow = defaultTimeNow
