package raft

import (
	"time"

	"go.uber.org/zap"
)

// electionTimeout draws a random duration from [Tmin, Tmax), using this
// replica's own RNG so timeouts are not correlated across replicas (spec
// §9: "must be non-deterministic across replicas to prevent split votes").
func (m *Module) electionTimeout() time.Duration {
	span := m.timing.ElectionTimeoutMax - m.timing.ElectionTimeoutMin
	if span <= 0 {
		return m.timing.ElectionTimeoutMin
	}
	return m.timing.ElectionTimeoutMin + time.Duration(m.rng.Int63n(int64(span)))
}

// runElectionTimer blocks until either the replica's role/term changes out
// from under it (another goroutine already started a new timer) or the
// timeout elapses with no contact, in which case it starts an election.
// One instance runs per follower/candidate period, exactly as in the
// teacher.
func (m *Module) runElectionTimer() {
	timeout := m.electionTimeout()
	m.mu.Lock()
	termStarted := m.currentTerm
	m.mu.Unlock()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if m.state != Candidate && m.state != Follower {
			m.mu.Unlock()
			return
		}
		if termStarted != m.currentTerm {
			m.mu.Unlock()
			return
		}
		if elapsed := timeNow().Sub(m.lastContact); elapsed >= timeout {
			m.startElectionLocked()
			m.mu.Unlock()
			return
		}
		m.mu.Unlock()
	}
}

// startElectionLocked implements the candidate transition from spec §4.1.
// Callers must hold mu; it releases and reacquires nothing itself, but the
// vote-soliciting goroutines it spawns acquire mu independently.
func (m *Module) startElectionLocked() {
	m.state = Candidate
	m.currentTerm++
	savedTerm := m.currentTerm
	m.lastContact = timeNow()
	m.votedFor = m.id
	if err := m.persistLocked(); err != nil {
		m.logger.Error("persist on election start failed", zap.Error(err))
	}

	votes := 1
	votesMu := &m.mu // guard votes with the module lock via the closures below

	for _, peerID := range m.peerIDs {
		go func(peerID int) {
			m.mu.Lock()
			lastIndex, lastTerm := m.lastLogIndexAndTermLocked()
			m.mu.Unlock()

			args := RequestVoteArgs{
				Term:         savedTerm,
				CandidateID:  m.id,
				LastLogIndex: lastIndex,
				LastLogTerm:  lastTerm,
			}
			var reply RequestVoteReply
			if err := m.transport.Call(peerID, "Module.RequestVote", args, &reply); err != nil {
				return
			}

			votesMu.Lock()
			defer votesMu.Unlock()

			if m.state != Candidate || m.currentTerm != savedTerm {
				return
			}
			if reply.Term > m.currentTerm {
				m.becomeFollowerLocked(reply.Term)
				return
			}
			if reply.Term == savedTerm && reply.VoteGranted {
				votes++
				if votes*2 > len(m.peerIDs)+1 {
					m.startLeaderLocked()
				}
			}
		}(peerID)
	}

	go m.runElectionTimer()
}

// startLeaderLocked transitions to leader and begins the heartbeat loop.
// Callers must hold mu.
func (m *Module) startLeaderLocked() {
	m.state = Leader
	lastIndex, _ := m.lastLogIndexAndTermLocked()
	for _, peerID := range m.peerIDs {
		m.nextIndex[peerID] = lastIndex + 1
		m.matchIndex[peerID] = 0
	}
	go m.runHeartbeats()
}

// runHeartbeats is the leader's background replication loop: sends
// append_entries every HeartbeatInterval, or immediately when
// triggerAEChan fires (a fresh Submit).
func (m *Module) runHeartbeats() {
	m.sendAppendEntriesRound()
	ticker := time.NewTicker(m.timing.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
		case _, ok := <-m.triggerAEChan:
			if !ok {
				return
			}
		}

		m.mu.Lock()
		stillLeader := m.state == Leader
		m.mu.Unlock()
		if !stillLeader {
			return
		}
		m.sendAppendEntriesRound()
	}
}

// sendAppendEntriesRound fans out one append_entries RPC per peer,
// concurrently, and applies the replication bookkeeping from spec §4.1 on
// each reply.
func (m *Module) sendAppendEntriesRound() {
	m.mu.Lock()
	if m.state != Leader {
		m.mu.Unlock()
		return
	}
	savedTerm := m.currentTerm
	m.mu.Unlock()

	for _, peerID := range m.peerIDs {
		go func(peerID int) {
			m.mu.Lock()
			if m.state != Leader || m.currentTerm != savedTerm {
				m.mu.Unlock()
				return
			}
			ni := m.nextIndex[peerID]
			prevLogIndex := ni - 1
			prevLogTerm := 0
			if prevLogIndex >= 1 && prevLogIndex <= len(m.log) {
				prevLogTerm = m.log[prevLogIndex-1].Term
			}
			var entries []LogEntry
			if ni-1 < len(m.log) {
				entries = append(entries, m.log[ni-1:]...)
			}
			args := AppendEntriesArgs{
				Term:         savedTerm,
				LeaderID:     m.id,
				PrevLogIndex: prevLogIndex,
				PrevLogTerm:  prevLogTerm,
				Entries:      entries,
				LeaderCommit: m.commitIndex,
			}
			m.mu.Unlock()

			var reply AppendEntriesReply
			if err := m.transport.Call(peerID, "Module.AppendEntries", args, &reply); err != nil {
				return
			}

			m.mu.Lock()
			defer m.mu.Unlock()
			if m.state != Leader || m.currentTerm != savedTerm {
				return
			}
			if reply.Term > m.currentTerm {
				m.becomeFollowerLocked(reply.Term)
				return
			}
			if reply.Success {
				m.matchIndex[peerID] = ni + len(entries) - 1
				m.nextIndex[peerID] = m.matchIndex[peerID] + 1
				m.advanceCommitIndexLocked()
			} else if m.nextIndex[peerID] > 1 {
				m.nextIndex[peerID]--
			}
		}(peerID)
	}
}

// advanceCommitIndexLocked implements the leader's commit rule: find the
// highest N, greater than the current commitIndex, replicated on a
// majority and whose entry's term equals the current term. Callers must
// hold mu.
func (m *Module) advanceCommitIndexLocked() {
	saved := m.commitIndex
	for n := m.commitIndex + 1; n <= len(m.log); n++ {
		if m.log[n-1].Term != m.currentTerm {
			continue
		}
		count := 1 // the leader itself
		for _, peerID := range m.peerIDs {
			if m.matchIndex[peerID] >= n {
				count++
			}
		}
		if count*2 > len(m.peerIDs)+1 {
			m.commitIndex = n
		}
	}
	if m.commitIndex != saved {
		select {
		case m.newCommitReadyChan <- struct{}{}:
		default:
		}
		select {
		case m.triggerAEChan <- struct{}{}:
		default:
		}
	}
}

// commitSender drains newCommitReadyChan and forwards newly-committed
// entries to applyStream in strict index order, exactly once each.
func (m *Module) commitSender() {
	for {
		select {
		case <-m.done:
			close(m.applyStream)
			return
		case <-m.newCommitReadyChan:
		}

		m.mu.Lock()
		var toSend []LogEntry
		if m.commitIndex > m.lastApplied {
			toSend = append(toSend, m.log[m.lastApplied:m.commitIndex]...)
			m.lastApplied = m.commitIndex
		}
		m.mu.Unlock()

		for _, entry := range toSend {
			select {
			case m.applyStream <- CommitEntry{Command: entry.Command, Index: entry.Index, Term: entry.Term}:
			case <-m.done:
				return
			}
		}
	}
}
