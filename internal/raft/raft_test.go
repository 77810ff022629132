package raft

import (
	"testing"
	"time"
)

// TestElectsASingleLeader covers safety rule 7 from spec §3 invariants:
// "at most one leader per term" — here checked as "exactly one leader at
// any observation point".
func TestElectsASingleLeader(t *testing.T) {
	c := newTestCluster(t, 3)
	defer c.shutdown()

	leader := c.leader()
	count := 0
	term, _, _ := leader.Report()
	_ = term
	for _, m := range c.modules {
		if _, _, isLeader := m.Report(); isLeader {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected exactly one leader, got %d", count)
	}
}

// TestLogMatching covers testable property 1: any index present on two
// replicas with the same term carries the same command.
func TestLogMatching(t *testing.T) {
	c := newTestCluster(t, 3)
	defer c.shutdown()

	c.submitAndWait("command-a")
	c.submitAndWait("command-b")

	time.Sleep(100 * time.Millisecond) // let the slowest follower catch up

	var reference []LogEntry
	for i, m := range c.modules {
		m.mu.Lock()
		log := append([]LogEntry(nil), m.log...)
		m.mu.Unlock()
		if i == 0 {
			reference = log
			continue
		}
		n := len(log)
		if len(reference) < n {
			n = len(reference)
		}
		for idx := 0; idx < n; idx++ {
			if log[idx].Term == reference[idx].Term && log[idx].Command != reference[idx].Command {
				t.Fatalf("log mismatch at index %d: %v vs %v", idx, log[idx], reference[idx])
			}
		}
	}
}

// TestDurabilityAcrossRestart covers testable property 4: a committed
// command is in replica 0's persisted file at the same index. No replica
// is restarted; the file is loaded with a fresh FileStore, the same way
// New loads it when a replica starts.
func TestDurabilityAcrossRestart(t *testing.T) {
	c := newTestCluster(t, 3)
	defer c.shutdown()

	entry := c.submitAndWait("durable-command")

	store, err := NewFileStore(c.dirs[0] + "/state.gob")
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	_, _, log, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(log) < entry.Index {
		t.Fatalf("restarted log too short: got %d entries, want at least %d", len(log), entry.Index)
	}
	if log[entry.Index-1].Command != "durable-command" {
		t.Fatalf("restarted log entry mismatch: got %v", log[entry.Index-1])
	}
}

// TestFollowerRejectsStaleTerm covers safety rule 1.
func TestFollowerRejectsStaleTerm(t *testing.T) {
	c := newTestCluster(t, 3)
	defer c.shutdown()

	c.leader() // ensure an election has happened so currentTerm > 0

	var follower *Module
	for _, m := range c.modules {
		if _, _, isLeader := m.Report(); !isLeader {
			follower = m
			break
		}
	}
	if follower == nil {
		t.Fatalf("no follower found")
	}

	_, term, _ := follower.Report()
	var reply AppendEntriesReply
	follower.AppendEntries(AppendEntriesArgs{Term: term - 1, LeaderID: 99}, &reply)
	if reply.Success {
		t.Fatalf("expected stale-term append_entries to be rejected")
	}
}

// TestRequestVoteLogUpToDate covers safety rule 4's log-comparison half.
func TestRequestVoteLogUpToDate(t *testing.T) {
	c := newTestCluster(t, 3)
	defer c.shutdown()

	c.submitAndWait("one-entry")

	var m *Module
	for _, cand := range c.modules {
		m = cand
		break
	}
	_, term, _ := m.Report()

	var reply RequestVoteReply
	m.RequestVote(RequestVoteArgs{
		Term:         term + 1,
		CandidateID:  999,
		LastLogIndex: 0,
		LastLogTerm:  0,
	}, &reply)
	if reply.VoteGranted {
		t.Fatalf("expected vote to be denied to a candidate with an empty log")
	}
}
