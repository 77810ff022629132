package raft

import (
	"fmt"
	"os"
	"testing"
	"time"

	"go.uber.org/zap"
)

// testCluster is the in-process multi-replica harness, generalized from
// _examples/aecra-raft/cluster/cluster.go's Cluster type: spin up N
// replicas wired to real net/rpc transports on loopback, connect every pair,
// and let tests submit commands and inspect committed entries.
type testCluster struct {
	t       *testing.T
	modules []*Module
	trans   []*PeerTransport
	dirs    []string
	applied []chan CommitEntry
}

func newTestCluster(t *testing.T, n int) *testCluster {
	t.Helper()
	timing := Timing{
		HeartbeatInterval:  10 * time.Millisecond,
		ElectionTimeoutMin: 50 * time.Millisecond,
		ElectionTimeoutMax: 100 * time.Millisecond,
	}

	c := &testCluster{t: t}
	peerIDs := make([]int, n)
	for i := range peerIDs {
		peerIDs[i] = i
	}

	logger := zap.NewNop()

	for i := 0; i < n; i++ {
		trans, err := NewPeerTransport("127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		dir, err := os.MkdirTemp("", fmt.Sprintf("raft-test-%d-", i))
		if err != nil {
			t.Fatalf("mkdtemp: %v", err)
		}
		store, err := NewFileStore(dir + "/state.gob")
		if err != nil {
			t.Fatalf("store: %v", err)
		}

		peers := make([]int, 0, n-1)
		for _, p := range peerIDs {
			if p != i {
				peers = append(peers, p)
			}
		}

		m, err := New(i, peers, timing, trans, store, logger)
		if err != nil {
			t.Fatalf("new module: %v", err)
		}
		if err := trans.Register(m); err != nil {
			t.Fatalf("register: %v", err)
		}

		c.modules = append(c.modules, m)
		c.trans = append(c.trans, trans)
		c.dirs = append(c.dirs, dir)
	}

	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				c.trans[i].ConnectToPeer(j, c.trans[j].Addr())
			}
		}
	}

	for _, m := range c.modules {
		m.Start()
		ch := make(chan CommitEntry, 256)
		c.applied = append(c.applied, ch)
		go func(m *Module, ch chan CommitEntry) {
			for entry := range m.ApplyStream() {
				ch <- entry
			}
		}(m, ch)
	}

	return c
}

func (c *testCluster) shutdown() {
	for _, tr := range c.trans {
		tr.DisconnectAll()
		tr.Close()
	}
	for _, m := range c.modules {
		m.Stop()
	}
	for _, d := range c.dirs {
		os.RemoveAll(d)
	}
}

// leader polls until some replica reports itself leader, or fails the test.
func (c *testCluster) leader() *Module {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		for _, m := range c.modules {
			if _, _, isLeader := m.Report(); isLeader {
				return m
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.t.Fatalf("no leader elected")
	return nil
}

// submitAndWait submits command to the leader and waits for it to appear
// on every live replica's applied channel.
func (c *testCluster) submitAndWait(command interface{}) CommitEntry {
	c.t.Helper()
	leader := c.leader()
	index, term, ok := leader.Submit(command)
	if !ok {
		c.t.Fatalf("submit rejected by believed-leader")
	}

	var got CommitEntry
	deadline := time.Now().Add(3 * time.Second)
	for i, ch := range c.applied {
		for {
			select {
			case entry := <-ch:
				if entry.Index == index {
					if entry.Term != term {
						c.t.Fatalf("replica %d committed index %d at term %d, want %d", i, index, entry.Term, term)
					}
					got = entry
					goto next
				}
				// entry for an earlier index we haven't consumed yet;
				// ignore and keep draining.
			case <-time.After(time.Until(deadline)):
				c.t.Fatalf("replica %d never applied index %d", i, index)
			}
		}
	next:
	}
	return got
}
