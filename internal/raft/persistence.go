package raft

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// persistedState is the self-delimiting on-disk record named by spec §6:
// "(current_term, voted_for, log[])". gob already self-describes field
// names and types, so a bare gob stream of this struct satisfies
// "self-delimiting and forward-compatible" without extra framing.
type persistedState struct {
	CurrentTerm int
	VotedFor    int
	Log         []LogEntry
}

// FileStore is a Storage implementation backed by a single file per
// replica, rewritten in full on every Save via write-temp-then-rename so a
// crash mid-write never leaves a torn file behind (spec §5: "the only disk
// resource ... is overwritten atomically").
type FileStore struct {
	path string
}

// NewFileStore returns a FileStore rooted at path. The containing directory
// is created if missing.
func NewFileStore(path string) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("raft: create storage dir: %w", err)
		}
	}
	return &FileStore{path: path}, nil
}

// Load reads the persisted triple. A missing file is treated as a fresh
// replica: (term 0, no vote, empty log).
func (f *FileStore) Load() (int, int, []LogEntry, error) {
	data, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		return 0, -1, nil, nil
	}
	if err != nil {
		return 0, -1, nil, fmt.Errorf("raft: read storage file: %w", err)
	}
	var state persistedState
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return 0, -1, nil, fmt.Errorf("raft: decode storage file: %w", err)
	}
	return state.CurrentTerm, state.VotedFor, state.Log, nil
}

// Save atomically rewrites the persisted triple.
func (f *FileStore) Save(currentTerm, votedFor int, log []LogEntry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(persistedState{
		CurrentTerm: currentTerm,
		VotedFor:    votedFor,
		Log:         log,
	}); err != nil {
		return fmt.Errorf("raft: encode storage file: %w", err)
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("raft: write storage temp file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return fmt.Errorf("raft: rename storage temp file: %w", err)
	}
	return nil
}

// MemStore is an in-memory Storage for callers that don't need
// restart/durability; nothing survives the process. The package's own test
// harness uses FileStore.
type MemStore struct {
	term int
	vote int
	log  []LogEntry
}

func NewMemStore() *MemStore {
	return &MemStore{vote: -1}
}

func (s *MemStore) Load() (int, int, []LogEntry, error) {
	return s.term, s.vote, append([]LogEntry(nil), s.log...), nil
}

func (s *MemStore) Save(currentTerm, votedFor int, log []LogEntry) error {
	s.term = currentTerm
	s.vote = votedFor
	s.log = append([]LogEntry(nil), log...)
	return nil
}
