package raft

import "time"

// defaultTimeNow is the production clock. Tests that need a deterministic
// clock (spec §9's design note) can reassign the package-level timeNow
// variable for the duration of the test.
func defaultTimeNow() time.Time {
	return time.Now()
}
