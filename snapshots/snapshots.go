// Package snapshots captures per-node protocol state and verifies the
// protocol's safety invariants over sets of simultaneous captures. It is
// used by the in-process cluster runner and by the tests; nothing is ever
// written to disk.
package snapshots

import "github.com/arthursbmatos9/Computacao-Distribuida/common"

// Snapshot is one node's protocol state at a single instant.
type Snapshot struct {
	PID        int
	State      common.State
	Deferred   []int // node ids parked by this node
	LocalClock int
	ReqTs      int // timestamp of the current or last ticket
	ReqSeq     int
	NbrResps   int
	Contacted  int // peers contacted in the current or last attempt
}

// Set is the simultaneous capture of every node in a cluster.
type Set []Snapshot

// Verify applies every invariant checker to each set, in order, and returns
// the first violation found.
func Verify(sets ...Set) error {
	for _, set := range sets {
		for _, checker := range checkers {
			if err := checker(set...); err != nil {
				return err
			}
		}
	}
	return nil
}
