package snapshots

import (
	"fmt"

	"github.com/arthursbmatos9/Computacao-Distribuida/common"
)

// invariantCheckerFunc checks one invariant on a set of snapshots taken at
// the same instant.
type invariantCheckerFunc func(snapshots ...Snapshot) error

var checkers = []invariantCheckerFunc{
	checkMutualExclusion,
	checkDeferringImpliesWantOrInCS,
	checkRespsWithinContacted,
	checkInCSWithAllConsent,
	checkIdleClusterHasNoDeferrals,
}

// checkMutualExclusion verifies the correctness property of the whole
// system: at most one process is in the critical section at any instant.
func checkMutualExclusion(snapshots ...Snapshot) error {
	inCS := common.Count(snapshots, func(s Snapshot) bool {
		return s.State == common.InMX
	})
	if inCS > 1 {
		return fmt.Errorf("checkMutualExclusion: %d processes in critical section (more than 1)", inCS)
	}
	return nil
}

// checkDeferringImpliesWantOrInCS verifies that a process only parks other
// processes' requests while it is itself interested in the critical section.
func checkDeferringImpliesWantOrInCS(snapshots ...Snapshot) error {
	for _, s := range snapshots {
		if len(s.Deferred) == 0 {
			continue
		}
		if s.State != common.InMX && s.State != common.WantMX {
			return fmt.Errorf("checkDeferringImpliesWantOrInCS: process %d is deferring %v but is %s",
				s.PID, s.Deferred, s.State)
		}
	}
	return nil
}

// checkRespsWithinContacted verifies that no process counted more grants
// than the number of peers it contacted in its current attempt.
func checkRespsWithinContacted(snapshots ...Snapshot) error {
	for _, s := range snapshots {
		if s.NbrResps > s.Contacted {
			return fmt.Errorf("checkRespsWithinContacted: process %d counted %d grants for %d contacted peers",
				s.PID, s.NbrResps, s.Contacted)
		}
	}
	return nil
}

// checkInCSWithAllConsent verifies that a process in the critical section
// collected a grant from every peer it contacted. A process that entered
// with zero reachable peers holds the section with zero grants.
func checkInCSWithAllConsent(snapshots ...Snapshot) error {
	for _, s := range snapshots {
		if s.State == common.InMX && s.NbrResps != s.Contacted {
			return fmt.Errorf("checkInCSWithAllConsent: process %d is in the critical section with %d/%d grants",
				s.PID, s.NbrResps, s.Contacted)
		}
	}
	return nil
}

// checkIdleClusterHasNoDeferrals verifies that when every process is idle,
// no process is still holding back a deferred requester.
func checkIdleClusterHasNoDeferrals(snapshots ...Snapshot) error {
	allIdle := common.All(snapshots, func(s Snapshot) bool {
		return s.State == common.NoMX
	})
	if !allIdle {
		return nil
	}
	for _, s := range snapshots {
		if len(s.Deferred) > 0 {
			return fmt.Errorf("checkIdleClusterHasNoDeferrals: process %d is deferring %v but all processes are idle",
				s.PID, s.Deferred)
		}
	}
	return nil
}
