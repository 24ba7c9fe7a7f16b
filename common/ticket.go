package common

import "fmt"

// Ticket identifies one attempt by a node to enter the critical section.
// The pair (Timestamp, NodeID) is the priority key: the smaller pair wins.
// Seq is the node's per-process request number, carried for tracing and for
// discarding responses that belong to an earlier attempt.
type Ticket struct {
	NodeID    int
	Timestamp int
	Seq       int
}

// Before reports whether t has strictly higher priority than other, using
// the lexicographic (Timestamp, NodeID) order. Equal timestamps are broken
// by the smaller NodeID; the comparison never touches the timestamps
// themselves.
func (t Ticket) Before(other Ticket) bool {
	if t.Timestamp != other.Timestamp {
		return t.Timestamp < other.Timestamp
	}
	return t.NodeID < other.NodeID
}

func (t Ticket) String() string {
	return fmt.Sprintf("(TS:%d, ID:%d, #%d)", t.Timestamp, t.NodeID, t.Seq)
}
