package dimex

import (
	"fmt"

	"github.com/arthursbmatos9/Computacao-Distribuida/common"
	"github.com/sirupsen/logrus"
)

// AccessRequest asks the receiver for permission to enter the critical
// section. The (Timestamp, NodeID) pair is the requester's priority.
type AccessRequest struct {
	NodeID    int
	Timestamp int
	Seq       int
}

// AccessReply answers an AccessRequest. Granted=false means the receiver
// kept priority and will answer with a Grant when it releases the section.
// Timestamp always carries the receiver's post-merge clock value.
type AccessReply struct {
	Granted   bool
	Timestamp int
}

// GrantNotice releases one previously deferred requester. It is the second,
// dedicated message kind: a targeted grant, never an overloaded release.
type GrantNotice struct {
	NodeID    int
	Timestamp int
	Seq       int
}

// GrantReply acknowledges a GrantNotice with the receiver's clock value.
type GrantReply struct {
	Timestamp int
}

// Service is the inbound RPC surface of a Coordinator. One call is served
// per inbound request; every handler merges the sender's timestamp into the
// local clock before touching protocol state.
type Service struct {
	c *Coordinator
}

// RequestAccess decides grant or defer for a peer's entry request. An idle
// node grants immediately; a busy node grants unless its own ticket has the
// strictly smaller (timestamp, node id) pair, in which case the requester is
// parked until this node releases the section.
func (s *Service) RequestAccess(args AccessRequest, reply *AccessReply) error {
	if args.NodeID <= 0 || args.Timestamp < 0 {
		return fmt.Errorf("dimex: malformed access request from node %d (ts %d)", args.NodeID, args.Timestamp)
	}
	c := s.c
	now := c.clock.Observe(args.Timestamp)
	theirs := common.Ticket{NodeID: args.NodeID, Timestamp: args.Timestamp, Seq: args.Seq}

	c.mu.Lock()
	defer c.mu.Unlock()
	reply.Timestamp = now

	if c.st == common.NoMX {
		reply.Granted = true
		logrus.Infof("P%d: request %s granted immediately (idle)", c.id, theirs)
		return nil
	}

	if c.ticket.Before(theirs) {
		// Our pair is smaller: we keep priority and answer on release. A
		// duplicate request from an already parked peer is not parked twice.
		if common.Any(c.deferred, func(id int) bool { return id == args.NodeID }) {
			logrus.Warnf("P%d: duplicate request from node %d, already deferred", c.id, args.NodeID)
		} else {
			c.deferred = append(c.deferred, args.NodeID)
		}
		reply.Granted = false
		logrus.Infof("P%d: deferring %s, ours is %s", c.id, theirs, c.ticket)
		return nil
	}

	// The requester wins the priority compare; we grant even though we still
	// want (or hold) the section and proceed when our own grants arrive.
	reply.Granted = true
	logrus.Infof("P%d: granting %s, ours is %s", c.id, theirs, c.ticket)
	return nil
}

// Grant delivers a deferred grant: the sender left the critical section and
// this node's parked request may count one more reply. Grants that arrive
// when no request is in flight are logged and dropped.
func (s *Service) Grant(args GrantNotice, reply *GrantReply) error {
	if args.NodeID <= 0 || args.Timestamp < 0 {
		return fmt.Errorf("dimex: malformed grant from node %d (ts %d)", args.NodeID, args.Timestamp)
	}
	c := s.c
	reply.Timestamp = c.clock.Observe(args.Timestamp)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st != common.WantMX {
		logrus.Debugf("P%d: ignoring grant from node %d, no request in flight (state %s)", c.id, args.NodeID, c.st)
		return nil
	}
	if c.resps >= c.contacted {
		logrus.Debugf("P%d: ignoring surplus grant from node %d", c.id, args.NodeID)
		return nil
	}
	c.resps++
	logrus.Infof("P%d: release grant from node %d (%d/%d)", c.id, args.NodeID, c.resps, c.contacted)
	return nil
}
