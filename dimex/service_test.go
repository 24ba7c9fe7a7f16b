package dimex

import (
	"testing"

	"github.com/arthursbmatos9/Computacao-Distribuida/common"
	"github.com/arthursbmatos9/Computacao-Distribuida/lamport"
)

// newBusyCoordinator builds a coordinator already interested in the critical
// section, without any network listener.
func newBusyCoordinator(id int, st common.State, ticket common.Ticket) *Coordinator {
	c := NewCoordinator(id, "localhost:0", nil, lamport.New())
	c.st = st
	c.ticket = ticket
	return c
}

func TestRequestAccessGrantsWhenIdle(t *testing.T) {
	c := NewCoordinator(1, "localhost:0", nil, lamport.New())
	svc := &Service{c: c}

	var reply AccessReply
	if err := svc.RequestAccess(AccessRequest{NodeID: 2, Timestamp: 7, Seq: 1}, &reply); err != nil {
		t.Fatalf("RequestAccess: %v", err)
	}
	if !reply.Granted {
		t.Error("an idle node must grant immediately")
	}
	if reply.Timestamp <= 7 {
		t.Errorf("reply must carry the post-merge clock, got %d for received 7", reply.Timestamp)
	}
}

func TestRequestAccessPriority(t *testing.T) {
	tests := []struct {
		name        string
		state       common.State
		ours        common.Ticket
		theirs      AccessRequest
		wantGranted bool
	}{
		{
			name:        "requesting_with_smaller_timestamp_defers",
			state:       common.WantMX,
			ours:        common.Ticket{NodeID: 1, Timestamp: 3, Seq: 1},
			theirs:      AccessRequest{NodeID: 2, Timestamp: 8, Seq: 1},
			wantGranted: false,
		},
		{
			name:        "requesting_with_larger_timestamp_grants",
			state:       common.WantMX,
			ours:        common.Ticket{NodeID: 1, Timestamp: 9, Seq: 1},
			theirs:      AccessRequest{NodeID: 2, Timestamp: 8, Seq: 1},
			wantGranted: true,
		},
		{
			name:        "holder_with_smaller_timestamp_defers",
			state:       common.InMX,
			ours:        common.Ticket{NodeID: 1, Timestamp: 3, Seq: 1},
			theirs:      AccessRequest{NodeID: 2, Timestamp: 8, Seq: 1},
			wantGranted: false,
		},
		{
			name:        "equal_timestamps_smaller_id_defers_larger",
			state:       common.WantMX,
			ours:        common.Ticket{NodeID: 1, Timestamp: 5, Seq: 1},
			theirs:      AccessRequest{NodeID: 2, Timestamp: 5, Seq: 1},
			wantGranted: false,
		},
		{
			name:        "equal_timestamps_larger_id_grants_smaller",
			state:       common.WantMX,
			ours:        common.Ticket{NodeID: 2, Timestamp: 5, Seq: 1},
			theirs:      AccessRequest{NodeID: 1, Timestamp: 5, Seq: 1},
			wantGranted: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newBusyCoordinator(tt.ours.NodeID, tt.state, tt.ours)
			svc := &Service{c: c}

			var reply AccessReply
			if err := svc.RequestAccess(tt.theirs, &reply); err != nil {
				t.Fatalf("RequestAccess: %v", err)
			}
			if reply.Granted != tt.wantGranted {
				t.Errorf("granted = %v, want %v", reply.Granted, tt.wantGranted)
			}

			deferred := len(c.deferred) > 0
			if deferred == tt.wantGranted {
				t.Errorf("deferred list %v inconsistent with granted=%v", c.deferred, reply.Granted)
			}
		})
	}
}

func TestRequestAccessDoesNotParkDuplicates(t *testing.T) {
	c := newBusyCoordinator(1, common.InMX, common.Ticket{NodeID: 1, Timestamp: 1, Seq: 1})
	svc := &Service{c: c}

	for i := 0; i < 3; i++ {
		var reply AccessReply
		if err := svc.RequestAccess(AccessRequest{NodeID: 2, Timestamp: 10 + i, Seq: 1}, &reply); err != nil {
			t.Fatalf("RequestAccess: %v", err)
		}
		if reply.Granted {
			t.Fatal("the holder must keep deferring the losing requester")
		}
	}

	if len(c.deferred) != 1 {
		t.Errorf("expected exactly one deferred entry, got %v", c.deferred)
	}
}

func TestRequestAccessRejectsMalformedTickets(t *testing.T) {
	c := NewCoordinator(1, "localhost:0", nil, lamport.New())
	svc := &Service{c: c}

	var reply AccessReply
	if err := svc.RequestAccess(AccessRequest{NodeID: 0, Timestamp: 5}, &reply); err == nil {
		t.Error("a request without a node id must be rejected")
	}
	if err := svc.RequestAccess(AccessRequest{NodeID: 2, Timestamp: -1}, &reply); err == nil {
		t.Error("a request with a negative timestamp must be rejected")
	}
	if c.clock.Time() != 0 {
		t.Errorf("malformed requests must not advance the clock, got %d", c.clock.Time())
	}
}

func TestGrantCountsTowardInFlightRequest(t *testing.T) {
	c := newBusyCoordinator(1, common.WantMX, common.Ticket{NodeID: 1, Timestamp: 4, Seq: 1})
	c.contacted = 2
	svc := &Service{c: c}

	var reply GrantReply
	if err := svc.Grant(GrantNotice{NodeID: 2, Timestamp: 9, Seq: 1}, &reply); err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if c.resps != 1 {
		t.Errorf("expected 1 counted grant, got %d", c.resps)
	}
	if reply.Timestamp <= 9 {
		t.Errorf("reply must carry the post-merge clock, got %d", reply.Timestamp)
	}
}

func TestGrantIgnoredWhenIdle(t *testing.T) {
	c := NewCoordinator(1, "localhost:0", nil, lamport.New())
	svc := &Service{c: c}

	var reply GrantReply
	if err := svc.Grant(GrantNotice{NodeID: 2, Timestamp: 9, Seq: 1}, &reply); err != nil {
		t.Fatalf("a stale grant must not be an error: %v", err)
	}
	if c.resps != 0 {
		t.Errorf("a stale grant must not count, got %d", c.resps)
	}
}

func TestGrantNeverExceedsContactedPeers(t *testing.T) {
	c := newBusyCoordinator(1, common.WantMX, common.Ticket{NodeID: 1, Timestamp: 4, Seq: 1})
	c.contacted = 1
	svc := &Service{c: c}

	for i := 0; i < 3; i++ {
		var reply GrantReply
		if err := svc.Grant(GrantNotice{NodeID: 2 + i, Timestamp: 9, Seq: 1}, &reply); err != nil {
			t.Fatalf("Grant: %v", err)
		}
	}
	if c.resps != 1 {
		t.Errorf("the counter must stay within the contacted peer count, got %d", c.resps)
	}
}

func TestCountGrantDiscardsStaleAttempts(t *testing.T) {
	c := newBusyCoordinator(1, common.WantMX, common.Ticket{NodeID: 1, Timestamp: 4, Seq: 2})
	c.contacted = 1

	c.countGrant(1) // a reply from the previous attempt
	if c.resps != 0 {
		t.Errorf("a reply for an earlier attempt must not count, got %d", c.resps)
	}

	c.countGrant(2)
	if c.resps != 1 {
		t.Errorf("expected the current attempt's reply to count, got %d", c.resps)
	}
}
