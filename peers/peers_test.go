package peers

import (
	"net"
	"testing"
	"time"
)

func TestNewDirectoryExcludesSelfAndDuplicates(t *testing.T) {
	d := NewDirectory(1, map[int]string{
		1: "localhost:50052", // self, dropped
		2: "localhost:50053",
		3: "localhost:50053", // duplicate address, dropped
		4: "localhost:50055",
	})

	got := d.Configured()
	if len(got) != 2 {
		t.Fatalf("expected 2 configured peers, got %d: %v", len(got), got)
	}
	for _, p := range got {
		if p.ID == 1 {
			t.Error("directory must not contain the node itself")
		}
	}
}

func TestDirectoryAddress(t *testing.T) {
	d := NewDirectory(1, map[int]string{2: "localhost:50053"})

	if addr, ok := d.Address(2); !ok || addr != "localhost:50053" {
		t.Errorf("Address(2) = %q, %v; want localhost:50053, true", addr, ok)
	}
	if _, ok := d.Address(9); ok {
		t.Error("Address(9) should not resolve an unknown peer")
	}
}

func TestProbeFiltersUnreachablePeers(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	live := ln.Addr().String()

	// reserve a port nobody listens on
	dead, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	deadAddr := dead.Addr().String()
	dead.Close()

	d := NewDirectory(1, map[int]string{2: live, 3: deadAddr})

	active := d.Probe(500 * time.Millisecond)
	if len(active) != 1 {
		t.Fatalf("expected 1 active peer, got %d: %v", len(active), active)
	}
	if active[0].ID != 2 {
		t.Errorf("expected peer 2 to be active, got peer %d", active[0].ID)
	}
}

func TestProbeIsReEvaluatedEachCall(t *testing.T) {
	ln, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()

	d := NewDirectory(1, map[int]string{2: addr})

	if active := d.Probe(500 * time.Millisecond); len(active) != 1 {
		t.Fatalf("expected the peer to be reachable, got %v", active)
	}

	ln.Close()

	if active := d.Probe(500 * time.Millisecond); len(active) != 0 {
		t.Errorf("expected no reachable peers after the listener closed, got %v", active)
	}
}
