// Package peers keeps the statically configured peer set of a node and
// decides, before each mutual-exclusion attempt, which peers are currently
// reachable.
package peers

import (
	"net"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
)

// Peer is one configured neighbor.
type Peer struct {
	ID      int
	Address string
}

// Directory holds the fixed peer set of a node. The set is deduplicated and
// never contains the node itself; it does not change after start-up.
type Directory struct {
	self  int
	peers []Peer
}

// NewDirectory builds the directory for node self from the configured
// id→address map. Entries for self and duplicate addresses are dropped.
func NewDirectory(self int, addresses map[int]string) *Directory {
	seen := make(map[string]bool)
	d := &Directory{self: self}
	for id, addr := range addresses {
		if id == self || seen[addr] {
			continue
		}
		seen[addr] = true
		d.peers = append(d.peers, Peer{ID: id, Address: addr})
	}
	sort.Slice(d.peers, func(i, j int) bool { return d.peers[i].ID < d.peers[j].ID })
	return d
}

// Address returns the configured address of a peer, if it is known.
func (d *Directory) Address(id int) (string, bool) {
	for _, p := range d.peers {
		if p.ID == id {
			return p.Address, true
		}
	}
	return "", false
}

// Configured returns the full configured peer set, reachable or not.
func (d *Directory) Configured() []Peer {
	out := make([]Peer, len(d.peers))
	copy(out, d.peers)
	return out
}

// Probe checks every configured peer with a bounded connection attempt and
// returns the ones that answered. Peers that do not answer are excluded from
// the caller's current attempt; they are probed again on the next one —
// reachability is never cached across attempts.
func (d *Directory) Probe(timeout time.Duration) []Peer {
	var active []Peer
	for _, p := range d.peers {
		conn, err := net.DialTimeout("tcp", p.Address, timeout)
		if err != nil {
			logrus.Debugf("P%d: peer %d (%s) unreachable: %v", d.self, p.ID, p.Address, err)
			continue
		}
		conn.Close()
		active = append(active, p)
	}
	return active
}
