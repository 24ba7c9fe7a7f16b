// Package dimex implements the distributed mutual exclusion coordinator: a
// Ricart-Agrawala permission exchange ordered by Lamport timestamps. Each
// node runs exactly one Coordinator; Enter blocks until every currently
// reachable peer has granted access (or the retry budget is exhausted) and
// Exit releases every request that was deferred meanwhile.
package dimex

import (
	"fmt"
	"math/rand"
	"net"
	"net/rpc"
	"sync"
	"time"

	"github.com/arthursbmatos9/Computacao-Distribuida/common"
	"github.com/arthursbmatos9/Computacao-Distribuida/config"
	"github.com/arthursbmatos9/Computacao-Distribuida/lamport"
	"github.com/arthursbmatos9/Computacao-Distribuida/peers"
	"github.com/arthursbmatos9/Computacao-Distribuida/snapshots"
	"github.com/sirupsen/logrus"
)

// Opt customizes a Coordinator, mostly to shorten timeouts in tests.
type Opt func(*Coordinator)

// WithProbeTimeout bounds the per-peer liveness check.
func WithProbeTimeout(d time.Duration) Opt {
	return func(c *Coordinator) { c.probeTimeout = d }
}

// WithCallTimeout bounds each outbound RequestAccess call.
func WithCallTimeout(d time.Duration) Opt {
	return func(c *Coordinator) { c.callTimeout = d }
}

// WithGrantTimeout bounds each deferred-grant notification.
func WithGrantTimeout(d time.Duration) Opt {
	return func(c *Coordinator) { c.grantTimeout = d }
}

// WithRoundTimeout bounds how long one attempt waits for the full grant set.
func WithRoundTimeout(d time.Duration) Opt {
	return func(c *Coordinator) { c.roundTimeout = d }
}

// WithPollInterval sets how often the grant wait re-checks the counter.
func WithPollInterval(d time.Duration) Opt {
	return func(c *Coordinator) { c.pollInterval = d }
}

// WithRetryPolicy sets the number of rounds attempted before Enter fails and
// the base backoff between them (a random jitter of up to the same amount is
// added on top).
func WithRetryPolicy(maxRetries int, delay time.Duration) Opt {
	return func(c *Coordinator) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

// Coordinator owns one node's side of the mutual exclusion protocol. All of
// its mutable protocol state is guarded by a single mutex; the Lamport clock
// keeps its own and is never locked while holding it.
type Coordinator struct {
	id      int
	address string
	dir     *peers.Directory
	clock   *lamport.Clock

	mu        sync.Mutex
	st        common.State
	ticket    common.Ticket // the in-flight or held request
	seq       int           // per-process request number
	resps     int           // grants collected for the current attempt
	contacted int           // peers contacted in the current attempt
	deferred  []int         // node ids whose requests we postponed

	probeTimeout time.Duration
	callTimeout  time.Duration
	grantTimeout time.Duration
	roundTimeout time.Duration
	pollInterval time.Duration
	maxRetries   int
	retryDelay   time.Duration

	listener net.Listener
	shutdown chan struct{}
	stopOnce sync.Once

	connMu sync.Mutex
	conns  map[string]*rpc.Client // one cached connection per destination
}

// NewCoordinator builds the coordinator for node id, listening on address,
// with the given configured peer set. The clock is shared with the rest of
// the process so job submissions advance the same counter.
func NewCoordinator(id int, address string, peerAddrs map[int]string, clock *lamport.Clock, opts ...Opt) *Coordinator {
	c := &Coordinator{
		id:      id,
		address: address,
		dir:     peers.NewDirectory(id, peerAddrs),
		clock:   clock,
		st:      common.NoMX,

		probeTimeout: config.ProbeTimeout,
		callTimeout:  config.CallTimeout,
		grantTimeout: config.GrantTimeout,
		roundTimeout: config.RoundTimeout,
		pollInterval: config.PollInterval,
		maxRetries:   config.MaxRetries,
		retryDelay:   config.RetryDelay,

		shutdown: make(chan struct{}),
		conns:    make(map[string]*rpc.Client),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start registers the inbound RPC service and begins accepting connections.
func (c *Coordinator) Start() error {
	srv := rpc.NewServer()
	if err := srv.RegisterName("Service", &Service{c: c}); err != nil {
		return fmt.Errorf("dimex: node %d register: %w", c.id, err)
	}
	ln, err := net.Listen("tcp", c.address)
	if err != nil {
		return fmt.Errorf("dimex: node %d cannot listen on %s: %w", c.id, c.address, err)
	}
	c.listener = ln
	logrus.Infof("P%d: listening on %s", c.id, c.address)

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				select {
				case <-c.shutdown:
					return
				default:
				}
				logrus.Errorf("P%d: accept error: %v", c.id, err)
				continue
			}
			go srv.ServeConn(conn)
		}
	}()
	return nil
}

// Stop closes the listener and every cached outbound connection.
func (c *Coordinator) Stop() {
	c.stopOnce.Do(func() {
		close(c.shutdown)
		if c.listener != nil {
			c.listener.Close()
		}
		c.connMu.Lock()
		for addr, client := range c.conns {
			client.Close()
			delete(c.conns, addr)
		}
		c.connMu.Unlock()
		logrus.Infof("P%d: stopped", c.id)
	})
}

// Enter blocks until this node holds the critical section or the retry
// budget is exhausted. On return with a nil error the node is in the
// critical section and must eventually call Exit; on a non-nil error the
// node is back to idle.
func (c *Coordinator) Enter() error {
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if c.tryEnter() {
			return nil
		}
		if attempt < c.maxRetries {
			delay := c.retryDelay
			if c.retryDelay > 0 {
				delay += time.Duration(rand.Int63n(int64(c.retryDelay)))
			}
			logrus.Warnf("P%d: attempt %d/%d failed, retrying in %v", c.id, attempt, c.maxRetries, delay)
			time.Sleep(delay)
		}
	}
	return fmt.Errorf("dimex: node %d gave up after %d attempts", c.id, c.maxRetries)
}

// tryEnter runs one full round: probe, stamp a fresh ticket, fan the request
// out, and wait for the full grant set until the round timeout.
func (c *Coordinator) tryEnter() bool {
	active := c.dir.Probe(c.probeTimeout)

	c.mu.Lock()
	c.seq++
	ticket := common.Ticket{NodeID: c.id, Timestamp: c.clock.Tick(), Seq: c.seq}
	c.ticket = ticket
	c.st = common.WantMX
	c.resps = 0
	c.contacted = len(active)
	c.mu.Unlock()

	logrus.Infof("P%d: requesting critical section %s, %d active peers", c.id, ticket, len(active))

	// a single-node system is vacuously safe
	if len(active) == 0 {
		c.mu.Lock()
		c.st = common.InMX
		c.mu.Unlock()
		logrus.Infof("P%d: no active peers, entering immediately", c.id)
		return true
	}

	for _, p := range active {
		go c.requestAccess(p, ticket)
	}

	deadline := time.Now().Add(c.roundTimeout)
	for {
		c.mu.Lock()
		if c.st == common.WantMX && c.ticket.Seq == ticket.Seq && c.resps >= c.contacted {
			c.st = common.InMX
			c.mu.Unlock()
			logrus.Infof("P%d: all %d grants received, entering critical section", c.id, len(active))
			return true
		}
		got := c.resps
		c.mu.Unlock()

		if time.Now().After(deadline) {
			logrus.Warnf("P%d: round timed out with %d/%d grants", c.id, got, len(active))
			break
		}
		time.Sleep(c.pollInterval)
	}

	// Roll the attempt back and free anyone we deferred while we still held
	// priority, so no peer starves on our failed round.
	c.mu.Lock()
	c.st = common.NoMX
	drained := c.deferred
	c.deferred = nil
	c.mu.Unlock()
	if len(drained) > 0 {
		c.notifyDeferred(drained, c.clock.Tick(), ticket.Seq)
	}
	return false
}

// requestAccess sends one RequestAccess call and records the outcome. A
// transport failure counts as a grant: a peer that cannot answer is assumed
// not to be a contender.
func (c *Coordinator) requestAccess(p peers.Peer, ticket common.Ticket) {
	args := AccessRequest{NodeID: ticket.NodeID, Timestamp: ticket.Timestamp, Seq: ticket.Seq}
	var reply AccessReply
	if err := c.call(p.Address, "RequestAccess", args, &reply, c.callTimeout); err != nil {
		logrus.Warnf("P%d: RequestAccess to peer %d failed (%v), counting as grant", c.id, p.ID, err)
		c.countGrant(ticket.Seq)
		return
	}
	c.clock.Observe(reply.Timestamp)
	if reply.Granted {
		logrus.Infof("P%d: grant from peer %d", c.id, p.ID)
		c.countGrant(ticket.Seq)
	} else {
		logrus.Infof("P%d: peer %d deferred, waiting for its release", c.id, p.ID)
	}
}

// countGrant increments the reply counter for the attempt identified by seq.
// Responses from an earlier attempt and surplus grants are discarded, so the
// counter never exceeds the number of peers contacted this attempt.
func (c *Coordinator) countGrant(seq int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.st != common.WantMX || c.ticket.Seq != seq {
		logrus.Debugf("P%d: discarding stale grant for request #%d", c.id, seq)
		return
	}
	if c.resps >= c.contacted {
		logrus.Debugf("P%d: discarding surplus grant for request #%d", c.id, seq)
		return
	}
	c.resps++
}

// Exit leaves the critical section and sends one grant to every peer whose
// request was deferred while this node held priority. Delivery is best
// effort: a peer that misses its grant times its own round out and retries.
func (c *Coordinator) Exit() {
	ts := c.clock.Tick()

	c.mu.Lock()
	if c.st != common.InMX {
		c.mu.Unlock()
		logrus.Warnf("P%d: Exit called outside the critical section", c.id)
		return
	}
	c.st = common.NoMX
	drained := c.deferred
	c.deferred = nil
	seq := c.ticket.Seq
	c.mu.Unlock()

	logrus.Infof("P%d: leaving critical section, %d deferred peers to notify", c.id, len(drained))
	c.notifyDeferred(drained, ts, seq)
}

func (c *Coordinator) notifyDeferred(ids []int, ts, seq int) {
	for _, id := range ids {
		addr, ok := c.dir.Address(id)
		if !ok {
			logrus.Warnf("P%d: no address for deferred peer %d", c.id, id)
			continue
		}
		args := GrantNotice{NodeID: c.id, Timestamp: ts, Seq: seq}
		var reply GrantReply
		if err := c.call(addr, "Grant", args, &reply, c.grantTimeout); err != nil {
			logrus.Warnf("P%d: grant to peer %d failed: %v", c.id, id, err)
			continue
		}
		c.clock.Observe(reply.Timestamp)
		logrus.Infof("P%d: grant delivered to peer %d", c.id, id)
	}
}

// Snapshot captures the coordinator's current protocol state for the
// invariant checkers.
func (c *Coordinator) Snapshot() snapshots.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	deferred := make([]int, len(c.deferred))
	copy(deferred, c.deferred)
	return snapshots.Snapshot{
		PID:        c.id,
		State:      c.st,
		Deferred:   deferred,
		LocalClock: c.clock.Time(),
		ReqTs:      c.ticket.Timestamp,
		ReqSeq:     c.ticket.Seq,
		NbrResps:   c.resps,
		Contacted:  c.contacted,
	}
}

// call performs one RPC with a bounded wait, reusing a cached connection to
// the destination when one is open and dropping it on any failure so the
// next call redials.
func (c *Coordinator) call(address, method string, args, reply interface{}, timeout time.Duration) error {
	client, err := c.client(address)
	if err != nil {
		return err
	}
	done := make(chan error, 1)
	go func() { done <- client.Call("Service."+method, args, reply) }()
	select {
	case err := <-done:
		if err != nil {
			c.dropClient(address, client)
		}
		return err
	case <-time.After(timeout):
		c.dropClient(address, client)
		return fmt.Errorf("dimex: %s to %s timed out after %v", method, address, timeout)
	}
}

func (c *Coordinator) client(address string) (*rpc.Client, error) {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	if client, ok := c.conns[address]; ok {
		return client, nil
	}
	conn, err := net.DialTimeout("tcp", address, c.callTimeout)
	if err != nil {
		return nil, err
	}
	client := rpc.NewClient(conn)
	c.conns[address] = client
	return client, nil
}

func (c *Coordinator) dropClient(address string, client *rpc.Client) {
	c.connMu.Lock()
	if c.conns[address] == client {
		delete(c.conns, address)
	}
	c.connMu.Unlock()
	client.Close()
}
